package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/response"
	"github.com/kicc/cbt-backend/internal/service"
	"github.com/rs/zerolog"
)

type errMapping struct {
	target error
	status int
	code   response.ErrCode
}

var domainErrors = []errMapping{
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
	{service.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
	{service.ErrUserNotFound, http.StatusNotFound, response.ErrNotFound},

	{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},

	{service.ErrNotExamOwner, http.StatusForbidden, response.ErrNotExamOwner},
	{service.ErrNotSessionOwner, http.StatusForbidden, response.ErrNotSessionOwner},
	{service.ErrDifferentSchool, http.StatusForbidden, response.ErrDifferentSchool},
	{service.ErrNotEligible, http.StatusForbidden, response.ErrNotEligible},
	{service.ErrFeatureNotPermitted, http.StatusForbidden, response.ErrFeatureNotPermitted},

	{service.ErrSessionFinal, http.StatusConflict, response.ErrSessionFinal},
	{service.ErrExamEnded, http.StatusConflict, response.ErrExamEnded},
	{service.ErrInvalidTransition, http.StatusConflict, response.ErrInvalidTransition},
	{service.ErrExamNotEditable, http.StatusConflict, response.ErrExamNotEditable},

	{service.ErrExamNotAvailable, http.StatusPreconditionFailed, response.ErrExamNotAvailable},
	{service.ErrExamNotStarted, http.StatusPreconditionFailed, response.ErrExamNotStarted},
	{service.ErrTimeUp, http.StatusPreconditionFailed, response.ErrTimeUp},
	{service.ErrSessionLocked, http.StatusLocked, response.ErrSessionLocked},

	{service.ErrInvalidGrade, http.StatusBadRequest, response.ErrInvalidGrade},
}

// failWithError maps a service error onto the response envelope. Unknown
// errors are logged and reported as 500.
func failWithError(c *gin.Context, log zerolog.Logger, err error) {
	var conflict *service.SessionConflictError
	if errors.As(err, &conflict) {
		code := response.ErrAlreadyTaken
		if errors.Is(err, service.ErrSessionFinal) {
			code = response.ErrSessionFinal
		}
		response.FailWithData(c, http.StatusConflict, code, gin.H{"session": conflict.Session})
		return
	}

	var invalidExam *service.ValidationError
	if errors.As(err, &invalidExam) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, invalidExam.Fields)
		return
	}

	var invalidAnswer *model.AnswerError
	if errors.As(err, &invalidAnswer) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidAnswer, map[string]string{
			invalidAnswer.Key: invalidAnswer.Reason,
		})
		return
	}

	for _, m := range domainErrors {
		if errors.Is(err, m.target) {
			response.Fail(c, m.status, m.code)
			return
		}
	}

	log.Error().Err(err).
		Str("method", c.Request.Method).
		Str("path", c.FullPath()).
		Msg("Unhandled error")
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}
