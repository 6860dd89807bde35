package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kicc/cbt-backend/internal/middleware"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/response"
	"github.com/kicc/cbt-backend/internal/service"
	"github.com/kicc/cbt-backend/internal/validator"
	"github.com/rs/zerolog"
)

// StudentPortalHandler serves the exam-taking endpoints.
type StudentPortalHandler struct {
	sessionService   *service.SessionService
	violationService *service.ViolationService
	log              zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(sessionService *service.SessionService, violationService *service.ViolationService, log zerolog.Logger) *StudentPortalHandler {
	return &StudentPortalHandler{
		sessionService:   sessionService,
		violationService: violationService,
		log:              log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// ListExams godoc
// GET /api/v1/student/exams
// Lists the exams visible to the student with their own session status.
func (h *StudentPortalHandler) ListExams(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	exams, err := h.sessionService.ListStudentExams(c.Request.Context(), claims.UserID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// Results godoc
// GET /api/v1/student/results
func (h *StudentPortalHandler) Results(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	results, err := h.sessionService.StudentResults(c.Request.Context(), claims.UserID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}

// StartExam godoc
// POST /api/v1/student/exams/:id/start
// Admits the student, or resumes the ongoing session. Returns 201 for a new
// session and 200 for a resumed one.
func (h *StudentPortalHandler) StartExam(c *gin.Context) {
	claims, examID, ok := claimsAndID(c)
	if !ok {
		return
	}

	view, err := h.sessionService.StartSession(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	status := http.StatusCreated
	if view.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, view)
}

// MyViolations godoc
// GET /api/v1/student/exams/:id/violations
func (h *StudentPortalHandler) MyViolations(c *gin.Context) {
	claims, examID, ok := claimsAndID(c)
	if !ok {
		return
	}

	summary, err := h.violationService.MyViolations(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, summary)
}

// GetSession godoc
// GET /api/v1/student/sessions/:id
// Returns the session with the question paper and the remaining time.
func (h *StudentPortalHandler) GetSession(c *gin.Context) {
	claims, sessionID, ok := claimsAndID(c)
	if !ok {
		return
	}

	view, err := h.sessionService.GetSessionState(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// SaveAnswers godoc
// PUT /api/v1/student/sessions/:id/answers
// Merges a partial answer set into the autosaved answers.
func (h *StudentPortalHandler) SaveAnswers(c *gin.Context) {
	claims, sessionID, ok := claimsAndID(c)
	if !ok {
		return
	}

	var req model.SaveAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, err := h.sessionService.SaveAnswers(c.Request.Context(), claims.UserID, sessionID, req.Answers)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"status":         "saved",
		"answered_count": sess.Answers.AnsweredCount(),
	})
}

// SubmitExam godoc
// POST /api/v1/student/sessions/:id/submit
func (h *StudentPortalHandler) SubmitExam(c *gin.Context) {
	claims, sessionID, ok := claimsAndID(c)
	if !ok {
		return
	}

	var req model.SubmitExamRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	result, err := h.sessionService.SubmitExam(c.Request.Context(), claims.UserID, sessionID, req.Answers)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// LogViolation godoc
// POST /api/v1/student/sessions/:id/violations
// Records a proctoring event and applies the auto-lock policy.
func (h *StudentPortalHandler) LogViolation(c *gin.Context) {
	claims, sessionID, ok := claimsAndID(c)
	if !ok {
		return
	}

	var req model.LogViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	outcome, err := h.violationService.LogViolation(c.Request.Context(), claims.UserID, sessionID, &req)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, outcome)
}
