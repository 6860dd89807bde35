package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/response"
	"github.com/kicc/cbt-backend/internal/service"
	"github.com/kicc/cbt-backend/internal/validator"
	"github.com/rs/zerolog"
)

// SessionControlHandler lets an exam owner intervene in a student's session.
type SessionControlHandler struct {
	controlService   *service.ControlService
	violationService *service.ViolationService
	log              zerolog.Logger
}

// NewSessionControlHandler creates a new SessionControlHandler.
func NewSessionControlHandler(controlService *service.ControlService, violationService *service.ViolationService, log zerolog.Logger) *SessionControlHandler {
	return &SessionControlHandler{
		controlService:   controlService,
		violationService: violationService,
		log:              log.With().Str("component", "session_control_handler").Logger(),
	}
}

// LockSession godoc
// POST /api/v1/teacher/sessions/:id/lock
func (h *SessionControlHandler) LockSession(c *gin.Context) {
	claims, sessionID, ok := claimsAndID(c)
	if !ok {
		return
	}
	req, ok := bindReason(c)
	if !ok {
		return
	}

	sess, err := h.controlService.LockSession(c.Request.Context(), claims.UserID, sessionID, req.Reason)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": sess})
}

// UnlockSession godoc
// POST /api/v1/teacher/sessions/:id/unlock
func (h *SessionControlHandler) UnlockSession(c *gin.Context) {
	claims, sessionID, ok := claimsAndID(c)
	if !ok {
		return
	}

	sess, err := h.controlService.UnlockSession(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": sess})
}

// ForceSubmit godoc
// POST /api/v1/teacher/sessions/:id/force-submit
// Scores the autosaved answers and terminates the session.
func (h *SessionControlHandler) ForceSubmit(c *gin.Context) {
	claims, sessionID, ok := claimsAndID(c)
	if !ok {
		return
	}
	req, ok := bindReason(c)
	if !ok {
		return
	}

	sess, err := h.controlService.ForceSubmitSession(c.Request.Context(), claims.UserID, sessionID, req.Reason)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": sess})
}

// SessionViolations godoc
// GET /api/v1/teacher/sessions/:id/violations
func (h *SessionControlHandler) SessionViolations(c *gin.Context) {
	claims, sessionID, ok := claimsAndID(c)
	if !ok {
		return
	}

	summary, err := h.violationService.SessionViolations(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, summary)
}

// bindReason reads the optional {reason} body. An empty body is allowed.
func bindReason(c *gin.Context) (model.SessionActionRequest, bool) {
	var req model.SessionActionRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return req, false
	}
	return req, true
}
