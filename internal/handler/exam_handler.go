package handler

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kicc/cbt-backend/internal/middleware"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/response"
	"github.com/kicc/cbt-backend/internal/service"
	"github.com/kicc/cbt-backend/internal/validator"
	"github.com/rs/zerolog"
)

// ExamHandler handles teacher exam management endpoints.
type ExamHandler struct {
	examService      *service.ExamService
	monitorService   *service.MonitorService
	violationService *service.ViolationService
	log              zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(
	examService *service.ExamService,
	monitorService *service.MonitorService,
	violationService *service.ViolationService,
	log zerolog.Logger,
) *ExamHandler {
	return &ExamHandler{
		examService:      examService,
		monitorService:   monitorService,
		violationService: violationService,
		log:              log.With().Str("component", "exam_handler").Logger(),
	}
}

// ListExams godoc
// GET /api/v1/teacher/exams
// Lists the caller's exams, newest first, with pagination.
func (h *ExamHandler) ListExams(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	exams, err := h.examService.ListTeacherExams(c.Request.Context(), claims.UserID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	total := len(exams)
	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams[start:end]}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: int(math.Ceil(float64(total) / float64(perPage))),
	})
}

// CreateExam godoc
// POST /api/v1/teacher/exams
// Creates a scheduled, inactive exam.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.CreateExam(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// GetExam godoc
// GET /api/v1/teacher/exams/:id
func (h *ExamHandler) GetExam(c *gin.Context) {
	claims, examID, ok := claimsAndID(c)
	if !ok {
		return
	}

	exam, err := h.examService.GetExam(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// UpdateExam godoc
// PUT /api/v1/teacher/exams/:id
// Replaces the definition of a scheduled exam.
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	claims, examID, ok := claimsAndID(c)
	if !ok {
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.UpdateExam(c.Request.Context(), claims.UserID, examID, &req)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// DeleteExam godoc
// DELETE /api/v1/teacher/exams/:id
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	claims, examID, ok := claimsAndID(c)
	if !ok {
		return
	}

	if err := h.examService.DeleteExam(c.Request.Context(), claims.UserID, examID); err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "exam deleted"})
}

// SetStatus godoc
// PATCH /api/v1/teacher/exams/:id/status
// Starts, ends or toggles the visibility of an exam.
func (h *ExamHandler) SetStatus(c *gin.Context) {
	claims, examID, ok := claimsAndID(c)
	if !ok {
		return
	}

	var req model.SetExamStatusRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if req.Status == nil && req.IsActive == nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
			"status": "status or is_active is required",
		})
		return
	}

	exam, err := h.examService.SetStatus(c.Request.Context(), claims.UserID, examID, &req)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// ListSessions godoc
// GET /api/v1/teacher/exams/:id/sessions
// Returns the class roster with every student's session state.
func (h *ExamHandler) ListSessions(c *gin.Context) {
	claims, examID, ok := claimsAndID(c)
	if !ok {
		return
	}

	snap, err := h.monitorService.Snapshot(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, snap)
}

// ExamViolations godoc
// GET /api/v1/teacher/exams/:id/violations
func (h *ExamHandler) ExamViolations(c *gin.Context) {
	claims, examID, ok := claimsAndID(c)
	if !ok {
		return
	}

	report, err := h.violationService.ExamViolations(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, report)
}

// claimsAndID reads the caller's claims and the :id path parameter, writing
// the error response itself when either is missing.
func claimsAndID(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, id, true
}
