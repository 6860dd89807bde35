package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kicc/cbt-backend/internal/middleware"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/response"
	"github.com/kicc/cbt-backend/internal/service"
	"github.com/kicc/cbt-backend/internal/validator"
	"github.com/rs/zerolog"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GradingHandler serves results, exports and manual grading.
type GradingHandler struct {
	gradingService *service.GradingService
	exportService  *service.ExportService
	log            zerolog.Logger
}

// NewGradingHandler creates a new GradingHandler.
func NewGradingHandler(gradingService *service.GradingService, exportService *service.ExportService, log zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		gradingService: gradingService,
		exportService:  exportService,
		log:            log.With().Str("component", "grading_handler").Logger(),
	}
}

// GradingQueue godoc
// GET /api/v1/teacher/grading
// Lists finished sessions with essay answers across the caller's exams.
func (h *GradingHandler) GradingQueue(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	items, err := h.gradingService.ListGradingQueue(c.Request.Context(), claims.UserID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": items})
}

// UpdateGrades godoc
// PUT /api/v1/teacher/sessions/:id/grades
func (h *GradingHandler) UpdateGrades(c *gin.Context) {
	claims, sessionID, ok := claimsAndID(c)
	if !ok {
		return
	}

	var req model.ManualGradeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, err := h.gradingService.UpdateManualGrade(c.Request.Context(), claims.UserID, sessionID, req.Grades)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": sess})
}

// ExamResults godoc
// GET /api/v1/teacher/exams/:id/results
func (h *GradingHandler) ExamResults(c *gin.Context) {
	claims, examID, ok := claimsAndID(c)
	if !ok {
		return
	}

	res, err := h.gradingService.ExamResults(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// ExportResults godoc
// GET /api/v1/teacher/exams/:id/results/export
// Streams the results as an XLSX workbook.
func (h *GradingHandler) ExportResults(c *gin.Context) {
	claims, examID, ok := claimsAndID(c)
	if !ok {
		return
	}

	data, name, err := h.exportService.ExportResults(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, xlsxContentType, data)
}
