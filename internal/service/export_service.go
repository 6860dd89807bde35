package service

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const resultsSheet = "Results"

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// ExportService renders result sheets as XLSX workbooks.
type ExportService struct {
	grading *GradingService
	log     zerolog.Logger
}

// NewExportService creates a new ExportService.
func NewExportService(grading *GradingService, log zerolog.Logger) *ExportService {
	return &ExportService{
		grading: grading,
		log:     log.With().Str("component", "export_service").Logger(),
	}
}

// ExportResults returns the workbook bytes and a suggested file name.
func (s *ExportService) ExportResults(ctx context.Context, teacherID, examID uuid.UUID) ([]byte, string, error) {
	res, err := s.grading.ExamResults(ctx, teacherID, examID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close workbook")
		}
	}()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, "", fmt.Errorf("rename sheet: %w", err)
	}

	header := []any{"S/N", "Name", "Class", "Score", "Percentage", "Correct", "Wrong", "Result", "Status", "Violations", "Finished At"}
	if err := f.SetSheetRow(resultsSheet, "A1", &header); err != nil {
		return nil, "", fmt.Errorf("write header: %w", err)
	}

	for i, r := range res.Rows {
		result := "Fail"
		if r.Passed {
			result = "Pass"
		}
		finished := ""
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Format("2006-01-02 15:04")
		}
		row := []any{
			i + 1, r.Name, r.ClassLevel, r.Score, fmt.Sprintf("%.2f%%", r.Percentage),
			r.CorrectCount, r.WrongCount, result, string(r.Status), r.Violations, finished,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, "", err
		}
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return nil, "", fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	summaryRow := len(res.Rows) + 3
	summary := []any{"", "Average", "", "", fmt.Sprintf("%.2f%%", res.Average), "", "", fmt.Sprintf("%d passed / %d failed", res.Passed, res.Failed)}
	cell, _ := excelize.CoordinatesToCellName(1, summaryRow)
	if err := f.SetSheetRow(resultsSheet, cell, &summary); err != nil {
		return nil, "", fmt.Errorf("write summary: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetCellStyle(resultsSheet, "A1", "K1", bold)
	}
	_ = f.SetColWidth(resultsSheet, "B", "B", 32)
	_ = f.SetColWidth(resultsSheet, "K", "K", 18)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("write workbook: %w", err)
	}

	name := strings.Trim(unsafeFileChars.ReplaceAllString(res.Exam.Title, "_"), "_")
	if name == "" {
		name = "exam"
	}
	return buf.Bytes(), name + "_results.xlsx", nil
}
