package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/rs/zerolog"
)

// ResultRow is one student's line in an exam's result sheet.
type ResultRow struct {
	SessionID    uuid.UUID           `json:"session_id"`
	StudentID    uuid.UUID           `json:"student_id"`
	Name         string              `json:"name"`
	ClassLevel   string              `json:"class_level"`
	Score        float64             `json:"score"`
	Percentage   float64             `json:"percentage"`
	CorrectCount int                 `json:"correct_count"`
	WrongCount   int                 `json:"wrong_count"`
	Passed       bool                `json:"passed"`
	Status       model.SessionStatus `json:"status"`
	Violations   int                 `json:"violations"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
}

// ExamResults is the result sheet of one exam.
type ExamResults struct {
	Exam    *model.Exam `json:"exam"`
	Rows    []ResultRow `json:"rows"`
	Average float64     `json:"average_percentage"`
	Passed  int         `json:"passed"`
	Failed  int         `json:"failed"`
}

// GradingItem is a finished session waiting for manual review.
type GradingItem struct {
	SessionID    uuid.UUID       `json:"session_id"`
	ExamID       uuid.UUID       `json:"exam_id"`
	ExamTitle    string          `json:"exam_title"`
	StudentID    uuid.UUID       `json:"student_id"`
	StudentName  string          `json:"student_name"`
	Score        float64         `json:"score"`
	Percentage   float64         `json:"percentage"`
	EssayIndexes []int           `json:"essay_indexes"`
	ManualGrades map[int]float64 `json:"manual_grades"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// GradingService handles teacher regrades and result sheets.
type GradingService struct {
	exams     ExamStore
	sessions  SessionStore
	directory UserDirectory
	audit     AuditSink
	log       zerolog.Logger
}

// NewGradingService creates a new GradingService.
func NewGradingService(exams ExamStore, sessions SessionStore, directory UserDirectory, audit AuditSink, log zerolog.Logger) *GradingService {
	return &GradingService{
		exams:     exams,
		sessions:  sessions,
		directory: directory,
		audit:     audit,
		log:       log.With().Str("component", "grading_service").Logger(),
	}
}

// UpdateManualGrade applies teacher grades using delta accounting against any
// previous manual grade for the same question, so repeating a grade is a no-op.
func (s *GradingService) UpdateManualGrade(ctx context.Context, teacherID, sessionID uuid.UUID, grades []model.ManualGrade) (*model.Session, error) {
	_, exam, err := ownedSession(ctx, s.exams, s.sessions, teacherID, sessionID)
	if err != nil {
		return nil, err
	}
	for _, g := range grades {
		if g.QuestionIndex == nil || g.MarksEarned == nil {
			return nil, ErrInvalidGrade
		}
		if *g.QuestionIndex < 0 || *g.QuestionIndex >= len(exam.Questions) || *g.MarksEarned < 0 {
			return nil, ErrInvalidGrade
		}
	}

	var adjustment float64
	updated, err := s.sessions.Mutate(ctx, sessionID, func(cur *model.Session) error {
		adjustment = 0
		if cur.ManualGrades == nil {
			cur.ManualGrades = map[int]float64{}
		}
		for _, g := range grades {
			idx, marks := *g.QuestionIndex, *g.MarksEarned
			adjustment += marks - cur.ManualGrades[idx]
			cur.ManualGrades[idx] = marks
		}
		cur.Score += adjustment
		if cur.Score < 0 {
			cur.Score = 0
		}
		cur.Percentage = cur.Score / exam.GradingBase() * 100
		cur.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return nil, mutateErr(err)
	}

	s.audit.Record(ctx, model.ActivityLog{
		SchoolID: exam.SchoolID,
		UserID:   teacherID,
		UserRole: model.RoleTeacher,
		Action:   model.ActionManualGrade,
		Severity: model.SeverityLow,
		Metadata: map[string]any{
			"exam_id":    exam.ID.String(),
			"session_id": sessionID.String(),
			"adjustment": adjustment,
			"score":      updated.Score,
		},
	})
	return updated, nil
}

// ListGradingQueue lists finished sessions of the teacher's exams that
// contain essay questions.
func (s *GradingService) ListGradingQueue(ctx context.Context, teacherID uuid.UUID) ([]GradingItem, error) {
	exams, err := s.exams.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}

	out := []GradingItem{}
	for i := range exams {
		exam := &exams[i]
		if !exam.HasEssay() {
			continue
		}
		essays := make([]int, 0)
		for idx, q := range exam.Questions {
			if q.Kind() == model.QuestionTypeEssay {
				essays = append(essays, idx)
			}
		}

		sessions, err := s.sessions.ListByExam(ctx, exam.ID)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		names, err := s.names(ctx, sessions)
		if err != nil {
			return nil, err
		}
		for _, sess := range sessions {
			if !sess.IsFinal() {
				continue
			}
			out = append(out, GradingItem{
				SessionID:    sess.ID,
				ExamID:       exam.ID,
				ExamTitle:    exam.Title,
				StudentID:    sess.StudentID,
				StudentName:  names[sess.StudentID].FullName,
				Score:        sess.Score,
				Percentage:   sess.Percentage,
				EssayIndexes: essays,
				ManualGrades: sess.ManualGrades,
				FinishedAt:   sess.EndTime,
			})
		}
	}
	return out, nil
}

// ExamResults builds the result sheet of an exam, sorted by name.
func (s *GradingService) ExamResults(ctx context.Context, teacherID, examID uuid.UUID) (*ExamResults, error) {
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return nil, err
	}
	if exam.TeacherID != teacherID {
		return nil, ErrNotExamOwner
	}

	sessions, err := s.sessions.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	users, err := s.names(ctx, sessions)
	if err != nil {
		return nil, err
	}

	res := &ExamResults{Exam: exam, Rows: []ResultRow{}}
	var sum float64
	for _, sess := range sessions {
		if !sess.IsFinal() {
			continue
		}
		u := users[sess.StudentID]
		row := ResultRow{
			SessionID:    sess.ID,
			StudentID:    sess.StudentID,
			Name:         u.FullName,
			ClassLevel:   u.ClassLevel,
			Score:        sess.Score,
			Percentage:   sess.Percentage,
			CorrectCount: sess.CorrectCount,
			WrongCount:   sess.WrongCount,
			Passed:       exam.Passed(sess.Percentage),
			Status:       sess.Status,
			Violations:   len(sess.Violations),
			StartedAt:    sess.StartTime,
			FinishedAt:   sess.EndTime,
		}
		if row.Passed {
			res.Passed++
		} else {
			res.Failed++
		}
		sum += row.Percentage
		res.Rows = append(res.Rows, row)
	}
	if n := len(res.Rows); n > 0 {
		res.Average = sum / float64(n)
	}
	sort.Slice(res.Rows, func(i, j int) bool { return res.Rows[i].Name < res.Rows[j].Name })
	return res, nil
}

func (s *GradingService) names(ctx context.Context, sessions []model.Session) (map[uuid.UUID]model.User, error) {
	ids := make([]uuid.UUID, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.StudentID)
	}
	users, err := s.directory.ListUsersByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}
	return users, nil
}
