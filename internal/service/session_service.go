package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/repository"
	"github.com/kicc/cbt-backend/internal/scoring"
	"github.com/rs/zerolog"
)

// errSkip aborts a Mutate without writing and without surfacing an error.
var errSkip = errors.New("skip")

// ExamPaper is the student-facing exam payload.
type ExamPaper struct {
	ID              uuid.UUID                `json:"id"`
	Title           string                   `json:"title"`
	Subject         string                   `json:"subject"`
	DurationMinutes int                      `json:"duration_minutes"`
	ExamType        model.ExamType           `json:"exam_type"`
	Proctoring      model.ProctoringSettings `json:"proctoring"`
	TotalMarks      float64                  `json:"total_marks"`
	NegativeMarking float64                  `json:"negative_marking"`
	Questions       []model.PaperQuestion    `json:"questions"`
}

// SessionView is what a student sees when starting or resuming an exam.
type SessionView struct {
	Session          *model.Session `json:"session"`
	Exam             ExamPaper      `json:"exam"`
	RemainingSeconds int64          `json:"remaining_seconds"`
	Resumed          bool           `json:"resumed"`
}

// SubmitResult is returned after a successful submission.
type SubmitResult struct {
	Session *model.Session `json:"session"`
	Result  scoring.Result `json:"result"`
	Passed  bool           `json:"passed"`
}

// StudentExam is one row of the student's exam list.
type StudentExam struct {
	ID              uuid.UUID            `json:"id"`
	Title           string               `json:"title"`
	Subject         string               `json:"subject"`
	DurationMinutes int                  `json:"duration_minutes"`
	ExamType        model.ExamType       `json:"exam_type"`
	Status          model.ExamStatus     `json:"status"`
	StartsAt        *time.Time           `json:"starts_at,omitempty"`
	EndsAt          *time.Time           `json:"ends_at,omitempty"`
	QuestionCount   int                  `json:"question_count"`
	TotalMarks      float64              `json:"total_marks"`
	SessionID       *uuid.UUID           `json:"session_id,omitempty"`
	SessionStatus   *model.SessionStatus `json:"session_status,omitempty"`
	CanStart        bool                 `json:"can_start"`
}

// StudentResult is one finished exam in the student's history.
type StudentResult struct {
	SessionID  uuid.UUID           `json:"session_id"`
	ExamID     uuid.UUID           `json:"exam_id"`
	Title      string              `json:"title"`
	Subject    string              `json:"subject"`
	Score      float64             `json:"score"`
	Percentage float64             `json:"percentage"`
	TotalMarks float64             `json:"total_marks"`
	Passed     bool                `json:"passed"`
	Status     model.SessionStatus `json:"status"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}

// SessionService handles admission, autosave, submission and expiry of
// student exam sessions.
type SessionService struct {
	exams     ExamStore
	sessions  SessionStore
	directory UserDirectory
	records   RecordSync
	audit     AuditSink
	bc        broadcaster
	grace     time.Duration
	log       zerolog.Logger
}

// NewSessionService creates a new SessionService. grace is how long after the
// time box closes a session still accepts autosaves before it is expired.
func NewSessionService(
	exams ExamStore,
	sessions SessionStore,
	directory UserDirectory,
	records RecordSync,
	notifier Notifier,
	audit AuditSink,
	grace time.Duration,
	log zerolog.Logger,
) *SessionService {
	l := log.With().Str("component", "session_service").Logger()
	return &SessionService{
		exams:     exams,
		sessions:  sessions,
		directory: directory,
		records:   records,
		audit:     audit,
		bc:        broadcaster{notifier: notifier, log: l},
		grace:     grace,
		log:       l,
	}
}

// StartSession admits a student into an exam. Calling it again while the
// session is ongoing resumes the same session; a finished session cannot be
// restarted.
func (s *SessionService) StartSession(ctx context.Context, studentID, examID uuid.UUID) (*SessionView, error) {
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return nil, err
	}
	if err := admission(exam); err != nil {
		return nil, err
	}

	student, err := s.student(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if exam.SchoolID != student.SchoolID {
		return nil, ErrDifferentSchool
	}
	if !exam.TargetsStudent(student) {
		return nil, ErrNotEligible
	}

	existing, err := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
	switch {
	case err == nil:
		return s.resume(exam, existing)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("find session: %w", err)
	}

	now := time.Now()
	if exam.EndsAt != nil && now.After(*exam.EndsAt) {
		return nil, ErrExamNotAvailable
	}

	sess := &model.Session{
		ID:           uuid.New(),
		ExamID:       examID,
		StudentID:    studentID,
		StartTime:    now,
		Answers:      model.Answers{},
		Violations:   []model.Violation{},
		ManualGrades: map[int]float64{},
		Status:       model.SessionStatusOngoing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		if errors.Is(err, repository.ErrExamClosed) {
			// The exam was ended or hidden after it was read above.
			closed, err := loadExam(ctx, s.exams, examID)
			if err != nil {
				return nil, err
			}
			if err := admission(closed); err != nil {
				return nil, err
			}
			return nil, ErrExamNotAvailable
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("create session: %w", err)
		}
		// A concurrent start from the same student won the insert.
		existing, err := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
		if err != nil {
			return nil, fmt.Errorf("refetch session: %w", err)
		}
		return s.resume(exam, existing)
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Str("student_id", studentID.String()).
		Str("session_id", sess.ID.String()).
		Msg("Session started")

	s.audit.Record(ctx, model.ActivityLog{
		SchoolID: student.SchoolID,
		UserID:   studentID,
		UserRole: model.RoleStudent,
		Action:   model.ActionSessionStart,
		Severity: model.SeverityLow,
		Metadata: map[string]any{
			"exam_id":    examID.String(),
			"session_id": sess.ID.String(),
		},
	})
	s.bc.toMonitor(ctx, examID, model.Notification{
		Event:     model.EventSessionStarted,
		SessionID: sess.ID.String(),
		Message:   student.FullName + " started the exam",
		Data:      map[string]any{"student_id": studentID.String(), "name": student.FullName},
	})

	return s.view(exam, sess, false), nil
}

// admission reports why an exam does not accept new sessions, or nil.
func admission(exam *model.Exam) error {
	if !exam.IsActive {
		return ErrExamNotAvailable
	}
	if exam.Status != model.ExamStatusActive {
		return ErrExamNotStarted
	}
	return nil
}

func (s *SessionService) resume(exam *model.Exam, existing *model.Session) (*SessionView, error) {
	if existing.IsFinal() {
		return nil, &SessionConflictError{Session: existing, Err: ErrAlreadyTaken}
	}
	return s.view(exam, existing, true), nil
}

// GetSessionState returns the session with the exam paper for a page reload.
func (s *SessionService) GetSessionState(ctx context.Context, studentID, sessionID uuid.UUID) (*SessionView, error) {
	sess, exam, err := s.studentSession(ctx, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(exam, sess, true), nil
}

// SaveAnswers merges a partial answer set into an ongoing session.
func (s *SessionService) SaveAnswers(ctx context.Context, studentID, sessionID uuid.UUID, raw map[string]json.RawMessage) (*model.Session, error) {
	_, exam, err := s.studentSession(ctx, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	answers, err := model.ResolveAnswers(exam.Questions, raw)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updated, err := s.sessions.Mutate(ctx, sessionID, func(cur *model.Session) error {
		if cur.IsFinal() {
			return ErrSessionFinal
		}
		if cur.IsLocked {
			return ErrSessionLocked
		}
		if now.After(exam.Deadline(cur.StartTime).Add(s.grace)) {
			return ErrTimeUp
		}
		cur.Answers = cur.Answers.Merge(answers)
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, mutateErr(err)
	}
	return updated, nil
}

// SubmitExam scores the session and completes it. Submitted answers override
// autosaved ones per question.
func (s *SessionService) SubmitExam(ctx context.Context, studentID, sessionID uuid.UUID, raw map[string]json.RawMessage) (*SubmitResult, error) {
	_, exam, err := s.studentSession(ctx, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	answers, err := model.ResolveAnswers(exam.Questions, raw)
	if err != nil {
		return nil, err
	}

	var result scoring.Result
	now := time.Now()
	updated, err := s.sessions.Mutate(ctx, sessionID, func(cur *model.Session) error {
		if cur.IsFinal() {
			return ErrSessionFinal
		}
		if cur.IsLocked {
			return ErrSessionLocked
		}
		cur.Answers = cur.Answers.Merge(answers)
		result = scoring.Score(exam, cur.Answers)
		applyResult(cur, exam, result)
		cur.Finish(model.SessionStatusCompleted, now)
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, mutateErr(err)
	}

	s.log.Info().
		Str("session_id", sessionID.String()).
		Float64("score", updated.Score).
		Float64("percentage", updated.Percentage).
		Msg("Exam submitted")

	s.afterCompletion(ctx, exam, updated, model.ActionExamSubmit)
	s.bc.toMonitor(ctx, exam.ID, model.Notification{
		Event:     model.EventSessionSubmitted,
		SessionID: sessionID.String(),
		Message:   "Exam submitted",
		Data: map[string]any{
			"student_id": studentID.String(),
			"score":      updated.Score,
			"percentage": updated.Percentage,
		},
	})

	return &SubmitResult{Session: updated, Result: result, Passed: exam.Passed(updated.Percentage)}, nil
}

// ExpireSession auto-submits an ongoing session whose time box (plus grace)
// has closed. It reports whether the session was expired by this call.
func (s *SessionService) ExpireSession(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrSessionNotFound
		}
		return false, fmt.Errorf("get session: %w", err)
	}
	exam, err := loadExam(ctx, s.exams, sess.ExamID)
	if err != nil {
		return false, err
	}

	now := time.Now()
	updated, err := s.sessions.Mutate(ctx, sessionID, func(cur *model.Session) error {
		if cur.Status != model.SessionStatusOngoing {
			return errSkip
		}
		if !now.After(exam.Deadline(cur.StartTime).Add(s.grace)) {
			return errSkip
		}
		applyResult(cur, exam, scoring.Score(exam, cur.Answers))
		cur.Finish(model.SessionStatusCompleted, now)
		cur.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errSkip) {
		return false, nil
	}
	if err != nil {
		return false, mutateErr(err)
	}

	s.log.Info().
		Str("session_id", sessionID.String()).
		Float64("score", updated.Score).
		Msg("Session expired and auto-submitted")

	s.bc.toSession(ctx, sessionID, model.Notification{
		Event:   model.EventSessionTimeUp,
		Reason:  "Time is up",
		Message: "Your time is up and your answers have been submitted",
	})
	s.bc.toMonitor(ctx, exam.ID, model.Notification{
		Event:     model.EventSessionSubmitted,
		SessionID: sessionID.String(),
		Message:   "Exam auto-submitted at time up",
		Data:      map[string]any{"student_id": updated.StudentID.String(), "score": updated.Score},
	})
	s.afterCompletion(ctx, exam, updated, model.ActionExamAutoSubmit)
	return true, nil
}

// ListStudentExams returns the exams open to the student with their session state.
func (s *SessionService) ListStudentExams(ctx context.Context, studentID uuid.UUID) ([]StudentExam, error) {
	student, err := s.student(ctx, studentID)
	if err != nil {
		return nil, err
	}

	exams, err := s.exams.ListBySchool(ctx, student.SchoolID,
		[]model.ExamStatus{model.ExamStatusScheduled, model.ExamStatusActive})
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	sessions, err := s.sessions.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	byExam := make(map[uuid.UUID]model.Session, len(sessions))
	for _, sess := range sessions {
		byExam[sess.ExamID] = sess
	}

	now := time.Now()
	out := make([]StudentExam, 0, len(exams))
	for i := range exams {
		e := &exams[i]
		if !e.TargetsStudent(student) {
			continue
		}
		if e.EndsAt != nil && now.After(*e.EndsAt) {
			continue
		}

		row := StudentExam{
			ID:              e.ID,
			Title:           e.Title,
			Subject:         e.Subject,
			DurationMinutes: e.DurationMinutes,
			ExamType:        e.ExamType,
			Status:          e.Status,
			StartsAt:        e.StartsAt,
			EndsAt:          e.EndsAt,
			QuestionCount:   len(e.Questions),
			TotalMarks:      e.TotalMarks,
			CanStart:        e.AdmitsSessions(),
		}
		if sess, ok := byExam[e.ID]; ok {
			id, status := sess.ID, sess.Status
			row.SessionID = &id
			row.SessionStatus = &status
			row.CanStart = row.CanStart && !sess.IsFinal()
		}
		out = append(out, row)
	}
	return out, nil
}

// StudentResults returns the student's finished sessions.
func (s *SessionService) StudentResults(ctx context.Context, studentID uuid.UUID) ([]StudentResult, error) {
	sessions, err := s.sessions.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	exams := make(map[uuid.UUID]*model.Exam)
	out := make([]StudentResult, 0, len(sessions))
	for _, sess := range sessions {
		if !sess.IsFinal() {
			continue
		}
		exam, ok := exams[sess.ExamID]
		if !ok {
			exam, err = loadExam(ctx, s.exams, sess.ExamID)
			if err != nil {
				return nil, err
			}
			exams[sess.ExamID] = exam
		}
		out = append(out, StudentResult{
			SessionID:  sess.ID,
			ExamID:     exam.ID,
			Title:      exam.Title,
			Subject:    exam.Subject,
			Score:      sess.Score,
			Percentage: sess.Percentage,
			TotalMarks: exam.TotalMarks,
			Passed:     exam.Passed(sess.Percentage),
			Status:     sess.Status,
			FinishedAt: sess.EndTime,
		})
	}
	return out, nil
}

// afterCompletion runs the best-effort side effects of a finished session.
func (s *SessionService) afterCompletion(ctx context.Context, exam *model.Exam, sess *model.Session, action model.ActivityAction) {
	s.audit.Record(ctx, model.ActivityLog{
		SchoolID: exam.SchoolID,
		UserID:   sess.StudentID,
		UserRole: model.RoleStudent,
		Action:   action,
		Severity: model.SeverityLow,
		Metadata: map[string]any{
			"exam_id":    exam.ID.String(),
			"session_id": sess.ID.String(),
			"score":      sess.Score,
			"percentage": sess.Percentage,
		},
	})

	if s.records == nil {
		return
	}
	err := s.records.SyncSubjectScore(ctx, model.SubjectScore{
		StudentID:  sess.StudentID.String(),
		SchoolID:   exam.SchoolID.String(),
		ExamID:     exam.ID.String(),
		SubjectKey: model.NormalizeKey(exam.Subject),
		Subject:    exam.Subject,
		Score:      sess.Score,
		Percentage: sess.Percentage,
	})
	if err != nil {
		s.log.Warn().Err(err).
			Str("session_id", sess.ID.String()).
			Msg("Failed to sync student record")
	}
}

func (s *SessionService) student(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := s.directory.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get student: %w", err)
	}
	if u.Role != model.RoleStudent {
		return nil, ErrNotEligible
	}
	return u, nil
}

// studentSession loads a session owned by studentID together with its exam.
func (s *SessionService) studentSession(ctx context.Context, studentID, sessionID uuid.UUID) (*model.Session, *model.Exam, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("get session: %w", err)
	}
	if sess.StudentID != studentID {
		return nil, nil, ErrNotSessionOwner
	}
	exam, err := loadExam(ctx, s.exams, sess.ExamID)
	if err != nil {
		return nil, nil, err
	}
	return sess, exam, nil
}

func (s *SessionService) view(exam *model.Exam, sess *model.Session, resumed bool) *SessionView {
	remaining := int64(0)
	if sess.Status == model.SessionStatusOngoing {
		if left := time.Until(exam.Deadline(sess.StartTime)); left > 0 {
			remaining = int64(left.Seconds())
		}
	}
	return &SessionView{
		Session:          sess,
		Exam:             paperOf(exam),
		RemainingSeconds: remaining,
		Resumed:          resumed,
	}
}

func paperOf(exam *model.Exam) ExamPaper {
	return ExamPaper{
		ID:              exam.ID,
		Title:           exam.Title,
		Subject:         exam.Subject,
		DurationMinutes: exam.DurationMinutes,
		ExamType:        exam.ExamType,
		Proctoring:      exam.Proctoring,
		TotalMarks:      exam.TotalMarks,
		NegativeMarking: exam.NegativeMarking,
		Questions:       exam.Paper(),
	}
}

// applyResult writes an engine result onto the session. Manual grades already
// recorded on the session are added back so rescoring never discards them.
func applyResult(sess *model.Session, exam *model.Exam, r scoring.Result) {
	sess.Score = r.TotalScore
	sess.Percentage = r.Percentage
	sess.CorrectCount = r.CorrectCount
	sess.WrongCount = r.WrongCount
	if len(sess.ManualGrades) == 0 {
		return
	}

	for _, marks := range sess.ManualGrades {
		sess.Score += marks
	}
	if sess.Score < 0 {
		sess.Score = 0
	}
	sess.Percentage = sess.Score / exam.GradingBase() * 100
}

// mutateErr maps store errors from Mutate to domain errors, passing domain
// errors returned by the mutation through untouched.
func mutateErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}
