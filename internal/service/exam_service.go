package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/repository"
	"github.com/rs/zerolog"
)

// ExamService owns exam definitions and the exam status state machine.
type ExamService struct {
	exams         ExamStore
	directory     UserDirectory
	entitlements  EntitlementChecker
	audit         AuditSink
	bc            broadcaster
	bypassSchools map[string]struct{}
	log           zerolog.Logger
}

// NewExamService creates a new ExamService. Schools whose login ID is in
// bypassSchools may create proctored exams without an entitlement.
func NewExamService(
	exams ExamStore,
	directory UserDirectory,
	entitlements EntitlementChecker,
	notifier Notifier,
	audit AuditSink,
	bypassSchools []string,
	log zerolog.Logger,
) *ExamService {
	l := log.With().Str("component", "exam_service").Logger()
	bypass := make(map[string]struct{}, len(bypassSchools))
	for _, id := range bypassSchools {
		bypass[id] = struct{}{}
	}
	return &ExamService{
		exams:         exams,
		directory:     directory,
		entitlements:  entitlements,
		audit:         audit,
		bc:            broadcaster{notifier: notifier, log: l},
		bypassSchools: bypass,
		log:           l,
	}
}

// CreateExam stores a new exam in the scheduled, inactive state.
func (s *ExamService) CreateExam(ctx context.Context, teacherID uuid.UUID, req *model.CreateExamRequest) (*model.Exam, error) {
	teacher, err := s.teacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	exam, err := buildExam(req)
	if err != nil {
		return nil, err
	}
	exam.ID = uuid.New()
	exam.TeacherID = teacher.ID
	exam.SchoolID = teacher.SchoolID
	exam.Status = model.ExamStatusScheduled
	exam.IsActive = false

	if exam.ExamType == model.ExamTypeProctored {
		if err := s.checkProctoring(ctx, teacher.SchoolID); err != nil {
			return nil, err
		}
	}

	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	s.audit.Record(ctx, model.ActivityLog{
		SchoolID: exam.SchoolID,
		UserID:   teacher.ID,
		UserRole: model.RoleTeacher,
		Action:   model.ActionExamCreated,
		Severity: model.SeverityLow,
		Metadata: map[string]any{
			"exam_id":   exam.ID.String(),
			"title":     exam.Title,
			"exam_type": string(exam.ExamType),
		},
	})

	return exam, nil
}

// GetExam returns an exam owned by the teacher.
func (s *ExamService) GetExam(ctx context.Context, teacherID, examID uuid.UUID) (*model.Exam, error) {
	return s.ownedExam(ctx, teacherID, examID)
}

// ListTeacherExams returns every exam the teacher owns, newest first.
func (s *ExamService) ListTeacherExams(ctx context.Context, teacherID uuid.UUID) ([]model.Exam, error) {
	exams, err := s.exams.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}

// UpdateExam replaces the definition of a scheduled exam.
func (s *ExamService) UpdateExam(ctx context.Context, teacherID, examID uuid.UUID, req *model.CreateExamRequest) (*model.Exam, error) {
	current, err := s.ownedExam(ctx, teacherID, examID)
	if err != nil {
		return nil, err
	}
	if current.Status != model.ExamStatusScheduled {
		return nil, ErrExamNotEditable
	}

	next, err := buildExam(req)
	if err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.TeacherID = current.TeacherID
	next.SchoolID = current.SchoolID
	next.Status = current.Status
	next.IsActive = current.IsActive
	next.CreatedAt = current.CreatedAt

	if next.ExamType == model.ExamTypeProctored && current.ExamType != model.ExamTypeProctored {
		if err := s.checkProctoring(ctx, current.SchoolID); err != nil {
			return nil, err
		}
	}

	if err := s.exams.Update(ctx, next); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrExamNotEditable
		}
		return nil, fmt.Errorf("update exam: %w", err)
	}

	s.audit.Record(ctx, model.ActivityLog{
		SchoolID: next.SchoolID,
		UserID:   teacherID,
		UserRole: model.RoleTeacher,
		Action:   model.ActionExamUpdated,
		Severity: model.SeverityLow,
		Metadata: map[string]any{"exam_id": next.ID.String()},
	})

	return next, nil
}

// DeleteExam removes a scheduled exam. Exams that have admitted sessions
// cannot be deleted.
func (s *ExamService) DeleteExam(ctx context.Context, teacherID, examID uuid.UUID) error {
	exam, err := s.ownedExam(ctx, teacherID, examID)
	if err != nil {
		return err
	}
	if exam.Status != model.ExamStatusScheduled {
		return ErrExamNotEditable
	}

	if err := s.exams.Delete(ctx, examID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrExamNotEditable
		}
		return fmt.Errorf("delete exam: %w", err)
	}

	s.audit.Record(ctx, model.ActivityLog{
		SchoolID: exam.SchoolID,
		UserID:   teacherID,
		UserRole: model.RoleTeacher,
		Action:   model.ActionExamDeleted,
		Severity: model.SeverityMedium,
		Metadata: map[string]any{"exam_id": examID.String(), "title": exam.Title},
	})
	return nil
}

// SetStatus moves the exam through scheduled -> active -> ended and toggles
// its visibility. Ending is terminal and terminates every ongoing session.
func (s *ExamService) SetStatus(ctx context.Context, teacherID, examID uuid.UUID, req *model.SetExamStatusRequest) (*model.Exam, error) {
	exam, err := s.ownedExam(ctx, teacherID, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status == model.ExamStatusEnded {
		return nil, ErrExamEnded
	}

	target := exam.Status
	if req.Status != nil {
		target = *req.Status
	}
	if exam.Status == model.ExamStatusActive && target == model.ExamStatusScheduled {
		return nil, ErrInvalidTransition
	}

	if target == model.ExamStatusEnded {
		return s.end(ctx, teacherID, exam)
	}

	isActive := exam.IsActive
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	if err := s.exams.UpdateStatus(ctx, exam.ID, target, isActive); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrExamEnded
		}
		return nil, fmt.Errorf("update exam status: %w", err)
	}

	action := model.ActionExamUpdated
	if target == model.ExamStatusActive && exam.Status != model.ExamStatusActive {
		action = model.ActionExamStarted
	}
	s.audit.Record(ctx, model.ActivityLog{
		SchoolID: exam.SchoolID,
		UserID:   teacherID,
		UserRole: model.RoleTeacher,
		Action:   action,
		Severity: model.SeverityLow,
		Metadata: map[string]any{
			"exam_id":   exam.ID.String(),
			"status":    string(target),
			"is_active": isActive,
		},
	})

	exam.Status = target
	exam.IsActive = isActive
	return exam, nil
}

func (s *ExamService) end(ctx context.Context, teacherID uuid.UUID, exam *model.Exam) (*model.Exam, error) {
	now := time.Now()
	terminated, err := s.exams.End(ctx, exam.ID, now)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrExamEnded
		}
		return nil, fmt.Errorf("end exam: %w", err)
	}

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Int("terminated_sessions", len(terminated)).
		Msg("Exam ended")

	msg := "The exam has been ended by the teacher"
	s.bc.toExam(ctx, exam.ID, model.Notification{Event: model.EventExamTerminated, Message: msg})
	for _, id := range terminated {
		s.bc.toSession(ctx, id, model.Notification{Event: model.EventSessionTerminated, Reason: "Exam ended", Message: msg})
	}
	s.bc.toMonitor(ctx, exam.ID, model.Notification{
		Event:   model.EventExamTerminated,
		Message: msg,
		Data:    map[string]any{"terminated_sessions": len(terminated)},
	})

	s.audit.Record(ctx, model.ActivityLog{
		SchoolID: exam.SchoolID,
		UserID:   teacherID,
		UserRole: model.RoleTeacher,
		Action:   model.ActionExamEnded,
		Severity: model.SeverityMedium,
		Metadata: map[string]any{
			"exam_id":             exam.ID.String(),
			"terminated_sessions": len(terminated),
		},
	})

	exam.Status = model.ExamStatusEnded
	exam.IsActive = false
	exam.UpdatedAt = now
	return exam, nil
}

func (s *ExamService) teacher(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := s.directory.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get teacher: %w", err)
	}
	if u.Role != model.RoleTeacher {
		return nil, ErrNotExamOwner
	}
	return u, nil
}

// ownedExam loads an exam and checks that teacherID owns it.
func (s *ExamService) ownedExam(ctx context.Context, teacherID, examID uuid.UUID) (*model.Exam, error) {
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return nil, err
	}
	if exam.TeacherID != teacherID {
		return nil, ErrNotExamOwner
	}
	return exam, nil
}

func (s *ExamService) checkProctoring(ctx context.Context, schoolID uuid.UUID) error {
	school, err := s.directory.GetSchool(ctx, schoolID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("get school: %w", err)
	}
	if school != nil {
		if _, ok := s.bypassSchools[school.LoginID]; ok {
			return nil
		}
	}

	ok, err := s.entitlements.HasProctoredExams(ctx, schoolID)
	if err != nil {
		return fmt.Errorf("check entitlement: %w", err)
	}
	if !ok {
		return ErrFeatureNotPermitted
	}
	return nil
}

func loadExam(ctx context.Context, exams ExamStore, id uuid.UUID) (*model.Exam, error) {
	exam, err := exams.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}
