package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/scoring"
	"github.com/rs/zerolog"
)

const (
	defaultLockReason        = "Locked by teacher"
	defaultForceSubmitReason = "Force submitted by teacher"
)

// ControlService lets the owning teacher lock, unlock and force-submit sessions.
type ControlService struct {
	exams    ExamStore
	sessions SessionStore
	audit    AuditSink
	bc       broadcaster
	log      zerolog.Logger
}

// NewControlService creates a new ControlService.
func NewControlService(exams ExamStore, sessions SessionStore, notifier Notifier, audit AuditSink, log zerolog.Logger) *ControlService {
	l := log.With().Str("component", "control_service").Logger()
	return &ControlService{
		exams:    exams,
		sessions: sessions,
		audit:    audit,
		bc:       broadcaster{notifier: notifier, log: l},
		log:      l,
	}
}

// LockSession locks a session with the given reason.
func (s *ControlService) LockSession(ctx context.Context, teacherID, sessionID uuid.UUID, reason string) (*model.Session, error) {
	_, exam, err := ownedSession(ctx, s.exams, s.sessions, teacherID, sessionID)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultLockReason
	}

	updated, err := s.sessions.Mutate(ctx, sessionID, func(cur *model.Session) error {
		cur.Lock(reason)
		cur.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return nil, mutateErr(err)
	}

	s.bc.toSession(ctx, sessionID, model.Notification{
		Event:   model.EventSessionLocked,
		Reason:  reason,
		Message: "Your exam has been locked by the teacher",
	})
	s.record(ctx, exam, teacherID, model.ActionSessionLocked, sessionID, reason)
	return updated, nil
}

// UnlockSession clears the lock so the student can continue.
func (s *ControlService) UnlockSession(ctx context.Context, teacherID, sessionID uuid.UUID) (*model.Session, error) {
	_, exam, err := ownedSession(ctx, s.exams, s.sessions, teacherID, sessionID)
	if err != nil {
		return nil, err
	}

	updated, err := s.sessions.Mutate(ctx, sessionID, func(cur *model.Session) error {
		cur.Unlock()
		cur.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return nil, mutateErr(err)
	}

	s.bc.toSession(ctx, sessionID, model.Notification{
		Event:   model.EventSessionUnlocked,
		Message: "Your exam has been unlocked. You may continue",
	})
	s.record(ctx, exam, teacherID, model.ActionSessionUnlocked, sessionID, "")
	return updated, nil
}

// ForceSubmitSession scores whatever answers exist and terminates the session.
func (s *ControlService) ForceSubmitSession(ctx context.Context, teacherID, sessionID uuid.UUID, reason string) (*model.Session, error) {
	_, exam, err := ownedSession(ctx, s.exams, s.sessions, teacherID, sessionID)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultForceSubmitReason
	}

	now := time.Now()
	updated, err := s.sessions.Mutate(ctx, sessionID, func(cur *model.Session) error {
		if cur.Status == model.SessionStatusCompleted {
			return &SessionConflictError{Session: cur, Err: ErrSessionFinal}
		}
		applyResult(cur, exam, scoring.Score(exam, cur.Answers))
		cur.Lock(reason)
		cur.Finish(model.SessionStatusTerminated, now)
		cur.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, mutateErr(err)
	}

	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("reason", reason).
		Float64("score", updated.Score).
		Msg("Session force submitted")

	n := model.Notification{
		Event:   model.EventSessionForceSubmitted,
		Reason:  reason,
		Message: "Your exam has been submitted by the teacher",
	}
	s.bc.toSession(ctx, sessionID, n)
	n.SessionID = sessionID.String()
	n.Data = map[string]any{"student_id": updated.StudentID.String(), "score": updated.Score}
	s.bc.toMonitor(ctx, exam.ID, n)

	s.record(ctx, exam, teacherID, model.ActionSessionForceDone, sessionID, reason)
	return updated, nil
}

func (s *ControlService) record(ctx context.Context, exam *model.Exam, teacherID uuid.UUID, action model.ActivityAction, sessionID uuid.UUID, reason string) {
	meta := map[string]any{
		"exam_id":    exam.ID.String(),
		"session_id": sessionID.String(),
	}
	if reason != "" {
		meta["reason"] = reason
	}
	s.audit.Record(ctx, model.ActivityLog{
		SchoolID: exam.SchoolID,
		UserID:   teacherID,
		UserRole: model.RoleTeacher,
		Action:   action,
		Severity: model.SeverityMedium,
		Metadata: meta,
	})
}
