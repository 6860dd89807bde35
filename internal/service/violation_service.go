package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/proctoring"
	"github.com/kicc/cbt-backend/internal/repository"
	"github.com/rs/zerolog"
)

// ViolationOutcome reports the session's proctoring state after a violation.
type ViolationOutcome struct {
	ViolationCount int    `json:"violation_count"`
	IsLocked       bool   `json:"is_locked"`
	LockReason     string `json:"lock_reason,omitempty"`
	LockedNow      bool   `json:"locked_now"`
}

// SessionViolations lists the violations of one session.
type SessionViolations struct {
	SessionID  uuid.UUID         `json:"session_id"`
	StudentID  uuid.UUID         `json:"student_id"`
	Count      int               `json:"count"`
	Critical   int               `json:"critical"`
	IsLocked   bool              `json:"is_locked"`
	LockReason string            `json:"lock_reason,omitempty"`
	Violations []model.Violation `json:"violations"`
}

// ExamViolationReport aggregates violations across an exam.
type ExamViolationReport struct {
	ExamID   uuid.UUID           `json:"exam_id"`
	Total    int                 `json:"total"`
	ByType   map[string]int      `json:"by_type"`
	Sessions []SessionViolations `json:"sessions"`
}

// ViolationService ingests proctoring violations and applies the auto-lock policy.
type ViolationService struct {
	exams    ExamStore
	sessions SessionStore
	policy   proctoring.Policy
	audit    AuditSink
	bc       broadcaster
	log      zerolog.Logger
}

// NewViolationService creates a new ViolationService.
func NewViolationService(
	exams ExamStore,
	sessions SessionStore,
	policy proctoring.Policy,
	notifier Notifier,
	audit AuditSink,
	log zerolog.Logger,
) *ViolationService {
	l := log.With().Str("component", "violation_service").Logger()
	return &ViolationService{
		exams:    exams,
		sessions: sessions,
		policy:   policy,
		audit:    audit,
		bc:       broadcaster{notifier: notifier, log: l},
		log:      l,
	}
}

// LogViolation appends a violation to the student's ongoing session and locks
// the session when the policy says so. The append and the lock flip are one
// atomic mutation.
func (s *ViolationService) LogViolation(ctx context.Context, studentID, sessionID uuid.UUID, req *model.LogViolationRequest) (*ViolationOutcome, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.StudentID != studentID {
		return nil, ErrNotSessionOwner
	}
	exam, err := loadExam(ctx, s.exams, sess.ExamID)
	if err != nil {
		return nil, err
	}

	v := model.Violation{
		Type:        strings.TrimSpace(req.Type),
		Timestamp:   time.Now(),
		EvidenceURL: req.EvidenceURL,
	}

	var lockedNow bool
	updated, err := s.sessions.Mutate(ctx, sessionID, func(cur *model.Session) error {
		lockedNow = false
		if cur.IsFinal() {
			return ErrSessionFinal
		}
		cur.Violations = append(cur.Violations, v)
		if !cur.IsLocked {
			if d := s.policy.Evaluate(cur.Violations, v); d.Lock {
				cur.Lock(d.Reason)
				lockedNow = true
			}
		}
		cur.UpdatedAt = v.Timestamp
		return nil
	})
	if err != nil {
		return nil, mutateErr(err)
	}

	out := &ViolationOutcome{
		ViolationCount: len(updated.Violations),
		IsLocked:       updated.IsLocked,
		LockReason:     updated.LockReason,
		LockedNow:      lockedNow,
	}

	if lockedNow {
		s.log.Warn().
			Str("session_id", sessionID.String()).
			Str("reason", updated.LockReason).
			Msg("Session auto-locked")
		s.bc.toSession(ctx, sessionID, model.Notification{
			Event:   model.EventSessionLocked,
			Reason:  updated.LockReason,
			Message: "Your exam has been locked: " + updated.LockReason,
		})
	}

	s.bc.toMonitor(ctx, exam.ID, model.Notification{
		Event:     model.EventViolationLogged,
		SessionID: sessionID.String(),
		Reason:    updated.LockReason,
		Message:   "Violation detected: " + v.Type,
		Data: map[string]any{
			"student_id":      studentID.String(),
			"type":            v.Type,
			"violation_count": out.ViolationCount,
			"is_locked":       out.IsLocked,
			"critical":        proctoring.IsCritical(v.Type),
		},
	})

	s.audit.Record(ctx, model.ActivityLog{
		SchoolID: exam.SchoolID,
		UserID:   studentID,
		UserRole: model.RoleStudent,
		Action:   model.ActionExamViolation,
		Severity: proctoring.Severity(v.Type),
		Metadata: map[string]any{
			"exam_id":      exam.ID.String(),
			"session_id":   sessionID.String(),
			"type":         v.Type,
			"evidence_url": v.EvidenceURL,
			"locked":       lockedNow,
		},
	})

	return out, nil
}

// SessionViolations returns one session's violations to the exam owner.
func (s *ViolationService) SessionViolations(ctx context.Context, teacherID, sessionID uuid.UUID) (*SessionViolations, error) {
	sess, _, err := ownedSession(ctx, s.exams, s.sessions, teacherID, sessionID)
	if err != nil {
		return nil, err
	}
	sv := summarizeViolations(sess)
	return &sv, nil
}

// ExamViolations aggregates violations across every session of an exam.
func (s *ViolationService) ExamViolations(ctx context.Context, teacherID, examID uuid.UUID) (*ExamViolationReport, error) {
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

	report := &ExamViolationReport{
		ExamID:   examID,
		ByType:   map[string]int{},
		Sessions: []SessionViolations{},
	}
	for i := range sessions {
		if len(sessions[i].Violations) == 0 {
			continue
		}
		sv := summarizeViolations(&sessions[i])
		for _, v := range sv.Violations {
			report.ByType[v.Type]++
		}
		report.Total += sv.Count
		report.Sessions = append(report.Sessions, sv)
	}
	return report, nil
}

// MyViolations returns the student's own violations for an exam.
func (s *ViolationService) MyViolations(ctx context.Context, studentID, examID uuid.UUID) (*SessionViolations, error) {
	sess, err := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	sv := summarizeViolations(sess)
	return &sv, nil
}

func summarizeViolations(sess *model.Session) SessionViolations {
	out := SessionViolations{
		SessionID:  sess.ID,
		StudentID:  sess.StudentID,
		Count:      len(sess.Violations),
		IsLocked:   sess.IsLocked,
		LockReason: sess.LockReason,
		Violations: sess.Violations,
	}
	if out.Violations == nil {
		out.Violations = []model.Violation{}
	}
	for _, v := range sess.Violations {
		if proctoring.IsCritical(v.Type) {
			out.Critical++
		}
	}
	return out
}

// ownedSession loads a session and its exam, checking that teacherID owns the exam.
func ownedSession(ctx context.Context, exams ExamStore, sessions SessionStore, teacherID, sessionID uuid.UUID) (*model.Session, *model.Exam, error) {
	sess, err := sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("get session: %w", err)
	}
	exam, err := loadExam(ctx, exams, sess.ExamID)
	if err != nil {
		return nil, nil, err
	}
	if exam.TeacherID != teacherID {
		return nil, nil, ErrNotExamOwner
	}
	return sess, exam, nil
}
