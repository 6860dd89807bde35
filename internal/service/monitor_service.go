package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kicc/cbt-backend/internal/config"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/proctoring"
	"github.com/kicc/cbt-backend/internal/repository"
	"golang.org/x/sync/errgroup"
)

// RosterStatusNotStarted marks a targeted student without a session.
const RosterStatusNotStarted = "not_started"

// RosterEntry is one student's live state on the teacher monitor.
type RosterEntry struct {
	StudentID      uuid.UUID  `json:"student_id"`
	Name           string     `json:"name"`
	ClassLevel     string     `json:"class_level"`
	Status         string     `json:"status"`
	SessionID      *uuid.UUID `json:"session_id,omitempty"`
	IsLocked       bool       `json:"is_locked"`
	LockReason     string     `json:"lock_reason,omitempty"`
	ViolationCount int        `json:"violation_count"`
	CriticalCount  int        `json:"critical_count"`
	AnsweredCount  int        `json:"answered_count"`
	Score          float64    `json:"score"`
	Percentage     float64    `json:"percentage"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
}

// MonitorStats summarizes the roster.
type MonitorStats struct {
	TotalStudents   int `json:"total_students"`
	NotStarted      int `json:"not_started"`
	InProgress      int `json:"in_progress"`
	Completed       int `json:"completed"`
	Terminated      int `json:"terminated"`
	Locked          int `json:"locked"`
	TotalViolations int `json:"total_violations"`
}

// MonitorSnapshot is the full teacher monitor view of an exam.
type MonitorSnapshot struct {
	ExamID         uuid.UUID        `json:"exam_id"`
	Title          string           `json:"title"`
	Status         model.ExamStatus `json:"status"`
	IsActive       bool             `json:"is_active"`
	Duration       int              `json:"duration_minutes"`
	TotalQuestions int              `json:"total_questions"`
	Stats          MonitorStats     `json:"stats"`
	Students       []RosterEntry    `json:"students"`
}

// MonitorService builds the live class roster for an exam's owner.
type MonitorService struct {
	exams     ExamStore
	sessions  SessionStore
	directory UserDirectory
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(exams ExamStore, sessions SessionStore, directory UserDirectory) *MonitorService {
	return &MonitorService{exams: exams, sessions: sessions, directory: directory}
}

// Authorize checks that teacherID owns the exam and returns it.
func (s *MonitorService) Authorize(ctx context.Context, teacherID, examID uuid.UUID) (*model.Exam, error) {
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return nil, err
	}
	if exam.TeacherID != teacherID {
		return nil, ErrNotExamOwner
	}
	return exam, nil
}

// Snapshot lists every targeted student of the exam's school with their
// session state. Sessions and the class list are fetched in parallel.
func (s *MonitorService) Snapshot(ctx context.Context, teacherID, examID uuid.UUID) (*MonitorSnapshot, error) {
	exam, err := s.Authorize(ctx, teacherID, examID)
	if err != nil {
		return nil, err
	}

	var (
		sessions []model.Session
		students []model.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sessions, err = s.sessions.ListByExam(gctx, examID)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		students, err = s.directory.ListStudents(gctx, exam.SchoolID)
		if err != nil {
			return fmt.Errorf("list students: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byStudent := make(map[uuid.UUID]*model.Session, len(sessions))
	for i := range sessions {
		byStudent[sessions[i].StudentID] = &sessions[i]
	}

	snap := &MonitorSnapshot{
		ExamID:         exam.ID,
		Title:          exam.Title,
		Status:         exam.Status,
		IsActive:       exam.IsActive,
		Duration:       exam.DurationMinutes,
		TotalQuestions: len(exam.Questions),
		Students:       make([]RosterEntry, 0, len(students)),
	}

	for i := range students {
		u := &students[i]
		sess, hasSession := byStudent[u.ID]
		if !hasSession && !exam.TargetsStudent(u) {
			continue
		}

		entry := RosterEntry{
			StudentID:  u.ID,
			Name:       u.FullName,
			ClassLevel: u.ClassLevel,
			Status:     RosterStatusNotStarted,
		}
		if hasSession {
			fillFromSession(&entry, sess)
		}
		snap.Students = append(snap.Students, entry)
		countInto(&snap.Stats, entry)
	}

	sort.Slice(snap.Students, func(i, j int) bool { return snap.Students[i].Name < snap.Students[j].Name })
	return snap, nil
}

func fillFromSession(e *RosterEntry, sess *model.Session) {
	id, start := sess.ID, sess.StartTime
	e.SessionID = &id
	e.StartedAt = &start
	e.Status = string(sess.Status)
	e.IsLocked = sess.IsLocked
	e.LockReason = sess.LockReason
	e.ViolationCount = len(sess.Violations)
	e.AnsweredCount = sess.Answers.AnsweredCount()
	e.Score = sess.Score
	e.Percentage = sess.Percentage
	for _, v := range sess.Violations {
		if proctoring.IsCritical(v.Type) {
			e.CriticalCount++
		}
	}
}

func countInto(st *MonitorStats, e RosterEntry) {
	st.TotalStudents++
	st.TotalViolations += e.ViolationCount
	if e.IsLocked {
		st.Locked++
	}
	switch e.Status {
	case RosterStatusNotStarted:
		st.NotStarted++
	case string(model.SessionStatusOngoing):
		st.InProgress++
	case string(model.SessionStatusCompleted):
		st.Completed++
	case string(model.SessionStatusTerminated):
		st.Terminated++
	}
}

// RoomKind names a notification room family.
type RoomKind string

const (
	RoomSession RoomKind = "session"
	RoomExam    RoomKind = "exam"
	RoomMonitor RoomKind = "monitor"
)

// AuthorizeRoom resolves the room a user asks to join. Students may join their
// own session and the exams they sat; teachers may join any room of exams they
// own. Monitor rooms are owner only.
func (s *MonitorService) AuthorizeRoom(ctx context.Context, userID uuid.UUID, role model.Role, kind RoomKind, id uuid.UUID) (string, error) {
	switch kind {
	case RoomSession:
		sess, err := s.sessions.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return "", ErrSessionNotFound
			}
			return "", fmt.Errorf("get session: %w", err)
		}
		if role == model.RoleStudent {
			if sess.StudentID != userID {
				return "", ErrNotSessionOwner
			}
		} else if _, err := s.Authorize(ctx, userID, sess.ExamID); err != nil {
			return "", err
		}
		return config.CacheKey.SessionRoom(id.String()), nil

	case RoomExam:
		if role == model.RoleStudent {
			if _, err := s.sessions.GetByExamAndStudent(ctx, id, userID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return "", ErrSessionNotFound
				}
				return "", fmt.Errorf("get session: %w", err)
			}
		} else if _, err := s.Authorize(ctx, userID, id); err != nil {
			return "", err
		}
		return config.CacheKey.ExamRoom(id.String()), nil

	case RoomMonitor:
		if role == model.RoleStudent {
			return "", ErrNotExamOwner
		}
		if _, err := s.Authorize(ctx, userID, id); err != nil {
			return "", err
		}
		return config.CacheKey.MonitorRoom(id.String()), nil
	}
	return "", fmt.Errorf("unknown room kind %q", kind)
}
