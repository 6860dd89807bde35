package service

import (
	"errors"

	"github.com/kicc/cbt-backend/internal/model"
)

// Domain errors.
var (
	ErrExamNotFound    = errors.New("exam not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrUserNotFound    = errors.New("user not found")

	ErrNotExamOwner        = errors.New("not the owner of this exam")
	ErrNotSessionOwner     = errors.New("session belongs to another student")
	ErrDifferentSchool     = errors.New("unauthorized - different school")
	ErrNotEligible         = errors.New("exam is not for your class")
	ErrFeatureNotPermitted = errors.New("subscription does not include proctored exams")

	ErrExamNotAvailable  = errors.New("exam not available")
	ErrExamNotStarted    = errors.New("exam not started by teacher yet")
	ErrAlreadyTaken      = errors.New("exam already taken, cannot retake")
	ErrSessionFinal      = errors.New("session already finished")
	ErrSessionLocked     = errors.New("session is locked")
	ErrTimeUp            = errors.New("exam time is up")
	ErrExamEnded         = errors.New("exam has ended")
	ErrInvalidTransition = errors.New("invalid exam status transition")
	ErrExamNotEditable   = errors.New("exam can only be changed while scheduled")
	ErrInvalidExam       = errors.New("invalid exam definition")
	ErrInvalidGrade      = errors.New("invalid grade")
)

// SessionConflictError is returned when an action meets a session that is
// already finished: a student restarting the exam (ErrAlreadyTaken) or a
// teacher force-submitting a completed session (ErrSessionFinal). It carries
// the existing record for display.
type SessionConflictError struct {
	Session *model.Session
	Err     error
}

func (e *SessionConflictError) cause() error {
	if e.Err == nil {
		return ErrAlreadyTaken
	}
	return e.Err
}

func (e *SessionConflictError) Error() string { return e.cause().Error() }

func (e *SessionConflictError) Unwrap() error { return e.cause() }

// ValidationError carries field-level problems with an exam definition.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return ErrInvalidExam.Error() }

func (e *ValidationError) Unwrap() error { return ErrInvalidExam }
