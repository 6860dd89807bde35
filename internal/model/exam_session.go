package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusOngoing    SessionStatus = "ongoing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusTerminated SessionStatus = "terminated"
)

// Violation is one proctoring event reported by the student client.
type Violation struct {
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	EvidenceURL string    `json:"evidence_url,omitempty"`
}

// Session is one student's attempt at one exam.
type Session struct {
	ID           uuid.UUID       `json:"id"`
	ExamID       uuid.UUID       `json:"exam_id"`
	StudentID    uuid.UUID       `json:"student_id"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      *time.Time      `json:"end_time,omitempty"`
	Answers      Answers         `json:"answers"`
	Score        float64         `json:"score"`
	Percentage   float64         `json:"percentage"`
	CorrectCount int             `json:"correct_count"`
	WrongCount   int             `json:"wrong_count"`
	Violations   []Violation     `json:"violations"`
	IsLocked     bool            `json:"is_locked"`
	LockReason   string          `json:"lock_reason,omitempty"`
	ManualGrades map[int]float64 `json:"manual_grades"`
	Status       SessionStatus   `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsFinal reports whether the session no longer accepts student input.
func (s *Session) IsFinal() bool {
	return s.Status == SessionStatusCompleted || s.Status == SessionStatusTerminated
}

// Lock sets the lock flag and reason.
func (s *Session) Lock(reason string) {
	s.IsLocked = true
	s.LockReason = reason
}

// Unlock clears the lock flag and reason.
func (s *Session) Unlock() {
	s.IsLocked = false
	s.LockReason = ""
}

// Finish moves the session to a final status at t.
func (s *Session) Finish(status SessionStatus, t time.Time) {
	s.Status = status
	s.EndTime = &t
}

// SaveAnswersRequest carries a partial answer set for autosave.
type SaveAnswersRequest struct {
	Answers map[string]json.RawMessage `json:"answers" binding:"required"`
}

// SubmitExamRequest carries the final answer set. Missing answers fall back
// to what was autosaved.
type SubmitExamRequest struct {
	Answers map[string]json.RawMessage `json:"answers"`
}

// LogViolationRequest is sent by the proctoring client.
type LogViolationRequest struct {
	Type        string `json:"type" binding:"required,notblank,max=100"`
	EvidenceURL string `json:"evidence_url" binding:"omitempty,url,max=2048"`
}

// SessionActionRequest carries an optional reason for teacher actions.
type SessionActionRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

// ManualGrade overrides the marks of one question.
type ManualGrade struct {
	QuestionIndex *int     `json:"question_index" binding:"required,min=0"`
	MarksEarned   *float64 `json:"marks_earned" binding:"required,min=0"`
}

// ManualGradeRequest is the payload for a teacher regrade.
type ManualGradeRequest struct {
	Grades []ManualGrade `json:"grades" binding:"required,min=1,dive"`
}
