package model

import (
	"time"

	"github.com/google/uuid"
)

// ActivityAction names an audited action.
type ActivityAction string

const (
	ActionExamCreated      ActivityAction = "EXAM_CREATED"
	ActionExamUpdated      ActivityAction = "EXAM_UPDATED"
	ActionExamDeleted      ActivityAction = "EXAM_DELETED"
	ActionExamStarted      ActivityAction = "EXAM_STARTED"
	ActionExamEnded        ActivityAction = "EXAM_ENDED"
	ActionSessionStart     ActivityAction = "EXAM_SESSION_START"
	ActionExamSubmit       ActivityAction = "EXAM_SUBMIT"
	ActionExamAutoSubmit   ActivityAction = "EXAM_AUTO_SUBMIT"
	ActionExamViolation    ActivityAction = "EXAM_VIOLATION"
	ActionSessionLocked    ActivityAction = "SESSION_LOCKED"
	ActionSessionUnlocked  ActivityAction = "SESSION_UNLOCKED"
	ActionSessionForceDone ActivityAction = "SESSION_FORCE_SUBMITTED"
	ActionManualGrade      ActivityAction = "MANUAL_GRADE"
)

// Severity ranks audit entries.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ActivityLog is one audit trail entry.
type ActivityLog struct {
	SchoolID  uuid.UUID      `json:"school_id"`
	UserID    uuid.UUID      `json:"user_id"`
	UserRole  Role           `json:"user_role"`
	Action    ActivityAction `json:"action"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Severity  Severity       `json:"severity"`
	CreatedAt time.Time      `json:"created_at"`
}
