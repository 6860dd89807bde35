package model

// NotificationEvent names a real-time event pushed to room subscribers.
type NotificationEvent string

const (
	EventSessionLocked         NotificationEvent = "session_locked"
	EventSessionUnlocked       NotificationEvent = "session_unlocked"
	EventSessionForceSubmitted NotificationEvent = "session_force_submitted"
	EventSessionTerminated     NotificationEvent = "session_terminated"
	EventSessionTimeUp         NotificationEvent = "session_time_up"
	EventExamTerminated        NotificationEvent = "exam_terminated"

	// Monitor room only.
	EventSessionStarted   NotificationEvent = "session_started"
	EventSessionSubmitted NotificationEvent = "session_submitted"
	EventViolationLogged  NotificationEvent = "violation_logged"
)

// Notification is the payload delivered to a room.
type Notification struct {
	Event     NotificationEvent `json:"event"`
	SessionID string            `json:"session_id,omitempty"`
	ExamID    string            `json:"exam_id,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Message   string            `json:"message"`
	Data      map[string]any    `json:"data,omitempty"`
}

// SubjectScore is published to the student aggregate record after a submission.
type SubjectScore struct {
	StudentID  string  `json:"student_id"`
	SchoolID   string  `json:"school_id"`
	ExamID     string  `json:"exam_id"`
	SubjectKey string  `json:"subject_key"`
	Subject    string  `json:"subject"`
	Score      float64 `json:"score"`
	Percentage float64 `json:"percentage"`
}
