package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates exam lifecycle states.
type ExamStatus string

const (
	ExamStatusScheduled ExamStatus = "scheduled"
	ExamStatusActive    ExamStatus = "active"
	ExamStatusEnded     ExamStatus = "ended"
)

// ExamType distinguishes plain exams from proctored ones.
type ExamType string

const (
	ExamTypeBasic     ExamType = "basic"
	ExamTypeProctored ExamType = "proctored"
)

// DefaultPassingPercentage applies when an exam does not set one.
const DefaultPassingPercentage = 50

// ProctoringSettings configures client-side proctoring for proctored exams.
type ProctoringSettings struct {
	RequireCamera    bool `json:"require_camera"`
	RequireAudio     bool `json:"require_audio"`
	DetectViolations bool `json:"detect_violations"`
	LockBrowser      bool `json:"lock_browser"`
	ScreenSharing    bool `json:"screen_sharing"`
	FaceDetection    bool `json:"face_detection"`
	TabSwitchLimit   int  `json:"tab_switch_limit"`
}

// Exam represents a teacher-authored exam with its embedded questions.
type Exam struct {
	ID                uuid.UUID          `json:"id"`
	Title             string             `json:"title"`
	Subject           string             `json:"subject"`
	TeacherID         uuid.UUID          `json:"teacher_id"`
	SchoolID          uuid.UUID          `json:"school_id"`
	DurationMinutes   int                `json:"duration_minutes"`
	StartsAt          *time.Time         `json:"starts_at,omitempty"`
	EndsAt            *time.Time         `json:"ends_at,omitempty"`
	ClassLevel        string             `json:"class_level"`
	Groups            []string           `json:"groups"`
	Questions         []Question         `json:"questions"`
	TotalMarks        float64            `json:"total_marks"`
	PassingScore      float64            `json:"passing_score"`
	PassingPercentage float64            `json:"passing_percentage"`
	NegativeMarking   float64            `json:"negative_marking"`
	ExamType          ExamType           `json:"exam_type"`
	Proctoring        ProctoringSettings `json:"proctoring"`
	AccessCode        string             `json:"access_code,omitempty"`
	Status            ExamStatus         `json:"status"`
	IsActive          bool               `json:"is_active"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// AdmitsSessions reports whether new sessions may start.
func (e *Exam) AdmitsSessions() bool {
	return e.Status == ExamStatusActive && e.IsActive
}

// PossibleMarks sums the effective marks of every question.
func (e *Exam) PossibleMarks() float64 {
	var total float64
	for _, q := range e.Questions {
		total += q.EffectiveMarks()
	}
	return total
}

// GradingBase is the denominator used when a teacher regrades a session.
func (e *Exam) GradingBase() float64 {
	if e.TotalMarks > 0 {
		return e.TotalMarks
	}
	if p := e.PossibleMarks(); p > 0 {
		return p
	}
	return 1
}

// Deadline is when a session started at start runs out of time.
func (e *Exam) Deadline(start time.Time) time.Time {
	return start.Add(time.Duration(e.DurationMinutes) * time.Minute)
}

// HasEssay reports whether any question needs manual review.
func (e *Exam) HasEssay() bool {
	for _, q := range e.Questions {
		if q.Kind() == QuestionTypeEssay {
			return true
		}
	}
	return false
}

// Passed reports whether percentage meets the exam's pass mark.
func (e *Exam) Passed(percentage float64) bool {
	pass := e.PassingPercentage
	if pass <= 0 {
		pass = DefaultPassingPercentage
	}
	return percentage >= pass
}

// TargetsStudent reports whether the exam's class level and groups include u.
// Blank targeting matches everyone.
func (e *Exam) TargetsStudent(u *User) bool {
	if lvl := NormalizeKey(e.ClassLevel); lvl != "" {
		if NormalizeKey(u.ClassLevel) != lvl {
			return false
		}
	}
	if len(e.Groups) == 0 || u.Group == "" {
		return true
	}
	for _, g := range e.Groups {
		if strings.EqualFold(strings.TrimSpace(g), strings.TrimSpace(u.Group)) {
			return true
		}
	}
	return false
}

// NormalizeKey lower-cases s and strips all whitespace, so "SS 2" and "ss2"
// compare equal. Subject keys of the student record use the same form.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// Paper returns the student-facing question list.
func (e *Exam) Paper() []PaperQuestion {
	out := make([]PaperQuestion, len(e.Questions))
	for i, q := range e.Questions {
		out[i] = q.Paper(i)
	}
	return out
}

// CreateExamRequest is the payload for creating or replacing an exam.
type CreateExamRequest struct {
	Title             string              `json:"title" binding:"required,notblank,min=3,max=255"`
	Subject           string              `json:"subject" binding:"required,notblank,max=100"`
	DurationMinutes   int                 `json:"duration_minutes" binding:"required,min=1,max=600"`
	StartsAt          *time.Time          `json:"starts_at"`
	EndsAt            *time.Time          `json:"ends_at"`
	ClassLevel        string              `json:"class_level" binding:"max=50"`
	Groups            []string            `json:"groups"`
	Questions         []QuestionInput     `json:"questions" binding:"required,min=1,dive"`
	TotalMarks        float64             `json:"total_marks" binding:"min=0"`
	PassingScore      float64             `json:"passing_score" binding:"min=0"`
	PassingPercentage *float64            `json:"passing_percentage" binding:"omitempty,min=0,max=100"`
	NegativeMarking   float64             `json:"negative_marking" binding:"min=0"`
	ExamType          ExamType            `json:"exam_type" binding:"omitempty,oneof=basic proctored"`
	Proctoring        *ProctoringSettings `json:"proctoring"`
	AccessCode        string              `json:"access_code" binding:"max=20"`
}

// SetExamStatusRequest changes the lifecycle status and/or the active flag.
type SetExamStatusRequest struct {
	Status   *ExamStatus `json:"status" binding:"omitempty,oneof=scheduled active ended"`
	IsActive *bool       `json:"is_active"`
}
