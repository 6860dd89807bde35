package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kicc/cbt-backend/internal/model"
)

// ExamStore persists exams.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	Create(ctx context.Context, exam *model.Exam) error
	Update(ctx context.Context, exam *model.Exam) error
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus, isActive bool) error
	// End marks the exam ended and inactive, and terminates every ongoing
	// session of it in the same unit of work. Returns the terminated session IDs.
	End(ctx context.Context, id uuid.UUID, at time.Time) ([]uuid.UUID, error)
	ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]model.Exam, error)
	ListBySchool(ctx context.Context, schoolID uuid.UUID, statuses []model.ExamStatus) ([]model.Exam, error)
}

// SessionStore persists sessions. Mutate is the only write path for an
// existing session and serializes concurrent writers of the same session.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	GetByExamAndStudent(ctx context.Context, examID, studentID uuid.UUID) (*model.Session, error)
	// Create inserts s. It returns repository.ErrConflict when a session for
	// the same exam and student already exists, and repository.ErrExamClosed
	// when the exam stopped being active and visible before the insert.
	Create(ctx context.Context, s *model.Session) error
	Mutate(ctx context.Context, id uuid.UUID, fn func(s *model.Session) error) (*model.Session, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Session, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]model.Session, error)
	// ListOverdue returns ongoing sessions whose time box closed before now.
	ListOverdue(ctx context.Context, now time.Time, grace time.Duration) ([]uuid.UUID, error)
}

// UserDirectory resolves users and schools.
type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetSchool(ctx context.Context, id uuid.UUID) (*model.School, error)
	ListStudents(ctx context.Context, schoolID uuid.UUID) ([]model.User, error)
	ListUsersByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.User, error)
}

// EntitlementChecker reports whether a school's subscription includes
// proctored exams.
type EntitlementChecker interface {
	HasProctoredExams(ctx context.Context, schoolID uuid.UUID) (bool, error)
}

// Notifier delivers real-time events to the subscribers of a room.
type Notifier interface {
	Publish(ctx context.Context, room string, n model.Notification) error
}

// AuditSink records audit entries. Implementations must not block the caller
// on slow storage and report their own failures.
type AuditSink interface {
	Record(ctx context.Context, entry model.ActivityLog)
}

// RecordSync pushes a finished exam's result to the student's aggregate record.
type RecordSync interface {
	SyncSubjectScore(ctx context.Context, score model.SubjectScore) error
}
