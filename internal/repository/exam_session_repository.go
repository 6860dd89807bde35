package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kicc/cbt-backend/internal/database"
	"github.com/kicc/cbt-backend/internal/model"
)

const sessionColumns = `id, exam_id, student_id, start_time, end_time, answers, score,
	percentage, correct_count, wrong_count, violations, is_locked, lock_reason,
	manual_grades, status, created_at, updated_at`

// SessionRepository handles exam session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func scanSession(row rowScanner) (*model.Session, error) {
	s := &model.Session{}
	err := row.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.StartTime, &s.EndTime, &s.Answers, &s.Score,
		&s.Percentage, &s.CorrectCount, &s.WrongCount, &s.Violations, &s.IsLocked, &s.LockReason,
		&s.ManualGrades, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if s.Answers == nil {
		s.Answers = model.Answers{}
	}
	if s.Violations == nil {
		s.Violations = []model.Violation{}
	}
	if s.ManualGrades == nil {
		s.ManualGrades = map[int]float64{}
	}
	return s, nil
}

// GetByID retrieves a session by its UUID.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

// GetByExamAndStudent retrieves the session for a specific exam-student combination.
func (r *SessionRepository) GetByExamAndStudent(ctx context.Context, examID, studentID uuid.UUID) (*model.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE exam_id = $1 AND student_id = $2`,
		examID, studentID))
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

// Create inserts a new session while its exam is active and visible. The exam
// row is share-locked, so an insert racing an exam end waits for it and then
// finds the exam closed. A second session for the same exam and student
// inserts nothing and yields ErrConflict.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx,
		`WITH open_exam AS (
		     SELECT id FROM exams
		     WHERE id = $2 AND status = 'active' AND is_active
		     FOR SHARE
		 )
		 INSERT INTO exam_sessions (id, exam_id, student_id, start_time, answers,
		        violations, manual_grades, status)
		 SELECT $1::uuid, open_exam.id, $3::uuid, $4::timestamptz, $5::jsonb,
		        $6::jsonb, $7::jsonb, $8::text
		 FROM open_exam
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING created_at, updated_at`,
		s.ID, s.ExamID, s.StudentID, s.StartTime, s.Answers,
		s.Violations, s.ManualGrades, s.Status,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if !errors.Is(err, pgx.ErrNoRows) {
		return translate(err)
	}

	var exists bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exam_sessions WHERE exam_id = $1 AND student_id = $2)`,
		s.ExamID, s.StudentID).Scan(&exists)
	switch {
	case err != nil:
		return err
	case exists:
		return ErrConflict
	default:
		return ErrExamClosed
	}
}

// Mutate locks the session row, applies fn and writes the result back in
// one transaction. An error from fn rolls back and is returned as-is.
func (r *SessionRepository) Mutate(ctx context.Context, id uuid.UUID, fn func(*model.Session) error) (*model.Session, error) {
	var out *model.Session
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		s, err := scanSession(tx.QueryRow(ctx,
			`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return translate(err)
		}
		if err := fn(s); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE exam_sessions
			 SET end_time = $2, answers = $3, score = $4, percentage = $5,
			     correct_count = $6, wrong_count = $7, violations = $8,
			     is_locked = $9, lock_reason = $10, manual_grades = $11,
			     status = $12, updated_at = $13
			 WHERE id = $1`,
			s.ID, s.EndTime, s.Answers, s.Score, s.Percentage,
			s.CorrectCount, s.WrongCount, s.Violations,
			s.IsLocked, s.LockReason, s.ManualGrades,
			s.Status, s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("write session: %w", err)
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByExam retrieves every session of an exam.
func (r *SessionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Session, error) {
	return r.list(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE exam_id = $1 ORDER BY start_time`, examID)
}

// ListByStudent retrieves all sessions for a given student.
func (r *SessionRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]model.Session, error) {
	return r.list(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE student_id = $1 ORDER BY start_time DESC`, studentID)
}

// ListOverdue returns the IDs of ongoing sessions whose duration plus grace
// elapsed before now.
func (r *SessionRepository) ListOverdue(ctx context.Context, now time.Time, grace time.Duration) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id
		 FROM exam_sessions s
		 JOIN exams e ON e.id = s.exam_id
		 WHERE s.status = 'ongoing'
		   AND s.start_time + make_interval(mins => e.duration_minutes) + make_interval(secs => $2) < $1
		 ORDER BY s.start_time
		 LIMIT 500`, now, grace.Seconds())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (r *SessionRepository) list(ctx context.Context, query string, args ...any) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}
