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

const examColumns = `id, title, subject, teacher_id, school_id, duration_minutes,
	starts_at, ends_at, class_level, groups, questions, total_marks,
	passing_score, passing_percentage, negative_marking, exam_type,
	proctoring, access_code, status, is_active, created_at, updated_at`

// ExamRepository handles exam data access. Questions are stored inline as JSONB.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExam(row rowScanner) (*model.Exam, error) {
	e := &model.Exam{}
	err := row.Scan(&e.ID, &e.Title, &e.Subject, &e.TeacherID, &e.SchoolID, &e.DurationMinutes,
		&e.StartsAt, &e.EndsAt, &e.ClassLevel, &e.Groups, &e.Questions, &e.TotalMarks,
		&e.PassingScore, &e.PassingPercentage, &e.NegativeMarking, &e.ExamType,
		&e.Proctoring, &e.AccessCode, &e.Status, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if e.Groups == nil {
		e.Groups = []string{}
	}
	return e, nil
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e, err := scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return e, nil
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exams (id, title, subject, teacher_id, school_id, duration_minutes,
		        starts_at, ends_at, class_level, groups, questions, total_marks,
		        passing_score, passing_percentage, negative_marking, exam_type,
		        proctoring, access_code, status, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		 RETURNING created_at, updated_at`,
		e.ID, e.Title, e.Subject, e.TeacherID, e.SchoolID, e.DurationMinutes,
		e.StartsAt, e.EndsAt, e.ClassLevel, e.Groups, e.Questions, e.TotalMarks,
		e.PassingScore, e.PassingPercentage, e.NegativeMarking, e.ExamType,
		e.Proctoring, e.AccessCode, e.Status, e.IsActive,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	return translate(err)
}

// Update rewrites an exam's content. Only scheduled exams are editable.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE exams
		 SET title = $2, subject = $3, duration_minutes = $4, starts_at = $5, ends_at = $6,
		     class_level = $7, groups = $8, questions = $9, total_marks = $10,
		     passing_score = $11, passing_percentage = $12, negative_marking = $13,
		     exam_type = $14, proctoring = $15, access_code = $16, updated_at = NOW()
		 WHERE id = $1 AND status = 'scheduled'
		 RETURNING updated_at`,
		e.ID, e.Title, e.Subject, e.DurationMinutes, e.StartsAt, e.EndsAt,
		e.ClassLevel, e.Groups, e.Questions, e.TotalMarks,
		e.PassingScore, e.PassingPercentage, e.NegativeMarking,
		e.ExamType, e.Proctoring, e.AccessCode,
	).Scan(&e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.missingOrConflict(ctx, e.ID)
	}
	return translate(err)
}

// Delete removes an exam. Exams with sessions are protected by the
// sessions foreign key and yield ErrConflict.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus moves an exam that has not ended to a new status.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus, isActive bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $2, is_active = $3, updated_at = NOW()
		 WHERE id = $1 AND status <> 'ended'`, id, status, isActive)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, id)
	}
	return nil
}

// End marks the exam ended and terminates its ongoing sessions in one
// transaction.
func (r *ExamRepository) End(ctx context.Context, id uuid.UUID, at time.Time) ([]uuid.UUID, error) {
	var terminated []uuid.UUID
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE exams SET status = 'ended', is_active = FALSE, updated_at = $2
			 WHERE id = $1 AND status <> 'ended'`, id, at)
		if err != nil {
			return fmt.Errorf("end exam: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.missingOrConflict(ctx, id)
		}

		rows, err := tx.Query(ctx,
			`UPDATE exam_sessions SET status = 'terminated', end_time = $2, updated_at = $2
			 WHERE exam_id = $1 AND status = 'ongoing'
			 RETURNING id`, id, at)
		if err != nil {
			return fmt.Errorf("terminate sessions: %w", err)
		}
		terminated, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return terminated, nil
}

// ListByTeacher retrieves a teacher's exams, newest first.
func (r *ExamRepository) ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]model.Exam, error) {
	return r.list(ctx,
		`SELECT `+examColumns+` FROM exams WHERE teacher_id = $1 ORDER BY created_at DESC`, teacherID)
}

// ListBySchool retrieves a school's exams in any of the given statuses.
func (r *ExamRepository) ListBySchool(ctx context.Context, schoolID uuid.UUID, statuses []model.ExamStatus) ([]model.Exam, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return r.list(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE school_id = $1 AND status = ANY($2)
		 ORDER BY starts_at NULLS LAST, created_at DESC`, schoolID, names)
}

func (r *ExamRepository) list(ctx context.Context, query string, args ...any) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exams := []model.Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

// missingOrConflict distinguishes a guarded write that matched nothing
// because the row is gone from one that lost to a state guard.
func (r *ExamRepository) missingOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM exams WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}
