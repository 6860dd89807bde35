package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kicc/cbt-backend/internal/model"
)

const userColumns = `id, school_id, role, full_name, username, password_hash,
	class_level, group_name, created_at`

// UserRepository handles user and school data access.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.SchoolID, &u.Role, &u.FullName, &u.Username, &u.PasswordHash,
		&u.ClassLevel, &u.Group, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// GetUserByUsername retrieves a user by login name.
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// GetSchool retrieves a school by ID.
func (r *UserRepository) GetSchool(ctx context.Context, id uuid.UUID) (*model.School, error) {
	s := &model.School{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, login_id FROM schools WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.LoginID)
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

// GetSchoolByLoginID retrieves a school by its public login ID.
func (r *UserRepository) GetSchoolByLoginID(ctx context.Context, loginID string) (*model.School, error) {
	s := &model.School{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, login_id FROM schools WHERE login_id = $1`, loginID,
	).Scan(&s.ID, &s.Name, &s.LoginID)
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

// ListStudents retrieves every student of a school ordered by name.
func (r *UserRepository) ListStudents(ctx context.Context, schoolID uuid.UUID) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE school_id = $1 AND role = 'student'
		 ORDER BY full_name`, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ListUsersByID retrieves users keyed by ID. Unknown IDs are omitted.
func (r *UserRepository) ListUsersByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.User, error) {
	out := make(map[uuid.UUID]model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out[u.ID] = *u
	}
	return out, rows.Err()
}

// CreateSchool inserts a school.
func (r *UserRepository) CreateSchool(ctx context.Context, s *model.School) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO schools (id, name, login_id) VALUES ($1, $2, $3)`,
		s.ID, s.Name, s.LoginID)
	return translate(err)
}

// CreateUser inserts a user.
func (r *UserRepository) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return translate(r.pool.QueryRow(ctx,
		`INSERT INTO users (id, school_id, role, full_name, username, password_hash, class_level, group_name)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		u.ID, u.SchoolID, u.Role, u.FullName, u.Username, u.PasswordHash, u.ClassLevel, u.Group,
	).Scan(&u.CreatedAt))
}
