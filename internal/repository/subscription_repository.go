package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository reads school subscription plans.
type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

// HasProctoredExams reports whether the school holds a current subscription
// whose plan includes proctored exams. Schools without a row have none.
func (r *SubscriptionRepository) HasProctoredExams(ctx context.Context, schoolID uuid.UUID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM subscriptions
		     WHERE school_id = $1
		       AND proctored_exams
		       AND (expires_at IS NULL OR expires_at > NOW())
		 )`, schoolID,
	).Scan(&ok)
	return ok, err
}

// Grant adds a subscription for the school. A nil expiresAt never expires.
func (r *SubscriptionRepository) Grant(ctx context.Context, schoolID uuid.UUID, plan string, proctored bool, expiresAt *time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO subscriptions (school_id, plan, proctored_exams, expires_at) VALUES ($1, $2, $3, $4)`,
		schoolID, plan, proctored, expiresAt)
	return translate(err)
}
