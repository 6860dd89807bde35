package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const sweepLockKey = "cbt:lock:expiry_sweep"

// OverdueLister finds ongoing sessions past their time box.
type OverdueLister interface {
	ListOverdue(ctx context.Context, now time.Time, grace time.Duration) ([]uuid.UUID, error)
}

// SessionExpirer auto-submits a single overdue session.
type SessionExpirer interface {
	ExpireSession(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

// ExpiryWorker periodically auto-submits sessions whose time ran out while
// the student was away. When rdb is set, a short Redis lock keeps multiple
// instances from sweeping at the same time.
type ExpiryWorker struct {
	sessions OverdueLister
	expirer  SessionExpirer
	rdb      *redis.Client
	interval time.Duration
	grace    time.Duration
	log      zerolog.Logger
}

func NewExpiryWorker(sessions OverdueLister, expirer SessionExpirer, rdb *redis.Client, interval, grace time.Duration, log zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ExpiryWorker{
		sessions: sessions,
		expirer:  expirer,
		rdb:      rdb,
		interval: interval,
		grace:    grace,
		log:      log.With().Str("component", "expiry_worker").Logger(),
	}
}

func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Dur("grace", w.grace).Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpiryWorker stopped")
			return
		case <-ticker.C:
			if !w.acquire(ctx) {
				continue
			}
			if _, err := w.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Expiry sweep failed")
			}
		}
	}
}

// SweepOnce expires every overdue session and returns how many it closed.
func (w *ExpiryWorker) SweepOnce(ctx context.Context) (int, error) {
	ids, err := w.sessions.ListOverdue(ctx, time.Now(), w.grace)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		ok, err := w.expirer.ExpireSession(ctx, id)
		if err != nil {
			w.log.Warn().Err(err).Str("session_id", id.String()).Msg("Failed to expire session")
			continue
		}
		if ok {
			expired++
		}
	}

	if expired > 0 {
		w.log.Info().Int("expired", expired).Msg("Auto-submitted overdue sessions")
	}
	return expired, nil
}

func (w *ExpiryWorker) acquire(ctx context.Context) bool {
	if w.rdb == nil {
		return true
	}
	ok, err := w.rdb.SetNX(ctx, sweepLockKey, "1", w.interval/2).Result()
	if err != nil {
		// Sweeping twice is harmless; skipping because Redis is down is not.
		w.log.Warn().Err(err).Msg("Sweep lock unavailable, sweeping anyway")
		return true
	}
	return ok
}
