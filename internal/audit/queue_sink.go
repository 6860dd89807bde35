// Package audit queues activity log entries for asynchronous persistence.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kicc/cbt-backend/internal/config"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const pushTimeout = 2 * time.Second

// QueueSink pushes entries onto a Redis list drained by worker.AuditWorker.
type QueueSink struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewQueueSink creates a new QueueSink.
func NewQueueSink(rdb *redis.Client, log zerolog.Logger) *QueueSink {
	return &QueueSink{
		rdb: rdb,
		log: log.With().Str("component", "audit_sink").Logger(),
	}
}

// Record enqueues entry. Failures are logged with the entry so it is not lost
// silently, and never returned to the caller.
func (s *QueueSink) Record(ctx context.Context, entry model.ActivityLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		s.log.Error().Err(err).Str("action", string(entry.Action)).Msg("Failed to encode activity log")
		return
	}

	// Detached from the request so a client disconnect does not drop the entry.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()

	if err := s.rdb.RPush(pushCtx, config.WorkerKey.PersistActivityQueue, data).Err(); err != nil {
		s.log.Error().Err(err).RawJSON("entry", data).Msg("Failed to queue activity log")
	}
}
