package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kicc/cbt-backend/internal/config"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

var activityColumns = []string{"school_id", "user_id", "user_role", "action", "metadata", "severity", "created_at"}

// AuditWorker drains the activity log queue into PostgreSQL in batches.
type AuditWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewAuditWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AuditWorker {
	return &AuditWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "audit_worker").Logger(),
	}
}

type queuedEntry struct {
	raw   string
	entry model.ActivityLog
}

func (w *AuditWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AuditWorker started")

	buffer := make([]queuedEntry, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch. BLPop returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistActivityQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var entry model.ActivityLog
		if err := json.Unmarshal([]byte(result[1]), &entry); err != nil {
			// Malformed entries can never succeed; drop them.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed activity log")
			continue
		}
		buffer = append(buffer, queuedEntry{raw: result[1], entry: entry})
	}
}

// flushSafe attempts a bulk copy, then row-by-row insert, then requeue.
func (w *AuditWorker) flushSafe(ctx context.Context, batch []queuedEntry) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func row(e model.ActivityLog) []any {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return []any{e.SchoolID, e.UserID, string(e.UserRole), string(e.Action), meta, string(e.Severity), e.CreatedAt}
}

func (w *AuditWorker) bulkInsert(ctx context.Context, batch []queuedEntry) error {
	rows := make([][]any, 0, len(batch))
	for _, q := range batch {
		rows = append(rows, row(q.entry))
	}
	_, err := w.pool.CopyFrom(ctx, pgx.Identifier{"activity_logs"}, activityColumns, pgx.CopyFromRows(rows))
	return err
}

func (w *AuditWorker) fallbackInsert(ctx context.Context, batch []queuedEntry) {
	requeueList := make([]queuedEntry, 0)

	for _, q := range batch {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO activity_logs (school_id, user_id, user_role, action, metadata, severity, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			row(q.entry)...,
		)
		if err != nil {
			w.log.Error().Err(err).Str("action", string(q.entry.Action)).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, q)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *AuditWorker) requeue(ctx context.Context, items []queuedEntry) {
	pipe := w.rdb.Pipeline()
	for _, q := range items {
		pipe.RPush(ctx, config.WorkerKey.PersistActivityQueue, q.raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue activity logs to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Back off so a down database is not hammered.
	time.Sleep(2 * time.Second)
}

func (w *AuditWorker) shutdown(buffer []queuedEntry) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
