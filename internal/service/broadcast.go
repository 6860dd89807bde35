package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/kicc/cbt-backend/internal/config"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/rs/zerolog"
)

// broadcaster routes notifications to rooms. Delivery failures are logged and
// never fail the transition that produced them.
type broadcaster struct {
	notifier Notifier
	log      zerolog.Logger
}

func (b broadcaster) toSession(ctx context.Context, sessionID uuid.UUID, n model.Notification) {
	n.SessionID = sessionID.String()
	b.publish(ctx, config.CacheKey.SessionRoom(sessionID.String()), n)
}

func (b broadcaster) toExam(ctx context.Context, examID uuid.UUID, n model.Notification) {
	n.ExamID = examID.String()
	b.publish(ctx, config.CacheKey.ExamRoom(examID.String()), n)
}

func (b broadcaster) toMonitor(ctx context.Context, examID uuid.UUID, n model.Notification) {
	n.ExamID = examID.String()
	b.publish(ctx, config.CacheKey.MonitorRoom(examID.String()), n)
}

func (b broadcaster) publish(ctx context.Context, room string, n model.Notification) {
	if b.notifier == nil {
		return
	}
	if err := b.notifier.Publish(ctx, room, n); err != nil {
		b.log.Warn().Err(err).
			Str("room", room).
			Str("event", string(n.Event)).
			Msg("Failed to publish notification")
	}
}
