package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kicc/cbt-backend/internal/config"
	"github.com/kicc/cbt-backend/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

var pingFrame = []byte(`{"type":"ping"}`)

type MonitorHandler struct {
	rdb            *redis.Client
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(rdb *redis.Client, monitorService *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/teacher/exams/:id/monitor
// Streams the roster snapshot followed by live monitor room events.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	claims, examID, ok := claimsAndID(c)
	if !ok {
		return
	}

	reqCtx := c.Request.Context()
	if _, err := h.monitorService.Authorize(reqCtx, claims.UserID, examID); err != nil {
		failWithError(c, h.log, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, reqCtx, claims.UserID, examID, "snapshot")

	room := config.CacheKey.MonitorRoom(examID.String())
	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.RoomChannel(room))
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()
	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Only re-query when something happened since the last snapshot.
	dirty := false

	sseLog := h.log.With().Str("exam_id", examID.String()).Logger()
	sseLog.Info().Msg("Teacher attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			sseLog.Info().Msg("Teacher disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeFrame(c, []byte(msg.Payload))
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			h.sendSnapshot(c, reqCtx, claims.UserID, examID, "refresh")
			dirty = false

		case <-keepAliveTicker.C:
			writeFrame(c, pingFrame)
		}
	}
}

func (h *MonitorHandler) sendSnapshot(c *gin.Context, parent context.Context, teacherID, examID uuid.UUID, kind string) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	snap, err := h.monitorService.Snapshot(ctx, teacherID, examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to build monitor snapshot")
		return
	}

	c.SSEvent("message", gin.H{"type": kind, "data": snap})
	c.Writer.Flush()
}

func writeFrame(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
