package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kicc/cbt-backend/internal/response"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 2 * time.Second

// SystemHandler reports process health and dependency reachability.
type SystemHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	startTime time.Time
}

func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client) *SystemHandler {
	return &SystemHandler{pool: pool, rdb: rdb, startTime: time.Now()}
}

type healthReport struct {
	Status     string            `json:"status"`
	Uptime     string            `json:"uptime"`
	Goroutines int               `json:"goroutines"`
	HeapBytes  uint64            `json:"heap_bytes"`
	Checks     map[string]string `json:"checks"`
}

// Health godoc
// GET /health
// Returns 503 when PostgreSQL or Redis cannot be reached.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	report := healthReport{
		Status:     "ok",
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		Checks:     map[string]string{"postgres": "ok", "redis": "ok"},
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	report.HeapBytes = mem.HeapAlloc

	if err := h.pool.Ping(ctx); err != nil {
		report.Status = "degraded"
		report.Checks["postgres"] = err.Error()
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		report.Status = "degraded"
		report.Checks["redis"] = err.Error()
	}

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, report)
}
