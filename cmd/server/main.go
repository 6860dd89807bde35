package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kicc/cbt-backend/internal/audit"
	"github.com/kicc/cbt-backend/internal/config"
	"github.com/kicc/cbt-backend/internal/database"
	"github.com/kicc/cbt-backend/internal/event"
	"github.com/kicc/cbt-backend/internal/handler"
	"github.com/kicc/cbt-backend/internal/logger"
	"github.com/kicc/cbt-backend/internal/proctoring"
	"github.com/kicc/cbt-backend/internal/repository"
	"github.com/kicc/cbt-backend/internal/router"
	"github.com/kicc/cbt-backend/internal/service"
	"github.com/kicc/cbt-backend/internal/validator"
	"github.com/kicc/cbt-backend/internal/websocket"
	"github.com/kicc/cbt-backend/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting CBT Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Connect to RabbitMQ ───────────────────────────────────────────
	publisher, err := event.NewPublisher(cfg.RabbitMQURL, cfg.EventsExchange, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("RabbitMQ close error")
		}
	}()

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	subscriptionRepo := repository.NewSubscriptionRepository(pool)

	// ─── Realtime & Audit ──────────────────────────────────────────────
	hub := websocket.NewHub(rdb, log)
	notifier := websocket.NewRedisNotifier(rdb)
	auditSink := audit.NewQueueSink(rdb, log)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, userRepo)
	examService := service.NewExamService(examRepo, userRepo, subscriptionRepo, notifier, auditSink, cfg.ProctoringBypassSchools, log)
	sessionService := service.NewSessionService(examRepo, sessionRepo, userRepo, publisher, notifier, auditSink, cfg.ExpiryGrace, log)
	violationService := service.NewViolationService(examRepo, sessionRepo, proctoring.NewPolicy(cfg.TalkingLockThreshold), notifier, auditSink, log)
	controlService := service.NewControlService(examRepo, sessionRepo, notifier, auditSink, log)
	gradingService := service.NewGradingService(examRepo, sessionRepo, userRepo, auditSink, log)
	monitorService := service.NewMonitorService(examRepo, sessionRepo, userRepo)
	exportService := service.NewExportService(gradingService, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:           handler.NewAuthHandler(authService, log),
		Exam:           handler.NewExamHandler(examService, monitorService, violationService, log),
		SessionControl: handler.NewSessionControlHandler(controlService, violationService, log),
		Grading:        handler.NewGradingHandler(gradingService, exportService, log),
		StudentPortal:  handler.NewStudentPortalHandler(sessionService, violationService, log),
		Monitor:        handler.NewMonitorHandler(rdb, monitorService, log),
		WS:             handler.NewWSHandler(hub, monitorService, log, cfg.AllowedOrigins),
		System:         handler.NewSystemHandler(pool, rdb),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	auditWorker := worker.NewAuditWorker(pool, rdb, log)
	expiryWorker := worker.NewExpiryWorker(sessionRepo, sessionService, rdb, cfg.ExpirySweepInterval, cfg.ExpiryGrace, log)

	for _, run := range []func(context.Context){auditWorker.Start, expiryWorker.Start, hub.Run} {
		run := run
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(workerCtx)
		}()
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for the audit queue to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
