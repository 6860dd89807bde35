package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kicc/cbt-backend/internal/config"
	"github.com/kicc/cbt-backend/internal/handler"
	"github.com/kicc/cbt-backend/internal/middleware"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/response"
	"github.com/kicc/cbt-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth           *handler.AuthHandler
	Exam           *handler.ExamHandler
	SessionControl *handler.SessionControlHandler
	Grading        *handler.GradingHandler
	StudentPortal  *handler.StudentPortalHandler
	Monitor        *handler.MonitorHandler
	WS             *handler.WSHandler
	System         *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds the lifetime of the rate limiter sweepers.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID, "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.Trace())
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	requireJWT := middleware.RequireJWT(authService)
	authLimiter := middleware.NewRateLimiter(ctx, 30, time.Minute)
	violationLimiter := middleware.NewRateLimiter(ctx, cfg.ViolationRatePerMin, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", authLimiter.Middleware(), handlers.Auth.Login)
		auth.GET("/me", requireJWT, handlers.Auth.Me)
	}

	// ─── 2. Teacher Group ──────────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(requireJWT, middleware.RequireRole(model.RoleTeacher))
	{
		teacherAPI.GET("/exams", handlers.Exam.ListExams)
		teacherAPI.POST("/exams", handlers.Exam.CreateExam)
		teacherAPI.GET("/exams/:id", handlers.Exam.GetExam)
		teacherAPI.PUT("/exams/:id", handlers.Exam.UpdateExam)
		teacherAPI.DELETE("/exams/:id", handlers.Exam.DeleteExam)
		teacherAPI.PATCH("/exams/:id/status", handlers.Exam.SetStatus)
		teacherAPI.GET("/exams/:id/sessions", handlers.Exam.ListSessions)
		teacherAPI.GET("/exams/:id/violations", handlers.Exam.ExamViolations)
		teacherAPI.GET("/exams/:id/monitor", handlers.Monitor.MonitorExamSSE)
		teacherAPI.GET("/exams/:id/results", handlers.Grading.ExamResults)
		teacherAPI.GET("/exams/:id/results/export", handlers.Grading.ExportResults)

		teacherAPI.GET("/grading", handlers.Grading.GradingQueue)

		teacherAPI.GET("/sessions/:id/violations", handlers.SessionControl.SessionViolations)
		teacherAPI.POST("/sessions/:id/lock", handlers.SessionControl.LockSession)
		teacherAPI.POST("/sessions/:id/unlock", handlers.SessionControl.UnlockSession)
		teacherAPI.POST("/sessions/:id/force-submit", handlers.SessionControl.ForceSubmit)
		teacherAPI.PUT("/sessions/:id/grades", handlers.Grading.UpdateGrades)
	}

	// ─── 3. Student Group ──────────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(requireJWT, middleware.RequireRole(model.RoleStudent), middleware.NoStore())
	{
		studentAPI.GET("/exams", handlers.StudentPortal.ListExams)
		studentAPI.GET("/results", handlers.StudentPortal.Results)
		studentAPI.POST("/exams/:id/start", handlers.StudentPortal.StartExam)
		studentAPI.GET("/exams/:id/violations", handlers.StudentPortal.MyViolations)

		studentAPI.GET("/sessions/:id", handlers.StudentPortal.GetSession)
		studentAPI.PUT("/sessions/:id/answers", handlers.StudentPortal.SaveAnswers)
		studentAPI.POST("/sessions/:id/submit", handlers.StudentPortal.SubmitExam)
		studentAPI.POST("/sessions/:id/violations", violationLimiter.Middleware(), handlers.StudentPortal.LogViolation)
	}

	// ─── 4. WebSocket Group (token in query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(requireJWT)
	{
		ws.GET("/rooms", handlers.WS.Rooms)
	}

	return router
}
