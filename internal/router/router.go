package router

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/config"
	"github.com/stemsi/exstem-assess/internal/handler"
	"github.com/stemsi/exstem-assess/internal/middleware"
	"github.com/stemsi/exstem-assess/internal/model"
	"github.com/stemsi/exstem-assess/internal/response"
	"github.com/stemsi/exstem-assess/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth     *handler.AuthHandler
	Exam     *handler.ExamHandler
	Question *handler.QuestionHandler
	Attempt  *handler.AttemptHandler
	Grading  *handler.GradingHandler
	Proctor  *handler.ProctorHandler
	Media    *handler.MediaHandler
	WS       *handler.WSHandler
	Monitor  *handler.MonitorHandler
	System   *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

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
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware(), middleware.RequestLogger(log))

	// Images are already compressed.
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:   middleware.DefaultBrotliConfig.Quality,
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		Skipper: func(c *gin.Context) bool {
			return strings.HasPrefix(c.Request.URL.Path, service.MediaURLPrefix)
		},
	}))

	// Uploaded files carry UUID names and never change, so cache for a year.
	uploadsGroup := router.Group(strings.TrimSuffix(service.MediaURLPrefix, "/"))
	uploadsGroup.Use(middleware.CacheControl(365*24*time.Hour, true))
	{
		uploadsGroup.Static("/", cfg.UploadDir)
	}

	router.GET("/health", handlers.System.Health)

	authed := []gin.HandlerFunc{
		middleware.RequireAuth(authService),
		middleware.RejectRevokedTokens(authService, log),
		limiter.Middleware(),
	}

	// ─── 1. Auth Group ─────────────────────────────────────────────────
	auth := router.Group("/api/v1/auth", authed...)
	auth.Use(middleware.NoStore())
	{
		auth.GET("/me", handlers.Auth.Me)
		auth.GET("/me/notifications", handlers.Auth.Notifications)
		auth.POST("/logout", handlers.Auth.Logout)
	}

	// ─── 2. Shared Group (any role) ────────────────────────────────────
	api := router.Group("/api/v1", authed...)
	{
		api.GET("/exams/available", handlers.Exam.ListAvailable)
		api.GET("/exams/:exam_id", handlers.Exam.GetExam)
		api.GET("/attempts/:attempt_id/result", handlers.Attempt.GetResult)
	}

	// ─── 3. Student Group ──────────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student", authed...)
	studentAPI.Use(middleware.RequireRole(model.RoleStudent))
	{
		studentAPI.POST("/exams/:exam_id/attempts", handlers.Attempt.StartAttempt)
		studentAPI.GET("/exams/:exam_id/attempts", handlers.Attempt.ListMyAttempts)
		studentAPI.GET("/attempts/:attempt_id", handlers.Attempt.GetPaper)
		studentAPI.PUT("/attempts/:attempt_id/answers", handlers.Attempt.SaveAnswer)
		studentAPI.PUT("/attempts/:attempt_id/review", handlers.Attempt.MarkForReview)
		studentAPI.POST("/attempts/:attempt_id/flags", handlers.Proctor.RecordFlag)
		studentAPI.POST("/attempts/:attempt_id/submit", handlers.Attempt.SubmitAttempt)
	}

	// ─── 4. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireWSAuth(authService),
		middleware.RejectRevokedTokens(authService, log),
		middleware.RequireRole(model.RoleStudent),
	)
	{
		ws.GET("/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 5. Instructor Group (instructors and admins) ──────────────────
	staffAPI := router.Group("/api/v1/instructor", authed...)
	staffAPI.Use(middleware.RequireStaff())
	{
		staffAPI.GET("/exams", handlers.Exam.ListMine)
		staffAPI.POST("/exams", handlers.Exam.CreateExam)
		staffAPI.PATCH("/exams/:exam_id", handlers.Exam.UpdateExam)
		staffAPI.DELETE("/exams/:exam_id", handlers.Exam.DeleteExam)
		staffAPI.PATCH("/exams/:exam_id/visibility", handlers.Exam.UpdateVisibility)
		staffAPI.POST("/exams/:exam_id/questions", handlers.Exam.AddQuestions)
		staffAPI.DELETE("/exams/:exam_id/questions/:question_id", handlers.Exam.RemoveQuestion)
		staffAPI.POST("/exams/:exam_id/publish", handlers.Exam.PublishExam)
		staffAPI.POST("/exams/:exam_id/release", handlers.Exam.ReleaseResults)
		staffAPI.POST("/exams/:exam_id/archive", handlers.Exam.ArchiveExam)
		staffAPI.GET("/exams/:exam_id/statistics", handlers.Exam.GetStatistics)
		staffAPI.GET("/exams/:exam_id/attempts", handlers.Grading.ListAttempts)
		staffAPI.GET("/exams/:exam_id/gradings", handlers.Grading.ListPending)
		staffAPI.GET("/exams/:exam_id/monitor", handlers.Monitor.MonitorExam)

		staffAPI.PUT("/attempts/:attempt_id/grades", handlers.Grading.RecordGrade)
		staffAPI.POST("/attempts/:attempt_id/finalize", handlers.Grading.FinalizeGrading)
		staffAPI.GET("/attempts/:attempt_id/flags", handlers.Proctor.GetSummary)
		staffAPI.POST("/attempts/:attempt_id/abandon", handlers.Attempt.AbandonAttempt)

		staffAPI.GET("/courses/:course_id/exams", handlers.Exam.ListByCourse)
		staffAPI.GET("/courses/:course_id/questions", handlers.Question.ListByCourse)
		staffAPI.GET("/courses/:course_id/questions/bank", handlers.Question.GetBank)
		staffAPI.GET("/courses/:course_id/questions/topics", handlers.Question.ListTopics)
		staffAPI.POST("/questions", handlers.Question.CreateQuestion)
		staffAPI.GET("/questions/:question_id", handlers.Question.GetQuestion)
		staffAPI.PATCH("/questions/:question_id", handlers.Question.UpdateQuestion)
		staffAPI.DELETE("/questions/:question_id", handlers.Question.DeleteQuestion)

		staffAPI.POST("/media", handlers.Media.UploadMedia)
		staffAPI.DELETE("/media", handlers.Media.DeleteMedia)
	}

	// ─── 6. Admin Group ────────────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin", authed...)
	adminAPI.Use(middleware.RequireRole(model.RoleAdmin))
	{
		adminAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	return router
}
