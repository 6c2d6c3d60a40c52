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

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assess/internal/config"
	"github.com/stemsi/exstem-assess/internal/database"
	"github.com/stemsi/exstem-assess/internal/handler"
	"github.com/stemsi/exstem-assess/internal/logger"
	"github.com/stemsi/exstem-assess/internal/middleware"
	"github.com/stemsi/exstem-assess/internal/notify"
	"github.com/stemsi/exstem-assess/internal/repository"
	"github.com/stemsi/exstem-assess/internal/router"
	"github.com/stemsi/exstem-assess/internal/service"
	"github.com/stemsi/exstem-assess/internal/validator"
	"github.com/stemsi/exstem-assess/internal/worker"
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
		Msg("Starting ExStem Assess")

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

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionCache(repository.NewQuestionRepository(pool), rdb, cfg.QuestionCacheTTL, log)
	attemptRepo := repository.NewAttemptRepository(pool)
	flagRepo := repository.NewFlagRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	flagQueue := repository.NewFlagQueue(rdb)
	denylist := repository.NewTokenDenylist(rdb)

	// ─── Notifications ────────────────────────────────────────────────
	notifier := notify.NewAsync(notify.NewRedisSink(rdb), cfg.NotifyBuffer, log)
	go notifier.Start()

	// ─── Initialize Services ──────────────────────────────────────────
	clock := service.SystemClock{}
	authService := service.NewAuthService(cfg.JWTSecret, cfg.JWTExpiry, denylist)
	examService := service.NewExamService(examRepo, questionRepo, attemptRepo, notifier, log)
	questionService := service.NewQuestionService(questionRepo, examRepo, log)
	attemptService := service.NewAttemptService(examRepo, questionRepo, attemptRepo, nil, notifier, log)
	proctorService := service.NewProctorService(examRepo, attemptRepo, flagQueue, flagRepo, notifier, log)
	mediaService := service.NewMediaService(cfg.UploadDir, cfg.MaxUploadBytes)
	notificationService := service.NewNotificationService(notificationRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:     handler.NewAuthHandler(authService, notificationService, clock, log),
		Exam:     handler.NewExamHandler(examService, clock, log),
		Question: handler.NewQuestionHandler(questionService, log),
		Attempt:  handler.NewAttemptHandler(attemptService, clock, log),
		Grading:  handler.NewGradingHandler(attemptService, clock, log),
		Proctor:  handler.NewProctorHandler(proctorService, clock, log),
		Media:    handler.NewMediaHandler(mediaService, log),
		WS:       handler.NewWSHandler(attemptService, proctorService, clock, log, cfg.AllowedOrigins),
		Monitor:  handler.NewMonitorHandler(rdb, examService, attemptService, clock, log),
		System:   handler.NewSystemHandler(pool, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	proctorWorker := worker.NewProctorWorker(
		worker.NewRedisQueue(rdb, config.WorkerKey.PersistFlagsQueue), flagRepo, cfg.WorkerBatchSize, log)
	notificationWorker := worker.NewNotificationWorker(
		worker.NewRedisQueue(rdb, config.WorkerKey.NotificationsQueue), notificationRepo, cfg.WorkerBatchSize, log)
	expiryWorker := worker.NewExpiryWorker(
		attemptService, worker.NewRedisLock(rdb), clock, cfg.ExpirySweepInterval, cfg.WorkerBatchSize, log)

	workers.Go(func() { proctorWorker.Start(workerCtx) })
	workers.Go(func() { notificationWorker.Start(workerCtx) })
	workers.Go(func() { expiryWorker.Start(workerCtx) })

	// ─── Setup Router ──────────────────────────────────────────────────
	limiter := middleware.NewRateLimiter(cfg.RequestsPerMinute, time.Minute)
	defer limiter.Stop()
	r := router.SetupRouter(authService, handlers, limiter, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Deliver pending notifications while Redis is still up.
	if err := notifier.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Pending notifications not delivered")
	}

	// 3. Stop background workers and wait for their buffers to drain.
	workerCancel()
	drained := make(chan struct{})
	go func() {
		workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Workers did not drain before the deadline")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
