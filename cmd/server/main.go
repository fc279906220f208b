package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/testschool/assessment-backend/internal/config"
	"github.com/testschool/assessment-backend/internal/database"
	"github.com/testschool/assessment-backend/internal/handler"
	"github.com/testschool/assessment-backend/internal/logger"
	"github.com/testschool/assessment-backend/internal/repository"
	"github.com/testschool/assessment-backend/internal/router"
	"github.com/testschool/assessment-backend/internal/service"
	"github.com/testschool/assessment-backend/internal/session"
	"github.com/testschool/assessment-backend/internal/validator"
	"github.com/testschool/assessment-backend/internal/worker"
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
		Msg("Starting Assessment Backend")

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
	userRepo := repository.NewUserRepository(pool)
	competencyRepo := repository.NewCompetencyRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	testRepo := repository.NewTestRepository(pool)
	certificateRepo := repository.NewCertificateRepository(pool)
	dashboardRepo := repository.NewDashboardRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool)
	violationRepo := repository.NewViolationRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	userService := service.NewUserService(userRepo)
	assessmentService := service.NewAssessmentService(cfg, testRepo, questionRepo, certificateRepo, rdb, log)
	certificateService := service.NewCertificateService(cfg, certificateRepo, userRepo, log)
	questionService := service.NewQuestionService(questionRepo, competencyRepo)
	dashboardService := service.NewDashboardService(dashboardRepo)
	monitorService := service.NewMonitorService(monitorRepo, violationRepo)
	exportService := service.NewExportService(testRepo, log)

	// ─── Session Manager ──────────────────────────────────────────────
	sessions := session.NewManager(assessmentService, session.Config{
		ViolationGrace: time.Duration(cfg.ViolationGraceSeconds) * time.Second,
	}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:        handler.NewAuthHandler(authService, userService, log),
		Assessment:  handler.NewAssessmentHandler(sessions, assessmentService),
		Certificate: handler.NewCertificateHandler(certificateService),
		Question:    handler.NewQuestionHandler(questionService),
		AdminUser:   handler.NewAdminUserHandler(userService),
		Results:     handler.NewResultsHandler(assessmentService, exportService),
		Dashboard:   handler.NewDashboardHandler(dashboardService),
		Monitor:     handler.NewMonitorHandler(monitorService, log),
		System:      handler.NewSystemHandler(rdb, log),
		WS:          handler.NewWSHandler(sessions, assessmentService, cfg.ViolationGraceSeconds, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	violationWorker := worker.NewViolationWorker(pool, rdb, log)
	resultWorker := worker.NewResultWorker(testRepo, rdb, log)
	deadlineWorker := worker.NewDeadlineWorker(assessmentService, testRepo, rdb, log)

	go violationWorker.Start(workerCtx)
	go resultWorker.Start(workerCtx)
	go deadlineWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, assessmentService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

	// 2. Stop session timers and monitors.
	sessions.Shutdown()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
