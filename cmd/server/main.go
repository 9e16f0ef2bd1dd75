package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog"
	"github.com/stemsi/speaking-test/internal/clock"
	"github.com/stemsi/speaking-test/internal/config"
	"github.com/stemsi/speaking-test/internal/database"
	"github.com/stemsi/speaking-test/internal/handler"
	"github.com/stemsi/speaking-test/internal/logger"
	"github.com/stemsi/speaking-test/internal/middleware"
	"github.com/stemsi/speaking-test/internal/repository"
	"github.com/stemsi/speaking-test/internal/router"
	"github.com/stemsi/speaking-test/internal/service"
	"github.com/stemsi/speaking-test/internal/session"
	"github.com/stemsi/speaking-test/internal/storage"
	"github.com/stemsi/speaking-test/internal/validator"
	"github.com/stemsi/speaking-test/internal/worker"
)

func main() {
	if err := Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

// Run wires the service and blocks until a signal or a fatal component error.
func Run() error {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("truncated_capture", string(cfg.TruncatedCapture)).
		Msg("Starting Speaking Test Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Load Question Bank ────────────────────────────────────────────
	questions, err := service.LoadQuestionBank(cfg.QuestionsFile)
	if err != nil {
		return fmt.Errorf("could not load question bank: %w", err)
	}

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("could not connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("could not connect to Redis: %w", err)
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	submissionRepo := repository.NewSubmissionRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	questionService := service.NewQuestionService(questions)
	queue := service.NewRedisQueue(rdb)
	submissionService := service.NewSubmissionService(cfg, queue, log)
	archiveService := service.NewArchiveService(submissionRepo)
	assessor := service.NewSimulatedAssessor(clock.Real{}, cfg.AssessmentDelay, log)

	// ─── Initialize Session Engines ───────────────────────────────────
	registry, err := session.NewRegistry(session.RegistryConfig{
		KV:            storage.NewRedisKV(rdb),
		Questions:     questions,
		Clock:         clock.Real{},
		Encoder:       session.Base64Encoder{MaxBytes: cfg.MaxRecordingBytes},
		Submitter:     submissionService,
		Assessor:      assessor,
		Policy:        cfg.TruncatedCapture,
		SettleTimeout: cfg.SettleTimeout,
		IdleTimeout:   cfg.EngineIdleTimeout,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("could not create session registry: %w", err)
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Test:   handler.NewTestHandler(registry, questionService, archiveService, log),
		WS:     handler.NewWSHandler(registry, log, cfg.AllowedOrigins),
		System: handler.NewSystemHandler(pool, queue, registry, log),
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit, time.Minute)
		defer limiter.Stop()
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, limiter, handlers, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				log.Info().Msg("Termination signal received, shutting down gracefully...")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// HTTP server.
	{
		g.Add(
			func() error {
				log.Info().Str("addr", srv.Addr).Msg("Server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			},
			func(_ error) {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("HTTP server shutdown error")
				}
				// Engines stop after the last request so no action lands on a closed loop.
				registry.Close()
			},
		)
	}

	// Submission archive worker. Start returns after draining the queue.
	{
		workerCtx, workerCancel := context.WithCancel(context.Background())
		defer workerCancel()
		submissionWorker := worker.NewSubmissionWorker(submissionRepo, rdb, log)

		g.Add(
			func() error {
				submissionWorker.Start(workerCtx)
				return nil
			},
			func(_ error) {
				workerCancel()
			},
		)
	}

	err = g.Run()
	log.Info().Msg("Shutdown complete")
	return err
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
