package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/bandexam-backend/internal/config"
	"github.com/stemsi/bandexam-backend/internal/database"
	"github.com/stemsi/bandexam-backend/internal/handler"
	"github.com/stemsi/bandexam-backend/internal/logger"
	"github.com/stemsi/bandexam-backend/internal/repository"
	"github.com/stemsi/bandexam-backend/internal/router"
	"github.com/stemsi/bandexam-backend/internal/scoring"
	"github.com/stemsi/bandexam-backend/internal/service"
	"github.com/stemsi/bandexam-backend/internal/validator"
	"github.com/stemsi/bandexam-backend/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup("bandexam", cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting BandExam Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	// ─── Scoring ───────────────────────────────────────────────────────
	bands, err := loadBandTable(cfg.BandTablePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.BandTablePath).Msg("Failed to load band table")
	}
	aggregator := scoring.NewAggregator(scoring.NewEvaluator(log), bands)

	// ─── Initialize Repositories ───────────────────────────────────────
	testRepo := repository.NewTestRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	catalog := service.NewTestCatalog(testRepo, rdb, cfg.ContentCacheTTL, log)
	submissionService := service.NewSubmissionService(
		submissionRepo,
		catalog,
		service.NewQueueNotifier(rdb),
		service.NewRedisReviewQueue(rdb),
		aggregator,
		service.SystemClock{},
		log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(authService, log),
		Submission: handler.NewSubmissionHandler(submissionService, log),
		Review:     handler.NewReviewHandler(submissionService, log),
		WS:         handler.NewWSHandler(submissionService, log, cfg.AllowedOrigins),
		System:     handler.NewSystemHandler(pool, rdb, log),
	}

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load active tests into Redis before accepting traffic.
	if ids, err := testRepo.ListActiveIDs(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	} else {
		catalog.Prewarm(ctx, ids)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, log)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Run Server and Background Workers ────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	expiryWorker := worker.NewExpiryWorker(submissionService, cfg.ExpirySweepInterval, cfg.ExpirySweepBatch, log)
	statsWorker := worker.NewStatsWorker(testRepo, rdb, log)

	g.Go(func() error { return expiryWorker.Start(gctx) })
	g.Go(func() error { return statsWorker.Start(gctx) })

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Shutdown complete")
}

func loadBandTable(path string) (*scoring.BandTable, error) {
	if path == "" {
		return scoring.DefaultBandTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return scoring.ParseBandTable(data)
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
