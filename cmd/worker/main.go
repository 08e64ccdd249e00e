package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/shiftledger/internal/analytics"
	"github.com/odyssey-erp/shiftledger/internal/app"
	"github.com/odyssey-erp/shiftledger/internal/comparison"
	jobmetrics "github.com/odyssey-erp/shiftledger/internal/jobs"
	"github.com/odyssey-erp/shiftledger/internal/ledger"
	"github.com/odyssey-erp/shiftledger/internal/platform/cache"
	"github.com/odyssey-erp/shiftledger/internal/platform/db"
	"github.com/odyssey-erp/shiftledger/internal/platform/lock"
	"github.com/odyssey-erp/shiftledger/internal/pos"
	"github.com/odyssey-erp/shiftledger/internal/shared"
	"github.com/odyssey-erp/shiftledger/internal/shiftform"
	"github.com/odyssey-erp/shiftledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	calendar, err := cfg.Calendar()
	if err != nil {
		logger.Error("shift timezone", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.DBOptions())
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	locker := lock.NewRedisLocker(redisClient, cfg.LedgerLockTTL)
	redisOpts := cfg.AsynqRedis()

	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer jobClient.Close()

	analyticsService := analytics.NewService(
		analytics.NewRepository(pool),
		analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL),
		calendar,
		logger,
	)
	forms := shiftform.NewRepository(pool)

	ledgerService := ledger.NewService(ledger.Deps{
		Store:       ledger.NewRepository(pool),
		SoldItems:   analyticsService,
		Forms:       forms,
		Locker:      locker,
		Idempotency: shared.NewIdempotencyStore(pool),
		Metrics:     metrics,
		Settings:    cfg.LedgerSettings(),
		Logger:      logger,
	})
	comparisonService := comparison.NewService(comparison.Deps{
		Store:       comparison.NewRepository(pool),
		Forms:       forms,
		Upstream:    pos.NewClient(cfg.POSConfig(), logger),
		Cache:       analyticsService,
		Enqueuer:    jobClient,
		Locker:      locker,
		Metrics:     metrics,
		Calendar:    calendar,
		SyncTimeout: cfg.SyncTimeout,
		Logger:      logger,
	})

	recomputeJob := ledger.NewRecomputeJob(ledgerService, calendar, logger, metrics)
	syncJob := comparison.NewSyncJob(comparisonService, calendar, logger, metrics)

	// A successful sync enqueues its own recompute; the delayed one covers days
	// whose sync failed.
	syncTask, err := jobs.NewPOSSyncTask("")
	if err != nil {
		logger.Error("build pos sync task", slog.Any("error", err))
		os.Exit(1)
	}
	recomputeTask, err := jobs.NewLedgerRecomputeTask("")
	if err != nil {
		logger.Error("build ledger recompute task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Location:    calendar.Location(),
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerRecompute, Handler: recomputeJob.Handle},
			{Type: jobs.TaskPOSSync, Handler: syncJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.DailyJobCron, Task: syncTask},
			{Spec: cfg.DailyJobCron, Task: recomputeTask, Options: []asynq.Option{asynq.ProcessIn(cfg.SyncTimeout)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("cron", cfg.DailyJobCron), slog.String("shift_tz", cfg.ShiftTimezone))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
