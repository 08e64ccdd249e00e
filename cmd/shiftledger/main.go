package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/shiftledger/cmd/shiftledger/cli"
	"github.com/odyssey-erp/shiftledger/internal/analytics"
	"github.com/odyssey-erp/shiftledger/internal/app"
	"github.com/odyssey-erp/shiftledger/internal/comparison"
	comparisonhttp "github.com/odyssey-erp/shiftledger/internal/comparison/http"
	"github.com/odyssey-erp/shiftledger/internal/ledger"
	ledgerhttp "github.com/odyssey-erp/shiftledger/internal/ledger/http"
	"github.com/odyssey-erp/shiftledger/internal/observability"
	"github.com/odyssey-erp/shiftledger/internal/platform/cache"
	"github.com/odyssey-erp/shiftledger/internal/platform/db"
	"github.com/odyssey-erp/shiftledger/internal/platform/lock"
	"github.com/odyssey-erp/shiftledger/internal/pos"
	"github.com/odyssey-erp/shiftledger/internal/shared"
	"github.com/odyssey-erp/shiftledger/internal/shiftform"
	"github.com/odyssey-erp/shiftledger/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		jobsCLI := cli.NewJobsCLI(cfg.AsynqRedis())
		defer jobsCLI.Close()
		if err := jobsCLI.Run(ctx, os.Args[2:], os.Stdout); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

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

	metrics := observability.NewMetrics()
	locker := lock.NewRedisLocker(redisClient, cfg.LedgerLockTTL)

	redisOpts := cfg.AsynqRedis()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer jobClient.Close()
	inspector := asynq.NewInspector(redisOpts)
	defer inspector.Close()

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
		Metrics:     metrics.Jobs(),
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
		Metrics:     metrics.Jobs(),
		Calendar:    calendar,
		SyncTimeout: cfg.SyncTimeout,
		Logger:      logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		LedgerHandler:     ledgerhttp.NewHandler(logger, ledgerService),
		ComparisonHandler: comparisonhttp.NewHandler(logger, comparisonService),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
		Ready: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return err
			}
			return redisClient.Ping(ctx).Err()
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("shift_tz", cfg.ShiftTimezone))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
