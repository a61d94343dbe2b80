package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/logistics/internal/app"
	jobmetrics "github.com/odyssey-erp/logistics/internal/jobs"
	"github.com/odyssey-erp/logistics/internal/parcel"
	"github.com/odyssey-erp/logistics/internal/platform/cache"
	"github.com/odyssey-erp/logistics/internal/platform/db"
	"github.com/odyssey-erp/logistics/internal/shared"
	"github.com/odyssey-erp/logistics/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
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

	// Without a publisher the service renumbers inline, which is what the
	// worker wants when it consumes the deletion events.
	parcelService := parcel.NewService(
		parcel.NewRepository(pool),
		nil,
		cache.NewJSON(redisClient, cfg.ParcelCacheTTL),
		shared.NewAuditLogger(pool),
		logger,
		parcel.ServiceConfig{PublicBaseURL: cfg.PublicBaseURL},
	)
	parcelJob := jobs.NewParcelJob(parcelService, logger, metrics)
	cleanupJob := &jobs.CleanupJob{Store: shared.NewIdempotencyStore(pool), Logger: logger, Metrics: metrics}

	sweepTask, err := jobs.NewSequenceSweepTask(time.Now().UTC())
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.JobsConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskParcelDeleted, Handler: parcelJob.HandleDeleted},
			{Type: jobs.TaskSequenceSweep, Handler: parcelJob.HandleSweep},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SequenceSweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "45 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
