package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/wrightcommerce/shopadmin/internal/app"
	jobmetrics "github.com/wrightcommerce/shopadmin/internal/jobs"
	"github.com/wrightcommerce/shopadmin/internal/observability"
	"github.com/wrightcommerce/shopadmin/internal/platform/cache"
	"github.com/wrightcommerce/shopadmin/jobs"
)

// metricsAddr serves the worker's Prometheus metrics.
const metricsAddr = ":9091"

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

	logger := app.NewLogger(cfg).With(slog.String("component", "worker"))

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

	metrics := observability.NewMetrics()
	api, err := app.NewBackend(cfg, logger, metrics, nil)
	if err != nil {
		logger.Error("init backend client", slog.Any("error", err))
		os.Exit(1)
	}

	store := jobs.NewExportStore(redisClient, cfg.ExportTTL)
	exportJob := jobs.NewOrderExportJob(api, store, logger, jobmetrics.NewMetrics(metrics.Registerer()))

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskOrderExport, Handler: exportJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: metricsAddr, Handler: metrics.Handler(), ReadTimeout: cfg.AppReadTimeout}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	defer func() { _ = metricsServer.Close() }()

	logger.Info("worker started", slog.String("queue", jobs.QueueDefault))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
