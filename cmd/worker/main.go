package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"jobportal/internal/config"
	"jobportal/internal/database"
	"jobportal/internal/metrics"
	"jobportal/internal/storage"
	"jobportal/internal/tasks"
	"jobportal/internal/users"
	"jobportal/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.MustLoad()
	redisAddr := cfg.Redis.Addr()
	if redisAddr == "" {
		logger.Error("worker requires REDIS_HOST")
		os.Exit(1)
	}

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		logger.Error("init database failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database connection ready for worker")

	var backend storage.Backend
	switch cfg.Storage.Driver {
	case config.StorageDriverMinIO:
		backend, err = storage.NewMinIO(context.Background(), cfg.MinIO)
	default:
		backend, err = storage.NewDisk(afero.NewOsFs(), cfg.Storage.ImagesDir)
	}
	if err != nil {
		logger.Error("init image storage failed", slog.Any("error", err))
		os.Exit(1)
	}

	concurrency := cfg.Queue.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"default": 1},
	})

	purgeHandler := worker.NewPurgeTaskHandler(backend, users.NewStore(db), logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeImagePurge, purgeHandler)

	if cfg.Metrics.WorkerPort > 0 {
		go serveMetrics(logger, cfg.Metrics.WorkerPort)
	}

	logger.Info("worker service started",
		slog.String("redis_addr", redisAddr),
		slog.Int("concurrency", concurrency),
	)
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func serveMetrics(logger *slog.Logger, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info("worker metrics listening", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("worker metrics server stopped", slog.Any("error", err))
	}
}
