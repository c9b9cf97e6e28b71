package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"jobportal/internal/api"
	"jobportal/internal/auth"
	"jobportal/internal/config"
	"jobportal/internal/database"
	"jobportal/internal/events"
	"jobportal/internal/jobs"
	"jobportal/internal/storage"
	"jobportal/internal/uploads"
	"jobportal/internal/users"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("api exited", slog.Any("error", err))
		os.Exit(1)
	}
}

// run 组装依赖并阻塞在 HTTP 服务上；返回前执行所有 defer 关闭外部连接。
func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("api bootstrapped",
		slog.String("db_host", cfg.Database.Host),
		slog.Int("db_port", cfg.Database.Port),
		slog.String("db_name", cfg.Database.Name),
		slog.String("storage_driver", cfg.Storage.Driver),
	)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database ready")

	tokens, err := newTokenService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("init token service: %w", err)
	}

	ctx := context.Background()
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init image storage: %w", err)
	}

	var rdb *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("close redis client failed", slog.Any("error", err))
			}
		}()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("redis ready", slog.String("redis_addr", addr))
	} else {
		logger.Warn("redis not configured; login throttling disabled and job feed is process-local")
	}

	userStore := users.NewStore(db)

	uploadOpts := uploads.Options{
		StagingFs:  afero.NewOsFs(),
		StagingDir: cfg.Storage.StagingDir,
		MaxBytes:   cfg.Storage.MaxUploadBytes,
		MaxRetry:   cfg.Queue.MaxRetry,
		Logger:     logger,
	}
	if cfg.Storage.ClamdAddr != "" {
		uploadOpts.Scanner = uploads.NewClamdScanner(cfg.Storage.ClamdAddr)
	}
	if cfg.Queue.Enabled {
		queue := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
		defer func() {
			if err := queue.Close(); err != nil {
				logger.Error("close asynq client failed", slog.Any("error", err))
			}
		}()
		uploadOpts.Queue = queue
	}
	manager, err := uploads.New(backend, userStore, uploadOpts)
	if err != nil {
		return fmt.Errorf("init upload manager: %w", err)
	}

	feed := events.NewFeed(rdb, logger)
	jobStore := jobs.NewStore(db, jobs.WithPublisher(feed), jobs.WithLogger(logger))

	router := api.NewRouter(cfg, logger)
	api.RegisterRoutes(router, api.Deps{
		Users:   userStore,
		Jobs:    jobStore,
		Uploads: manager,
		Images:  backend,
		Tokens:  tokens,
		Hasher:  auth.NewHasher(cfg.Auth.BcryptCost),
		Feed:    feed,
		Redis:   rdb,
		Logger:  logger,
		API:     cfg.API,
		Auth:    cfg.Auth,
	})

	address := fmt.Sprintf(":%d", cfg.API.Port)
	logger.Info("api listening", slog.String("addr", address))
	if err := router.Run(address); err != nil {
		return fmt.Errorf("api server stopped: %w", err)
	}
	return nil
}

// newTokenService prefers an RSA key pair and falls back to the shared secret.
func newTokenService(cfg config.AuthConfig) (*auth.TokenService, error) {
	if cfg.PrivateKeyPath != "" && cfg.PublicKeyPath != "" {
		privatePEM, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		publicPEM, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		return auth.NewRSATokenService(privatePEM, publicPEM, cfg.TokenTTL)
	}
	return auth.NewHMACTokenService([]byte(cfg.JWTSecret), cfg.TokenTTL)
}

func newBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMinIO:
		return storage.NewMinIO(ctx, cfg.MinIO)
	default:
		return storage.NewDisk(afero.NewOsFs(), cfg.Storage.ImagesDir)
	}
}
