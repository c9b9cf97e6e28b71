package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"jobportal/internal/storage"
	"jobportal/internal/tasks"
)

// ReferenceChecker reports whether a stored image is still listed on some account.
type ReferenceChecker interface {
	ImageInUse(ctx context.Context, storedPath string) (bool, error)
}

// PurgeTaskHandler 负责消费 image:purge 任务，删除已不属于任何账号的图片文件。
type PurgeTaskHandler struct {
	backend storage.Backend
	refs    ReferenceChecker
	logger  *slog.Logger
}

// NewPurgeTaskHandler 创建任务处理器。refs 可以为 nil。
func NewPurgeTaskHandler(backend storage.Backend, refs ReferenceChecker, logger *slog.Logger) *PurgeTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeTaskHandler{backend: backend, refs: refs, logger: logger}
}

// ProcessTask 实现 asynq.Handler。重复执行是安全的：文件已不存在视为成功。
func (h *PurgeTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := tasks.ParseImagePurge(t)
	if err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("path", payload.Path),
	)

	if h.refs != nil {
		inUse, err := h.refs.ImageInUse(ctx, payload.Path)
		if err != nil {
			log.Error("check image references failed", slog.Any("error", err))
			return err
		}
		if inUse {
			log.Warn("image is referenced again, skipping purge")
			return nil
		}
	}

	if err := h.backend.Delete(ctx, payload.Path); err != nil {
		if errors.Is(err, storage.ErrInvalidName) {
			log.Warn("invalid image path, dropping task")
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		if isFinalAsynqAttempt(ctx) {
			log.Error("image purge failed on final attempt, file is orphaned", slog.Any("error", err))
		} else {
			log.Warn("image purge failed, will retry", slog.Any("error", err))
		}
		return err
	}

	log.Info("image purged")
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
