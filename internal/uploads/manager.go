package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"slices"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/spf13/afero"

	"jobportal/internal/database"
	"jobportal/internal/errcode"
	"jobportal/internal/metrics"
	"jobportal/internal/storage"
	"jobportal/internal/tasks"
	"jobportal/internal/users"
)

var (
	ErrUnsupportedType    = errcode.Invalid("Invalid file format. Only JPEG, PNG, and GIF are allowed.")
	ErrEmailRequired      = errcode.Invalid("Email is required.")
	ErrNameRequired       = errcode.Invalid("Image name is required.")
	ErrFileRequired       = errcode.Invalid("Image file is required.")
	ErrTooLarge           = errcode.Invalid("Image exceeds the maximum upload size.")
	ErrContentMismatch    = errcode.Invalid("File content does not match its declared type.")
	ErrMalicious          = errcode.Invalid("Malicious file detected.")
	ErrRemoveFieldsNeeded = errcode.Invalid("Email and imagePath are required.")
	ErrInvalidPath        = errcode.Invalid("Invalid image path.")
)

// allowedTypes maps the accepted MIME types to the extension of the stored file.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

const DefaultMaxBytes int64 = 5 << 20

// ImageStore is the part of the account store the manager needs.
type ImageStore interface {
	FindByEmail(ctx context.Context, email string) (database.User, error)
	AppendImage(ctx context.Context, email string, img database.Image) (int, error)
	RemoveImage(ctx context.Context, email, storedPath string) (int, error)
}

// Enqueuer hands failed deletions to the background worker. *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Options 配置上传管理器。零值字段使用默认值。
type Options struct {
	// StagingFs holds partially received uploads. Defaults to an in-memory fs.
	StagingFs  afero.Fs
	StagingDir string
	MaxBytes   int64
	Scanner    Scanner
	Queue      Enqueuer
	MaxRetry   int
	Logger     *slog.Logger
}

// Upload is one received image.
type Upload struct {
	OwnerEmail  string
	DisplayName string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Result describes a stored upload.
type Result struct {
	Image       database.Image
	TotalImages int
}

// Manager 负责图片的接收、校验、保存与删除，并维护账号上的图片列表。
type Manager struct {
	backend    storage.Backend
	users      ImageStore
	staging    afero.Fs
	stagingDir string
	maxBytes   int64
	scanner    Scanner
	queue      Enqueuer
	maxRetry   int
	logger     *slog.Logger

	now   func() time.Time
	newID func() string
}

// New returns a Manager storing files in backend and records in store.
func New(backend storage.Backend, store ImageStore, opts Options) (*Manager, error) {
	m := &Manager{
		backend:    backend,
		users:      store,
		staging:    opts.StagingFs,
		stagingDir: opts.StagingDir,
		maxBytes:   opts.MaxBytes,
		scanner:    opts.Scanner,
		queue:      opts.Queue,
		maxRetry:   opts.MaxRetry,
		logger:     opts.Logger,
		now:        time.Now,
		newID:      shortID,
	}
	if m.staging == nil {
		m.staging = afero.NewMemMapFs()
	}
	if m.stagingDir == "" {
		m.stagingDir = "/staging"
	}
	if m.maxBytes <= 0 {
		m.maxBytes = DefaultMaxBytes
	}
	if m.maxRetry <= 0 {
		m.maxRetry = 5
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if err := m.staging.MkdirAll(m.stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir %q: %w", m.stagingDir, err)
	}
	return m, nil
}

// shortID returns the last 12 hex digits of a random UUID.
func shortID() string {
	id := uuid.NewString()
	return id[len(id)-12:]
}

// MaxBytes returns the upload size limit.
func (m *Manager) MaxBytes() int64 { return m.maxBytes }

// normalizeType strips parameters and lower-cases a declared content type.
func normalizeType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

// Accept validates, stages and stores an upload, then records it on the owner.
// Nothing is left behind on any failure path.
func (m *Manager) Accept(ctx context.Context, up Upload) (Result, error) {
	res, err := m.accept(ctx, up)
	switch {
	case err == nil:
		metrics.ObserveUpload(metrics.OutcomeOK, up.Size)
	case errcode.KindOf(err) == errcode.Internal:
		metrics.ObserveUpload(metrics.OutcomeError, 0)
	default:
		metrics.ObserveUpload(metrics.OutcomeRejected, 0)
	}
	return res, err
}

func (m *Manager) accept(ctx context.Context, up Upload) (Result, error) {
	declared := normalizeType(up.ContentType)
	ext, ok := allowedTypes[declared]
	if !ok {
		return Result{}, ErrUnsupportedType
	}
	owner := strings.TrimSpace(up.OwnerEmail)
	name := strings.TrimSpace(up.DisplayName)
	switch {
	case owner == "":
		return Result{}, ErrEmailRequired
	case name == "":
		return Result{}, ErrNameRequired
	case up.Body == nil:
		return Result{}, ErrFileRequired
	}
	if up.Size > m.maxBytes {
		return Result{}, ErrTooLarge
	}

	staged, err := afero.TempFile(m.staging, m.stagingDir, "upload-*")
	if err != nil {
		return Result{}, fmt.Errorf("create staging file: %w", err)
	}
	defer func() {
		_ = staged.Close()
		if err := m.staging.Remove(staged.Name()); err != nil {
			m.logger.Warn("remove staging file failed", slog.String("file", staged.Name()), slog.Any("error", err))
		}
	}()

	written, err := io.Copy(staged, io.LimitReader(up.Body, m.maxBytes+1))
	if err != nil {
		return Result{}, fmt.Errorf("stage upload: %w", err)
	}
	if written > m.maxBytes {
		return Result{}, ErrTooLarge
	}
	if written == 0 {
		return Result{}, ErrFileRequired
	}

	if err := rewind(staged); err != nil {
		return Result{}, err
	}
	detected, err := mimetype.DetectReader(staged)
	if err != nil {
		return Result{}, fmt.Errorf("detect content type: %w", err)
	}
	if !detected.Is(declared) {
		m.logger.Info("upload content mismatch",
			slog.String("declared", declared),
			slog.String("detected", detected.String()),
		)
		return Result{}, ErrContentMismatch
	}

	if m.scanner != nil {
		if err := rewind(staged); err != nil {
			return Result{}, err
		}
		if err := m.scanner.Scan(staged); err != nil {
			return Result{}, err
		}
	}

	if _, err := m.users.FindByEmail(ctx, owner); err != nil {
		return Result{}, err
	}

	if err := rewind(staged); err != nil {
		return Result{}, err
	}
	img := database.Image{
		Name: name,
		Path: fmt.Sprintf("%d-%s%s", m.now().UnixMilli(), m.newID(), ext),
	}
	if err := m.backend.Put(ctx, img.Path, staged, written, declared); err != nil {
		return Result{}, fmt.Errorf("store image: %w", err)
	}

	total, err := m.users.AppendImage(ctx, owner, img)
	if err != nil {
		if delErr := m.backend.Delete(context.WithoutCancel(ctx), img.Path); delErr != nil {
			m.logger.Error("remove orphaned image failed",
				slog.String("path", img.Path),
				slog.Any("error", delErr),
			)
		}
		return Result{}, err
	}
	return Result{Image: img, TotalImages: total}, nil
}

func rewind(f afero.File) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind staging file: %w", err)
	}
	return nil
}

// Remove deletes one of the owner's images. A file that is already gone is fine.
func (m *Manager) Remove(ctx context.Context, ownerEmail, storedPath string) (int, error) {
	ownerEmail = strings.TrimSpace(ownerEmail)
	storedPath = strings.TrimSpace(storedPath)
	if ownerEmail == "" || storedPath == "" {
		return 0, ErrRemoveFieldsNeeded
	}

	user, err := m.users.FindByEmail(ctx, ownerEmail)
	if err != nil {
		return 0, err
	}
	if !slices.ContainsFunc(user.Images, func(img database.Image) bool { return img.Path == storedPath }) {
		return 0, users.ErrImageNotFound
	}
	if _, err := storage.CleanName(storedPath); err != nil {
		return 0, ErrInvalidPath
	}

	if err := m.backend.Delete(ctx, storedPath); err != nil {
		return 0, fmt.Errorf("delete image file: %w", err)
	}
	return m.users.RemoveImage(ctx, ownerEmail, storedPath)
}

// Images returns the owner record with its image list.
func (m *Manager) Images(ctx context.Context, email string) (database.User, error) {
	if strings.TrimSpace(email) == "" {
		return database.User{}, ErrEmailRequired
	}
	return m.users.FindByEmail(ctx, email)
}

// Purge deletes the files of a removed account. Deletions that fail are
// queued for the worker when a queue is configured; the rest are reported.
// The account row is already gone, so cancellation of ctx is ignored.
func (m *Manager) Purge(ctx context.Context, paths []string, correlationID string) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, p := range paths {
		err := m.backend.Delete(ctx, p)
		if err == nil {
			metrics.ObservePurge(metrics.OutcomeOK)
			continue
		}
		if errors.Is(err, storage.ErrInvalidName) {
			m.logger.Warn("skip purge of invalid image path", slog.String("path", p))
			continue
		}

		if m.queue != nil {
			qErr := m.enqueuePurge(ctx, p, correlationID)
			if qErr == nil {
				metrics.ObservePurge(metrics.OutcomeDeferred)
				m.logger.Info("image purge deferred", slog.String("path", p), slog.Any("error", err))
				continue
			}
			err = errors.Join(err, qErr)
		}
		metrics.ObservePurge(metrics.OutcomeError)
		m.logger.Error("image purge failed", slog.String("path", p), slog.Any("error", err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (m *Manager) enqueuePurge(ctx context.Context, path, correlationID string) error {
	task, err := tasks.NewImagePurgeTask(path, correlationID)
	if err != nil {
		return fmt.Errorf("build purge task: %w", err)
	}
	if _, err := m.queue.EnqueueContext(ctx, task, asynq.MaxRetry(m.maxRetry)); err != nil {
		return fmt.Errorf("enqueue purge task: %w", err)
	}
	return nil
}
