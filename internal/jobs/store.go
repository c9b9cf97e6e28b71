package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"jobportal/internal/database"
	"jobportal/internal/errcode"
)

var (
	ErrMissingFields = errcode.Invalid("All fields (companyName, jobTitle, description, salary, createdBy) are required.")
	ErrInvalidSalary = errcode.Invalid("Salary must be a positive number.")
	ErrJobNotFound   = errcode.Missing("Job not found.")
)

// NewJob is the input for a posting. Salary is a pointer so that a missing
// value can be told apart from zero.
type NewJob struct {
	CompanyName string
	Title       string
	Description string
	Salary      *float64
	CreatedBy   string
}

// Publisher is notified after a job has been stored.
type Publisher interface {
	PublishJobCreated(ctx context.Context, job database.Job) error
}

// Store 负责招聘信息的创建与查询；没有修改或删除接口。
type Store struct {
	db        *gorm.DB
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithPublisher announces created jobs through p.
func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for publish failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore returns a Store backed by db.
func NewStore(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates in and stores it.
func (s *Store) Create(ctx context.Context, in NewJob) (database.Job, error) {
	job := database.Job{
		CompanyName: strings.TrimSpace(in.CompanyName),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   strings.TrimSpace(in.CreatedBy),
	}
	if job.CompanyName == "" || job.Title == "" || job.Description == "" || job.CreatedBy == "" || in.Salary == nil {
		return database.Job{}, ErrMissingFields
	}
	if *in.Salary < 0 {
		return database.Job{}, ErrInvalidSalary
	}
	job.Salary = *in.Salary
	job.CreatedAt = s.now().UTC()

	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return database.Job{}, fmt.Errorf("create job: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishJobCreated(ctx, job); err != nil {
			s.logger.Warn("publish job created failed",
				slog.Uint64("job_id", uint64(job.ID)),
				slog.Any("error", err),
			)
		}
	}
	return job, nil
}

// List returns every job, newest first.
func (s *Store) List(ctx context.Context) ([]database.Job, error) {
	var jobs []database.Job
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Get returns the job with id or ErrJobNotFound.
func (s *Store) Get(ctx context.Context, id uint) (database.Job, error) {
	var job database.Job
	if err := s.db.WithContext(ctx).First(&job, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Job{}, ErrJobNotFound
		}
		return database.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}
