package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers understood by the upload manager.
const (
	StorageDriverDisk  = "disk"
	StorageDriverMinIO = "minio"
)

// Config aggregates application settings that may be sourced from a .env file or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port int `mapstructure:"port"`
	// JobCreateRequiresAdmin guards POST /job/create behind an admin token.
	JobCreateRequiresAdmin bool     `mapstructure:"job_create_requires_admin"`
	AllowedOrigins         []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	LogSQL   bool   `mapstructure:"log_sql"`
}

// RedisConfig contains connection options for Redis. An empty host disables
// login throttling and the live job feed.
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig contains token, hashing and login throttling settings.
type AuthConfig struct {
	JWTSecret             string        `mapstructure:"jwt_secret"`
	PrivateKeyPath        string        `mapstructure:"private_key_path"`
	PublicKeyPath         string        `mapstructure:"public_key_path"`
	TokenTTL              time.Duration `mapstructure:"token_ttl"`
	BcryptCost            int           `mapstructure:"bcrypt_cost"`
	AllowedEmailDomain    string        `mapstructure:"allowed_email_domain"`
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL          time.Duration `mapstructure:"login_lock_ttl"`
}

// StorageConfig selects where uploaded images live.
type StorageConfig struct {
	Driver         string `mapstructure:"driver"`
	ImagesDir      string `mapstructure:"images_dir"`
	StagingDir     string `mapstructure:"staging_dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
	ClamdAddr      string `mapstructure:"clamd_addr"`
}

// QueueConfig toggles the asynq purge queue (shares the Redis instance).
type QueueConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	Concurrency int  `mapstructure:"concurrency"`
	MaxRetry    int  `mapstructure:"max_retry"`
}

// MetricsConfig protects /metrics with a shared header secret when set.
// WorkerPort exposes the worker's own /metrics; 0 disables it.
type MetricsConfig struct {
	Secret     string `mapstructure:"secret"`
	WorkerPort int    `mapstructure:"worker_port"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if strings.TrimSpace(r.Host) == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load reads an optional .env file and then the environment (with defaults).
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 3000)
	v.SetDefault("api.job_create_requires_admin", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "jobportal")
	v.SetDefault("database.user", "jobportal")
	v.SetDefault("database.password", "jobportal")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "images")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl", 15*time.Minute)
	v.SetDefault("storage.driver", StorageDriverDisk)
	v.SetDefault("storage.images_dir", "./images")
	v.SetDefault("storage.staging_dir", "./staging")
	v.SetDefault("storage.max_upload_bytes", 5*1024*1024)
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.concurrency", 5)
	v.SetDefault("queue.max_retry", 5)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "PORT",
		"api.job_create_requires_admin":  "JOB_CREATE_REQUIRES_ADMIN",
		"api.allowed_origins":            "API_ALLOWED_ORIGINS",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"database.log_sql":               "DATABASE_LOG_SQL",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.public_endpoint":          "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.bucket":                   "MINIO_BUCKET",
		"minio.region":                   "MINIO_REGION",
		"minio.bucket_lookup":            "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"auth.jwt_secret":                "JWT_SECRET",
		"auth.private_key_path":          "JWT_PRIVATE_KEY_PATH",
		"auth.public_key_path":           "JWT_PUBLIC_KEY_PATH",
		"auth.token_ttl":                 "JWT_EXPIRES_IN",
		"auth.bcrypt_cost":               "BCRYPT_COST",
		"auth.allowed_email_domain":      "AUTH_ALLOWED_EMAIL_DOMAIN",
		"auth.login_rate_limit_per_hour": "LOGIN_RATE_LIMIT_PER_HOUR",
		"auth.login_lock_threshold":      "LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl":            "LOGIN_LOCK_TTL",
		"storage.driver":                 "STORAGE_DRIVER",
		"storage.images_dir":             "IMAGES_DIR",
		"storage.staging_dir":            "IMAGES_STAGING_DIR",
		"storage.max_upload_bytes":       "MAX_UPLOAD_BYTES",
		"storage.clamd_addr":             "CLAMD_ADDR",
		"queue.enabled":                  "QUEUE_ENABLED",
		"queue.concurrency":              "QUEUE_CONCURRENCY",
		"queue.max_retry":                "QUEUE_MAX_RETRY",
		"metrics.secret":                 "METRICS_SECRET",
		"metrics.worker_port":            "WORKER_METRICS_PORT",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host != "" && cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if err := validateAuth(cfg.Auth); err != nil {
		return err
	}
	if err := validateStorage(cfg); err != nil {
		return err
	}
	if cfg.Queue.Enabled {
		if cfg.Redis.Host == "" {
			return errors.New("queue requires redis host")
		}
		if cfg.Queue.Concurrency <= 0 {
			return errors.New("queue concurrency must be positive")
		}
	}
	return nil
}

func validateAuth(a AuthConfig) error {
	hasSecret := strings.TrimSpace(a.JWTSecret) != ""
	hasKeys := a.PrivateKeyPath != "" && a.PublicKeyPath != ""
	if !hasSecret && !hasKeys {
		return errors.New("jwt secret or rsa key pair is required")
	}
	if (a.PrivateKeyPath == "") != (a.PublicKeyPath == "") {
		return errors.New("jwt private and public key paths must be set together")
	}
	if a.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if a.BcryptCost < 4 || a.BcryptCost > 31 {
		return errors.New("bcrypt cost must be between 4 and 31")
	}
	if a.LoginLockThreshold <= 0 {
		return errors.New("login lock threshold must be positive")
	}
	return nil
}

func validateStorage(cfg Config) error {
	switch cfg.Storage.Driver {
	case StorageDriverDisk:
		if cfg.Storage.ImagesDir == "" {
			return errors.New("images dir is required")
		}
	case StorageDriverMinIO:
		if cfg.MinIO.Endpoint == "" {
			return errors.New("minio endpoint is required")
		}
		if cfg.MinIO.AccessKeyID == "" {
			return errors.New("minio access key id is required")
		}
		if cfg.MinIO.SecretAccessKey == "" {
			return errors.New("minio secret access key is required")
		}
		if cfg.MinIO.Bucket == "" {
			return errors.New("minio bucket is required")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if cfg.Storage.StagingDir == "" {
		return errors.New("staging dir is required")
	}
	if cfg.Storage.MaxUploadBytes <= 0 {
		return errors.New("max upload bytes must be positive")
	}
	return nil
}
