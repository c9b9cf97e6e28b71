package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_DefaultsWithSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.API.Port != 3000 {
		t.Fatalf("api port = %d, want 3000", cfg.API.Port)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Fatalf("token ttl = %s, want 24h", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.BcryptCost != 10 {
		t.Fatalf("bcrypt cost = %d, want 10", cfg.Auth.BcryptCost)
	}
	if cfg.Storage.Driver != StorageDriverDisk {
		t.Fatalf("storage driver = %q, want disk", cfg.Storage.Driver)
	}
	if cfg.Redis.Addr() != "" {
		t.Fatalf("redis addr = %q, want disabled", cfg.Redis.Addr())
	}
	if rel, err := filepath.Rel(cfg.Storage.ImagesDir, cfg.Storage.StagingDir); err != nil || !strings.HasPrefix(rel, "..") {
		t.Fatalf("staging dir %q must not sit inside images dir %q", cfg.Storage.StagingDir, cfg.Storage.ImagesDir)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "8081")
	t.Setenv("JWT_EXPIRES_IN", "2h")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("AUTH_ALLOWED_EMAIL_DOMAIN", "northeastern.edu")
	t.Setenv("STORAGE_DRIVER", "DISK")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.API.Port != 8081 {
		t.Fatalf("api port = %d, want 8081", cfg.API.Port)
	}
	if cfg.Auth.TokenTTL != 2*time.Hour {
		t.Fatalf("token ttl = %s, want 2h", cfg.Auth.TokenTTL)
	}
	if got := cfg.Redis.Addr(); got != "cache:6379" {
		t.Fatalf("redis addr = %q", got)
	}
	if cfg.Auth.AllowedEmailDomain != "northeastern.edu" {
		t.Fatalf("allowed domain = %q", cfg.Auth.AllowedEmailDomain)
	}
	if cfg.Storage.Driver != StorageDriverDisk {
		t.Fatalf("storage driver = %q", cfg.Storage.Driver)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing signing material", env: map[string]string{}},
		{name: "half rsa pair", env: map[string]string{"JWT_PRIVATE_KEY_PATH": "/keys/private.pem"}},
		{name: "unknown storage driver", env: map[string]string{"JWT_SECRET": "s", "STORAGE_DRIVER": "ftp"}},
		{name: "minio without credentials", env: map[string]string{"JWT_SECRET": "s", "STORAGE_DRIVER": "minio"}},
		{name: "queue without redis", env: map[string]string{"JWT_SECRET": "s", "QUEUE_ENABLED": "true"}},
		{name: "bcrypt cost out of range", env: map[string]string{"JWT_SECRET": "s", "BCRYPT_COST": "2"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
