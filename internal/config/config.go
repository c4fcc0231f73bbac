// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/verso-cms/verso/internal/blob"
	"github.com/verso-cms/verso/internal/cache"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath     string `env:"VERSO_DB_PATH" envDefault:"./data/verso.db"`
	ServerHost string `env:"VERSO_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"VERSO_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"VERSO_ENV" envDefault:"development"`
	LogLevel   string `env:"VERSO_LOG_LEVEL" envDefault:"info"`

	// Blob storage configuration
	BlobBackend string `env:"VERSO_BLOB_BACKEND" envDefault:"fs"` // fs | memory | s3
	UploadsDir  string `env:"VERSO_UPLOADS_DIR" envDefault:"./uploads"`
	AssetsURL   string `env:"VERSO_ASSETS_URL" envDefault:"/files"`
	S3Bucket    string `env:"VERSO_S3_BUCKET"`
	S3Region    string `env:"VERSO_S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"VERSO_S3_ENDPOINT"` // Optional, for S3-compatible services
	S3AccessKey string `env:"VERSO_S3_ACCESS_KEY"`
	S3SecretKey string `env:"VERSO_S3_SECRET_KEY"`

	// Cache configuration
	RedisURL    string `env:"VERSO_REDIS_URL"` // Optional Redis URL for distributed caching
	CachePrefix string `env:"VERSO_CACHE_PREFIX" envDefault:"verso:"`
	CacheTTL    int    `env:"VERSO_CACHE_TTL" envDefault:"3600"` // Seconds

	// History configuration
	SnapshotEvery int64 `env:"VERSO_SNAPSHOT_EVERY" envDefault:"10"` // Full snapshot every Nth version entry

	// Cleanup configuration
	GCBatchSize        int64  `env:"VERSO_GC_BATCH_SIZE" envDefault:"100"`
	DraftRetentionDays int    `env:"VERSO_DRAFT_RETENTION_DAYS" envDefault:"30"`
	GCSchedule         string `env:"VERSO_GC_SCHEDULE" envDefault:"@every 15m"`
	PurgeSchedule      string `env:"VERSO_PURGE_SCHEDULE" envDefault:"@daily"`

	// Webhook configuration
	WebhookWorkers int `env:"VERSO_WEBHOOK_WORKERS" envDefault:"4"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// DraftRetention returns the retention window for soft-deleted drafts.
func (c Config) DraftRetention() time.Duration {
	return time.Duration(c.DraftRetentionDays) * 24 * time.Hour
}

// BlobConfig maps the blob settings onto the store factory's config.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Backend:     c.BlobBackend,
		Root:        c.UploadsDir,
		BaseURL:     c.AssetsURL,
		S3Bucket:    c.S3Bucket,
		S3Region:    c.S3Region,
		S3Endpoint:  c.S3Endpoint,
		S3AccessKey: c.S3AccessKey,
		S3SecretKey: c.S3SecretKey,
	}
}

// CacheConfig maps the cache settings onto the cache factory's config.
func (c Config) CacheConfig() cache.Config {
	backend := cache.BackendMemory
	if c.RedisURL != "" {
		backend = cache.BackendRedis
	}
	return cache.Config{
		Backend:    backend,
		RedisURL:   c.RedisURL,
		Prefix:     c.CachePrefix,
		DefaultTTL: time.Duration(c.CacheTTL) * time.Second,
	}
}

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.BlobBackend == blob.BackendS3 && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("VERSO_S3_BUCKET is required when VERSO_BLOB_BACKEND=s3")
	}
	if cfg.SnapshotEvery < 1 {
		return nil, fmt.Errorf("VERSO_SNAPSHOT_EVERY must be at least 1, got %d", cfg.SnapshotEvery)
	}
	if cfg.DraftRetentionDays < 1 {
		return nil, fmt.Errorf("VERSO_DRAFT_RETENTION_DAYS must be at least 1, got %d", cfg.DraftRetentionDays)
	}

	return cfg, nil
}
