// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"os"
	"testing"
	"time"

	"github.com/verso-cms/verso/internal/cache"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set %s: %v", key, err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.DBPath != "./data/verso.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "./data/verso.db")
	}
	if cfg.ServerAddr() != "localhost:8080" {
		t.Errorf("ServerAddr() = %q, want %q", cfg.ServerAddr(), "localhost:8080")
	}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true")
	}
	if cfg.BlobBackend != "fs" {
		t.Errorf("BlobBackend = %q, want %q", cfg.BlobBackend, "fs")
	}
	if cfg.SnapshotEvery != 10 {
		t.Errorf("SnapshotEvery = %d, want 10", cfg.SnapshotEvery)
	}
	if cfg.DraftRetention() != 30*24*time.Hour {
		t.Errorf("DraftRetention() = %v, want 720h", cfg.DraftRetention())
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Clearenv()
	setEnv(t, "VERSO_DB_PATH", "/custom/verso.db")
	setEnv(t, "VERSO_SERVER_HOST", "0.0.0.0")
	setEnv(t, "VERSO_SERVER_PORT", "3000")
	setEnv(t, "VERSO_ENV", "production")
	setEnv(t, "VERSO_SNAPSHOT_EVERY", "25")
	setEnv(t, "VERSO_DRAFT_RETENTION_DAYS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.DBPath != "/custom/verso.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.ServerAddr() != "0.0.0.0:3000" {
		t.Errorf("ServerAddr() = %q", cfg.ServerAddr())
	}
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment() = true, want false")
	}
	if cfg.SnapshotEvery != 25 {
		t.Errorf("SnapshotEvery = %d, want 25", cfg.SnapshotEvery)
	}
	if cfg.DraftRetention() != 7*24*time.Hour {
		t.Errorf("DraftRetention() = %v", cfg.DraftRetention())
	}
}

func TestLoad_S3RequiresBucket(t *testing.T) {
	os.Clearenv()
	setEnv(t, "VERSO_BLOB_BACKEND", "s3")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail without VERSO_S3_BUCKET")
	}

	setEnv(t, "VERSO_S3_BUCKET", "verso-assets")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.BlobConfig().S3Bucket != "verso-assets" {
		t.Errorf("BlobConfig().S3Bucket = %q", cfg.BlobConfig().S3Bucket)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	os.Clearenv()
	setEnv(t, "VERSO_SNAPSHOT_EVERY", "0")
	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject a zero snapshot interval")
	}

	os.Clearenv()
	setEnv(t, "VERSO_DRAFT_RETENTION_DAYS", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject a negative retention window")
	}
}

func TestCacheConfig_BackendSelection(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := cfg.CacheConfig().Backend; got != cache.BackendMemory {
		t.Errorf("CacheConfig().Backend = %q, want memory", got)
	}

	setEnv(t, "VERSO_REDIS_URL", "redis://localhost:6379/0")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	cc := cfg.CacheConfig()
	if cc.Backend != cache.BackendRedis {
		t.Errorf("CacheConfig().Backend = %q, want redis", cc.Backend)
	}
	if cc.DefaultTTL != time.Hour {
		t.Errorf("CacheConfig().DefaultTTL = %v, want 1h", cc.DefaultTTL)
	}
}
