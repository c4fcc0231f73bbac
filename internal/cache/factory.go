// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"fmt"
	"time"
)

// Backend names accepted by NewCache.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config selects and parameterizes a cache backend.
type Config struct {
	Backend    string
	RedisURL   string
	Prefix     string
	DefaultTTL time.Duration
}

// DefaultConfig returns the memory backend with an hour TTL.
func DefaultConfig() Config {
	return Config{Backend: BackendMemory, DefaultTTL: time.Hour}
}

// NewCache creates the configured backend.
func NewCache(cfg Config) (Cache, error) {
	ttl := cfg.DefaultTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	switch cfg.Backend {
	case BackendRedis:
		return NewRedisCache(RedisCacheOptions{
			URL:        cfg.RedisURL,
			Prefix:     cfg.Prefix,
			DefaultTTL: ttl,
		})
	case BackendMemory, "":
		return NewMemoryCache(MemoryCacheOptions{
			DefaultTTL:      ttl,
			CleanupInterval: time.Minute,
		}), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}
