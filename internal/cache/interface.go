// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cache provides the read-through caching layer for published
// content. Backends hold []byte values; TypedCache adds JSON typing on top.
package cache

import (
	"context"
	"time"
)

// Cache is a key/value cache. Implementations must be safe for concurrent
// use.
type Cache interface {
	// Get returns the value, or ErrMiss when absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value. A zero ttl means the backend's default TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// Clear drops every entry. Publish uses this: a cascade can touch any
	// number of keys, so invalidation is wholesale.
	Clear(ctx context.Context) error

	Has(ctx context.Context, key string) (bool, error)

	Close() error
}

// Error is a sentinel cache error.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrMiss   Error = "cache miss"
	ErrClosed Error = "cache closed"
)
