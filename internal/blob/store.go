// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package blob stores uploaded asset files behind a small backend-agnostic
// interface. Paths are forward-slash relative keys like
// "assets/2026/hero.jpg"; the backend decides what they map to.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Store is a blob storage backend.
type Store interface {
	// Put writes the reader's content at path and returns the stored path.
	// Writing to an existing path overwrites it.
	Put(ctx context.Context, path string, r io.Reader) (string, error)
	// Remove deletes the blob at path. Removing a missing blob is not an
	// error; garbage collection retries paths and must stay idempotent.
	Remove(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	// PublicURL returns the URL clients fetch the blob from.
	PublicURL(path string) string
}

// Backend names accepted by the factory.
const (
	BackendFilesystem = "fs"
	BackendMemory     = "memory"
	BackendS3         = "s3"
)

// Config selects and parameterizes a backend.
type Config struct {
	Backend string
	// Root is the filesystem backend's storage directory.
	Root string
	// BaseURL prefixes public URLs for the filesystem and memory backends.
	BaseURL string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// NewStoreFromConfig creates the configured backend.
func NewStoreFromConfig(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(cfg.BaseURL), nil
	case BackendFilesystem:
		if cfg.Root == "" {
			return nil, errors.New("filesystem blob store requires a root directory")
		}
		return NewFilesystemStore(cfg.Root, cfg.BaseURL)
	case BackendS3:
		if cfg.S3Bucket == "" {
			return nil, errors.New("s3 blob store requires a bucket")
		}
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown blob backend: %s", cfg.Backend)
	}
}

// cleanPath rejects keys that could escape the storage root.
func cleanPath(path string) (string, error) {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return "", errors.New("empty blob path")
	}
	for _, part := range strings.Split(path, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("invalid blob path: %s", path)
		}
	}
	return path, nil
}
