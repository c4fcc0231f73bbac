// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package assetgc reclaims blob storage for asset files that no draft or
// published row references anymore. Collection is reference-counted and
// conservative: a path is only removed when its count is zero, and any
// failure parks the path in a retry queue instead of surfacing to the
// caller.
package assetgc

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/verso-cms/verso/internal/model"
	"github.com/verso-cms/verso/internal/store"
)

// DefaultBatchSize bounds how many paths one sweep processes.
const DefaultBatchSize = 100

// defaultRemoveRate throttles blob deletions so a large cleanup cannot
// saturate the storage backend.
const defaultRemoveRate = rate.Limit(50)

// Remover deletes one stored blob. Removing a missing blob must not error.
type Remover interface {
	Remove(ctx context.Context, path string) error
}

// Collector counts references and removes orphaned blobs.
type Collector struct {
	queries   *store.Queries
	remover   Remover
	limiter   *rate.Limiter
	batchSize int64
	logger    *slog.Logger
}

func New(queries *store.Queries, remover Remover, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		queries:   queries,
		remover:   remover,
		limiter:   rate.NewLimiter(defaultRemoveRate, 10),
		batchSize: DefaultBatchSize,
		logger:    logger,
	}
}

// WithBatchSize overrides the sweep batch size.
func (c *Collector) WithBatchSize(n int64) *Collector {
	if n > 0 {
		c.batchSize = n
	}
	return c
}

// Clean checks each candidate path and removes the ones nothing references.
// Errors are logged and queued for the next sweep; Clean never fails the
// publish or delete that produced the candidates.
func (c *Collector) Clean(ctx context.Context, paths []string) {
	for _, path := range paths {
		if err := c.clean(ctx, path); err != nil {
			c.logger.Warn("asset cleanup deferred", "path", path, "error", err)
			if qerr := c.queries.EnqueueGCPath(ctx, path); qerr != nil {
				c.logger.Error("queueing asset cleanup failed", "path", path, "error", qerr)
			}
		}
	}
}

func (c *Collector) clean(ctx context.Context, path string) error {
	refs, err := c.queries.CountStoragePathRefs(ctx, path)
	if err != nil {
		return err
	}
	if refs > 0 {
		// Still referenced by a draft or published row somewhere.
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.remover.Remove(ctx, path); err != nil {
		return err
	}
	c.logger.Info("asset blob removed", "path", path)
	return nil
}

// Sweep retries queued paths, at most batchSize per call. Paths that are
// still referenced or still failing stay queued.
func (c *Collector) Sweep(ctx context.Context) {
	paths, err := c.queries.ListGCPending(ctx, c.batchSize)
	if err != nil {
		c.logger.Error("listing pending asset cleanup failed", "error", err)
		return
	}
	for _, path := range paths {
		if err := c.clean(ctx, path); err != nil {
			c.logger.Warn("asset cleanup still failing", "path", path, "error", err)
			continue
		}
		if err := c.queries.DequeueGCPath(ctx, path); err != nil {
			c.logger.Error("dequeueing cleaned path failed", "path", path, "error", err)
		}
	}
}

// PurgeDrafts hard-deletes drafts that were soft-deleted before the cutoff
// and have no published twin, queueing their blob paths for cleanup. Their
// version logs are kept; history outlives the row.
func (c *Collector) PurgeDrafts(ctx context.Context, retention time.Duration) {
	cutoff := time.Now().Add(-retention)
	for _, kind := range model.Kinds() {
		drafts, err := c.queries.ListPurgeableDrafts(ctx, kind, cutoff)
		if err != nil {
			c.logger.Error("listing purgeable drafts failed", "kind", kind, "error", err)
			continue
		}
		for _, draft := range drafts {
			var paths []string
			if kind == model.KindAsset {
				var asset model.AssetContent
				if err := model.DecodeContent(draft.Content, &asset); err == nil {
					paths = asset.StoragePaths()
				}
			}
			if err := c.queries.HardDeleteEntity(ctx, kind, draft.ID, false); err != nil {
				c.logger.Error("purging draft failed", "kind", kind, "id", draft.ID, "error", err)
				continue
			}
			c.logger.Info("expired draft purged", "kind", kind, "id", draft.ID)
			c.Clean(ctx, paths)
		}
	}
}
