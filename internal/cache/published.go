// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/verso-cms/verso/internal/model"
)

// PublishedCache is the read-through cache for the public read path. Only
// published rows are cached; drafts change too often and preview reads must
// always be fresh. Every publish clears the whole cache, since one cascade
// can touch arbitrarily many keys.
type PublishedCache struct {
	entities *TypedCache[model.Entity]
	lists    *TypedCache[[]model.Entity]
	cache    Cache
	logger   *slog.Logger
}

func NewPublishedCache(cache Cache, cfg Config, logger *slog.Logger) *PublishedCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishedCache{
		entities: NewTypedCache[model.Entity](cache, cfg.DefaultTTL),
		lists:    NewTypedCache[[]model.Entity](cache, cfg.DefaultTTL),
		cache:    cache,
		logger:   logger,
	}
}

// Entity returns the published row through the cache.
func (p *PublishedCache) Entity(ctx context.Context, kind model.Kind, id string, load func() (*model.Entity, error)) (*model.Entity, error) {
	return p.entities.GetOrSet(ctx, entityKey(kind, id), load)
}

// Items returns one page of published collection items through the cache.
func (p *PublishedCache) Items(ctx context.Context, collectionID string, page int64, load func() (*[]model.Entity, error)) ([]model.Entity, error) {
	items, err := p.lists.GetOrSet(ctx, itemsKey(collectionID, page), load)
	if err != nil {
		return nil, err
	}
	return *items, nil
}

// InvalidatePublished drops all cached published content. Called after
// every committed publish or unpublish cascade.
func (p *PublishedCache) InvalidatePublished(ctx context.Context) {
	if err := p.cache.Clear(ctx); err != nil {
		p.logger.Warn("clearing published cache failed", "error", err)
	}
}

func entityKey(kind model.Kind, id string) string {
	return fmt.Sprintf("pub:%s:%s", kind, id)
}

func itemsKey(collectionID string, page int64) string {
	return fmt.Sprintf("pub:items:%s:%d", collectionID, page)
}
