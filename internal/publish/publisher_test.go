// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package publish

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verso-cms/verso/internal/core"
	"github.com/verso-cms/verso/internal/hash"
	"github.com/verso-cms/verso/internal/history"
	"github.com/verso-cms/verso/internal/model"
	"github.com/verso-cms/verso/internal/store"
	"github.com/verso-cms/verso/internal/testutil"
)

type fakeCleaner struct {
	paths []string
}

func (f *fakeCleaner) Clean(_ context.Context, paths []string) {
	f.paths = append(f.paths, paths...)
}

func newTestPublisher(t *testing.T) (*Publisher, *store.Queries, *sql.DB, func()) {
	t.Helper()
	db, cleanup := testutil.TestDB(t)
	logger := testutil.TestLoggerSilent()
	log := history.NewLog(store.New(db), 10, logger)
	p := New(db, log, logger, nil, nil, nil)
	return p, store.New(db), db, cleanup
}

func writeDraft(t *testing.T, q *store.Queries, kind model.Kind, id string, content map[string]any) {
	t.Helper()
	err := q.UpsertEntity(context.Background(), store.UpsertEntityParams{
		Kind:        kind,
		ID:          id,
		IsPublished: false,
		Content:     content,
		ContentHash: hash.Content(string(kind), content),
	})
	require.NoError(t, err)
}

func seedPage(t *testing.T, q *store.Queries) {
	t.Helper()
	writeDraft(t, q, model.KindLayerStyle, "style-1", map[string]any{
		"name":    "Heading",
		"classes": []string{"heading"},
	})
	writeDraft(t, q, model.KindComponent, "comp-1", map[string]any{
		"name": "Hero",
		"layers": []map[string]any{
			{"id": "l-c1", "type": "heading", "styleIds": []string{"style-1"}, "text": "Hello"},
		},
	})
	writeDraft(t, q, model.KindPage, "page-1", map[string]any{
		"name": "Home",
		"slug": "home",
	})
	writeDraft(t, q, model.KindLayerTree, "tree-1", map[string]any{
		"pageId": "page-1",
		"layers": []map[string]any{
			{"id": "l-1", "type": "section", "children": []map[string]any{
				{"id": "l-2", "type": "component", "componentId": "comp-1"},
			}},
		},
	})
}

func seedCollection(t *testing.T, q *store.Queries, itemCount int) {
	t.Helper()
	writeDraft(t, q, model.KindCollection, "coll-1", map[string]any{
		"name":       "Posts",
		"identifier": "posts",
	})
	writeDraft(t, q, model.KindField, "field-1", map[string]any{
		"collectionId": "coll-1",
		"name":         "Title",
		"type":         "text",
		"position":     float64(0),
	})
	for i := 0; i < itemCount; i++ {
		itemID := fmt.Sprintf("item-%d", i)
		writeDraft(t, q, model.KindItem, itemID, map[string]any{
			"collectionId": "coll-1",
			"position":     float64(i),
			"publishable":  true,
		})
		writeDraft(t, q, model.KindItemValue, fmt.Sprintf("val-%d", i), map[string]any{
			"itemId":  itemID,
			"fieldId": "field-1",
			"value":   fmt.Sprintf("Post %d", i),
		})
	}
}

func TestPublisher_PageCascadePublishesReferences(t *testing.T) {
	p, q, _, cleanup := newTestPublisher(t)
	defer cleanup()
	ctx := context.Background()

	seedPage(t, q)

	res, err := p.Publish(ctx, model.KindPage, "page-1")
	require.NoError(t, err)
	assert.Len(t, res.Upserted, 4)
	assert.Empty(t, res.Deleted)

	for _, ref := range []struct {
		kind model.Kind
		id   string
	}{
		{model.KindLayerStyle, "style-1"},
		{model.KindComponent, "comp-1"},
		{model.KindPage, "page-1"},
		{model.KindLayerTree, "tree-1"},
	} {
		pub, err := q.GetEntity(ctx, ref.kind, ref.id, true)
		require.NoError(t, err, "%s %s should be published", ref.kind, ref.id)
		draft, err := q.GetEntity(ctx, ref.kind, ref.id, false)
		require.NoError(t, err)
		assert.Equal(t, draft.ContentHash, pub.ContentHash)
	}

	// One publish entry on the root, none on the cascade members.
	entries, err := q.ListVersions(ctx, string(model.KindPage), "page-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ActionPublish, entries[0].Action)

	entries, err = q.ListVersions(ctx, string(model.KindLayerTree), "tree-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPublisher_SkipsUnchangedRows(t *testing.T) {
	p, q, _, cleanup := newTestPublisher(t)
	defer cleanup()
	ctx := context.Background()

	seedCollection(t, q, 3)

	res, err := p.Publish(ctx, model.KindCollection, "coll-1")
	require.NoError(t, err)
	assert.Len(t, res.Upserted, 8) // collection + field + 3 items + 3 values

	// Nothing changed: republish writes nothing, not even a log entry.
	res, err = p.Publish(ctx, model.KindCollection, "coll-1")
	require.NoError(t, err)
	assert.Empty(t, res.Upserted)
	assert.Empty(t, res.Deleted)
	assert.Equal(t, 8, res.Skipped)

	count, err := q.CountVersions(ctx, string(model.KindCollection), "coll-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Editing one value republishes exactly that value.
	writeDraft(t, q, model.KindItemValue, "val-1", map[string]any{
		"itemId":  "item-1",
		"fieldId": "field-1",
		"value":   "Post 1 (edited)",
	})
	res, err = p.Publish(ctx, model.KindCollection, "coll-1")
	require.NoError(t, err)
	require.Len(t, res.Upserted, 1)
	assert.Equal(t, history.EntityRef{Kind: model.KindItemValue, ID: "val-1"}, res.Upserted[0])
	assert.Equal(t, 7, res.Skipped)
}

func TestPublisher_CascadeIsAtomic(t *testing.T) {
	p, q, _, cleanup := newTestPublisher(t)
	defer cleanup()
	ctx := context.Background()

	seedCollection(t, q, 3)

	writes := 0
	p.writeHook = func(op string, ref history.EntityRef) error {
		writes++
		if writes == 5 {
			return errors.New("disk full")
		}
		return nil
	}

	_, err := p.Publish(ctx, model.KindCollection, "coll-1")
	require.ErrorIs(t, err, core.ErrTxAborted)

	// No partial graph: every row of the cascade stays unpublished.
	for _, id := range []string{"coll-1"} {
		_, err := q.GetEntity(ctx, model.KindCollection, id, true)
		assert.ErrorIs(t, err, core.ErrNotFound)
	}
	for i := 0; i < 3; i++ {
		_, err := q.GetEntity(ctx, model.KindItem, fmt.Sprintf("item-%d", i), true)
		assert.ErrorIs(t, err, core.ErrNotFound)
		_, err = q.GetEntity(ctx, model.KindItemValue, fmt.Sprintf("val-%d", i), true)
		assert.ErrorIs(t, err, core.ErrNotFound)
	}

	count, err := q.CountVersions(ctx, string(model.KindCollection), "coll-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	// Clearing the fault publishes the whole subtree.
	p.writeHook = nil
	res, err := p.Publish(ctx, model.KindCollection, "coll-1")
	require.NoError(t, err)
	assert.Len(t, res.Upserted, 8)
}

func TestPublisher_DeletedDraftRemovesPublishedSubtree(t *testing.T) {
	p, q, _, cleanup := newTestPublisher(t)
	defer cleanup()
	ctx := context.Background()

	seedCollection(t, q, 2)
	_, err := p.Publish(ctx, model.KindCollection, "coll-1")
	require.NoError(t, err)

	// Soft-deleting the item draft leaves the published twin alone until
	// the next publish.
	require.NoError(t, q.SoftDeleteDraft(ctx, model.KindItem, "item-1"))
	_, err = q.GetEntity(ctx, model.KindItem, "item-1", true)
	require.NoError(t, err)

	res, err := p.Publish(ctx, model.KindCollection, "coll-1")
	require.NoError(t, err)
	assert.Empty(t, res.Upserted)
	require.Len(t, res.Deleted, 2)

	_, err = q.GetEntity(ctx, model.KindItem, "item-1", true)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = q.GetEntity(ctx, model.KindItemValue, "val-1", true)
	assert.ErrorIs(t, err, core.ErrNotFound)

	// The other item survives untouched.
	_, err = q.GetEntity(ctx, model.KindItem, "item-0", true)
	assert.NoError(t, err)
}

func TestPublisher_UnpublishableItemNeverPublishes(t *testing.T) {
	p, q, _, cleanup := newTestPublisher(t)
	defer cleanup()
	ctx := context.Background()

	seedCollection(t, q, 1)
	writeDraft(t, q, model.KindItem, "item-0", map[string]any{
		"collectionId": "coll-1",
		"position":     float64(0),
		"publishable":  false,
	})

	res, err := p.Publish(ctx, model.KindCollection, "coll-1")
	require.NoError(t, err)
	for _, ref := range res.Upserted {
		assert.NotEqual(t, model.KindItem, ref.Kind)
	}
	_, err = q.GetEntity(ctx, model.KindItem, "item-0", true)
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Flagging it publishable brings it and its values live.
	writeDraft(t, q, model.KindItem, "item-0", map[string]any{
		"collectionId": "coll-1",
		"position":     float64(0),
		"publishable":  true,
	})
	_, err = p.Publish(ctx, model.KindCollection, "coll-1")
	require.NoError(t, err)
	_, err = q.GetEntity(ctx, model.KindItem, "item-0", true)
	assert.NoError(t, err)
	_, err = q.GetEntity(ctx, model.KindItemValue, "val-0", true)
	assert.NoError(t, err)
}

func TestPublisher_UnpublishRemovesPublishedOnly(t *testing.T) {
	p, q, _, cleanup := newTestPublisher(t)
	defer cleanup()
	ctx := context.Background()

	seedCollection(t, q, 2)
	_, err := p.Publish(ctx, model.KindCollection, "coll-1")
	require.NoError(t, err)

	res, err := p.Unpublish(ctx, model.KindCollection, "coll-1")
	require.NoError(t, err)
	assert.Len(t, res.Deleted, 6)

	_, err = q.GetEntity(ctx, model.KindCollection, "coll-1", true)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = q.GetEntity(ctx, model.KindItemValue, "val-0", true)
	assert.ErrorIs(t, err, core.ErrNotFound)

	// Drafts survive unpublish untouched.
	_, err = q.GetEntity(ctx, model.KindCollection, "coll-1", false)
	assert.NoError(t, err)
	_, err = q.GetEntity(ctx, model.KindItem, "item-0", false)
	assert.NoError(t, err)

	// Unpublishing something that is not live is a NotFound.
	_, err = p.Unpublish(ctx, model.KindCollection, "coll-1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPublisher_AssetRemovalFeedsCleaner(t *testing.T) {
	p, q, _, cleanup := newTestPublisher(t)
	defer cleanup()
	ctx := context.Background()

	cleaner := &fakeCleaner{}
	p.cleaner = cleaner

	writeDraft(t, q, model.KindAsset, "asset-1", map[string]any{
		"filename":    "hero.jpg",
		"mimeType":    "image/jpeg",
		"storagePath": "assets/hero.jpg",
		"size":        float64(1024),
		"variants": []map[string]any{
			{"type": "thumbnail", "storagePath": "assets/hero_thumb.jpg", "width": float64(150), "height": float64(150)},
		},
	})
	_, err := p.Publish(ctx, model.KindAsset, "asset-1")
	require.NoError(t, err)
	assert.Empty(t, cleaner.paths)

	require.NoError(t, q.SoftDeleteDraft(ctx, model.KindAsset, "asset-1"))
	res, err := p.Publish(ctx, model.KindAsset, "asset-1")
	require.NoError(t, err)
	require.Len(t, res.Deleted, 1)
	assert.ElementsMatch(t, []string{"assets/hero.jpg", "assets/hero_thumb.jpg"}, cleaner.paths)
}

func TestPublisher_DynamicPagePublishesBoundCollection(t *testing.T) {
	p, q, _, cleanup := newTestPublisher(t)
	defer cleanup()
	ctx := context.Background()

	seedCollection(t, q, 2)
	writeDraft(t, q, model.KindPage, "page-blog", map[string]any{
		"name":         "Blog",
		"slug":         "blog",
		"isDynamic":    true,
		"collectionId": "coll-1",
	})
	writeDraft(t, q, model.KindLayerTree, "tree-blog", map[string]any{
		"pageId": "page-blog",
		"layers": []map[string]any{{"id": "l-1", "type": "collection-list"}},
	})

	res, err := p.Publish(ctx, model.KindPage, "page-blog")
	require.NoError(t, err)
	// collection + field + 2 items + 2 values + page + tree
	assert.Len(t, res.Upserted, 8)

	_, err = q.GetEntity(ctx, model.KindItem, "item-1", true)
	assert.NoError(t, err)
}

func TestPublisher_UnknownKind(t *testing.T) {
	p, _, _, cleanup := newTestPublisher(t)
	defer cleanup()

	_, err := p.Publish(context.Background(), model.Kind("widget"), "w-1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
