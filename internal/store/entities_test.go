package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verso-cms/verso/internal/core"
	"github.com/verso-cms/verso/internal/hash"
	"github.com/verso-cms/verso/internal/model"
	"github.com/verso-cms/verso/internal/store"
	"github.com/verso-cms/verso/internal/testutil"
)

func upsert(t *testing.T, q *store.Queries, kind model.Kind, id string, published bool, content map[string]any) {
	t.Helper()
	err := q.UpsertEntity(context.Background(), store.UpsertEntityParams{
		Kind:        kind,
		ID:          id,
		IsPublished: published,
		Content:     content,
		ContentHash: hash.Content(string(kind), content),
	})
	require.NoError(t, err)
}

func TestEntities_DualRowIndependence(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	ctx := context.Background()

	upsert(t, q, model.KindPage, "p1", false, map[string]any{"name": "About", "slug": "about"})
	upsert(t, q, model.KindPage, "p1", true, map[string]any{"name": "About", "slug": "about"})

	// Editing the draft must not touch the published twin.
	upsert(t, q, model.KindPage, "p1", false, map[string]any{"name": "About Us", "slug": "about"})

	draft, err := q.GetEntity(ctx, model.KindPage, "p1", false)
	require.NoError(t, err)
	published, err := q.GetEntity(ctx, model.KindPage, "p1", true)
	require.NoError(t, err)

	assert.Equal(t, "About Us", draft.Content["name"])
	assert.Equal(t, "About", published.Content["name"])
	assert.NotEqual(t, draft.ContentHash, published.ContentHash)
}

func TestEntities_GetNotFound(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	ctx := context.Background()

	_, err := q.GetEntity(ctx, model.KindPage, "missing", false)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestEntities_SoftDeleteHidesDraftKeepsPublished(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	ctx := context.Background()

	upsert(t, q, model.KindPage, "p1", false, map[string]any{"name": "About", "slug": "about"})
	upsert(t, q, model.KindPage, "p1", true, map[string]any{"name": "About", "slug": "about"})

	require.NoError(t, q.SoftDeleteDraft(ctx, model.KindPage, "p1"))

	_, err := q.GetEntity(ctx, model.KindPage, "p1", false)
	assert.ErrorIs(t, err, core.ErrNotFound)

	// The deleted row is still visible to the publish coordinator.
	any, err := q.GetEntityAny(ctx, model.KindPage, "p1", false)
	require.NoError(t, err)
	assert.True(t, any.Deleted)

	// The published twin is untouched.
	_, err = q.GetEntity(ctx, model.KindPage, "p1", true)
	assert.NoError(t, err)

	// Deleting an already deleted draft is NotFound.
	assert.ErrorIs(t, q.SoftDeleteDraft(ctx, model.KindPage, "p1"), core.ErrNotFound)
}

func TestEntities_UpsertRevivesSoftDeletedDraft(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	ctx := context.Background()

	upsert(t, q, model.KindComponent, "c1", false, map[string]any{"name": "Hero"})
	require.NoError(t, q.SoftDeleteDraft(ctx, model.KindComponent, "c1"))

	upsert(t, q, model.KindComponent, "c1", false, map[string]any{"name": "Hero v2"})
	e, err := q.GetEntity(ctx, model.KindComponent, "c1", false)
	require.NoError(t, err)
	assert.False(t, e.Deleted)
	assert.Equal(t, "Hero v2", e.Content["name"])
}

func TestEntities_ChildrenOrderAndStateIsolation(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	ctx := context.Background()

	upsert(t, q, model.KindCollection, "col1", false, map[string]any{"name": "Posts", "identifier": "posts"})
	upsert(t, q, model.KindCollection, "col1", true, map[string]any{"name": "Posts", "identifier": "posts"})

	// Manual order: i3 first, then i1, then i2.
	upsert(t, q, model.KindItem, "i1", false, map[string]any{"collectionId": "col1", "position": 2, "publishable": true})
	upsert(t, q, model.KindItem, "i2", false, map[string]any{"collectionId": "col1", "position": 3, "publishable": true})
	upsert(t, q, model.KindItem, "i3", false, map[string]any{"collectionId": "col1", "position": 1, "publishable": true})

	children, err := q.ListChildren(ctx, model.KindItem, "col1", false)
	require.NoError(t, err)
	require.Len(t, children, 3)
	assert.Equal(t, "i3", children[0].ID)
	assert.Equal(t, "i1", children[1].ID)
	assert.Equal(t, "i2", children[2].ID)

	// No published children yet: the published graph is separate.
	published, err := q.ListChildren(ctx, model.KindItem, "col1", true)
	require.NoError(t, err)
	assert.Empty(t, published)
}

func TestEntities_ChildRequiresSameStateParent(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	ctx := context.Background()

	upsert(t, q, model.KindCollection, "col1", false, map[string]any{"name": "Posts", "identifier": "posts"})

	// A published item under a draft-only collection breaks the composite FK.
	err := q.UpsertEntity(ctx, store.UpsertEntityParams{
		Kind:        model.KindItem,
		ID:          "i1",
		IsPublished: true,
		Content:     map[string]any{"collectionId": "col1", "position": 1, "publishable": true},
		ContentHash: "h",
	})
	assert.ErrorIs(t, err, core.ErrConstraint)
}

func TestEntities_ListChildrenPage(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	ctx := context.Background()

	upsert(t, q, model.KindCollection, "col1", false, map[string]any{"name": "Posts", "identifier": "posts"})
	for i := 0; i < 7; i++ {
		upsert(t, q, model.KindItem, string(rune('a'+i)), false,
			map[string]any{"collectionId": "col1", "position": i, "publishable": true})
	}

	page, err := q.ListChildrenPage(ctx, model.KindItem, "col1", false, 3, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "d", page[0].ID)

	n, err := q.CountChildren(ctx, model.KindItem, "col1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestEntities_SlugExists(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	ctx := context.Background()

	upsert(t, q, model.KindPage, "p1", false, map[string]any{"name": "About", "slug": "about"})

	exists, err := q.SlugExists(ctx, store.SlugExistsParams{
		Kind: model.KindPage, Slug: "about", ExcludeID: "p2",
	})
	require.NoError(t, err)
	assert.True(t, exists)

	// The owning page itself is excluded.
	exists, err = q.SlugExists(ctx, store.SlugExistsParams{
		Kind: model.KindPage, Slug: "about", ExcludeID: "p1",
	})
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEntities_AssetPathProjection(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	ctx := context.Background()

	content := map[string]any{
		"filename":    "hero.png",
		"mimeType":    "image/png",
		"storagePath": "assets/ab/hero.png",
		"size":        1024,
		"variants": []any{
			map[string]any{"type": "thumbnail", "storagePath": "assets/ab/hero_thumb.png", "width": 150, "height": 150},
		},
	}
	upsert(t, q, model.KindAsset, "a1", false, content)

	n, err := q.CountStoragePathRefs(ctx, "assets/ab/hero.png")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = q.CountStoragePathRefs(ctx, "assets/ab/hero_thumb.png")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Soft-deleting the draft drops its references.
	require.NoError(t, q.SoftDeleteDraft(ctx, model.KindAsset, "a1"))
	n, err = q.CountStoragePathRefs(ctx, "assets/ab/hero_thumb.png")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestEntities_ListPurgeableDrafts(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	ctx := context.Background()

	upsert(t, q, model.KindPage, "old", false, map[string]any{"name": "Old", "slug": "old"})
	upsert(t, q, model.KindPage, "kept", false, map[string]any{"name": "Kept", "slug": "kept"})
	upsert(t, q, model.KindPage, "kept", true, map[string]any{"name": "Kept", "slug": "kept"})
	require.NoError(t, q.SoftDeleteDraft(ctx, model.KindPage, "old"))
	require.NoError(t, q.SoftDeleteDraft(ctx, model.KindPage, "kept"))

	// "kept" still has a published twin, so only "old" is purgeable.
	purgeable, err := q.ListPurgeableDrafts(ctx, model.KindPage, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, purgeable, 1)
	assert.Equal(t, "old", purgeable[0].ID)
}

func TestGCQueue(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	ctx := context.Background()

	require.NoError(t, q.EnqueueGCPath(ctx, "assets/x.png"))
	require.NoError(t, q.EnqueueGCPath(ctx, "assets/x.png")) // idempotent
	require.NoError(t, q.EnqueueGCPath(ctx, "assets/y.png"))

	paths, err := q.ListGCPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	require.NoError(t, q.DequeueGCPath(ctx, "assets/x.png"))
	paths, err = q.ListGCPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"assets/y.png"}, paths)
}
