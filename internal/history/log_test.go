package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verso-cms/verso/internal/core"
	"github.com/verso-cms/verso/internal/hash"
	"github.com/verso-cms/verso/internal/model"
	"github.com/verso-cms/verso/internal/store"
	"github.com/verso-cms/verso/internal/testutil"
)

// writeDraft mirrors what the draft service does: write the row, then record
// the change.
func writeDraft(t *testing.T, q *store.Queries, l *Log, id string, before, after map[string]any) {
	t.Helper()
	ctx := context.Background()
	action := model.ActionUpdate
	if before == nil {
		action = model.ActionCreate
	}
	require.NoError(t, q.UpsertEntity(ctx, store.UpsertEntityParams{
		Kind:        model.KindPage,
		ID:          id,
		IsPublished: false,
		Content:     after,
		ContentHash: hash.Content(string(model.KindPage), after),
	}))
	_, err := l.Record(ctx, model.KindPage, id, action, before, after, "sess-1")
	require.NoError(t, err)
}

func pageState(n int) map[string]any {
	return map[string]any{
		"name":     fmt.Sprintf("Page v%d", n),
		"slug":     "page",
		"position": float64(n),
	}
}

func TestLog_RecordChain(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	l := NewLog(q, 10, testutil.TestLogger())
	ctx := context.Background()

	writeDraft(t, q, l, "p1", nil, pageState(1))
	writeDraft(t, q, l, "p1", pageState(1), pageState(2))

	entries, err := l.List(ctx, model.KindPage, "p1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, model.ActionCreate, entries[0].Action)
	assert.Empty(t, entries[0].InversePatch, "create has no inverse")
	assert.NotEmpty(t, entries[0].Snapshot, "first entry carries a snapshot")
	assert.Empty(t, entries[0].PreviousHash)

	assert.Equal(t, model.ActionUpdate, entries[1].Action)
	assert.NotEmpty(t, entries[1].InversePatch)
	assert.Equal(t, entries[0].CurrentHash, entries[1].PreviousHash)
}

func TestLog_SnapshotEveryN(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	l := NewLog(q, 3, testutil.TestLogger())
	ctx := context.Background()

	state := pageState(0)
	writeDraft(t, q, l, "p1", nil, state)
	for i := 1; i <= 6; i++ {
		next := pageState(i)
		writeDraft(t, q, l, "p1", state, next)
		state = next
	}

	entries, err := l.List(ctx, model.KindPage, "p1")
	require.NoError(t, err)
	require.Len(t, entries, 7)
	for i, e := range entries {
		if i%3 == 0 {
			assert.NotEmpty(t, e.Snapshot, "entry %d should carry a snapshot", i)
		} else {
			assert.Empty(t, e.Snapshot, "entry %d should not carry a snapshot", i)
		}
	}
}

func TestLog_TamperedChainIsFatal(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	l := NewLog(q, 10, testutil.TestLogger())
	ctx := context.Background()

	writeDraft(t, q, l, "p1", nil, pageState(1))
	writeDraft(t, q, l, "p1", pageState(1), pageState(2))

	// Out-of-band row tampering.
	_, err := db.ExecContext(ctx,
		`UPDATE versions SET forward_patch = '[{"op":"replace","path":"/name","value":"evil"}]'
		WHERE entity_type = 'page' AND entity_id = 'p1' AND action = 'update'`)
	require.NoError(t, err)

	_, err = l.List(ctx, model.KindPage, "p1")
	assert.ErrorIs(t, err, core.ErrIntegrity)

	// Undo and redo are halted for the entity, never silently wrong.
	_, err = l.Undo(ctx, model.KindPage, "p1", "sess-1")
	assert.ErrorIs(t, err, core.ErrIntegrity)
	_, err = l.Redo(ctx, model.KindPage, "p1", "sess-1")
	assert.ErrorIs(t, err, core.ErrIntegrity)
}

func TestLog_UndoRedoRoundTrip(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	// Small snapshot interval so the round trip crosses snapshot boundaries.
	l := NewLog(q, 3, testutil.TestLogger())
	ctx := context.Background()

	const edits = 7
	state := pageState(0)
	writeDraft(t, q, l, "p1", nil, state)
	for i := 1; i <= edits; i++ {
		next := pageState(i)
		writeDraft(t, q, l, "p1", state, next)
		state = next
	}
	final := pageState(edits)

	for i := 0; i < edits; i++ {
		_, err := l.Undo(ctx, model.KindPage, "p1", "sess-1")
		require.NoError(t, err, "undo %d", i)
	}

	// Fully unwound to the created state, and no further.
	draft, err := q.GetEntity(ctx, model.KindPage, "p1", false)
	require.NoError(t, err)
	assert.Equal(t, pageState(0), draft.Content)
	_, err = l.Undo(ctx, model.KindPage, "p1", "sess-1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	for i := 0; i < edits; i++ {
		_, err := l.Redo(ctx, model.KindPage, "p1", "sess-1")
		require.NoError(t, err, "redo %d", i)
	}
	_, err = l.Redo(ctx, model.KindPage, "p1", "sess-1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	draft, err = q.GetEntity(ctx, model.KindPage, "p1", false)
	require.NoError(t, err)
	assert.Equal(t, final, draft.Content)
	assert.Equal(t, hash.Content(string(model.KindPage), final), draft.ContentHash)
}

func TestLog_UndoRevivesDeletedDraft(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	l := NewLog(q, 10, testutil.TestLogger())
	ctx := context.Background()

	writeDraft(t, q, l, "p1", nil, pageState(1))
	require.NoError(t, q.SoftDeleteDraft(ctx, model.KindPage, "p1"))
	_, err := l.Record(ctx, model.KindPage, "p1", model.ActionDelete, pageState(1), nil, "sess-1")
	require.NoError(t, err)

	_, err = l.Undo(ctx, model.KindPage, "p1", "sess-1")
	require.NoError(t, err)

	draft, err := q.GetEntity(ctx, model.KindPage, "p1", false)
	require.NoError(t, err)
	assert.Equal(t, pageState(1), draft.Content)
}

func TestLog_RestoreToExtendsHistory(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	l := NewLog(q, 10, testutil.TestLogger())
	ctx := context.Background()

	writeDraft(t, q, l, "p1", nil, pageState(1))
	writeDraft(t, q, l, "p1", pageState(1), pageState(2))
	writeDraft(t, q, l, "p1", pageState(2), pageState(3))

	entries, err := l.List(ctx, model.KindPage, "p1")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	v, err := l.RestoreTo(ctx, model.KindPage, "p1", entries[0].ID, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.ActionRestore, v.Action)
	assert.Equal(t, entries[0].ID, v.BaseVersion)

	draft, err := q.GetEntity(ctx, model.KindPage, "p1", false)
	require.NoError(t, err)
	assert.Equal(t, pageState(1), draft.Content)

	// History was extended, never rewritten.
	after, err := l.List(ctx, model.KindPage, "p1")
	require.NoError(t, err)
	assert.Len(t, after, 4)
	assert.Equal(t, entries[0].ID, after[0].ID)

	// Editing after a restore diffs against the restored state.
	writeDraft(t, q, l, "p1", pageState(1), pageState(9))
	_, err = l.Undo(ctx, model.KindPage, "p1", "sess-1")
	require.NoError(t, err)
	draft, err = q.GetEntity(ctx, model.KindPage, "p1", false)
	require.NoError(t, err)
	assert.Equal(t, pageState(1), draft.Content)
}

func TestLog_RestoreRollsBackDraftOnAppendFailure(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	l := NewLog(q, 10, testutil.TestLogger())
	ctx := context.Background()

	writeDraft(t, q, l, "p1", nil, pageState(1))
	writeDraft(t, q, l, "p1", pageState(1), pageState(2))

	entries, err := l.List(ctx, model.KindPage, "p1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	boom := fmt.Errorf("version store down")
	l.appendHook = func(action string) error {
		if action == model.ActionRestore {
			return boom
		}
		return nil
	}
	_, err = l.RestoreTo(ctx, model.KindPage, "p1", entries[0].ID, "sess-1")
	require.ErrorIs(t, err, boom)

	// The draft write rolled back with the failed append: row and log still
	// agree on the latest state.
	draft, err := q.GetEntity(ctx, model.KindPage, "p1", false)
	require.NoError(t, err)
	assert.Equal(t, pageState(2), draft.Content)
	after, err := l.List(ctx, model.KindPage, "p1")
	require.NoError(t, err)
	assert.Len(t, after, 2)

	// Once the append succeeds again the same restore goes through.
	l.appendHook = nil
	_, err = l.RestoreTo(ctx, model.KindPage, "p1", entries[0].ID, "sess-1")
	require.NoError(t, err)
	draft, err = q.GetEntity(ctx, model.KindPage, "p1", false)
	require.NoError(t, err)
	assert.Equal(t, pageState(1), draft.Content)
}

func TestLog_RestoreToMissingVersion(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()
	q := store.New(db)
	l := NewLog(q, 10, testutil.TestLogger())

	writeDraft(t, q, l, "p1", nil, pageState(1))
	_, err := l.RestoreTo(context.Background(), model.KindPage, "p1", 9999, "sess-1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
