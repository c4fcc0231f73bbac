// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/verso-cms/verso/internal/core"
	"github.com/verso-cms/verso/internal/hash"
	"github.com/verso-cms/verso/internal/model"
	"github.com/verso-cms/verso/internal/store"
)

// DefaultSnapshotEvery is how often a full snapshot is written: every Nth
// entry, bounding replay cost for restore.
const DefaultSnapshotEvery = 10

// Log is the append-only version log for one database. History is never
// rewritten: undo, redo and restore extend it with new restore entries.
type Log struct {
	queries       *store.Queries
	snapshotEvery int64
	logger        *slog.Logger

	// appendHook, when set, runs before every append. Used by tests to
	// inject append failures.
	appendHook func(action string) error
}

// NewLog creates a version log over the given queries handle.
func NewLog(queries *store.Queries, snapshotEvery int64, logger *slog.Logger) *Log {
	if snapshotEvery <= 0 {
		snapshotEvery = DefaultSnapshotEvery
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{queries: queries, snapshotEvery: snapshotEvery, logger: logger}
}

// WithQueries returns a Log bound to a different queries handle, typically
// one inside a transaction.
func (l *Log) WithQueries(queries *store.Queries) *Log {
	return &Log{queries: queries, snapshotEvery: l.snapshotEvery, logger: l.logger, appendHook: l.appendHook}
}

// Record appends one entry for a draft state change. before is nil for
// create, after is nil for delete. The inverse patch is omitted for create:
// there is no earlier state to return to.
func (l *Log) Record(ctx context.Context, kind model.Kind, id, action string, before, after map[string]any, sessionID string) (model.Version, error) {
	return l.append(ctx, kind, id, action, before, after, 0, "", sessionID)
}

// RecordPublish appends one publish entry on the root entity, summarizing the
// cascade by ids rather than payloads to keep the log small.
func (l *Log) RecordPublish(ctx context.Context, kind model.Kind, id string, summary PublishSummary, sessionID string) (model.Version, error) {
	meta, err := json.Marshal(summary)
	if err != nil {
		return model.Version{}, fmt.Errorf("encoding publish summary: %w", err)
	}
	return l.append(ctx, kind, id, model.ActionPublish, nil, nil, 0, string(meta), sessionID)
}

// PublishSummary lists what one publish cascade touched.
type PublishSummary struct {
	Upserted []EntityRef `json:"upserted,omitempty"`
	Deleted  []EntityRef `json:"deleted,omitempty"`
	Skipped  int         `json:"skipped,omitempty"`
	// Unpublish marks a cascade that removed published rows only.
	Unpublish bool `json:"unpublish,omitempty"`
}

// EntityRef addresses one entity touched by a cascade.
type EntityRef struct {
	Kind model.Kind `json:"kind"`
	ID   string     `json:"id"`
}

func (l *Log) append(ctx context.Context, kind model.Kind, id, action string, before, after map[string]any, baseVersion int64, metadata, sessionID string) (model.Version, error) {
	if l.appendHook != nil {
		if err := l.appendHook(action); err != nil {
			return model.Version{}, err
		}
	}
	prevHash := ""
	latest, err := l.queries.LatestVersion(ctx, string(kind), id)
	switch {
	case err == nil:
		prevHash = latest.CurrentHash
	case errors.Is(err, core.ErrNotFound):
		// First entry for this entity.
	default:
		return model.Version{}, err
	}

	var forward, inverse Patch
	if action != model.ActionPublish {
		forward = Diff(before, after)
		if action != model.ActionCreate {
			inverse = Diff(after, before)
		}
	}

	snapshot := ""
	if action != model.ActionPublish {
		count, err := l.queries.CountVersions(ctx, string(kind), id)
		if err != nil {
			return model.Version{}, err
		}
		if count%l.snapshotEvery == 0 {
			raw, err := json.Marshal(after)
			if err != nil {
				return model.Version{}, fmt.Errorf("encoding snapshot: %w", err)
			}
			snapshot = string(raw)
		}
	}

	p := store.CreateVersionParams{
		EntityType:   string(kind),
		EntityID:     id,
		Action:       action,
		ForwardPatch: forward.Encode(),
		InversePatch: inverse.Encode(),
		Snapshot:     snapshot,
		BaseVersion:  baseVersion,
		Metadata:     metadata,
		PreviousHash: prevHash,
		SessionID:    sessionID,
	}
	p.CurrentHash = chainHash(prevHash, p)
	return l.queries.CreateVersion(ctx, p)
}

func chainHash(prevHash string, p store.CreateVersionParams) string {
	return hash.Chain(prevHash, p.EntityType, p.EntityID, p.Action,
		p.ForwardPatch, p.InversePatch, p.Snapshot, p.Metadata)
}

// List returns an entity's history, oldest first, after verifying the hash
// chain. A broken chain is a fatal integrity error, surfaced not skipped.
func (l *Log) List(ctx context.Context, kind model.Kind, id string) ([]model.Version, error) {
	entries, err := l.queries.ListVersions(ctx, string(kind), id)
	if err != nil {
		return nil, err
	}
	if err := verifyChain(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// verifyChain recomputes every entry's chain hash. Any mismatch means the
// log was modified out of band.
func verifyChain(entries []model.Version) error {
	prev := ""
	for _, e := range entries {
		if e.PreviousHash != prev {
			return fmt.Errorf("%w: entry %d of %s %s: previous hash mismatch",
				core.ErrIntegrity, e.ID, e.EntityType, e.EntityID)
		}
		recomputed := hash.Chain(prev, e.EntityType, e.EntityID, e.Action,
			e.ForwardPatch, e.InversePatch, e.Snapshot, e.Metadata)
		if recomputed != e.CurrentHash {
			return fmt.Errorf("%w: entry %d of %s %s: chain hash mismatch",
				core.ErrIntegrity, e.ID, e.EntityType, e.EntityID)
		}
		prev = e.CurrentHash
	}
	return nil
}

// stateAt reconstructs the entity state as of entry versionID, choosing the
// cheaper of two routes: forward from the nearest preceding snapshot, or
// backward from the current draft via inverse patches. An empty state means
// the entity was deleted at that point.
func (l *Log) stateAt(ctx context.Context, entries []model.Version, kind model.Kind, id string, versionID int64) (map[string]any, error) {
	targetIdx := -1
	for i, e := range entries {
		if e.ID == versionID {
			targetIdx = i
			break
		}
	}
	if targetIdx < 0 {
		return nil, fmt.Errorf("version %d of %s %s: %w", versionID, kind, id, core.ErrNotFound)
	}

	// Nearest snapshot at or before the target.
	snapIdx := -1
	for i := targetIdx; i >= 0; i-- {
		if entries[i].Snapshot != "" {
			snapIdx = i
			break
		}
	}

	forwardCost := targetIdx - snapIdx
	backwardCost := len(entries) - 1 - targetIdx
	if snapIdx < 0 {
		forwardCost = targetIdx + 1
	}

	if backwardCost < forwardCost {
		return l.stateBackward(ctx, entries, kind, id, targetIdx)
	}
	return stateForward(entries, snapIdx, targetIdx)
}

func stateForward(entries []model.Version, snapIdx, targetIdx int) (map[string]any, error) {
	var state map[string]any
	start := 0
	if snapIdx >= 0 {
		if err := json.Unmarshal([]byte(entries[snapIdx].Snapshot), &state); err != nil {
			return nil, fmt.Errorf("%w: malformed snapshot in entry %d: %v",
				core.ErrIntegrity, entries[snapIdx].ID, err)
		}
		start = snapIdx + 1
	}
	for i := start; i <= targetIdx; i++ {
		e := entries[i]
		if !e.IsStateChange() {
			continue
		}
		patch, err := DecodePatch(e.ForwardPatch)
		if err != nil {
			return nil, err
		}
		next, err := Apply(state, patch)
		if err != nil {
			return nil, fmt.Errorf("replaying entry %d: %w", e.ID, err)
		}
		state = next
	}
	return state, nil
}

func (l *Log) stateBackward(ctx context.Context, entries []model.Version, kind model.Kind, id string, targetIdx int) (map[string]any, error) {
	current, err := l.queries.GetEntityAny(ctx, kind, id, false)
	if err != nil {
		return nil, err
	}
	state := current.Content
	if current.Deleted {
		state = map[string]any{}
	}
	for i := len(entries) - 1; i > targetIdx; i-- {
		e := entries[i]
		if !e.IsStateChange() {
			continue
		}
		patch, err := DecodePatch(e.InversePatch)
		if err != nil {
			return nil, err
		}
		next, err := Apply(state, patch)
		if err != nil {
			return nil, fmt.Errorf("unwinding entry %d: %w", e.ID, err)
		}
		state = next
	}
	return state, nil
}

// cursor resolves the entry that defines the entity's current draft state:
// the newest state-change entry, with restore entries resolved to the
// non-restore entry whose state they reproduced.
func cursor(entries []model.Version) (model.Version, error) {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !e.IsStateChange() {
			continue
		}
		if e.Action == model.ActionRestore {
			for _, base := range entries {
				if base.ID == e.BaseVersion {
					return base, nil
				}
			}
			return model.Version{}, fmt.Errorf("%w: restore entry %d references missing version %d",
				core.ErrIntegrity, e.ID, e.BaseVersion)
		}
		return e, nil
	}
	return model.Version{}, fmt.Errorf("no history: %w", core.ErrNotFound)
}

// Undo moves the draft to the state preceding the current one and appends a
// restore entry. Undoing past the create entry is not possible.
func (l *Log) Undo(ctx context.Context, kind model.Kind, id, sessionID string) (model.Version, error) {
	entries, err := l.List(ctx, kind, id)
	if err != nil {
		return model.Version{}, err
	}
	cur, err := cursor(entries)
	if err != nil {
		return model.Version{}, err
	}
	if cur.Action == model.ActionCreate {
		return model.Version{}, fmt.Errorf("nothing to undo for %s %s: %w", kind, id, core.ErrNotFound)
	}
	// The state immediately before the cursor entry.
	var target model.Version
	found := false
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.ID < cur.ID && e.IsStateChange() {
			target = e
			found = true
			break
		}
	}
	if !found {
		return model.Version{}, fmt.Errorf("nothing to undo for %s %s: %w", kind, id, core.ErrNotFound)
	}
	return l.restore(ctx, entries, kind, id, target, sessionID)
}

// Redo moves the draft forward along the original edit timeline and appends
// a restore entry.
func (l *Log) Redo(ctx context.Context, kind model.Kind, id, sessionID string) (model.Version, error) {
	entries, err := l.List(ctx, kind, id)
	if err != nil {
		return model.Version{}, err
	}
	cur, err := cursor(entries)
	if err != nil {
		return model.Version{}, err
	}
	// The next original (non-restore) state entry after the cursor.
	var target model.Version
	found := false
	for _, e := range entries {
		if e.ID > cur.ID && e.IsStateChange() && e.Action != model.ActionRestore {
			target = e
			found = true
			break
		}
	}
	if !found {
		return model.Version{}, fmt.Errorf("nothing to redo for %s %s: %w", kind, id, core.ErrNotFound)
	}
	return l.restore(ctx, entries, kind, id, target, sessionID)
}

// RestoreTo reconstructs the state as of versionID and writes it as the new
// draft state, recording the move as a new restore entry. History is only
// ever extended.
func (l *Log) RestoreTo(ctx context.Context, kind model.Kind, id string, versionID int64, sessionID string) (model.Version, error) {
	// The target is resolved by a direct row read; the full chain is only
	// loaded and verified once the restore actually proceeds.
	target, err := l.queries.GetVersion(ctx, string(kind), id, versionID)
	if err != nil {
		return model.Version{}, err
	}
	if !target.IsStateChange() {
		return model.Version{}, fmt.Errorf("version %d of %s %s is not a content state: %w",
			versionID, kind, id, core.ErrConstraint)
	}
	// Restoring to a restore entry means restoring to its base state.
	if target.Action == model.ActionRestore {
		return l.RestoreTo(ctx, kind, id, target.BaseVersion, sessionID)
	}
	entries, err := l.List(ctx, kind, id)
	if err != nil {
		return model.Version{}, err
	}
	return l.restore(ctx, entries, kind, id, target, sessionID)
}

func (l *Log) restore(ctx context.Context, entries []model.Version, kind model.Kind, id string, target model.Version, sessionID string) (model.Version, error) {
	// A restore target resolves to the original entry whose state it
	// reproduced, so BaseVersion always points at a non-restore entry.
	for target.Action == model.ActionRestore {
		resolved := false
		for _, e := range entries {
			if e.ID == target.BaseVersion {
				target = e
				resolved = true
				break
			}
		}
		if !resolved {
			return model.Version{}, fmt.Errorf("%w: restore entry %d references missing version %d",
				core.ErrIntegrity, target.ID, target.BaseVersion)
		}
	}

	targetState, err := l.stateAt(ctx, entries, kind, id, target.ID)
	if err != nil {
		return model.Version{}, err
	}

	current, err := l.queries.GetEntityAny(ctx, kind, id, false)
	if err != nil {
		return model.Version{}, err
	}
	currentState := current.Content
	if current.Deleted {
		currentState = map[string]any{}
	}

	// The draft write and the restore entry land in one transaction, so the
	// row can never diverge from the log when the append fails.
	var entry model.Version
	err = l.queries.Tx(ctx, func(qtx *store.Queries) error {
		if len(targetState) == 0 {
			if !current.Deleted {
				if err := qtx.SoftDeleteDraft(ctx, kind, id); err != nil {
					return err
				}
			}
		} else {
			if err := qtx.UpsertEntity(ctx, store.UpsertEntityParams{
				Kind:        kind,
				ID:          id,
				IsPublished: false,
				Content:     targetState,
				ContentHash: hash.Content(string(kind), targetState),
			}); err != nil {
				return err
			}
		}

		entry, err = l.WithQueries(qtx).append(ctx, kind, id, model.ActionRestore, currentState, targetState, target.ID, "", sessionID)
		return err
	})
	if err != nil {
		return model.Version{}, err
	}
	return entry, nil
}
