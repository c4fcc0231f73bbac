// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import "time"

// Version log actions.
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionPublish = "publish"
	ActionRestore = "restore"
)

// Version is one append-only history entry for an entity. Entries are never
// rewritten; undo, redo and restore extend the log with new restore entries.
type Version struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	// ForwardPatch moves the previous state to this one; InversePatch undoes
	// it. Both are JSON patch documents, empty for create/publish entries.
	ForwardPatch string `json:"forward_patch,omitempty"`
	InversePatch string `json:"inverse_patch,omitempty"`
	// Snapshot is the full entity state, written every Nth entry to bound
	// replay cost.
	Snapshot string `json:"snapshot,omitempty"`
	// BaseVersion points at the version a restore entry reproduced.
	BaseVersion int64 `json:"base_version,omitempty"`
	// Metadata carries action-specific detail, e.g. the ids touched by a
	// publish cascade.
	Metadata     string    `json:"metadata,omitempty"`
	PreviousHash string    `json:"previous_hash"`
	CurrentHash  string    `json:"current_hash"`
	SessionID    string    `json:"session_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsStateChange reports whether the entry moved the draft state. Publish
// entries summarize a cascade and are skipped during replay.
func (v *Version) IsStateChange() bool {
	return v.Action != ActionPublish
}
