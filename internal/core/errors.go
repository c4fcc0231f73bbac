// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package core defines the error taxonomy shared by the versioning engine.
// Callers match these with errors.Is; wrapped messages carry the detail.
package core

import "errors"

var (
	// ErrNotFound indicates the requested row is absent or soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrStaleWrite indicates an optimistic-concurrency failure: the caller's
	// expected content hash no longer matches the current draft row.
	ErrStaleWrite = errors.New("stale write: draft was modified concurrently")

	// ErrConstraint indicates a uniqueness or validation rule would be broken,
	// for example a duplicate slug among sibling pages.
	ErrConstraint = errors.New("constraint violation")

	// ErrIntegrity indicates a broken version-log hash chain or an
	// unapplicable patch. It is fatal for undo/redo on the affected entity
	// and must never be masked.
	ErrIntegrity = errors.New("history integrity error")

	// ErrTxAborted indicates a publish transaction rolled back; no row in the
	// cascade was changed.
	ErrTxAborted = errors.New("publish transaction aborted")

	// ErrStorageUnavailable indicates a transient storage backend failure.
	// Callers may retry with backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrCleanupFailed indicates a blob deletion failure during asset
	// garbage collection. It is logged and retried on the next sweep, never
	// propagated to the triggering user action.
	ErrCleanupFailed = errors.New("asset cleanup failed")
)
