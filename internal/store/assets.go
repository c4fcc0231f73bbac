// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"fmt"
	"time"
)

// CountStoragePathRefs counts the non-deleted rows, draft or published, that
// still reference a storage path: asset rows plus their projected variant
// rows. Garbage collection deletes a blob only when this is zero.
func (q *Queries) CountStoragePathRefs(ctx context.Context, path string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM assets WHERE storage_path = ? AND deleted_at IS NULL)
		+ (SELECT COUNT(*) FROM asset_variants av
			JOIN assets a ON a.id = av.asset_id AND a.is_published = av.is_published
			WHERE av.storage_path = ? AND a.deleted_at IS NULL)`,
		path, path).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting references to %s: %w", path, err)
	}
	return n, nil
}

// EnqueueGCPath records a storage path whose deletion is pending or failed,
// so a later sweep can retry it.
func (q *Queries) EnqueueGCPath(ctx context.Context, path string) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO gc_pending (path) VALUES (?) ON CONFLICT (path) DO NOTHING", path)
	if err != nil {
		return fmt.Errorf("enqueueing gc path: %w", err)
	}
	return nil
}

// ListGCPending returns queued storage paths, oldest first.
func (q *Queries) ListGCPending(ctx context.Context, limit int64) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT path FROM gc_pending ORDER BY enqueued_at LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing gc queue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// DequeueGCPath removes a path from the pending queue after it was deleted
// or found to be referenced again.
func (q *Queries) DequeueGCPath(ctx context.Context, path string) error {
	if _, err := q.db.ExecContext(ctx, "DELETE FROM gc_pending WHERE path = ?", path); err != nil {
		return fmt.Errorf("dequeueing gc path: %w", err)
	}
	return nil
}

// CreateEventParams are the inputs for one event-log record.
type CreateEventParams struct {
	Level    string
	Category string
	Message  string
	Metadata string
}

// CreateEvent writes one application event record.
func (q *Queries) CreateEvent(ctx context.Context, p CreateEventParams) error {
	_, err := q.db.ExecContext(ctx,
		"INSERT INTO events (level, category, message, metadata) VALUES (?, ?, ?, ?)",
		p.Level, p.Category, p.Message, p.Metadata)
	if err != nil {
		return fmt.Errorf("creating event: %w", err)
	}
	return nil
}

// Event is one application event-log record.
type Event struct {
	ID        int64
	Level     string
	Category  string
	Message   string
	Metadata  string
	CreatedAt time.Time
}

// ListRecentEvents returns the newest event records, newest first.
func (q *Queries) ListRecentEvents(ctx context.Context, limit int64) ([]Event, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, level, category, message, metadata, created_at
		FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Level, &e.Category, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
