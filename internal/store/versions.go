// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/verso-cms/verso/internal/core"
	"github.com/verso-cms/verso/internal/model"
)

const versionColumns = "id, entity_type, entity_id, action, forward_patch, inverse_patch, snapshot, base_version, metadata, previous_hash, current_hash, session_id, created_at"

// CreateVersionParams are the inputs for appending one history entry.
type CreateVersionParams struct {
	EntityType   string
	EntityID     string
	Action       string
	ForwardPatch string
	InversePatch string
	Snapshot     string
	BaseVersion  int64
	Metadata     string
	PreviousHash string
	CurrentHash  string
	SessionID    string
}

// CreateVersion appends one entry to the version log.
func (q *Queries) CreateVersion(ctx context.Context, p CreateVersionParams) (model.Version, error) {
	row := q.db.QueryRowContext(ctx, `INSERT INTO versions
		(entity_type, entity_id, action, forward_patch, inverse_patch, snapshot, base_version, metadata, previous_hash, current_hash, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+versionColumns,
		p.EntityType, p.EntityID, p.Action, p.ForwardPatch, p.InversePatch,
		p.Snapshot, p.BaseVersion, p.Metadata, p.PreviousHash, p.CurrentHash, p.SessionID)
	v, err := scanVersion(row.Scan)
	if err != nil {
		return model.Version{}, fmt.Errorf("appending version: %w", err)
	}
	return v, nil
}

// GetVersion returns one history entry by id, scoped to an entity.
func (q *Queries) GetVersion(ctx context.Context, entityType, entityID string, id int64) (model.Version, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM versions
		WHERE id = ? AND entity_type = ? AND entity_id = ?`, id, entityType, entityID)
	v, err := scanVersion(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Version{}, fmt.Errorf("version %d of %s %s: %w", id, entityType, entityID, core.ErrNotFound)
	}
	return v, err
}

// LatestVersion returns an entity's newest history entry.
func (q *Queries) LatestVersion(ctx context.Context, entityType, entityID string) (model.Version, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM versions
		WHERE entity_type = ? AND entity_id = ? ORDER BY id DESC LIMIT 1`, entityType, entityID)
	v, err := scanVersion(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Version{}, fmt.Errorf("history of %s %s: %w", entityType, entityID, core.ErrNotFound)
	}
	return v, err
}

// ListVersions returns an entity's history, oldest first.
func (q *Queries) ListVersions(ctx context.Context, entityType, entityID string) ([]model.Version, error) {
	return q.queryVersions(ctx, `SELECT `+versionColumns+` FROM versions
		WHERE entity_type = ? AND entity_id = ? ORDER BY id`, entityType, entityID)
}

// CountVersions counts an entity's history entries.
func (q *Queries) CountVersions(ctx context.Context, entityType, entityID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM versions WHERE entity_type = ? AND entity_id = ?",
		entityType, entityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting versions: %w", err)
	}
	return n, nil
}

func (q *Queries) queryVersions(ctx context.Context, query string, args ...any) ([]model.Version, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Version
	for rows.Next() {
		v, err := scanVersion(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVersion(scan func(...any) error) (model.Version, error) {
	var v model.Version
	err := scan(&v.ID, &v.EntityType, &v.EntityID, &v.Action, &v.ForwardPatch,
		&v.InversePatch, &v.Snapshot, &v.BaseVersion, &v.Metadata,
		&v.PreviousHash, &v.CurrentHash, &v.SessionID, &v.CreatedAt)
	return v, err
}
