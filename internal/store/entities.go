// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/verso-cms/verso/internal/core"
	"github.com/verso-cms/verso/internal/model"
)

// kindTables maps each publishable kind to its table. Table names are always
// taken from this map, never from caller input.
var kindTables = map[model.Kind]string{
	model.KindPage:        "pages",
	model.KindLayerTree:   "layer_trees",
	model.KindComponent:   "components",
	model.KindLayerStyle:  "layer_styles",
	model.KindCollection:  "collections",
	model.KindField:       "collection_fields",
	model.KindItem:        "collection_items",
	model.KindItemValue:   "item_values",
	model.KindTranslation: "translations",
	model.KindAsset:       "assets",
}

const entityColumns = "id, is_published, parent_id, slug, position, content, content_hash, deleted_at, created_at, updated_at"

func tableFor(kind model.Kind) (string, error) {
	t, ok := kindTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
	return t, nil
}

// UpsertEntityParams are the inputs for writing one draft or published row.
type UpsertEntityParams struct {
	Kind        model.Kind
	ID          string
	IsPublished bool
	Content     map[string]any
	ContentHash string
}

// GetEntity returns one row, excluding soft-deleted rows.
func (q *Queries) GetEntity(ctx context.Context, kind model.Kind, id string, published bool) (model.Entity, error) {
	return q.getEntity(ctx, kind, id, published, false)
}

// GetEntityAny returns one row including soft-deleted rows. The publish
// coordinator uses it to turn deleted drafts into published-row deletions.
func (q *Queries) GetEntityAny(ctx context.Context, kind model.Kind, id string, published bool) (model.Entity, error) {
	return q.getEntity(ctx, kind, id, published, true)
}

func (q *Queries) getEntity(ctx context.Context, kind model.Kind, id string, published, includeDeleted bool) (model.Entity, error) {
	table, err := tableFor(kind)
	if err != nil {
		return model.Entity{}, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ? AND is_published = ?", entityColumns, table)
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}
	row := q.db.QueryRowContext(ctx, query, id, boolInt(published))
	e, err := scanEntity(row.Scan, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Entity{}, fmt.Errorf("%s %s (published=%t): %w", kind, id, published, core.ErrNotFound)
	}
	return e, err
}

// UpsertEntity creates or replaces one row. An upsert is an affirmative write
// of live content: it clears any soft-delete marker on the row. The indexed
// parent/slug/position columns are projected from the content map.
func (q *Queries) UpsertEntity(ctx context.Context, p UpsertEntityParams) error {
	table, err := tableFor(p.Kind)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(p.Content)
	if err != nil {
		return fmt.Errorf("encoding %s content: %w", p.Kind, err)
	}
	proj := model.Project(p.Kind, p.Content)

	query := fmt.Sprintf(`INSERT INTO %s (id, is_published, parent_id, slug, position, content, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id, is_published) DO UPDATE SET
			parent_id = excluded.parent_id,
			slug = excluded.slug,
			position = excluded.position,
			content = excluded.content,
			content_hash = excluded.content_hash,
			deleted_at = NULL,
			updated_at = CURRENT_TIMESTAMP`, table)
	if _, err := q.db.ExecContext(ctx, query,
		p.ID, boolInt(p.IsPublished), nullString(proj.ParentID), proj.Slug, proj.Position,
		string(raw), p.ContentHash); err != nil {
		return fmt.Errorf("upserting %s %s: %w", p.Kind, p.ID, mapConstraint(err))
	}

	if p.Kind == model.KindAsset {
		if err := q.syncAssetProjection(ctx, p.ID, p.IsPublished, p.Content); err != nil {
			return err
		}
	}
	return nil
}

// SoftDeleteDraft marks a draft row deleted. The published twin is untouched;
// publishing the deleted draft is what removes it.
func (q *Queries) SoftDeleteDraft(ctx context.Context, kind model.Kind, id string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("UPDATE %s SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND is_published = 0 AND deleted_at IS NULL", table)
	res, err := q.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("soft-deleting %s %s: %w", kind, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
	}
	return nil
}

// HardDeleteEntity physically removes one row. Used by publish (removing a
// published twin), unpublish, and the retention purge of stale drafts.
func (q *Queries) HardDeleteEntity(ctx context.Context, kind model.Kind, id string, published bool) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ? AND is_published = ?", table)
	if _, err := q.db.ExecContext(ctx, query, id, boolInt(published)); err != nil {
		return fmt.Errorf("deleting %s %s: %w", kind, id, err)
	}
	return nil
}

// ListChildren returns the ordered, non-deleted children of a parent in the
// given publish state: manual position first, then creation order. The order
// is what makes cascaded publish output deterministic.
func (q *Queries) ListChildren(ctx context.Context, kind model.Kind, parentID string, published bool) ([]model.Entity, error) {
	return q.listChildren(ctx, kind, parentID, published, false)
}

// ListChildrenAny is ListChildren including soft-deleted rows.
func (q *Queries) ListChildrenAny(ctx context.Context, kind model.Kind, parentID string, published bool) ([]model.Entity, error) {
	return q.listChildren(ctx, kind, parentID, published, true)
}

func (q *Queries) listChildren(ctx context.Context, kind model.Kind, parentID string, published, includeDeleted bool) ([]model.Entity, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE parent_id = ? AND is_published = ?", entityColumns, table)
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}
	query += " ORDER BY position, created_at, id"
	return q.queryEntities(ctx, kind, query, parentID, boolInt(published))
}

// ListChildrenPage returns one page slice of a parent's children, for the
// paginated read path.
func (q *Queries) ListChildrenPage(ctx context.Context, kind model.Kind, parentID string, published bool, limit, offset int64) ([]model.Entity, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE parent_id = ? AND is_published = ? AND deleted_at IS NULL
		ORDER BY position, created_at, id LIMIT ? OFFSET ?`, entityColumns, table)
	return q.queryEntities(ctx, kind, query, parentID, boolInt(published), limit, offset)
}

// CountChildren counts the non-deleted children of a parent.
func (q *Queries) CountChildren(ctx context.Context, kind model.Kind, parentID string, published bool) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE parent_id = ? AND is_published = ? AND deleted_at IS NULL", table)
	if err := q.db.QueryRowContext(ctx, query, parentID, boolInt(published)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s children: %w", kind, err)
	}
	return n, nil
}

// SlugExistsParams describe a sibling-uniqueness check.
type SlugExistsParams struct {
	Kind      model.Kind
	ParentID  string
	Slug      string
	ExcludeID string
}

// SlugExists reports whether another non-deleted draft sibling already uses
// the slug.
func (q *Queries) SlugExists(ctx context.Context, p SlugExistsParams) (bool, error) {
	table, err := tableFor(p.Kind)
	if err != nil {
		return false, err
	}
	var n int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s
		WHERE is_published = 0 AND deleted_at IS NULL
		AND COALESCE(parent_id, '') = ? AND slug = ? AND id != ?`, table)
	if err := q.db.QueryRowContext(ctx, query, p.ParentID, p.Slug, p.ExcludeID).Scan(&n); err != nil {
		return false, fmt.Errorf("checking slug: %w", err)
	}
	return n > 0, nil
}

// ListPurgeableDrafts returns soft-deleted drafts older than the cutoff whose
// published twin is gone. These are safe to hard-delete.
func (q *Queries) ListPurgeableDrafts(ctx context.Context, kind model.Kind, cutoff time.Time) ([]model.Entity, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM %s AS d
		WHERE d.is_published = 0 AND d.deleted_at IS NOT NULL AND d.deleted_at < ?
		AND NOT EXISTS (SELECT 1 FROM %s AS p WHERE p.id = d.id AND p.is_published = 1)
		ORDER BY d.deleted_at`, entityColumns, table, table)
	// deleted_at is written by CURRENT_TIMESTAMP; compare in the same text format.
	return q.queryEntities(ctx, kind, query, cutoff.UTC().Format("2006-01-02 15:04:05"))
}

// syncAssetProjection mirrors an asset's storage paths into indexed columns
// and variant rows so garbage collection can count references cheaply.
func (q *Queries) syncAssetProjection(ctx context.Context, id string, published bool, content map[string]any) error {
	var asset model.AssetContent
	if err := model.DecodeContent(content, &asset); err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx,
		"UPDATE assets SET storage_path = ? WHERE id = ? AND is_published = ?",
		asset.StoragePath, id, boolInt(published)); err != nil {
		return fmt.Errorf("projecting asset path: %w", err)
	}
	if _, err := q.db.ExecContext(ctx,
		"DELETE FROM asset_variants WHERE asset_id = ? AND is_published = ?",
		id, boolInt(published)); err != nil {
		return fmt.Errorf("clearing asset variants: %w", err)
	}
	for _, v := range asset.Variants {
		if _, err := q.db.ExecContext(ctx,
			`INSERT INTO asset_variants (asset_id, is_published, variant_type, storage_path, width, height)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, boolInt(published), v.Type, v.StoragePath, v.Width, v.Height); err != nil {
			return fmt.Errorf("projecting asset variant: %w", err)
		}
	}
	return nil
}

func (q *Queries) queryEntities(ctx context.Context, kind model.Kind, query string, args ...any) ([]model.Entity, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows.Scan, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntity(scan func(...any) error, kind model.Kind) (model.Entity, error) {
	var (
		e         model.Entity
		published int64
		parentID  sql.NullString
		content   string
		deletedAt sql.NullTime
	)
	if err := scan(&e.ID, &published, &parentID, &e.Slug, &e.Position, &content,
		&e.ContentHash, &deletedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return model.Entity{}, err
	}
	e.Kind = kind
	e.IsPublished = published != 0
	e.ParentID = parentID.String
	e.Deleted = deletedAt.Valid
	if err := json.Unmarshal([]byte(content), &e.Content); err != nil {
		return model.Entity{}, fmt.Errorf("decoding %s %s content: %w", kind, e.ID, err)
	}
	return e, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// mapConstraint converts SQLite constraint failures into the shared
// taxonomy so handlers can surface them as user-facing validation errors.
func mapConstraint(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "constraint failed") || strings.Contains(msg, "FOREIGN KEY") {
		return fmt.Errorf("%w: %s", core.ErrConstraint, msg)
	}
	return err
}
