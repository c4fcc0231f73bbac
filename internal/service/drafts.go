// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service implements the write path for drafts and asset uploads.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/verso-cms/verso/internal/core"
	"github.com/verso-cms/verso/internal/hash"
	"github.com/verso-cms/verso/internal/history"
	"github.com/verso-cms/verso/internal/model"
	"github.com/verso-cms/verso/internal/store"
	"github.com/verso-cms/verso/internal/util"
)

// Drafts is the draft write service: every edit lands here, gets hashed,
// validated and recorded in the version log in the same transaction as the
// row write.
type Drafts struct {
	db        *sql.DB
	queries   *store.Queries
	log       *history.Log
	logger    *slog.Logger
	sanitizer *bluemonday.Policy
}

func NewDrafts(db *sql.DB, log *history.Log, logger *slog.Logger) *Drafts {
	if logger == nil {
		logger = slog.Default()
	}
	return &Drafts{
		db:        db,
		queries:   store.New(db),
		log:       log,
		logger:    logger,
		sanitizer: bluemonday.UGCPolicy(),
	}
}

// SaveParams describe one draft write.
type SaveParams struct {
	Kind model.Kind
	// ID may be empty for creates; a new UUID is assigned.
	ID      string
	Content map[string]any
	// ExpectedHash enables the optimistic concurrency check: when set, the
	// write only proceeds if the current draft's content hash matches.
	ExpectedHash string
	SessionID    string
}

// SaveResult is a committed draft write.
type SaveResult struct {
	Entity  model.Entity
	Created bool
	// Changed is false when the write was a no-op: identical content
	// writes nothing and appends no version entry.
	Changed bool
}

// Save validates, sanitizes and writes one draft, appending the matching
// version entry. Returns ErrStaleWrite when the expected hash is stale,
// ErrConstraint on slug or identifier collisions.
func (s *Drafts) Save(ctx context.Context, p SaveParams) (*SaveResult, error) {
	if !p.Kind.Valid() {
		return nil, fmt.Errorf("saving draft: unknown kind %q: %w", p.Kind, core.ErrNotFound)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	qtx := s.queries.WithTx(tx)

	// The stale check reads through the write transaction: two concurrent
	// saves for the same draft serialize on it, so both can never pass the
	// check against the same hash.
	existing, err := qtx.GetEntityAny(ctx, p.Kind, p.ID, false)
	exists := err == nil
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	if p.ExpectedHash != "" {
		if !exists || existing.Deleted {
			return nil, fmt.Errorf("draft %s %s: %w", p.Kind, p.ID, core.ErrStaleWrite)
		}
		if existing.ContentHash != p.ExpectedHash {
			return nil, fmt.Errorf("draft %s %s: %w", p.Kind, p.ID, core.ErrStaleWrite)
		}
	}

	content, err := s.prepare(ctx, qtx, p.Kind, p.ID, p.Content)
	if err != nil {
		return nil, err
	}

	contentHash := hash.Content(string(p.Kind), content)
	if exists && !existing.Deleted && existing.ContentHash == contentHash {
		return &SaveResult{Entity: existing, Changed: false}, nil
	}

	created := !exists || existing.Deleted
	action := model.ActionUpdate
	var before map[string]any
	if created {
		action = model.ActionCreate
	} else {
		before = existing.Content
	}

	if err := qtx.UpsertEntity(ctx, store.UpsertEntityParams{
		Kind:        p.Kind,
		ID:          p.ID,
		IsPublished: false,
		Content:     content,
		ContentHash: contentHash,
	}); err != nil {
		return nil, err
	}
	if _, err := s.log.WithQueries(qtx).Record(ctx, p.Kind, p.ID, action, before, content, p.SessionID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	entity, err := s.queries.GetEntity(ctx, p.Kind, p.ID, false)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("draft saved", "kind", p.Kind, "id", p.ID, "action", action)
	return &SaveResult{Entity: entity, Created: created, Changed: true}, nil
}

// Delete soft-deletes a draft and its owned subtree, one version entry per
// removed draft. The published twins stay live until the next publish.
func (s *Drafts) Delete(ctx context.Context, kind model.Kind, id, sessionID string) error {
	if !kind.Valid() {
		return fmt.Errorf("deleting draft: unknown kind %q: %w", kind, core.ErrNotFound)
	}
	root, err := s.queries.GetEntity(ctx, kind, id, false)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	qtx := s.queries.WithTx(tx)

	if err := s.deleteTree(ctx, qtx, kind, root); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug("draft deleted", "kind", kind, "id", id)
	return nil
}

func (s *Drafts) deleteTree(ctx context.Context, qtx *store.Queries, kind model.Kind, e model.Entity) error {
	for _, childKind := range model.ChildKinds(kind) {
		children, err := qtx.ListChildren(ctx, childKind, e.ID, false)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := s.deleteTree(ctx, qtx, childKind, child); err != nil {
				return err
			}
		}
	}
	if err := qtx.SoftDeleteDraft(ctx, kind, e.ID); err != nil {
		return err
	}
	_, err := s.log.WithQueries(qtx).Record(ctx, kind, e.ID, model.ActionDelete, e.Content, nil, "")
	return err
}

// prepare normalizes content before hashing: page slugs are generated and
// checked for sibling collisions, collection identifiers for global ones,
// and rich-text item values are sanitized.
func (s *Drafts) prepare(ctx context.Context, qtx *store.Queries, kind model.Kind, id string, content map[string]any) (map[string]any, error) {
	// Owned kinds must name their parent, or the publish and delete
	// cascades can never reach them.
	if parent := model.ParentKind(kind); parent != "" {
		if model.Project(kind, content).ParentID == "" {
			return nil, fmt.Errorf("%w: %s needs its owning %s id", core.ErrConstraint, kind, parent)
		}
	}

	switch kind {
	case model.KindPage:
		var page model.PageContent
		if err := model.DecodeContent(content, &page); err != nil {
			return nil, fmt.Errorf("%w: invalid page content: %v", core.ErrConstraint, err)
		}
		if page.Slug == "" || !util.IsValidSlug(page.Slug) {
			source := page.Slug
			if source == "" {
				source = page.Name
			}
			page.Slug = util.Slugify(source)
		}
		if page.Slug == "" {
			return nil, fmt.Errorf("%w: page needs a name or slug", core.ErrConstraint)
		}
		taken, err := qtx.SlugExists(ctx, store.SlugExistsParams{
			Kind:      model.KindPage,
			ParentID:  page.FolderID,
			Slug:      page.Slug,
			ExcludeID: id,
		})
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, fmt.Errorf("%w: slug %q already used by a sibling page", core.ErrConstraint, page.Slug)
		}
		return model.EncodeContent(&page)

	case model.KindCollection:
		var coll model.CollectionContent
		if err := model.DecodeContent(content, &coll); err != nil {
			return nil, fmt.Errorf("%w: invalid collection content: %v", core.ErrConstraint, err)
		}
		if coll.Identifier == "" {
			coll.Identifier = util.Slugify(coll.Name)
		}
		if coll.Identifier == "" {
			return nil, fmt.Errorf("%w: collection needs a name or identifier", core.ErrConstraint)
		}
		taken, err := qtx.SlugExists(ctx, store.SlugExistsParams{
			Kind:      model.KindCollection,
			Slug:      coll.Identifier,
			ExcludeID: id,
		})
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, fmt.Errorf("%w: collection identifier %q already in use", core.ErrConstraint, coll.Identifier)
		}
		return model.EncodeContent(&coll)

	case model.KindItemValue:
		return s.sanitizeValue(ctx, qtx, content)

	default:
		return content, nil
	}
}

// sanitizeValue strips unsafe HTML from rich-text cell values. The field's
// draft schema decides whether the value is rich text.
func (s *Drafts) sanitizeValue(ctx context.Context, qtx *store.Queries, content map[string]any) (map[string]any, error) {
	var value model.ItemValueContent
	if err := model.DecodeContent(content, &value); err != nil {
		return nil, fmt.Errorf("%w: invalid item value content: %v", core.ErrConstraint, err)
	}
	if value.FieldID == "" {
		return content, nil
	}
	field, err := qtx.GetEntity(ctx, model.KindField, value.FieldID, false)
	if errors.Is(err, core.ErrNotFound) {
		return content, nil
	}
	if err != nil {
		return nil, err
	}
	var schema model.FieldContent
	if err := model.DecodeContent(field.Content, &schema); err != nil {
		return nil, err
	}
	if schema.Type != model.FieldTypeRichText {
		return content, nil
	}
	value.Value = s.sanitizer.Sanitize(value.Value)
	return model.EncodeContent(&value)
}
