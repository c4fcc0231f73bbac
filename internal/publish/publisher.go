// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package publish orchestrates moving a root entity and its owned subtree
// between the draft and published graphs. One publish invocation is one
// transaction: either the whole cascade commits or none of it does.
package publish

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/verso-cms/verso/internal/core"
	"github.com/verso-cms/verso/internal/history"
	"github.com/verso-cms/verso/internal/model"
	"github.com/verso-cms/verso/internal/store"
)

// Cleaner reclaims blob storage for candidate paths after a commit. Cleanup
// is best-effort and must never fail the publish that triggered it.
type Cleaner interface {
	Clean(ctx context.Context, paths []string)
}

// Invalidator drops read-through caches of published content after a commit.
type Invalidator interface {
	InvalidatePublished(ctx context.Context)
}

// Notifier dispatches fire-and-forget events after a commit.
type Notifier interface {
	Notify(ctx context.Context, eventType string, data any)
}

// Publisher coordinates publish and unpublish cascades.
type Publisher struct {
	db      *sql.DB
	queries *store.Queries
	log     *history.Log
	logger  *slog.Logger

	cleaner     Cleaner
	invalidator Invalidator
	notifier    Notifier

	// writeHook runs before every row write inside the transaction. Tests
	// use it to inject failures mid-cascade.
	writeHook func(op string, ref history.EntityRef) error
}

// New creates a Publisher. cleaner, invalidator and notifier may be nil.
func New(db *sql.DB, log *history.Log, logger *slog.Logger, cleaner Cleaner, invalidator Invalidator, notifier Notifier) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		db:          db,
		queries:     store.New(db),
		log:         log,
		logger:      logger,
		cleaner:     cleaner,
		invalidator: invalidator,
		notifier:    notifier,
	}
}

// Result summarizes one committed cascade.
type Result struct {
	Root     history.EntityRef
	Upserted []history.EntityRef
	Deleted  []history.EntityRef
	Skipped  int
	// OrphanCandidates are storage paths that may have lost their last
	// reference and are handed to the asset garbage collector.
	OrphanCandidates []string
}

// planOp is one node of a publish plan, in parent-before-child order.
type planOp struct {
	ref     history.EntityRef
	action  string // "upsert" | "delete" | "skip"
	draft   *model.Entity
	pub     *model.Entity
	orphans []string
}

// Publish reads the draft subtree under the root, diffs content hashes
// against the published twins, and applies the difference in one
// transaction. Unchanged rows are skipped entirely, so publishing a large
// collection after editing one item performs O(1) writes.
func (p *Publisher) Publish(ctx context.Context, kind model.Kind, rootID string) (*Result, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("publish root: unknown kind %q: %w", kind, core.ErrNotFound)
	}

	plan, err := p.plan(ctx, kind, rootID)
	if err != nil {
		return nil, err
	}

	res := &Result{Root: history.EntityRef{Kind: kind, ID: rootID}}
	for _, op := range plan {
		switch op.action {
		case "upsert":
			res.Upserted = append(res.Upserted, op.ref)
		case "delete":
			res.Deleted = append(res.Deleted, op.ref)
		case "skip":
			res.Skipped++
		}
		res.OrphanCandidates = append(res.OrphanCandidates, op.orphans...)
	}

	if len(res.Upserted) == 0 && len(res.Deleted) == 0 {
		// Nothing changed; publishing is idempotent and writes nothing.
		p.logger.Debug("publish skipped, no changes", "kind", kind, "id", rootID)
		return res, nil
	}

	if err := p.write(ctx, plan, res, history.PublishSummary{
		Upserted: res.Upserted,
		Deleted:  res.Deleted,
		Skipped:  res.Skipped,
	}); err != nil {
		return nil, err
	}

	p.afterCommit(ctx, "publish.completed", res)
	return res, nil
}

// Unpublish removes the published subtree under the root without touching
// any draft row.
func (p *Publisher) Unpublish(ctx context.Context, kind model.Kind, rootID string) (*Result, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unpublish root: unknown kind %q: %w", kind, core.ErrNotFound)
	}
	if _, err := p.queries.GetEntity(ctx, kind, rootID, true); err != nil {
		return nil, err
	}

	var plan []planOp
	if err := p.collectPublished(ctx, kind, rootID, &plan); err != nil {
		return nil, err
	}

	res := &Result{Root: history.EntityRef{Kind: kind, ID: rootID}}
	for _, op := range plan {
		res.Deleted = append(res.Deleted, op.ref)
		res.OrphanCandidates = append(res.OrphanCandidates, op.orphans...)
	}

	if err := p.write(ctx, plan, res, history.PublishSummary{
		Deleted:   res.Deleted,
		Unpublish: true,
	}); err != nil {
		return nil, err
	}

	p.afterCommit(ctx, "unpublish.completed", res)
	return res, nil
}

// plan walks the draft and published graphs under the root and decides one
// action per node. The returned slice is in parent-before-child order.
func (p *Publisher) plan(ctx context.Context, kind model.Kind, rootID string) ([]planOp, error) {
	var (
		plan    []planOp
		visited = map[history.EntityRef]bool{}
	)

	// Shared dependencies publish before the root so a freshly published
	// page never references a component or style that only exists as a
	// draft. Shared nodes are never deleted by a page publish; other roots
	// may still use them.
	refs, err := p.sharedRefs(ctx, kind, rootID)
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		// The bound collection of a dynamic page cascades through its
		// fields and items like any owned subtree.
		cascade := ref.Kind == model.KindCollection
		if err := p.planNode(ctx, ref.Kind, ref.ID, cascade, false, visited, &plan); err != nil {
			return nil, err
		}
	}

	if err := p.planNode(ctx, kind, rootID, true, false, visited, &plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// planNode decides the action for one node and recurses into owned children.
// withDeletes enables removal of published rows whose draft is gone; it is
// true for the owned subtree and false for shared references.
func (p *Publisher) planNode(ctx context.Context, kind model.Kind, id string, withDeletes, forceDelete bool, visited map[history.EntityRef]bool, plan *[]planOp) error {
	ref := history.EntityRef{Kind: kind, ID: id}
	if visited[ref] {
		return nil
	}
	visited[ref] = true

	draft, pub, err := p.twins(ctx, kind, id)
	if err != nil {
		return err
	}
	if draft == nil && pub == nil {
		return nil
	}

	gone := forceDelete || draft == nil || draft.Deleted || !publishable(draft)
	op := planOp{ref: ref, draft: draft, pub: pub}
	switch {
	case gone && pub != nil:
		op.action = "delete"
		op.orphans = storagePaths(kind, pub)
	case gone:
		op.action = "skip"
	case pub != nil && draft.ContentHash == pub.ContentHash:
		op.action = "skip"
	default:
		op.action = "upsert"
		if pub != nil {
			// Overwriting a published asset can orphan its old paths.
			op.orphans = staleAssetPaths(kind, draft, pub)
		}
	}
	*plan = append(*plan, op)

	if !withDeletes {
		// Shared references carry no owned subtree of their own here.
		return nil
	}

	for _, childKind := range model.ChildKinds(kind) {
		ids, err := p.childIDs(ctx, childKind, id)
		if err != nil {
			return err
		}
		for _, childID := range ids {
			if err := p.planNode(ctx, childKind, childID, true, gone, visited, plan); err != nil {
				return err
			}
		}
	}
	return nil
}

// childIDs merges draft children (including soft-deleted ones) with
// published children, preserving ListChildren order: drafts first in manual
// order, then published-only leftovers that need deletion.
func (p *Publisher) childIDs(ctx context.Context, kind model.Kind, parentID string) ([]string, error) {
	drafts, err := p.queries.ListChildrenAny(ctx, kind, parentID, false)
	if err != nil {
		return nil, err
	}
	published, err := p.queries.ListChildrenAny(ctx, kind, parentID, true)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var ids []string
	for _, e := range drafts {
		seen[e.ID] = true
		ids = append(ids, e.ID)
	}
	for _, e := range published {
		if !seen[e.ID] {
			ids = append(ids, e.ID)
		}
	}
	return ids, nil
}

// sharedRefs returns the components and styles a page or component draft
// references, dependency-first, plus the collection subtree for CMS-bound
// pages.
func (p *Publisher) sharedRefs(ctx context.Context, kind model.Kind, rootID string) ([]history.EntityRef, error) {
	switch kind {
	case model.KindPage:
		draft, _, err := p.twins(ctx, kind, rootID)
		if err != nil || draft == nil || draft.Deleted {
			return nil, err
		}
		var page model.PageContent
		if err := model.DecodeContent(draft.Content, &page); err != nil {
			return nil, err
		}
		var refs []history.EntityRef
		if page.IsCMSBound() {
			refs = append(refs, history.EntityRef{Kind: model.KindCollection, ID: page.CollectionID})
		}
		trees, err := p.queries.ListChildren(ctx, model.KindLayerTree, rootID, false)
		if err != nil {
			return nil, err
		}
		for _, tree := range trees {
			var content model.LayerTreeContent
			if err := model.DecodeContent(tree.Content, &content); err != nil {
				return nil, err
			}
			layerRefs, err := p.componentClosure(ctx, content.Layers)
			if err != nil {
				return nil, err
			}
			refs = append(refs, layerRefs...)
		}
		return refs, nil
	case model.KindComponent:
		draft, _, err := p.twins(ctx, kind, rootID)
		if err != nil || draft == nil || draft.Deleted {
			return nil, err
		}
		var content model.ComponentContent
		if err := model.DecodeContent(draft.Content, &content); err != nil {
			return nil, err
		}
		return p.componentClosure(ctx, content.Layers)
	default:
		return nil, nil
	}
}

// componentClosure resolves components and styles referenced by the layers,
// following nested component references depth-first.
func (p *Publisher) componentClosure(ctx context.Context, layers []model.LayerNode) ([]history.EntityRef, error) {
	var (
		out  []history.EntityRef
		seen = map[history.EntityRef]bool{}
	)
	var visit func(nodes []model.LayerNode) error
	visit = func(nodes []model.LayerNode) error {
		refs := model.CollectRefs(nodes)
		for _, sid := range refs.StyleIDs {
			ref := history.EntityRef{Kind: model.KindLayerStyle, ID: sid}
			if !seen[ref] {
				seen[ref] = true
				out = append(out, ref)
			}
		}
		for _, cid := range refs.ComponentIDs {
			ref := history.EntityRef{Kind: model.KindComponent, ID: cid}
			if seen[ref] {
				continue
			}
			seen[ref] = true
			draft, err := p.queries.GetEntity(ctx, model.KindComponent, cid, false)
			if err != nil && !errors.Is(err, core.ErrNotFound) {
				return err
			}
			if err == nil {
				var content model.ComponentContent
				if err := model.DecodeContent(draft.Content, &content); err != nil {
					return err
				}
				if err := visit(content.Layers); err != nil {
					return err
				}
			}
			// Referenced components publish after their own dependencies.
			out = append(out, ref)
		}
		return nil
	}
	if err := visit(layers); err != nil {
		return nil, err
	}
	return out, nil
}

// collectPublished gathers the published subtree for unpublish, in
// parent-before-child order.
func (p *Publisher) collectPublished(ctx context.Context, kind model.Kind, id string, plan *[]planOp) error {
	pub, err := p.queries.GetEntityAny(ctx, kind, id, true)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	*plan = append(*plan, planOp{
		ref:     history.EntityRef{Kind: kind, ID: id},
		action:  "delete",
		pub:     &pub,
		orphans: storagePaths(kind, &pub),
	})
	for _, childKind := range model.ChildKinds(kind) {
		children, err := p.queries.ListChildrenAny(ctx, childKind, id, true)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := p.collectPublished(ctx, childKind, child.ID, plan); err != nil {
				return err
			}
		}
	}
	return nil
}

// write applies the plan inside one transaction: upserts parent before
// child, deletes child before parent, and one publish log entry on the
// root. Any failure aborts the whole cascade.
func (p *Publisher) write(ctx context.Context, plan []planOp, res *Result, summary history.PublishSummary) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrTxAborted, err)
	}
	defer func() { _ = tx.Rollback() }()

	qtx := p.queries.WithTx(tx)

	// Parent-before-child: plan order.
	for _, op := range plan {
		if op.action != "upsert" {
			continue
		}
		if err := p.hookAndWrite(ctx, qtx, "upsert", op); err != nil {
			return err
		}
	}
	// Child-before-parent: reverse plan order.
	for i := len(plan) - 1; i >= 0; i-- {
		op := plan[i]
		if op.action != "delete" {
			continue
		}
		if err := p.hookAndWrite(ctx, qtx, "delete", op); err != nil {
			return err
		}
	}

	if _, err := p.log.WithQueries(qtx).RecordPublish(ctx, res.Root.Kind, res.Root.ID, summary, ""); err != nil {
		return fmt.Errorf("%w: recording publish: %v", core.ErrTxAborted, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrTxAborted, err)
	}
	return nil
}

func (p *Publisher) hookAndWrite(ctx context.Context, qtx *store.Queries, action string, op planOp) error {
	if p.writeHook != nil {
		if err := p.writeHook(action, op.ref); err != nil {
			return fmt.Errorf("%w: %v", core.ErrTxAborted, err)
		}
	}
	switch action {
	case "upsert":
		err := qtx.UpsertEntity(ctx, store.UpsertEntityParams{
			Kind:        op.ref.Kind,
			ID:          op.ref.ID,
			IsPublished: true,
			Content:     op.draft.Content,
			ContentHash: op.draft.ContentHash,
		})
		if err != nil {
			return fmt.Errorf("%w: publishing %s %s: %v", core.ErrTxAborted, op.ref.Kind, op.ref.ID, err)
		}
	case "delete":
		if err := qtx.HardDeleteEntity(ctx, op.ref.Kind, op.ref.ID, true); err != nil {
			return fmt.Errorf("%w: removing published %s %s: %v", core.ErrTxAborted, op.ref.Kind, op.ref.ID, err)
		}
	}
	return nil
}

func (p *Publisher) afterCommit(ctx context.Context, eventType string, res *Result) {
	p.logger.Info("cascade committed",
		"event", eventType,
		"kind", res.Root.Kind,
		"id", res.Root.ID,
		"upserted", len(res.Upserted),
		"deleted", len(res.Deleted),
		"skipped", res.Skipped)

	if p.cleaner != nil && len(res.OrphanCandidates) > 0 {
		p.cleaner.Clean(ctx, res.OrphanCandidates)
	}
	if p.invalidator != nil {
		p.invalidator.InvalidatePublished(ctx)
	}
	if p.notifier != nil {
		p.notifier.Notify(ctx, eventType, res)
	}
}

// twins loads the draft and published rows for an id; either may be nil.
func (p *Publisher) twins(ctx context.Context, kind model.Kind, id string) (draft, pub *model.Entity, err error) {
	d, err := p.queries.GetEntityAny(ctx, kind, id, false)
	switch {
	case err == nil:
		draft = &d
	case errors.Is(err, core.ErrNotFound):
	default:
		return nil, nil, err
	}
	pb, err := p.queries.GetEntityAny(ctx, kind, id, true)
	switch {
	case err == nil:
		pub = &pb
	case errors.Is(err, core.ErrNotFound):
	default:
		return nil, nil, err
	}
	return draft, pub, nil
}

// publishable honors the per-item publishable flag; other kinds always
// publish.
func publishable(draft *model.Entity) bool {
	if draft.Kind != model.KindItem {
		return true
	}
	var item model.ItemContent
	if err := model.DecodeContent(draft.Content, &item); err != nil {
		return true
	}
	return item.Publishable
}

// storagePaths returns the blob paths carried by a row about to be removed.
func storagePaths(kind model.Kind, e *model.Entity) []string {
	if kind != model.KindAsset || e == nil {
		return nil
	}
	var asset model.AssetContent
	if err := model.DecodeContent(e.Content, &asset); err != nil {
		return nil
	}
	return asset.StoragePaths()
}

// staleAssetPaths returns published paths no longer present in the draft,
// which may become orphans once the overwrite commits.
func staleAssetPaths(kind model.Kind, draft, pub *model.Entity) []string {
	if kind != model.KindAsset {
		return nil
	}
	var dc, pc model.AssetContent
	if model.DecodeContent(draft.Content, &dc) != nil || model.DecodeContent(pub.Content, &pc) != nil {
		return nil
	}
	keep := map[string]bool{}
	for _, path := range dc.StoragePaths() {
		keep[path] = true
	}
	var stale []string
	for _, path := range pc.StoragePaths() {
		if !keep[path] {
			stale = append(stale, path)
		}
	}
	return stale
}
