// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"encoding/json"
	"net/http"

	"github.com/verso-cms/verso/internal/model"
	"github.com/verso-cms/verso/internal/service"
)

// SaveDraftRequest is the request body for a draft write.
type SaveDraftRequest struct {
	Content map[string]any `json:"content"`
}

// SaveDraftResponse is a committed draft write.
type SaveDraftResponse struct {
	Entity  EntityResponse `json:"entity"`
	Created bool           `json:"created"`
	Changed bool           `json:"changed"`
}

// SaveDraft writes one draft row. The If-Match header carries the expected
// content hash for optimistic concurrency; omitting it means last write wins.
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := entityParams(w, r)
	if !ok {
		return
	}

	var req SaveDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if req.Content == nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "Missing content")
		return
	}

	res, err := h.drafts.Save(r.Context(), service.SaveParams{
		Kind:         kind,
		ID:           id,
		Content:      req.Content,
		ExpectedHash: r.Header.Get("If-Match"),
		SessionID:    sessionID(r),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := SaveDraftResponse{
		Entity:  entityResponse(res.Entity),
		Created: res.Created,
		Changed: res.Changed,
	}
	if res.Created {
		WriteCreated(w, resp)
		return
	}
	WriteSuccess(w, resp, nil)
}

// GetDraft returns the draft row for an entity.
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := entityParams(w, r)
	if !ok {
		return
	}

	entity, err := h.queries.GetEntity(r.Context(), kind, id, false)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteSuccess(w, entityResponse(entity), nil)
}

// DeleteDraft soft-deletes a draft and its owned subtree. The published
// copies stay live until the next publish of the parent.
func (h *Handler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := entityParams(w, r)
	if !ok {
		return
	}

	if err := h.drafts.Delete(r.Context(), kind, id, sessionID(r)); err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteSuccess(w, map[string]bool{"deleted": true}, nil)
}

// GetPublished returns the published row for an entity, read through the
// published cache when one is configured.
func (h *Handler) GetPublished(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := entityParams(w, r)
	if !ok {
		return
	}

	load := func() (*model.Entity, error) {
		entity, err := h.queries.GetEntity(r.Context(), kind, id, true)
		if err != nil {
			return nil, err
		}
		return &entity, nil
	}

	var entity *model.Entity
	var err error
	if h.published != nil {
		entity, err = h.published.Entity(r.Context(), kind, id, load)
	} else {
		entity, err = load()
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteSuccess(w, entityResponse(*entity), nil)
}
