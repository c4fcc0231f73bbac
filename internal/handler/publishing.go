// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/http"

	"github.com/verso-cms/verso/internal/history"
	"github.com/verso-cms/verso/internal/publish"
)

// PublishResponse summarizes one committed publish or unpublish cascade.
type PublishResponse struct {
	Root     history.EntityRef   `json:"root"`
	Upserted []history.EntityRef `json:"upserted,omitempty"`
	Deleted  []history.EntityRef `json:"deleted,omitempty"`
	Skipped  int                 `json:"skipped"`
}

func publishResponse(res *publish.Result) PublishResponse {
	return PublishResponse{
		Root:     res.Root,
		Upserted: res.Upserted,
		Deleted:  res.Deleted,
		Skipped:  res.Skipped,
	}
}

// Publish publishes an entity and its cascade in one transaction.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := entityParams(w, r)
	if !ok {
		return
	}

	res, err := h.publisher.Publish(r.Context(), kind, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteSuccess(w, publishResponse(res), nil)
}

// Unpublish removes the published subtree of an entity. Drafts are untouched.
func (h *Handler) Unpublish(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := entityParams(w, r)
	if !ok {
		return
	}

	res, err := h.publisher.Unpublish(r.Context(), kind, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteSuccess(w, publishResponse(res), nil)
}
