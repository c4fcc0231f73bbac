// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/verso-cms/verso/internal/model"
)

// VersionResponse represents one history entry in API responses.
type VersionResponse struct {
	ID          int64  `json:"id"`
	Action      string `json:"action"`
	BaseVersion int64  `json:"base_version,omitempty"`
	Metadata    string `json:"metadata,omitempty"`
	CurrentHash string `json:"current_hash"`
	SessionID   string `json:"session_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func versionResponse(v model.Version) VersionResponse {
	return VersionResponse{
		ID:          v.ID,
		Action:      v.Action,
		BaseVersion: v.BaseVersion,
		Metadata:    v.Metadata,
		CurrentHash: v.CurrentHash,
		SessionID:   v.SessionID,
		CreatedAt:   v.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// ListVersions returns an entity's history, newest first.
func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := entityParams(w, r)
	if !ok {
		return
	}

	entries, err := h.log.List(r.Context(), kind, id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	out := make([]VersionResponse, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, versionResponse(entries[i]))
	}
	WriteSuccess(w, out, &Meta{Total: int64(len(out))})
}

// Undo reverts the entity's draft to its previous recorded state.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := entityParams(w, r)
	if !ok {
		return
	}

	entry, err := h.log.Undo(r.Context(), kind, id, sessionID(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteSuccess(w, versionResponse(entry), nil)
}

// Redo re-applies the change an undo reverted.
func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := entityParams(w, r)
	if !ok {
		return
	}

	entry, err := h.log.Redo(r.Context(), kind, id, sessionID(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteSuccess(w, versionResponse(entry), nil)
}

// Restore rewinds the entity's draft to the state recorded at a specific
// version. The restore itself appends a new entry; history is never rewritten.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := entityParams(w, r)
	if !ok {
		return
	}

	versionID, err := strconv.ParseInt(chi.URLParam(r, "versionID"), 10, 64)
	if err != nil || versionID < 1 {
		WriteError(w, http.StatusBadRequest, "bad_request", "Invalid version id")
		return
	}

	entry, err := h.log.RestoreTo(r.Context(), kind, id, versionID, sessionID(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteSuccess(w, versionResponse(entry), nil)
}
