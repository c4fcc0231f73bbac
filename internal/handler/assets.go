// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/http"

	"github.com/verso-cms/verso/internal/service"
)

// AssetResponse is an uploaded asset with its public URLs resolved.
type AssetResponse struct {
	Entity EntityResponse `json:"entity"`
	URL    string         `json:"url"`
}

// UploadAsset accepts a multipart upload and creates the draft asset row.
// The form fields are "file" (required) and "alt".
func (h *Handler) UploadAsset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(service.MaxUploadSize); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "Missing file field")
		return
	}
	defer func() { _ = file.Close() }()

	entity, err := h.assets.Upload(r.Context(), service.UploadParams{
		Filename:  header.Filename,
		Body:      file,
		MimeType:  header.Header.Get("Content-Type"),
		Alt:       r.FormValue("alt"),
		SessionID: sessionID(r),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := AssetResponse{Entity: entityResponse(*entity)}
	if path, ok := entity.Content["storagePath"].(string); ok {
		resp.URL = h.assets.PublicURL(path)
	}
	WriteCreated(w, resp)
}
