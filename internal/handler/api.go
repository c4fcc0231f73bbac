// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package handler provides the REST API for drafts, publishing, version
// history, assets and published content reads.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/verso-cms/verso/internal/cache"
	"github.com/verso-cms/verso/internal/core"
	"github.com/verso-cms/verso/internal/history"
	"github.com/verso-cms/verso/internal/model"
	"github.com/verso-cms/verso/internal/publish"
	"github.com/verso-cms/verso/internal/service"
	"github.com/verso-cms/verso/internal/store"
)

// Handler holds shared dependencies for all API handlers.
type Handler struct {
	queries   *store.Queries
	drafts    *service.Drafts
	assets    *service.Assets
	publisher *publish.Publisher
	log       *history.Log
	published *cache.PublishedCache
	logger    *slog.Logger
}

// Dependencies bundles the services the API exposes. Published may be nil
// when the read cache is disabled; reads then go straight to the store.
type Dependencies struct {
	Queries   *store.Queries
	Drafts    *service.Drafts
	Assets    *service.Assets
	Publisher *publish.Publisher
	Log       *history.Log
	Published *cache.PublishedCache
	Logger    *slog.Logger
}

// New creates the API handler.
func New(deps Dependencies) *Handler {
	return &Handler{
		queries:   deps.Queries,
		drafts:    deps.Drafts,
		assets:    deps.Assets,
		publisher: deps.Publisher,
		log:       deps.Log,
		published: deps.Published,
		logger:    deps.Logger,
	}
}

// Routes builds the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/status", h.Status)

	r.Route("/drafts/{kind}/{id}", func(r chi.Router) {
		r.Put("/", h.SaveDraft)
		r.Get("/", h.GetDraft)
		r.Delete("/", h.DeleteDraft)
	})
	r.Get("/published/{kind}/{id}", h.GetPublished)

	r.Post("/publish/{kind}/{id}", h.Publish)
	r.Post("/unpublish/{kind}/{id}", h.Unpublish)

	r.Route("/entities/{kind}/{id}", func(r chi.Router) {
		r.Get("/versions", h.ListVersions)
		r.Post("/undo", h.Undo)
		r.Post("/redo", h.Redo)
		r.Post("/restore/{versionID}", h.Restore)
	})

	r.Post("/assets", h.UploadAsset)
	r.Get("/collections/{id}/items", h.ListItems)

	return r
}

// Response is the standard API response wrapper.
type Response struct {
	Data any   `json:"data,omitempty"`
	Meta *Meta `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total   int64 `json:"total"`
	Page    int64 `json:"page"`
	PerPage int64 `json:"per_page"`
	Pages   int64 `json:"pages"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EntityResponse represents one draft or published row in API responses.
type EntityResponse struct {
	Kind        model.Kind     `json:"kind"`
	ID          string         `json:"id"`
	IsPublished bool           `json:"is_published"`
	Content     map[string]any `json:"content"`
	ContentHash string         `json:"content_hash"`
	Deleted     bool           `json:"deleted,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func entityResponse(e model.Entity) EntityResponse {
	return EntityResponse{
		Kind:        e.Kind,
		ID:          e.ID,
		IsPublished: e.IsPublished,
		Content:     e.Content,
		ContentHash: e.ContentHash,
		Deleted:     e.Deleted,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful JSON response.
func WriteSuccess(w http.ResponseWriter, data any, meta *Meta) {
	WriteJSON(w, http.StatusOK, Response{Data: data, Meta: meta})
}

// WriteCreated writes a 201 Created JSON response.
func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, Response{Data: data})
}

// WriteError writes an error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// writeServiceError maps the service error taxonomy to HTTP responses.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, core.ErrStaleWrite):
		WriteError(w, http.StatusConflict, "stale_write", err.Error())
	case errors.Is(err, core.ErrConstraint):
		WriteError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.Is(err, core.ErrIntegrity):
		WriteError(w, http.StatusInternalServerError, "history_integrity", err.Error())
	case errors.Is(err, core.ErrTxAborted):
		WriteError(w, http.StatusInternalServerError, "publish_aborted", err.Error())
	case errors.Is(err, core.ErrStorageUnavailable):
		WriteError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
	default:
		h.logger.Error("unhandled api error", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// entityParams parses and validates the {kind}/{id} route pair.
func entityParams(w http.ResponseWriter, r *http.Request) (model.Kind, string, bool) {
	kind := model.Kind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")
	if !kind.Valid() {
		WriteError(w, http.StatusNotFound, "not_found", "Unknown entity kind")
		return "", "", false
	}
	if id == "" {
		WriteError(w, http.StatusBadRequest, "bad_request", "Missing entity id")
		return "", "", false
	}
	return kind, id, true
}

// sessionID identifies the editing session for history attribution.
func sessionID(r *http.Request) string {
	return r.Header.Get("X-Session-ID")
}

// StatusResponse contains API status information.
type StatusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Status returns the API status.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, StatusResponse{Status: "ok", Version: "v1"}, nil)
}
