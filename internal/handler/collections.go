// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/verso-cms/verso/internal/fetch"
	"github.com/verso-cms/verso/internal/model"
)

// ListItems returns one page of a collection's items. The preview query
// parameter switches to draft rows; published reads go through the cache.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "id")
	if collectionID == "" {
		WriteError(w, http.StatusBadRequest, "bad_request", "Missing collection id")
		return
	}

	req := fetch.Request{
		Preview: r.URL.Query().Get("preview") == "true",
		Page:    queryInt(r, "page"),
		PerPage: queryInt(r, "per_page"),
	}

	collection, err := h.queries.GetEntity(r.Context(), model.KindCollection, collectionID, !req.Preview)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	var meta model.CollectionContent
	if err := model.DecodeContent(collection.Content, &meta); err != nil {
		h.writeServiceError(w, err)
		return
	}

	fc := fetch.Resolve(req, meta)

	load := func() (*[]model.Entity, error) {
		items, err := h.queries.ListChildrenPage(r.Context(), model.KindItem,
			collectionID, fc.Published, fc.Limit, fc.Offset)
		if err != nil {
			return nil, err
		}
		return &items, nil
	}

	var items []model.Entity
	if h.published != nil && fc.Published {
		items, err = h.published.Items(r.Context(), collectionID, fc.Page, load)
	} else {
		loaded, loadErr := load()
		if loadErr != nil {
			err = loadErr
		} else {
			items = *loaded
		}
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	total, err := h.queries.CountChildren(r.Context(), model.KindItem, collectionID, fc.Published)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	out := make([]EntityResponse, 0, len(items))
	for _, item := range items {
		out = append(out, entityResponse(item))
	}
	WriteSuccess(w, out, &Meta{
		Total:   total,
		Page:    fc.Page,
		PerPage: fc.Limit,
		Pages:   fc.Pages(total),
	})
}

func queryInt(r *http.Request, key string) int64 {
	v, err := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
