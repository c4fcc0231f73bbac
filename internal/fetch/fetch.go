// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package fetch resolves a read request into concrete query parameters:
// which publish state to read and which slice of a collection to return.
package fetch

import "github.com/verso-cms/verso/internal/model"

// maxPageSize caps how many items one request can pull regardless of the
// collection's configured page size.
const maxPageSize = 100

// Request is what the read path knows about an incoming fetch: the preview
// flag and a 1-based page number.
type Request struct {
	Preview bool
	Page    int64
	// PerPage overrides the collection's page size when positive.
	PerPage int64
}

// Context is the resolved fetch plan.
type Context struct {
	// Published selects the is_published row set: false in preview mode,
	// true for the public site.
	Published bool
	Limit     int64
	Offset    int64
	Page      int64
}

// Resolve is pure. Page numbers below 1 clamp to 1; page sizes clamp to
// [1, maxPageSize], falling back to the collection's configured size.
func Resolve(req Request, meta model.CollectionContent) Context {
	page := req.Page
	if page < 1 {
		page = 1
	}

	perPage := req.PerPage
	if perPage <= 0 {
		perPage = meta.PageSize()
	}
	if perPage < 1 {
		perPage = 1
	}
	if perPage > maxPageSize {
		perPage = maxPageSize
	}

	return Context{
		Published: !req.Preview,
		Limit:     perPage,
		Offset:    (page - 1) * perPage,
		Page:      page,
	}
}

// Pages returns the number of pages needed for total items under the
// context's limit. Zero items is one empty page.
func (c Context) Pages(total int64) int64 {
	if total <= 0 {
		return 1
	}
	pages := total / c.Limit
	if total%c.Limit != 0 {
		pages++
	}
	return pages
}
