// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// PageContent is the semantic content of a page. Everything here participates
// in the content hash; row ids and timestamps do not.
type PageContent struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Position int64  `json:"position"`
	FolderID string `json:"folderId,omitempty"`
	// IsDynamic pages bind to a collection at render time.
	IsDynamic    bool           `json:"isDynamic,omitempty"`
	IsError      bool           `json:"isError,omitempty"`
	CollectionID string         `json:"collectionId,omitempty"`
	Settings     map[string]any `json:"settings,omitempty"`
}

// IsCMSBound reports whether the page renders items of a collection.
func (p *PageContent) IsCMSBound() bool {
	return p.IsDynamic && p.CollectionID != ""
}
