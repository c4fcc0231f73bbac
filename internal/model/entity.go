// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entity is the generic row shape shared by every publishable kind. The pair
// (Kind, ID, IsPublished) addresses one row; the draft and published rows for
// the same id are independent value copies.
type Entity struct {
	Kind        Kind
	ID          string
	IsPublished bool
	// ParentID, Slug and Position are indexed projections of Content fields;
	// Content remains the source of truth for hashing and patching.
	ParentID    string
	Slug        string
	Position    int64
	Content     map[string]any
	ContentHash string
	Deleted     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Projection holds the indexed columns derived from an entity's content.
type Projection struct {
	ParentID string
	Slug     string
	Position int64
}

// Project extracts the indexed projection for a kind from its content map.
// Unknown or absent fields project to zero values.
func Project(kind Kind, content map[string]any) Projection {
	var p Projection
	switch kind {
	case KindPage:
		p.Slug = stringField(content, "slug")
		p.Position = intField(content, "position")
	case KindLayerTree:
		p.ParentID = stringField(content, "pageId")
	case KindCollection:
		// The identifier is the collection's slug for uniqueness checks.
		p.Slug = stringField(content, "identifier")
	case KindField, KindItem:
		p.ParentID = stringField(content, "collectionId")
		p.Position = intField(content, "position")
	case KindItemValue:
		p.ParentID = stringField(content, "itemId")
	}
	return p
}

// DecodeContent unmarshals an entity's content map into a typed content
// struct such as *PageContent.
func DecodeContent(content map[string]any, dst any) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("encoding content: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding content: %w", err)
	}
	return nil
}

// EncodeContent converts a typed content struct into the generic map form
// used for hashing and patching.
func EncodeContent(src any) (map[string]any, error) {
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("encoding content: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding content: %w", err)
	}
	return m, nil
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intField(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}
