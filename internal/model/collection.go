// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// Collection field types.
const (
	FieldTypeText     = "text"
	FieldTypeRichText = "rich_text"
	FieldTypeNumber   = "number"
	FieldTypeDate     = "date"
	FieldTypeOption   = "option"
	FieldTypeAsset    = "asset"
	FieldTypeRelation = "relation"
)

// DefaultItemsPerPage is used when a collection does not set its own
// pagination size.
const DefaultItemsPerPage = 20

// CollectionContent is the content of a CMS collection container.
type CollectionContent struct {
	Name         string `json:"name"`
	Identifier   string `json:"identifier"`
	ItemsPerPage int64  `json:"itemsPerPage,omitempty"`
}

// PageSize returns the effective pagination size for the collection.
func (c *CollectionContent) PageSize() int64 {
	if c.ItemsPerPage > 0 {
		return c.ItemsPerPage
	}
	return DefaultItemsPerPage
}

// FieldContent is one field of a collection schema.
type FieldContent struct {
	CollectionID string `json:"collectionId"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Position     int64  `json:"position"`
	Required     bool   `json:"required,omitempty"`
}

// ItemContent is one logical collection item. Its cell values live in
// separate item_value rows, one per (item, field, state).
type ItemContent struct {
	CollectionID string `json:"collectionId"`
	Position     int64  `json:"position"`
	Publishable  bool   `json:"publishable"`
}

// ItemValueContent is one EAV cell of a collection item.
type ItemValueContent struct {
	ItemID  string `json:"itemId"`
	FieldID string `json:"fieldId"`
	Value   string `json:"value"`
}

// ValidFieldType reports whether t is a known collection field type.
func ValidFieldType(t string) bool {
	switch t {
	case FieldTypeText, FieldTypeRichText, FieldTypeNumber, FieldTypeDate,
		FieldTypeOption, FieldTypeAsset, FieldTypeRelation:
		return true
	}
	return false
}
