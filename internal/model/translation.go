// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// TranslationContent addresses a translatable field by a composite key
// (source type + id + content key), not by a foreign key into that field's
// table, so any kind can carry locale overrides without schema coupling.
type TranslationContent struct {
	Locale      string `json:"locale"`
	SourceType  string `json:"sourceType"`
	SourceID    string `json:"sourceId"`
	ContentKey  string `json:"contentKey"`
	ContentType string `json:"contentType,omitempty"`
	Value       string `json:"value"`
}
