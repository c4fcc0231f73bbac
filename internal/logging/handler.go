// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging provides a slog handler that mirrors WARN and ERROR
// records into the database-backed event log, so deferred cleanup failures
// and history-integrity errors survive process restarts.
package logging

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/verso-cms/verso/internal/store"
)

// Event levels and categories stored in the events table.
const (
	EventLevelWarning = "warning"
	EventLevelError   = "error"

	EventCategoryPublish = "publish"
	EventCategoryHistory = "history"
	EventCategoryAsset   = "asset"
	EventCategoryCache   = "cache"
	EventCategoryWebhook = "webhook"
	EventCategorySystem  = "system"
)

// EventLogHandler wraps another slog.Handler and also persists records at
// or above its threshold to the events table.
type EventLogHandler struct {
	inner   slog.Handler
	queries *store.Queries
	level   slog.Level
}

// NewEventLogHandler persists WARN and above.
func NewEventLogHandler(inner slog.Handler, db *sql.DB) *EventLogHandler {
	return &EventLogHandler{
		inner:   inner,
		queries: store.New(db),
		level:   slog.LevelWarn,
	}
}

func (h *EventLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *EventLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}
	if r.Level >= h.level {
		// Background context: the event must land even when the request
		// context is already cancelled.
		_ = h.queries.CreateEvent(context.Background(), store.CreateEventParams{
			Level:    eventLevel(r.Level),
			Category: eventCategory(r),
			Message:  r.Message,
			Metadata: eventMetadata(r),
		})
	}
	return nil
}

func (h *EventLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EventLogHandler{inner: h.inner.WithAttrs(attrs), queries: h.queries, level: h.level}
}

func (h *EventLogHandler) WithGroup(name string) slog.Handler {
	return &EventLogHandler{inner: h.inner.WithGroup(name), queries: h.queries, level: h.level}
}

func eventLevel(level slog.Level) string {
	if level >= slog.LevelError {
		return EventLevelError
	}
	return EventLevelWarning
}

// eventCategory uses an explicit "category" attribute when present, else
// guesses from the message.
func eventCategory(r slog.Record) string {
	var category string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "category" {
			category = a.Value.String()
			return false
		}
		return true
	})
	if category != "" {
		return category
	}

	msg := strings.ToLower(r.Message)
	switch {
	case strings.Contains(msg, "publish") || strings.Contains(msg, "cascade"):
		return EventCategoryPublish
	case strings.Contains(msg, "history") || strings.Contains(msg, "version"):
		return EventCategoryHistory
	case strings.Contains(msg, "asset") || strings.Contains(msg, "blob"):
		return EventCategoryAsset
	case strings.Contains(msg, "cache"):
		return EventCategoryCache
	case strings.Contains(msg, "webhook"):
		return EventCategoryWebhook
	default:
		return EventCategorySystem
	}
}

// eventMetadata serializes the record's attributes as a flat JSON object.
func eventMetadata(r slog.Record) string {
	if r.NumAttrs() == 0 {
		return "{}"
	}
	var sb strings.Builder
	sb.WriteString("{")
	first := true
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "category" {
			return true
		}
		if !first {
			sb.WriteString(",")
		}
		first = false
		sb.WriteString(`"`)
		sb.WriteString(escapeJSON(a.Key))
		sb.WriteString(`":"`)
		sb.WriteString(escapeJSON(a.Value.String()))
		sb.WriteString(`"`)
		return true
	})
	sb.WriteString("}")
	return sb.String()
}

func escapeJSON(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

var _ slog.Handler = (*EventLogHandler)(nil)
