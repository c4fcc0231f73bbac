// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/verso-cms/verso/internal/core"
)

// Webhook is one registered webhook endpoint. Events is a comma-separated
// list of subscribed event types, or "*" for all.
type Webhook struct {
	ID        int64
	Name      string
	URL       string
	Secret    string
	Events    string
	Active    bool
	CreatedAt time.Time
}

// HasEvent reports whether the webhook subscribes to an event type.
func (w *Webhook) HasEvent(eventType string) bool {
	if w.Events == "*" || w.Events == "" {
		return true
	}
	for _, e := range strings.Split(w.Events, ",") {
		if strings.TrimSpace(e) == eventType {
			return true
		}
	}
	return false
}

// WebhookDelivery is one delivery attempt record.
type WebhookDelivery struct {
	ID           int64
	WebhookID    int64
	Event        string
	Payload      string
	Status       string
	Attempts     int64
	ResponseCode int64
	LastError    string
	CreatedAt    time.Time
	DeliveredAt  sql.NullTime
}

// Webhook delivery statuses.
const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryDead      = "dead"
)

// CreateWebhookParams are the inputs for registering a webhook.
type CreateWebhookParams struct {
	Name   string
	URL    string
	Secret string
	Events string
}

// CreateWebhook registers a webhook endpoint.
func (q *Queries) CreateWebhook(ctx context.Context, p CreateWebhookParams) (Webhook, error) {
	row := q.db.QueryRowContext(ctx, `INSERT INTO webhooks (name, url, secret, events)
		VALUES (?, ?, ?, ?)
		RETURNING id, name, url, secret, events, active, created_at`,
		p.Name, p.URL, p.Secret, p.Events)
	return scanWebhook(row.Scan)
}

// ListActiveWebhooks returns all active webhook endpoints.
func (q *Queries) ListActiveWebhooks(ctx context.Context) ([]Webhook, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, name, url, secret, events, active, created_at FROM webhooks WHERE active = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Webhook
	for rows.Next() {
		w, err := scanWebhook(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// CreateWebhookDeliveryParams are the inputs for one queued delivery.
type CreateWebhookDeliveryParams struct {
	WebhookID int64
	Event     string
	Payload   string
}

// CreateWebhookDelivery records a pending delivery.
func (q *Queries) CreateWebhookDelivery(ctx context.Context, p CreateWebhookDeliveryParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, `INSERT INTO webhook_deliveries (webhook_id, event, payload)
		VALUES (?, ?, ?) RETURNING id`, p.WebhookID, p.Event, p.Payload)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("creating delivery: %w", err)
	}
	return id, nil
}

// GetWebhookDelivery returns one delivery record.
func (q *Queries) GetWebhookDelivery(ctx context.Context, id int64) (WebhookDelivery, error) {
	row := q.db.QueryRowContext(ctx, `SELECT id, webhook_id, event, payload, status, attempts,
		response_code, last_error, created_at, delivered_at
		FROM webhook_deliveries WHERE id = ?`, id)
	var d WebhookDelivery
	err := row.Scan(&d.ID, &d.WebhookID, &d.Event, &d.Payload, &d.Status, &d.Attempts,
		&d.ResponseCode, &d.LastError, &d.CreatedAt, &d.DeliveredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return WebhookDelivery{}, fmt.Errorf("delivery %d: %w", id, core.ErrNotFound)
	}
	return d, err
}

// MarkDeliverySuccess records a successful delivery.
func (q *Queries) MarkDeliverySuccess(ctx context.Context, id int64, responseCode int64) error {
	_, err := q.db.ExecContext(ctx, `UPDATE webhook_deliveries
		SET status = ?, attempts = attempts + 1, response_code = ?, delivered_at = CURRENT_TIMESTAMP
		WHERE id = ?`, DeliveryDelivered, responseCode, id)
	if err != nil {
		return fmt.Errorf("marking delivery success: %w", err)
	}
	return nil
}

// MarkDeliveryFailure records a failed attempt; status becomes dead once the
// attempt budget is spent, otherwise it stays pending for retry.
func (q *Queries) MarkDeliveryFailure(ctx context.Context, id int64, responseCode int64, lastError string, dead bool) error {
	status := DeliveryPending
	if dead {
		status = DeliveryDead
	}
	_, err := q.db.ExecContext(ctx, `UPDATE webhook_deliveries
		SET status = ?, attempts = attempts + 1, response_code = ?, last_error = ?
		WHERE id = ?`, status, responseCode, lastError, id)
	if err != nil {
		return fmt.Errorf("marking delivery failure: %w", err)
	}
	return nil
}

// ListPendingDeliveries returns deliveries still awaiting a successful
// attempt, oldest first.
func (q *Queries) ListPendingDeliveries(ctx context.Context, limit int64) ([]WebhookDelivery, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, webhook_id, event, payload, status, attempts,
		response_code, last_error, created_at, delivered_at
		FROM webhook_deliveries WHERE status = ? ORDER BY id LIMIT ?`, DeliveryPending, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending deliveries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []WebhookDelivery
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.WebhookID, &d.Event, &d.Payload, &d.Status, &d.Attempts,
			&d.ResponseCode, &d.LastError, &d.CreatedAt, &d.DeliveredAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetWebhook returns one registered endpoint.
func (q *Queries) GetWebhook(ctx context.Context, id int64) (Webhook, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT id, name, url, secret, events, active, created_at FROM webhooks WHERE id = ?", id)
	w, err := scanWebhook(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Webhook{}, fmt.Errorf("webhook %d: %w", id, core.ErrNotFound)
	}
	return w, err
}

func scanWebhook(scan func(...any) error) (Webhook, error) {
	var (
		w      Webhook
		active int64
	)
	if err := scan(&w.ID, &w.Name, &w.URL, &w.Secret, &w.Events, &active, &w.CreatedAt); err != nil {
		return Webhook{}, fmt.Errorf("scanning webhook: %w", err)
	}
	w.Active = active != 0
	return w, nil
}
