// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package webhook dispatches publish lifecycle events to registered
// endpoints. Dispatching is fire and forget: the triggering operation never
// waits for, and never fails on, a delivery.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/verso-cms/verso/internal/store"
)

// Event types dispatched by the engine.
const (
	EventPublishCompleted   = "publish.completed"
	EventUnpublishCompleted = "unpublish.completed"
)

// Event is the payload POSTed to subscribers.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Dispatcher fans events out to subscribed webhooks through a worker pool.
type Dispatcher struct {
	queries *store.Queries
	logger  *slog.Logger
	queue   chan queuedDelivery
	workers int
	wg      sync.WaitGroup
	done    chan struct{}
	mu      sync.Mutex
	running bool
}

type queuedDelivery struct {
	deliveryID int64
	webhookID  int64
	event      string
	payload    []byte
	url        string
	secret     string
	attempts   int64
}

func NewDispatcher(db *sql.DB, workers int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queries: store.New(db),
		logger:  logger,
		queue:   make(chan queuedDelivery, 100),
		workers: workers,
		done:    make(chan struct{}),
	}
}

// Start launches the delivery workers.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.Info("webhook dispatcher started", "workers", d.workers)
}

// Stop drains nothing: queued deliveries stay pending in the database and
// a later Start picks them up through Requeue.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	d.running = false
	close(d.done)
	d.wg.Wait()
	d.logger.Info("webhook dispatcher stopped")
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case delivery := <-d.queue:
			d.deliver(context.Background(), delivery)
		}
	}
}

// Notify serializes the event and queues one delivery per subscribed
// webhook. Errors are logged, never returned; publish must not observe
// webhook failures.
func (d *Dispatcher) Notify(ctx context.Context, eventType string, data any) {
	payload, err := json.Marshal(Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		d.logger.Error("marshaling webhook event failed", "event", eventType, "error", err)
		return
	}

	webhooks, err := d.queries.ListActiveWebhooks(ctx)
	if err != nil {
		d.logger.Error("listing webhooks failed", "event", eventType, "error", err)
		return
	}

	for _, wh := range webhooks {
		if !wh.HasEvent(eventType) {
			continue
		}
		id, err := d.queries.CreateWebhookDelivery(ctx, store.CreateWebhookDeliveryParams{
			WebhookID: wh.ID,
			Event:     eventType,
			Payload:   string(payload),
		})
		if err != nil {
			d.logger.Error("creating webhook delivery failed", "webhook", wh.Name, "error", err)
			continue
		}
		d.enqueue(queuedDelivery{
			deliveryID: id,
			webhookID:  wh.ID,
			event:      eventType,
			payload:    payload,
			url:        wh.URL,
			secret:     wh.Secret,
		})
	}
}

func (d *Dispatcher) enqueue(delivery queuedDelivery) {
	select {
	case d.queue <- delivery:
	default:
		// Queue full; the delivery row stays pending and is retried by the
		// next Requeue pass.
		d.logger.Warn("webhook queue full, delivery deferred", "delivery_id", delivery.deliveryID)
	}
}

// Signature computes the HMAC-SHA256 hex signature subscribers verify.
func Signature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature is the subscriber-side check, constant time.
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(signature), []byte(Signature(payload, secret)))
}
