// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/verso-cms/verso/internal/store"
)

const (
	// MaxAttempts bounds delivery retries before a record goes dead.
	MaxAttempts    = 5
	requestTimeout = 30 * time.Second
	initialBackoff = time.Second
	maxResponseLen = 10 * 1024
	userAgent      = "Verso/1.0"
)

var httpClient = &http.Client{
	Timeout: requestTimeout,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	},
}

type attemptResult struct {
	success    bool
	statusCode int
	retryable  bool
	err        error
}

// deliver runs one HTTP attempt and updates the delivery record. Retryable
// failures are re-queued in-process with exponential backoff until the
// attempt budget runs out.
func (d *Dispatcher) deliver(ctx context.Context, delivery queuedDelivery) {
	record, err := d.queries.GetWebhookDelivery(ctx, delivery.deliveryID)
	if err != nil {
		d.logger.Error("loading webhook delivery failed", "delivery_id", delivery.deliveryID, "error", err)
		return
	}
	if record.Status != store.DeliveryPending {
		return
	}

	result := d.attempt(ctx, delivery)
	attempts := record.Attempts + 1

	if result.success {
		if err := d.queries.MarkDeliverySuccess(ctx, delivery.deliveryID, int64(result.statusCode)); err != nil {
			d.logger.Error("recording webhook success failed", "delivery_id", delivery.deliveryID, "error", err)
			return
		}
		d.logger.Info("webhook delivered", "delivery_id", delivery.deliveryID, "status", result.statusCode)
		return
	}

	dead := !result.retryable || attempts >= MaxAttempts
	errMsg := ""
	if result.err != nil {
		errMsg = result.err.Error()
	}
	if err := d.queries.MarkDeliveryFailure(ctx, delivery.deliveryID, int64(result.statusCode), errMsg, dead); err != nil {
		d.logger.Error("recording webhook failure failed", "delivery_id", delivery.deliveryID, "error", err)
		return
	}
	if dead {
		d.logger.Warn("webhook delivery dead",
			"delivery_id", delivery.deliveryID, "attempts", attempts, "error", errMsg)
		return
	}

	delivery.attempts = attempts
	backoff := initialBackoff << (attempts - 1)
	d.logger.Info("webhook delivery retry scheduled",
		"delivery_id", delivery.deliveryID, "attempt", attempts, "backoff", backoff)
	time.AfterFunc(backoff, func() {
		select {
		case <-d.done:
		default:
			d.enqueue(delivery)
		}
	})
}

func (d *Dispatcher) attempt(ctx context.Context, delivery queuedDelivery) attemptResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.url, bytes.NewReader(delivery.payload))
	if err != nil {
		return attemptResult{err: fmt.Errorf("building request: %w", err), retryable: false}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Verso-Signature", Signature(delivery.payload, delivery.secret))
	req.Header.Set("X-Verso-Event", delivery.event)
	req.Header.Set("X-Verso-Delivery", fmt.Sprintf("%d", delivery.deliveryID))

	resp, err := httpClient.Do(req)
	if err != nil {
		return attemptResult{err: fmt.Errorf("request failed: %w", err), retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseLen))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return attemptResult{success: true, statusCode: resp.StatusCode}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Client errors don't retry, except timeout and rate limiting.
		retryable := resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests
		return attemptResult{
			statusCode: resp.StatusCode,
			retryable:  retryable,
			err:        fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	default:
		return attemptResult{
			statusCode: resp.StatusCode,
			retryable:  true,
			err:        fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}
}

// Requeue reloads pending deliveries from the database into the worker
// queue, picking up work left over from a previous run or a full queue.
func (d *Dispatcher) Requeue(ctx context.Context, limit int64) {
	pending, err := d.queries.ListPendingDeliveries(ctx, limit)
	if err != nil {
		d.logger.Error("listing pending webhook deliveries failed", "error", err)
		return
	}
	for _, record := range pending {
		wh, err := d.queries.GetWebhook(ctx, record.WebhookID)
		if err != nil || !wh.Active {
			continue
		}
		d.enqueue(queuedDelivery{
			deliveryID: record.ID,
			webhookID:  record.WebhookID,
			event:      record.Event,
			payload:    []byte(record.Payload),
			url:        wh.URL,
			secret:     wh.Secret,
			attempts:   record.Attempts,
		})
	}
}
