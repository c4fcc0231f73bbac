// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verso-cms/verso/internal/store"
	"github.com/verso-cms/verso/internal/testutil"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.Queries, func()) {
	t.Helper()
	db, cleanup := testutil.TestDB(t)
	d := NewDispatcher(db, 2, testutil.TestLoggerSilent())
	d.Start()
	return d, store.New(db), func() {
		d.Stop()
		cleanup()
	}
}

func waitForStatus(t *testing.T, q *store.Queries, id int64, status string) store.WebhookDelivery {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, err := q.GetWebhookDelivery(context.Background(), id)
		require.NoError(t, err)
		if record.Status == status {
			return record
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("delivery %d never reached status %q", id, status)
	return store.WebhookDelivery{}
}

func onlyDeliveryID(t *testing.T, q *store.Queries) int64 {
	t.Helper()
	pending, err := q.ListPendingDeliveries(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	return pending[0].ID
}

func TestDispatcher_DeliversSignedEvent(t *testing.T) {
	d, q, cleanup := newTestDispatcher(t)
	defer cleanup()
	ctx := context.Background()

	var gotBody atomic.Value
	var gotSig, gotEvent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody.Store(body)
		gotSig.Store(r.Header.Get("X-Verso-Signature"))
		gotEvent.Store(r.Header.Get("X-Verso-Event"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := q.CreateWebhook(ctx, store.CreateWebhookParams{
		Name: "deploy", URL: srv.URL, Secret: "s3cret", Events: "*",
	})
	require.NoError(t, err)

	d.Notify(ctx, EventPublishCompleted, map[string]string{"kind": "page", "id": "p-1"})

	id := onlyDeliveryID(t, q)
	record := waitForStatus(t, q, id, store.DeliveryDelivered)
	assert.Equal(t, int64(200), record.ResponseCode)
	assert.Equal(t, int64(1), record.Attempts)

	assert.Equal(t, EventPublishCompleted, gotEvent.Load())
	body := gotBody.Load().([]byte)
	assert.True(t, VerifySignature(body, gotSig.Load().(string), "s3cret"))
	assert.Contains(t, string(body), `"kind":"page"`)
}

func TestDispatcher_EventFilter(t *testing.T) {
	d, q, cleanup := newTestDispatcher(t)
	defer cleanup()
	ctx := context.Background()

	_, err := q.CreateWebhook(ctx, store.CreateWebhookParams{
		Name: "publish-only", URL: "http://localhost:1", Secret: "x", Events: EventPublishCompleted,
	})
	require.NoError(t, err)

	d.Notify(ctx, EventUnpublishCompleted, nil)

	pending, err := q.ListPendingDeliveries(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "unsubscribed events must not create deliveries")
}

func TestDispatcher_ClientErrorGoesDead(t *testing.T) {
	d, q, cleanup := newTestDispatcher(t)
	defer cleanup()
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	_, err := q.CreateWebhook(ctx, store.CreateWebhookParams{
		Name: "gone", URL: srv.URL, Secret: "x", Events: "*",
	})
	require.NoError(t, err)

	d.Notify(ctx, EventPublishCompleted, nil)

	id := onlyDeliveryID(t, q)
	record := waitForStatus(t, q, id, store.DeliveryDead)
	// A 4xx response dead-letters on the first attempt, no retries.
	assert.Equal(t, int64(1), record.Attempts)
	assert.Equal(t, int64(410), record.ResponseCode)
}

func TestDispatcher_ServerErrorRetries(t *testing.T) {
	d, q, cleanup := newTestDispatcher(t)
	defer cleanup()
	ctx := context.Background()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := q.CreateWebhook(ctx, store.CreateWebhookParams{
		Name: "flaky", URL: srv.URL, Secret: "x", Events: "*",
	})
	require.NoError(t, err)

	d.Notify(ctx, EventPublishCompleted, nil)

	id := onlyDeliveryID(t, q)
	record := waitForStatus(t, q, id, store.DeliveryDelivered)
	assert.Equal(t, int64(3), record.Attempts)
	assert.Equal(t, int64(3), calls.Load())
}

func TestSignature_RoundTrip(t *testing.T) {
	payload := []byte(`{"type":"publish.completed"}`)
	sig := Signature(payload, "secret")
	assert.True(t, VerifySignature(payload, sig, "secret"))
	assert.False(t, VerifySignature(payload, sig, "other"))
	assert.False(t, VerifySignature([]byte("tampered"), sig, "secret"))
}
