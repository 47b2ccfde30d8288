package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/notification-engine/internal/config"
	"github.com/smartdevs17/notification-engine/internal/gateway"
	"github.com/smartdevs17/notification-engine/internal/models"
	"github.com/smartdevs17/notification-engine/internal/storage"
)

func newTestProcessor(store storage.Storage) *Processor {
	return NewProcessor(store, gateway.NewManager(&config.EmailConfig{}), &config.QueueConfig{
		BatchSize:      50,
		Workers:        2,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
		SendTimeout:    5 * time.Second,
	}, true, nil)
}

func enqueueSMSItem(t *testing.T, store storage.Storage, gatewayID int64, maxRetries int) *models.QueueItem {
	t.Helper()
	item := &models.QueueItem{
		TenantID:    1,
		EventKey:    "task.assigned",
		Channel:     "sms",
		GatewayID:   &gatewayID,
		Recipient:   "+61412345678",
		Payload:     map[string]interface{}{"task": "Call the student"},
		ScheduledAt: time.Now().Add(-time.Minute),
		MaxRetries:  maxRetries,
	}
	require.NoError(t, store.EnqueueItem(context.Background(), item))
	return item
}

func TestProcessPassSendsDueItem(t *testing.T) {
	store := newEngineStorage(t)
	ctx := context.Background()
	scope := models.Scope(1)

	var sent atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sent.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"message_id": "prov-1"})
	}))
	defer server.Close()

	seedTemplate(t, store, "task.assigned")
	gw := seedGateway(t, store, 1, "sms", server.URL)
	item := enqueueSMSItem(t, store, gw.ID, 3)

	processor := newTestProcessor(store)
	result, err := processor.ProcessPass(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, int32(1), sent.Load())

	got, err := store.GetQueueItem(ctx, scope, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, got.Status)
	require.NotNil(t, got.GatewayMessageID)
	assert.Equal(t, "prov-1", *got.GatewayMessageID)

	// Counters and audit fire exactly once for the attempt
	gwRow, err := store.GetGateway(ctx, scope, gw.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gwRow.TotalSent)
	assert.Equal(t, int64(1), gwRow.DailySent)

	status := "sent"
	entries, err := store.ListAudit(ctx, scope, models.AuditFilter{Status: &status, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProcessPassTransientFailureRetriesThenFails(t *testing.T) {
	store := newEngineStorage(t)
	ctx := context.Background()
	scope := models.Scope(1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "provider down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	seedTemplate(t, store, "task.assigned")
	gw := seedGateway(t, store, 1, "sms", server.URL)
	item := enqueueSMSItem(t, store, gw.ID, 2)

	processor := newTestProcessor(store)

	// First attempt: transient failure, retry budget not exhausted
	result, err := processor.ProcessPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retried)

	got, err := store.GetQueueItem(ctx, scope, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.NotNil(t, got.ErrorMessage)

	// Second attempt once the backoff elapses: budget exhausted, terminal
	time.Sleep(10 * time.Millisecond)
	result, err = processor.ProcessPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	got, err = store.GetQueueItem(ctx, scope, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, 2, got.RetryCount)

	// Failed items are terminal; nothing left to claim
	result, err = processor.ProcessPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)

	gwRow, err := store.GetGateway(ctx, scope, gw.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gwRow.TotalFailed, "one counter bump per attempt")
}

func TestProcessPassPermanentFailureFailsFast(t *testing.T) {
	store := newEngineStorage(t)
	ctx := context.Background()
	scope := models.Scope(1)

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "unknown recipient", http.StatusBadRequest)
	}))
	defer server.Close()

	seedTemplate(t, store, "task.assigned")
	gw := seedGateway(t, store, 1, "sms", server.URL)
	item := enqueueSMSItem(t, store, gw.ID, 3)

	processor := newTestProcessor(store)
	result, err := processor.ProcessPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	got, err := store.GetQueueItem(ctx, scope, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount, "permanent failures never consume the retry budget")
	assert.Equal(t, int32(1), attempts.Load(), "no retries for permanent failures")
}

func TestProcessPassCancelledItemNeverSends(t *testing.T) {
	store := newEngineStorage(t)
	ctx := context.Background()
	scope := models.Scope(1)

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"message_id": "x"})
	}))
	defer server.Close()

	seedTemplate(t, store, "task.assigned")
	gw := seedGateway(t, store, 1, "sms", server.URL)
	item := enqueueSMSItem(t, store, gw.ID, 3)

	require.NoError(t, store.CancelQueueItem(ctx, scope, item.ID))

	processor := newTestProcessor(store)
	result, err := processor.ProcessPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Zero(t, attempts.Load())
}

func TestProcessPassMissingTemplateFails(t *testing.T) {
	store := newEngineStorage(t)
	ctx := context.Background()
	scope := models.Scope(1)

	gw := seedGateway(t, store, 1, "sms", "https://sms.example.com/send")
	item := enqueueSMSItem(t, store, gw.ID, 3)

	processor := newTestProcessor(store)
	result, err := processor.ProcessPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	got, err := store.GetQueueItem(ctx, scope, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount, "render failures do not burn retries")
}

func TestProcessPassFutureItemUntouched(t *testing.T) {
	store := newEngineStorage(t)
	ctx := context.Background()
	scope := models.Scope(1)

	seedTemplate(t, store, "task.assigned")
	gw := seedGateway(t, store, 1, "sms", "https://sms.example.com/send")

	gatewayID := gw.ID
	item := &models.QueueItem{
		TenantID:    1,
		EventKey:    "task.assigned",
		Channel:     "sms",
		GatewayID:   &gatewayID,
		Recipient:   "+61412345678",
		ScheduledAt: time.Now().Add(time.Hour),
		MaxRetries:  3,
	}
	require.NoError(t, store.EnqueueItem(ctx, item))

	processor := newTestProcessor(store)
	result, err := processor.ProcessPass(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)

	got, err := store.GetQueueItem(ctx, scope, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestPollDeliveriesConfirmsDelivery(t *testing.T) {
	store := newEngineStorage(t)
	ctx := context.Background()
	scope := models.Scope(1)

	sendServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"message_id": "prov-9"})
	}))
	defer sendServer.Close()

	statusServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "delivered"})
	}))
	defer statusServer.Close()

	seedTemplate(t, store, "task.assigned")
	gw := seedGateway(t, store, 1, "sms", sendServer.URL)
	gw.Config["status_url"] = statusServer.URL + "/status/{message_id}"
	require.NoError(t, store.UpdateGateway(ctx, gw))

	item := enqueueSMSItem(t, store, gw.ID, 3)

	processor := newTestProcessor(store)
	_, err := processor.ProcessPass(ctx)
	require.NoError(t, err)

	checked, delivered, err := processor.PollDeliveries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, checked)
	assert.Equal(t, 1, delivered)

	got, err := store.GetQueueItem(ctx, scope, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got.Status)
}
