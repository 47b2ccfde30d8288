package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/notification-engine/internal/config"
	"github.com/smartdevs17/notification-engine/internal/engine"
	"github.com/smartdevs17/notification-engine/internal/gateway"
	"github.com/smartdevs17/notification-engine/internal/models"
	"github.com/smartdevs17/notification-engine/internal/storage"
	"github.com/smartdevs17/notification-engine/pkg/utils"
)

func newTestServer(t *testing.T) (*HTTPServer, storage.Storage) {
	t.Helper()

	utils.InitLogger("error", "text", "stdout", "")

	store, err := storage.NewStorage(&storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "api.db"),
		MaxConnections:   5,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	gateways := gateway.NewManager(&config.EmailConfig{})
	dispatcher := engine.NewDispatcher(store, &config.DispatchConfig{DefaultMaxRetries: 3, AuditEnabled: true}, nil)
	processor := engine.NewProcessor(store, gateways, &config.QueueConfig{
		BatchSize:      50,
		Workers:        2,
		RetryBaseDelay: time.Minute,
		SendTimeout:    5 * time.Second,
	}, true, nil)

	srv := NewHTTPServer(&config.ServerConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		EnableHealth: true,
	}, store, dispatcher, processor, gateways, nil, "test")

	return srv, store
}

func doRequest(srv *HTTPServer, method, path string, tenantID string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if tenantID != "" {
		req.Header.Set(tenantHeader, tenantID)
	}
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestTenantHeaderRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/events", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/events", "abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/events", "-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/events", "1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestEventRegistrationAndTrigger(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	rec := doRequest(srv, http.MethodPost, "/api/v1/events", "1", map[string]interface{}{
		"event_key":        "lead.created",
		"name":             "Lead Created",
		"default_channels": []string{"email"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	tmpl := &models.Template{
		TenantID: 1, EventKey: "lead.created", Name: "welcome",
		Subject: "Hi", EmailText: "Hello {name}", IsActive: true,
	}
	require.NoError(t, store.SaveTemplate(ctx, tmpl))
	require.NoError(t, store.SaveWorkflow(ctx, &models.Workflow{
		TenantID: 1, Name: "wf", TriggerEvent: "lead.created", TemplateID: tmpl.ID,
		Channel: "email", ScheduleType: models.ScheduleImmediate, IsActive: true,
	}))

	rec = doRequest(srv, http.MethodPost, "/api/v1/events/trigger", "1", map[string]interface{}{
		"event_key": "lead.created",
		"payload":   map[string]interface{}{"recipient": "lead@example.com", "name": "Lee"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.TriggerResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 1, result.Queued)

	// The queue listing sees the new item; another tenant does not
	rec = doRequest(srv, http.MethodGet, "/api/v1/queue", "1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Items []models.QueueItem `json:"items"`
		Total int                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 1, listing.Total)

	rec = doRequest(srv, http.MethodGet, "/api/v1/queue", "2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 0, listing.Total)
}

func TestWorkflowValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	// Missing required fields
	rec := doRequest(srv, http.MethodPost, "/api/v1/workflows", "1", map[string]interface{}{
		"name": "incomplete",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unregistered trigger event
	rec = doRequest(srv, http.MethodPost, "/api/v1/workflows", "1", map[string]interface{}{
		"name":          "bad event",
		"trigger_event": "ghost.event",
		"template_id":   1,
		"channel":       "email",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTemplateCRUD(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/templates", "1", map[string]interface{}{
		"event_key":  "lead.created",
		"name":       "welcome",
		"subject":    "Hi {name}",
		"email_text": "Hello {name}",
		"is_active":  true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Template
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.ID)

	rec = doRequest(srv, http.MethodGet, "/api/v1/templates/9999", "1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Wrong tenant cannot see it
	path := "/api/v1/templates/" + strconv.FormatInt(created.ID, 10)
	rec = doRequest(srv, http.MethodGet, path, "2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(srv, http.MethodGet, path, "1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodDelete, path, "1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodGet, path, "1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueueCancelEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	item := &models.QueueItem{
		TenantID: 1, EventKey: "x", Channel: "email",
		Recipient: "a@example.com", ScheduledAt: time.Now().Add(time.Hour), MaxRetries: 3,
	}
	require.NoError(t, store.EnqueueItem(ctx, item))

	rec := doRequest(srv, http.MethodPost, "/api/v1/queue/"+item.ID+"/cancel", "1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Second cancel: nothing pending
	rec = doRequest(srv, http.MethodPost, "/api/v1/queue/"+item.ID+"/cancel", "1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreferenceEndpoints(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEvent(ctx, &models.NotificationEvent{
		TenantID: 1, EventKey: "task.due", Name: "Task Due", DefaultChannels: []string{"email"},
	}))

	rec := doRequest(srv, http.MethodPut, "/api/v1/preferences/7", "1", map[string]interface{}{
		"event_key":  "task.due",
		"channel":    "email",
		"is_enabled": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/v1/preferences/7/resolved/task.due", "1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resolved struct {
		Channels map[string]bool `json:"channels"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resolved))
	assert.False(t, resolved.Channels["email"], "explicit opt-out beats the event default")
}

