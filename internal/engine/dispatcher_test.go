package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/notification-engine/internal/config"
	"github.com/smartdevs17/notification-engine/internal/models"
	"github.com/smartdevs17/notification-engine/internal/storage"
)

func newTestDispatcher(store storage.Storage) *Dispatcher {
	return NewDispatcher(store, &config.DispatchConfig{
		DefaultMaxRetries: 3,
		AuditEnabled:      true,
	}, nil)
}

func seedEvent(t *testing.T, store storage.Storage, eventKey string, defaults []string) {
	t.Helper()
	require.NoError(t, store.SaveEvent(context.Background(), &models.NotificationEvent{
		TenantID:        1,
		EventKey:        eventKey,
		Name:            eventKey,
		DefaultChannels: defaults,
	}))
}

func seedUser(t *testing.T, store storage.Storage) *models.User {
	t.Helper()
	user := &models.User{
		TenantID: 1,
		Name:     "Asha Patel",
		Email:    "asha@example.com",
		Phone:    "+61412345678",
	}
	require.NoError(t, store.SaveUser(context.Background(), user))
	return user
}

func seedTemplate(t *testing.T, store storage.Storage, eventKey string) *models.Template {
	t.Helper()
	tmpl := &models.Template{
		TenantID:  1,
		EventKey:  eventKey,
		Name:      eventKey + " template",
		Subject:   "Update on {name}",
		EmailHTML: "<p>Hello {name}</p>",
		EmailText: "Hello {name}",
		IsActive:  true,
	}
	require.NoError(t, store.SaveTemplate(context.Background(), tmpl))
	return tmpl
}

func seedWorkflow(t *testing.T, store storage.Storage, wf *models.Workflow) *models.Workflow {
	t.Helper()
	wf.TenantID = 1
	wf.IsActive = true
	require.NoError(t, store.SaveWorkflow(context.Background(), wf))
	return wf
}

func TestTriggerEventUnregisteredEventIsNoop(t *testing.T) {
	store := newEngineStorage(t)
	dispatcher := newTestDispatcher(store)

	result := dispatcher.TriggerEvent(context.Background(), models.Scope(1), "ghost.event", map[string]interface{}{})
	assert.Zero(t, result.Matched)
	assert.Zero(t, result.Queued)
}

func TestTriggerEventQueuesMatchingWorkflows(t *testing.T) {
	store := newEngineStorage(t)
	ctx := context.Background()
	scope := models.Scope(1)

	seedEvent(t, store, "lead.created", []string{"email"})
	tmpl := seedTemplate(t, store, "lead.created")
	seedWorkflow(t, store, &models.Workflow{
		Name:         "web leads",
		TriggerEvent: "lead.created",
		TemplateID:   tmpl.ID,
		Channel:      "email",
		ScheduleType: models.ScheduleImmediate,
		Conditions: []models.Condition{
			{Field: "source", Operator: models.OpEquals, Value: models.ScalarValue("web")},
		},
	})
	seedWorkflow(t, store, &models.Workflow{
		Name:         "referral leads",
		TriggerEvent: "lead.created",
		TemplateID:   tmpl.ID,
		Channel:      "email",
		ScheduleType: models.ScheduleImmediate,
		Conditions: []models.Condition{
			{Field: "source", Operator: models.OpEquals, Value: models.ScalarValue("referral")},
		},
	})

	dispatcher := newTestDispatcher(store)
	result := dispatcher.TriggerEvent(ctx, scope, "lead.created", map[string]interface{}{
		"source":    "web",
		"recipient": "lead@example.com",
	})

	assert.Equal(t, 1, result.Matched, "only the web workflow matches")
	assert.Equal(t, 1, result.Queued)

	items, err := store.ListQueueItems(ctx, scope, models.QueueFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "lead@example.com", items[0].Recipient)
	assert.Equal(t, models.StatusPending, items[0].Status)
	assert.Equal(t, 3, items[0].MaxRetries)
	require.NotNil(t, items[0].WorkflowID)
}

func TestTriggerEventDelaySchedule(t *testing.T) {
	store := newEngineStorage(t)
	ctx := context.Background()
	scope := models.Scope(1)

	seedEvent(t, store, "quote.sent", nil)
	tmpl := seedTemplate(t, store, "quote.sent")
	seedWorkflow(t, store, &models.Workflow{
		Name:         "follow up",
		TriggerEvent: "quote.sent",
		TemplateID:   tmpl.ID,
		Channel:      "email",
		ScheduleType: models.ScheduleDelay,
		DelayMinutes: 60,
	})

	dispatcher := newTestDispatcher(store)
	before := time.Now()
	result := dispatcher.TriggerEvent(ctx, scope, "quote.sent", map[string]interface{}{
		"recipient": "client@example.com",
	})
	require.Equal(t, 1, result.Queued)

	items, err := store.ListQueueItems(ctx, scope, models.QueueFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.WithinDuration(t, before.Add(time.Hour), items[0].ScheduledAt, 5*time.Second)
}

func TestTriggerEventMissingScheduleReferenceSkips(t *testing.T) {
	store := newEngineStorage(t)
	ctx := context.Background()
	scope := models.Scope(1)

	seedEvent(t, store, "invoice.created", nil)
	tmpl := seedTemplate(t, store, "invoice.created")
	seedWorkflow(t, store, &models.Workflow{
		Name:              "due reminder",
		TriggerEvent:      "invoice.created",
		TemplateID:        tmpl.ID,
		Channel:           "email",
		ScheduleType:      models.ScheduleDistinctTime,
		ScheduleReference: "due_date",
		ScheduleOffset:    -2,
		ScheduleUnit:      "days",
	})

	dispatcher := newTestDispatcher(store)
	result := dispatcher.TriggerEvent(ctx, scope, "invoice.created", map[string]interface{}{
		"recipient": "client@example.com",
	})

	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 0, result.Queued, "no reference date, nothing queued")

	items, err := store.ListQueueItems(ctx, scope, models.QueueFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, items)

	// The skip leaves an audit trail
	status := "skipped"
	entries, err := store.ListAudit(ctx, scope, models.AuditFilter{Status: &status, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTriggerEventDistinctTimeSchedule(t *testing.T) {
	store := newEngineStorage(t)
	ctx := context.Background()
	scope := models.Scope(1)

	seedEvent(t, store, "invoice.created", nil)
	tmpl := seedTemplate(t, store, "invoice.created")
	seedWorkflow(t, store, &models.Workflow{
		Name:              "due reminder",
		TriggerEvent:      "invoice.created",
		TemplateID:        tmpl.ID,
		Channel:           "email",
		ScheduleType:      models.ScheduleDistinctTime,
		ScheduleReference: "due_date",
		ScheduleOffset:    -2,
		ScheduleUnit:      "days",
	})

	dispatcher := newTestDispatcher(store)
	result := dispatcher.TriggerEvent(ctx, scope, "invoice.created", map[string]interface{}{
		"recipient": "client@example.com",
		"due_date":  "2026-01-10",
	})
	require.Equal(t, 1, result.Queued)

	items, err := store.ListQueueItems(ctx, scope, models.QueueFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC), items[0].ScheduledAt.UTC())
}

func TestTriggerEventRespectsUserPreference(t *testing.T) {
	store := newEngineStorage(t)
	ctx := context.Background()
	scope := models.Scope(1)

	seedEvent(t, store, "task.assigned", []string{"email", "sms"})
	seedGateway(t, store, 1, "sms", "https://sms.example.com/send")
	user := seedUser(t, store)
	tmpl := seedTemplate(t, store, "task.assigned")
	seedWorkflow(t, store, &models.Workflow{
		Name:         "task sms",
		TriggerEvent: "task.assigned",
		TemplateID:   tmpl.ID,
		Channel:      "sms",
		ScheduleType: models.ScheduleImmediate,
	})

	// User opted out of sms for this event
	require.NoError(t, store.SavePreference(ctx, &models.UserChannelPreference{
		TenantID: 1, UserID: user.ID, EventKey: "task.assigned", Channel: "sms", IsEnabled: false,
	}))

	dispatcher := newTestDispatcher(store)
	result := dispatcher.TriggerEvent(ctx, scope, "task.assigned", map[string]interface{}{
		"user_id": float64(user.ID),
	})

	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 0, result.Queued, "preference opt-out suppresses delivery")

	items, err := store.ListQueueItems(ctx, scope, models.QueueFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTriggerEventUserRecipient(t *testing.T) {
	store := newEngineStorage(t)
	ctx := context.Background()
	scope := models.Scope(1)

	seedEvent(t, store, "task.assigned", []string{"sms"})
	seedGateway(t, store, 1, "sms", "https://sms.example.com/send")
	user := seedUser(t, store)
	tmpl := seedTemplate(t, store, "task.assigned")
	seedWorkflow(t, store, &models.Workflow{
		Name:         "task sms",
		TriggerEvent: "task.assigned",
		TemplateID:   tmpl.ID,
		Channel:      "sms",
		ScheduleType: models.ScheduleImmediate,
	})

	dispatcher := newTestDispatcher(store)
	result := dispatcher.TriggerEvent(ctx, scope, "task.assigned", map[string]interface{}{
		"user_id": float64(user.ID),
	})
	require.Equal(t, 1, result.Queued)

	items, err := store.ListQueueItems(ctx, scope, models.QueueFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, user.Phone, items[0].Recipient, "phone resolved from the user record")
	require.NotNil(t, items[0].UserID)
	assert.Equal(t, user.ID, *items[0].UserID)
}

func TestTriggerEventTenantIsolation(t *testing.T) {
	store := newEngineStorage(t)
	ctx := context.Background()

	seedEvent(t, store, "lead.created", nil)
	tmpl := seedTemplate(t, store, "lead.created")
	seedWorkflow(t, store, &models.Workflow{
		Name:         "tenant one workflow",
		TriggerEvent: "lead.created",
		TemplateID:   tmpl.ID,
		Channel:      "email",
		ScheduleType: models.ScheduleImmediate,
	})

	dispatcher := newTestDispatcher(store)

	// Tenant 2 never registered this event, so its trigger is a no-op
	result := dispatcher.TriggerEvent(ctx, models.Scope(2), "lead.created", map[string]interface{}{
		"recipient": "other@example.com",
	})
	assert.Zero(t, result.Matched)
	assert.Zero(t, result.Queued)
}

func TestDispatchQueuesEnabledChannels(t *testing.T) {
	store := newEngineStorage(t)
	ctx := context.Background()
	scope := models.Scope(1)

	seedEvent(t, store, "application.update", []string{"email", "sms"})
	sms := seedGateway(t, store, 1, "sms", "https://sms.example.com/send")
	user := seedUser(t, store)
	seedTemplate(t, store, "application.update")

	dispatcher := newTestDispatcher(store)
	outcome := dispatcher.Dispatch(ctx, scope, "application.update", user.ID, map[string]interface{}{
		"course": "MBA",
	})

	assert.True(t, outcome["email"])
	assert.True(t, outcome["sms"])

	items, err := store.ListQueueItems(ctx, scope, models.QueueFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 2)

	byChannel := map[string]*models.QueueItem{}
	for _, item := range items {
		byChannel[item.Channel] = item
	}
	assert.Equal(t, user.Email, byChannel["email"].Recipient)
	assert.Equal(t, user.Phone, byChannel["sms"].Recipient)
	require.NotNil(t, byChannel["sms"].GatewayID)
	assert.Equal(t, sms.ID, *byChannel["sms"].GatewayID, "sms bound to the active gateway")
	assert.Nil(t, byChannel["email"].GatewayID, "email falls back to the default SMTP config")
}

func TestDispatchUnknownUserDrops(t *testing.T) {
	store := newEngineStorage(t)
	scope := models.Scope(1)

	seedEvent(t, store, "application.update", []string{"email"})
	seedTemplate(t, store, "application.update")

	dispatcher := newTestDispatcher(store)
	outcome := dispatcher.Dispatch(context.Background(), scope, "application.update", 999, nil)
	assert.Empty(t, outcome)
}

func TestDispatchNoTemplateDrops(t *testing.T) {
	store := newEngineStorage(t)
	scope := models.Scope(1)

	seedEvent(t, store, "application.update", []string{"email"})
	user := seedUser(t, store)

	dispatcher := newTestDispatcher(store)
	outcome := dispatcher.Dispatch(context.Background(), scope, "application.update", user.ID, nil)
	assert.Empty(t, outcome)
}
