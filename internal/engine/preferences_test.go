package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/notification-engine/internal/models"
	"github.com/smartdevs17/notification-engine/internal/storage"
	"github.com/smartdevs17/notification-engine/pkg/utils"
)

func newEngineStorage(t *testing.T) storage.Storage {
	t.Helper()

	utils.InitLogger("error", "text", "stdout", "")

	store, err := storage.NewStorage(&storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "engine.db"),
		MaxConnections:   5,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	return store
}

func seedGateway(t *testing.T, store storage.Storage, tenantID int64, gwType, url string) *models.Gateway {
	t.Helper()
	gw := &models.Gateway{
		TenantID: tenantID,
		Name:     gwType + "-gw",
		Type:     gwType,
		Provider: "generic",
		IsActive: true,
		Config:   map[string]interface{}{"url": url, "country_code": "61"},
	}
	require.NoError(t, store.SaveGateway(context.Background(), gw))
	return gw
}

func TestResolveChannelsDefaults(t *testing.T) {
	store := newEngineStorage(t)
	ctx := context.Background()
	scope := models.Scope(1)

	require.NoError(t, store.SaveEvent(ctx, &models.NotificationEvent{
		TenantID:        1,
		EventKey:        "task.due",
		Name:            "Task Due",
		DefaultChannels: []string{"email", "sms"},
	}))
	seedGateway(t, store, 1, "sms", "https://sms.example.com/send")

	resolver := NewPreferenceResolver(store)
	channels, err := resolver.ResolveChannels(ctx, scope, 7, "task.due")
	require.NoError(t, err)

	assert.True(t, channels["email"])
	assert.True(t, channels["sms"])
	assert.NotContains(t, channels, "whatsapp", "no active whatsapp gateway means no whatsapp channel")
}

func TestResolveChannelsPreferenceWins(t *testing.T) {
	store := newEngineStorage(t)
	ctx := context.Background()
	scope := models.Scope(1)

	require.NoError(t, store.SaveEvent(ctx, &models.NotificationEvent{
		TenantID:        1,
		EventKey:        "task.due",
		Name:            "Task Due",
		DefaultChannels: []string{"email", "sms"},
	}))
	seedGateway(t, store, 1, "sms", "https://sms.example.com/send")

	// Opt out of a default channel and into a non-default one
	require.NoError(t, store.SavePreference(ctx, &models.UserChannelPreference{
		TenantID: 1, UserID: 7, EventKey: "task.due", Channel: "sms", IsEnabled: false,
	}))
	seedGateway(t, store, 1, "whatsapp", "https://wa.example.com/send")
	require.NoError(t, store.SavePreference(ctx, &models.UserChannelPreference{
		TenantID: 1, UserID: 7, EventKey: "task.due", Channel: "whatsapp", IsEnabled: true,
	}))

	resolver := NewPreferenceResolver(store)
	channels, err := resolver.ResolveChannels(ctx, scope, 7, "task.due")
	require.NoError(t, err)

	assert.True(t, channels["email"], "untouched default stays on")
	assert.False(t, channels["sms"], "explicit opt-out wins over default")
	assert.True(t, channels["whatsapp"], "explicit opt-in wins over missing default")
}

func TestResolveChannelsUnknownEvent(t *testing.T) {
	store := newEngineStorage(t)
	scope := models.Scope(1)

	resolver := NewPreferenceResolver(store)
	channels, err := resolver.ResolveChannels(context.Background(), scope, 7, "never.registered")
	require.NoError(t, err)

	// No event defaults and no preference rows: everything defaults off
	assert.False(t, channels["email"])
}
