package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/notification-engine/internal/models"
)

// Storage defines the persistence interface for the notification engine.
// Every tenant-scoped method binds the scope as a query parameter.
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Notification events (reference data)
	SaveEvent(ctx context.Context, event *models.NotificationEvent) error
	GetEventByKey(ctx context.Context, scope models.TenantScope, eventKey string) (*models.NotificationEvent, error)
	GetEvents(ctx context.Context, scope models.TenantScope) ([]*models.NotificationEvent, error)

	// Templates
	SaveTemplate(ctx context.Context, tmpl *models.Template) error
	GetTemplate(ctx context.Context, scope models.TenantScope, id int64) (*models.Template, error)
	GetActiveTemplateByEvent(ctx context.Context, scope models.TenantScope, eventKey string) (*models.Template, error)
	GetTemplates(ctx context.Context, scope models.TenantScope) ([]*models.Template, error)
	UpdateTemplate(ctx context.Context, tmpl *models.Template) error
	DeleteTemplate(ctx context.Context, scope models.TenantScope, id int64) error

	// Workflows
	SaveWorkflow(ctx context.Context, wf *models.Workflow) error
	GetWorkflow(ctx context.Context, scope models.TenantScope, id int64) (*models.Workflow, error)
	GetWorkflowsByEvent(ctx context.Context, scope models.TenantScope, eventKey string, activeOnly bool) ([]*models.Workflow, error)
	GetWorkflows(ctx context.Context, scope models.TenantScope) ([]*models.Workflow, error)
	UpdateWorkflow(ctx context.Context, wf *models.Workflow) error
	DeleteWorkflow(ctx context.Context, scope models.TenantScope, id int64) error

	// Gateways
	SaveGateway(ctx context.Context, gw *models.Gateway) error
	GetGateway(ctx context.Context, scope models.TenantScope, id int64) (*models.Gateway, error)
	GetGateways(ctx context.Context, scope models.TenantScope, active *bool) ([]*models.Gateway, error)
	GetActiveGatewayTypes(ctx context.Context, scope models.TenantScope) ([]string, error)
	UpdateGateway(ctx context.Context, gw *models.Gateway) error
	DeleteGateway(ctx context.Context, scope models.TenantScope, id int64) error
	// IncrementGatewayCounters bumps total_sent or total_failed plus
	// daily_sent atomically in the database, once per delivery attempt
	IncrementGatewayCounters(ctx context.Context, scope models.TenantScope, id int64, success bool, day string) error

	// Queue
	EnqueueItem(ctx context.Context, item *models.QueueItem) error
	GetQueueItem(ctx context.Context, scope models.TenantScope, id string) (*models.QueueItem, error)
	ListQueueItems(ctx context.Context, scope models.TenantScope, filter models.QueueFilter) ([]*models.QueueItem, error)
	// ClaimDueItems atomically flips eligible pending items to processing
	// and returns only the rows this caller won. A nil scope claims across
	// all tenants (the cron path).
	ClaimDueItems(ctx context.Context, scope *models.TenantScope, limit int, now time.Time) ([]*models.QueueItem, error)
	MarkItemSent(ctx context.Context, id string, messageID string, cost float64, sentAt time.Time) error
	MarkItemFailed(ctx context.Context, id string, retryCount int, errMsg string) error
	RescheduleItem(ctx context.Context, id string, retryCount int, nextAttemptAt time.Time, errMsg string) error
	MarkItemDelivered(ctx context.Context, id string) error
	CancelQueueItem(ctx context.Context, scope models.TenantScope, id string) error
	GetSentItemsForPolling(ctx context.Context, limit int) ([]*models.QueueItem, error)
	CountQueueByStatus(ctx context.Context) (map[string]int64, error)

	// Preferences
	SavePreference(ctx context.Context, pref *models.UserChannelPreference) error
	GetPreference(ctx context.Context, scope models.TenantScope, userID int64, eventKey, channel string) (*models.UserChannelPreference, error)
	GetPreferences(ctx context.Context, scope models.TenantScope, userID int64) ([]*models.UserChannelPreference, error)

	// Users
	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, scope models.TenantScope, id int64) (*models.User, error)

	// Audit log (append-only)
	AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error
	ListAudit(ctx context.Context, scope models.TenantScope, filter models.AuditFilter) ([]*models.AuditLogEntry, error)

	// Statistics and monitoring
	GetStorageStats(ctx context.Context) (*StorageStats, error)
	GetHealth() *StorageHealth
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalTemplates  int64            `json:"total_templates"`
	TotalWorkflows  int64            `json:"total_workflows"`
	TotalGateways   int64            `json:"total_gateways"`
	QueueByStatus   map[string]int64 `json:"queue_by_status"`
	TotalAuditLines int64            `json:"total_audit_lines"`
}

// StorageHealth provides storage health information
type StorageHealth struct {
	StorageType string            `json:"storage_type"`
	Healthy     bool              `json:"healthy"`
	Details     map[string]string `json:"details,omitempty"`
	LastPing    time.Time         `json:"last_ping"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
