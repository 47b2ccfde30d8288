package models

import (
	"time"
)

// Queue item statuses. Lifecycle:
// pending -> processing -> sent | failed
// pending -> cancelled (external)
// sent -> delivered (async status poll)
// processing -> pending (transient failure with retries left)
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSent       = "sent"
	StatusDelivered  = "delivered"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// QueueItem is one pending or completed notification delivery attempt
type QueueItem struct {
	ID         string `json:"id" db:"id"`
	TenantID   int64  `json:"tenant_id" db:"tenant_id"`
	WorkflowID *int64 `json:"workflow_id,omitempty" db:"workflow_id"` // nil for direct sends
	EventKey   string `json:"event_key" db:"event_key"`
	UserID     *int64 `json:"user_id,omitempty" db:"user_id"`
	Channel    string `json:"channel" db:"channel"`
	GatewayID  *int64 `json:"gateway_id,omitempty" db:"gateway_id"`
	Recipient  string `json:"recipient" db:"recipient"` // email address or phone
	// Payload is the serialized event data rendered into the template at
	// processing time
	Payload          map[string]interface{} `json:"payload" db:"payload"`
	ScheduledAt      time.Time              `json:"scheduled_at" db:"scheduled_at"`
	NextAttemptAt    time.Time              `json:"next_attempt_at" db:"next_attempt_at"`
	Status           string                 `json:"status" db:"status"`
	RetryCount       int                    `json:"retry_count" db:"retry_count"`
	MaxRetries       int                    `json:"max_retries" db:"max_retries"`
	ErrorMessage     *string                `json:"error_message,omitempty" db:"error_message"`
	GatewayMessageID *string                `json:"gateway_message_id,omitempty" db:"gateway_message_id"`
	Cost             float64                `json:"cost" db:"cost"`
	CreatedAt        time.Time              `json:"created_at" db:"created_at"`
	SentAt           *time.Time             `json:"sent_at,omitempty" db:"sent_at"`
}

// QueueFilter narrows queue listings
type QueueFilter struct {
	Status   *string
	Channel  *string
	EventKey *string
	Limit    int
	Offset   int
}
