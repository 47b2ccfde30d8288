package models

import (
	"time"
)

// AuditLogEntry records one dispatch attempt. Append-only: never mutated.
type AuditLogEntry struct {
	ID         string    `json:"id" db:"id"`
	TenantID   int64     `json:"tenant_id" db:"tenant_id"`
	WorkflowID *int64    `json:"workflow_id,omitempty" db:"workflow_id"`
	EventKey   string    `json:"event_key" db:"event_key"`
	UserID     *int64    `json:"user_id,omitempty" db:"user_id"`
	Recipient  string    `json:"recipient" db:"recipient"`
	Channel    string    `json:"channel" db:"channel"`
	TemplateID *int64    `json:"template_id,omitempty" db:"template_id"`
	Status     string    `json:"status" db:"status"`
	Error      *string   `json:"error,omitempty" db:"error"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// AuditFilter narrows audit log listings
type AuditFilter struct {
	EventKey *string
	Channel  *string
	Status   *string
	UserID   *int64
	Limit    int
	Offset   int
}
