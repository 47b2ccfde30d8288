package models

import (
	"time"
)

// NotificationEvent is a named trigger point in the CRM workflow.
// Reference data: created at setup time, read-only at runtime.
type NotificationEvent struct {
	ID              int64     `json:"id" db:"id"`
	TenantID        int64     `json:"tenant_id" db:"tenant_id"`
	EventKey        string    `json:"event_key" db:"event_key"`
	Name            string    `json:"name" db:"name"`
	Category        string    `json:"category" db:"category"`
	Variables       []string  `json:"variables" db:"variables"`
	DefaultChannels []string  `json:"default_channels" db:"default_channels"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// HasDefaultChannel reports whether channel is in the event's default list
func (e *NotificationEvent) HasDefaultChannel(channel string) bool {
	for _, c := range e.DefaultChannels {
		if c == channel {
			return true
		}
	}
	return false
}
