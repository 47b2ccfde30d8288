package models

import (
	"time"
)

// UserChannelPreference is a user's explicit opt-in/out for one channel on
// one event. Absence of a row means the event's default channel list applies.
type UserChannelPreference struct {
	ID        int64     `json:"id" db:"id"`
	TenantID  int64     `json:"tenant_id" db:"tenant_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	EventKey  string    `json:"event_key" db:"event_key"`
	Channel   string    `json:"channel" db:"channel"`
	IsEnabled bool      `json:"is_enabled" db:"is_enabled"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
