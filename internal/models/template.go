package models

import (
	"time"
)

// ChannelContent holds the subject/body pair for one channel of a template
type ChannelContent struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	// GatewayID optionally pins this channel's sends to a specific gateway
	GatewayID *int64 `json:"gateway_id,omitempty"`
}

// Template holds per-channel content for one event key. EmailText is the
// stripped-HTML fallback used when a text rendering of the email body is
// needed and no channel-specific content exists.
type Template struct {
	ID        int64                     `json:"id" db:"id"`
	TenantID  int64                     `json:"tenant_id" db:"tenant_id"`
	EventKey  string                    `json:"event_key" db:"event_key"`
	Name      string                    `json:"name" db:"name"`
	EmailHTML string                    `json:"email_html" db:"email_html"`
	EmailText string                    `json:"email_text" db:"email_text"`
	Subject   string                    `json:"subject" db:"subject"`
	Channels  map[string]ChannelContent `json:"channels" db:"channels"`
	IsActive  bool                      `json:"is_active" db:"is_active"`
	IsSystem  bool                      `json:"is_system" db:"is_system"`
	CreatedAt time.Time                 `json:"created_at" db:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at" db:"updated_at"`
}
