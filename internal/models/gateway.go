package models

import (
	"time"
)

// Gateway is a configured connection to an external delivery provider.
// Config is an opaque blob interpreted by the matching sender implementation
// (SMTP credentials, API endpoint/keys, default country code, ...).
// Counters are informational; queue_items is authoritative for delivery
// state.
type Gateway struct {
	ID             int64                  `json:"id" db:"id"`
	TenantID       int64                  `json:"tenant_id" db:"tenant_id"`
	Name           string                 `json:"name" db:"name"`
	Type           string                 `json:"type" db:"type"` // sms, whatsapp, viber, push, email
	Provider       string                 `json:"provider" db:"provider"`
	Config         map[string]interface{} `json:"config" db:"config"`
	IsActive       bool                   `json:"is_active" db:"is_active"`
	TotalSent      int64                  `json:"total_sent" db:"total_sent"`
	TotalFailed    int64                  `json:"total_failed" db:"total_failed"`
	DailySent      int64                  `json:"daily_sent" db:"daily_sent"`
	DailyDate      string                 `json:"daily_date" db:"daily_date"` // YYYY-MM-DD
	CostPerMessage float64                `json:"cost_per_message" db:"cost_per_message"`
	CreatedAt      time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at" db:"updated_at"`
}

// ConfigString reads a string value out of the opaque config blob
func (g *Gateway) ConfigString(key string) string {
	if v, ok := g.Config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ConfigBool reads a boolean value out of the opaque config blob
func (g *Gateway) ConfigBool(key string, def bool) bool {
	if v, ok := g.Config[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// ConfigInt reads an integer value out of the opaque config blob
func (g *Gateway) ConfigInt(key string, def int) int {
	if v, ok := g.Config[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return def
}
