package models

import (
	"time"
)

// User is the slice of the CRM user record this engine needs: recipient
// addresses and the identity placeholders injected into every template.
type User struct {
	ID        int64     `json:"id" db:"id"`
	TenantID  int64     `json:"tenant_id" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RecipientFor returns the delivery address for a channel: the email address
// for email, the phone number otherwise
func (u *User) RecipientFor(channel string) string {
	if channel == ChannelEmail {
		return u.Email
	}
	return u.Phone
}
