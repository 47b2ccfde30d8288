package utils

import (
	"github.com/google/uuid"
)

// GenerateID generates a random identifier for queue items and audit entries
func GenerateID() string {
	return uuid.NewString()
}
