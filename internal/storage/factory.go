package storage

import (
	"fmt"

	"github.com/smartdevs17/notification-engine/pkg/utils"
)

// NewStorage creates a storage backend for the configured type
func NewStorage(config *StorageConfig) (Storage, error) {
	switch config.Type {
	case "sqlite":
		return NewSQLiteStorage(config), nil
	case "postgres", "postgresql":
		return NewPostgreSQLStorage(config), nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration,
			fmt.Sprintf("Unsupported storage type: %s", config.Type),
			"supported types are sqlite and postgres")
	}
}
