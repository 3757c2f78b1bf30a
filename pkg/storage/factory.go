package storage

import (
	"fmt"

	"github.com/lunarite/guildbridge/pkg/storage/postgres"
	"github.com/lunarite/guildbridge/pkg/storage/sqlite"
)

// NewStorage creates a Storage implementation based on the provided configuration.
// Supported types: "sqlite", "postgres"
func NewStorage(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "sqlite":
		return sqlite.NewSQLiteStorage(cfg.Path)
	case "postgres":
		return postgres.NewPostgresStorage(cfg.DatabaseURL, cfg.SSLEnabled, cfg.MaxIdleConns, cfg.MaxOpenConns, cfg.MaxLifetime)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (supported: sqlite, postgres)", cfg.Type)
	}
}
