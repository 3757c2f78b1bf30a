package storage

import (
	"context"
	"time"

	"github.com/lunarite/guildbridge/pkg/storage/repository"
)

// Storage is the directory persistence abstraction. It backs the guild
// roster, Discord account links and mute state.
type Storage interface {
	Players() repository.PlayerRepository
	Guilds() repository.GuildRepository

	// Lifecycle management
	Connect(ctx context.Context) error
	Close() error

	// Health check
	Ping(ctx context.Context) error
}

// Config holds storage configuration for the supported backends.
type Config struct {
	Type         string        // "sqlite" or "postgres"
	Path         string        // sqlite database file path
	DatabaseURL  string        // postgres connection string
	SSLEnabled   bool          // enable SSL for postgres connections
	MaxIdleConns int           // connection pool: max idle connections
	MaxOpenConns int           // connection pool: max open connections
	MaxLifetime  time.Duration // connection pool: max connection lifetime
}

// DefaultConfig returns a default storage configuration.
func DefaultConfig(storageType string) Config {
	return Config{
		Type:         storageType,
		MaxIdleConns: 5,
		MaxOpenConns: 25,
		MaxLifetime:  5 * time.Minute,
	}
}
