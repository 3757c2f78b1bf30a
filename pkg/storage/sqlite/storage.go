// Package sqlite is the default single-file storage backend. Timestamps
// are stored as epoch milliseconds for portability across drivers.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/lunarite/guildbridge/pkg/storage/repository"
)

// SQLiteStorage implements the storage.Storage interface on a local file.
type SQLiteStorage struct {
	db      *sql.DB
	players repository.PlayerRepository
	guilds  repository.GuildRepository
}

// NewSQLiteStorage creates a new SQLite storage instance at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required for SQLite storage")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// modernc's driver is not safe for concurrent writers on one handle.
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{db: db}
	s.players = NewPlayerRepository(db)
	s.guilds = NewGuildRepository(db)
	return s, nil
}

// Connect verifies the file is usable and creates the schema.
func (s *SQLiteStorage) Connect(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Players returns the player repository.
func (s *SQLiteStorage) Players() repository.PlayerRepository {
	return s.players
}

// Guilds returns the guild repository.
func (s *SQLiteStorage) Guilds() repository.GuildRepository {
	return s.guilds
}

// Ping checks if the database connection is alive.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying handle for migration tooling.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

const schema = `
CREATE TABLE IF NOT EXISTS players (
    uuid        TEXT PRIMARY KEY,
    ign         TEXT NOT NULL,
    discord_id  TEXT NOT NULL DEFAULT '',
    guild_rank  TEXT NOT NULL DEFAULT '',
    muted_until INTEGER NOT NULL DEFAULT 0,
    joined_at   INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_players_ign ON players (LOWER(ign));
CREATE INDEX IF NOT EXISTS idx_players_discord_id ON players (discord_id);

CREATE TABLE IF NOT EXISTS guilds (
    name            TEXT PRIMARY KEY,
    member_count    INTEGER NOT NULL DEFAULT 0,
    muted_until     INTEGER NOT NULL DEFAULT 0,
    bot_muted_until INTEGER NOT NULL DEFAULT 0,
    refreshed_at    INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);
`
