package repository

import (
	"context"
	"time"
)

// Player is one directory entry: a guild member's game identity, its
// optional Discord link and its mute state.
type Player struct {
	UUID      string    `json:"uuid"`
	IGN       string    `json:"ign"`
	DiscordID string    `json:"discord_id,omitempty"`
	GuildRank string    `json:"guild_rank,omitempty"`
	// MutedUntil is an epoch-millisecond expiry; 0 means unmuted. Expired
	// values are treated as unmuted and lazily reset on read.
	MutedUntil int64     `json:"muted_until,omitempty"`
	JoinedAt   time.Time `json:"joined_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Muted reports whether the player's mute is still active at now.
func (p *Player) Muted(now time.Time) bool {
	return p.MutedUntil > now.UnixMilli()
}

// PlayerRepository defines the interface for player directory persistence.
type PlayerRepository interface {
	// GetByUUID retrieves a player by game UUID (dashless).
	// Returns nil if the player is not found.
	GetByUUID(ctx context.Context, uuid string) (*Player, error)

	// GetByIGN retrieves a player by in-game name, case-insensitively.
	// Returns nil if the player is not found.
	GetByIGN(ctx context.Context, ign string) (*Player, error)

	// GetByDiscordID retrieves a player by linked Discord account.
	// Returns nil if no player has that link.
	GetByDiscordID(ctx context.Context, discordID string) (*Player, error)

	// Upsert creates or updates a player keyed by UUID.
	// Handles timestamp management (JoinedAt, UpdatedAt).
	Upsert(ctx context.Context, p Player) error

	// SetMutedUntil updates a player's mute expiry (epoch ms; 0 unmutes).
	SetMutedUntil(ctx context.Context, uuid string, until int64) error

	// SetDiscordID links or clears a player's Discord account.
	SetDiscordID(ctx context.Context, uuid, discordID string) error

	// Delete removes a player. Returns an error if the player is not found.
	Delete(ctx context.Context, uuid string) error

	// List returns all players ordered by in-game name.
	List(ctx context.Context) ([]Player, error)

	// Count returns the number of directory entries.
	Count(ctx context.Context) (int, error)
}
