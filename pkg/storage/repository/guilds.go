package repository

import (
	"context"
	"time"
)

// Guild carries the guild-level state the bridge tracks: the everyone mute
// and the mute applied to the bot's own account. Both are epoch-millisecond
// expiries with 0 meaning unmuted.
type Guild struct {
	Name          string    `json:"name"`
	MemberCount   int       `json:"member_count"`
	MutedUntil    int64     `json:"muted_until,omitempty"`
	BotMutedUntil int64     `json:"bot_muted_until,omitempty"`
	RefreshedAt   time.Time `json:"refreshed_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Muted reports whether the guild-wide mute is still active at now.
func (g *Guild) Muted(now time.Time) bool {
	return g.MutedUntil > now.UnixMilli()
}

// BotMuted reports whether the bot account's mute is still active at now.
func (g *Guild) BotMuted(now time.Time) bool {
	return g.BotMutedUntil > now.UnixMilli()
}

// GuildRepository defines the interface for guild state persistence.
type GuildRepository interface {
	// Get retrieves a guild by name. Returns nil if not found.
	Get(ctx context.Context, name string) (*Guild, error)

	// Upsert creates or updates a guild keyed by name.
	Upsert(ctx context.Context, g Guild) error

	// SetMutedUntil updates the guild-wide mute expiry (epoch ms; 0 unmutes).
	SetMutedUntil(ctx context.Context, name string, until int64) error

	// SetBotMutedUntil updates the bot account's mute expiry.
	SetBotMutedUntil(ctx context.Context, name string, until int64) error

	// Names lists all stored guild names.
	Names(ctx context.Context) ([]string, error)
}
