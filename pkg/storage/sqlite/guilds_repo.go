package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/lunarite/guildbridge/pkg/storage/repository"
)

type guildRepository struct {
	db dbExecutor
}

// NewGuildRepository creates a new SQLite guild repository.
func NewGuildRepository(db dbExecutor) repository.GuildRepository {
	return &guildRepository{db: db}
}

func (r *guildRepository) Get(ctx context.Context, name string) (*repository.Guild, error) {
	query := `SELECT name, member_count, muted_until, bot_muted_until, refreshed_at, updated_at
	          FROM guilds WHERE name = ?`

	var g repository.Guild
	var refreshed, updated int64
	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&g.Name,
		&g.MemberCount,
		&g.MutedUntil,
		&g.BotMutedUntil,
		&refreshed,
		&updated,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	g.RefreshedAt = time.UnixMilli(refreshed)
	g.UpdatedAt = time.UnixMilli(updated)
	return &g, nil
}

func (r *guildRepository) Upsert(ctx context.Context, g repository.Guild) error {
	now := time.Now()
	if g.RefreshedAt.IsZero() {
		g.RefreshedAt = now
	}
	g.UpdatedAt = now

	query := `INSERT INTO guilds (name, member_count, muted_until, bot_muted_until, refreshed_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?)
	          ON CONFLICT (name) DO UPDATE SET
	              member_count = excluded.member_count,
	              muted_until = excluded.muted_until,
	              bot_muted_until = excluded.bot_muted_until,
	              refreshed_at = excluded.refreshed_at,
	              updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		g.Name,
		g.MemberCount,
		g.MutedUntil,
		g.BotMutedUntil,
		g.RefreshedAt.UnixMilli(),
		g.UpdatedAt.UnixMilli(),
	)
	return err
}

func (r *guildRepository) SetMutedUntil(ctx context.Context, name string, until int64) error {
	query := `UPDATE guilds SET muted_until = ?, updated_at = ? WHERE name = ?`
	_, err := r.db.ExecContext(ctx, query, until, time.Now().UnixMilli(), name)
	return err
}

func (r *guildRepository) SetBotMutedUntil(ctx context.Context, name string, until int64) error {
	query := `UPDATE guilds SET bot_muted_until = ?, updated_at = ? WHERE name = ?`
	_, err := r.db.ExecContext(ctx, query, until, time.Now().UnixMilli(), name)
	return err
}

func (r *guildRepository) Names(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM guilds ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
