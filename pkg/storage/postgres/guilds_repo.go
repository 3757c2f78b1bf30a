package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lunarite/guildbridge/pkg/storage/repository"
)

type guildRepository struct {
	db dbExecutor
}

// NewGuildRepository creates a new PostgreSQL guild repository.
func NewGuildRepository(db dbExecutor) repository.GuildRepository {
	return &guildRepository{db: db}
}

func (r *guildRepository) Get(ctx context.Context, name string) (*repository.Guild, error) {
	query := `SELECT name, member_count, muted_until, bot_muted_until, refreshed_at, updated_at
	          FROM guilds WHERE name = $1`

	var g repository.Guild
	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&g.Name,
		&g.MemberCount,
		&g.MutedUntil,
		&g.BotMutedUntil,
		&g.RefreshedAt,
		&g.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *guildRepository) Upsert(ctx context.Context, g repository.Guild) error {
	now := time.Now()
	if g.RefreshedAt.IsZero() {
		g.RefreshedAt = now
	}
	g.UpdatedAt = now

	query := `INSERT INTO guilds (name, member_count, muted_until, bot_muted_until, refreshed_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          ON CONFLICT (name) DO UPDATE SET
	              member_count = EXCLUDED.member_count,
	              muted_until = EXCLUDED.muted_until,
	              bot_muted_until = EXCLUDED.bot_muted_until,
	              refreshed_at = EXCLUDED.refreshed_at,
	              updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		g.Name,
		g.MemberCount,
		g.MutedUntil,
		g.BotMutedUntil,
		g.RefreshedAt,
		g.UpdatedAt,
	)
	return err
}

func (r *guildRepository) SetMutedUntil(ctx context.Context, name string, until int64) error {
	query := `UPDATE guilds SET muted_until = $2, updated_at = $3 WHERE name = $1`
	_, err := r.db.ExecContext(ctx, query, name, until, time.Now())
	return err
}

func (r *guildRepository) SetBotMutedUntil(ctx context.Context, name string, until int64) error {
	query := `UPDATE guilds SET bot_muted_until = $2, updated_at = $3 WHERE name = $1`
	_, err := r.db.ExecContext(ctx, query, name, until, time.Now())
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
