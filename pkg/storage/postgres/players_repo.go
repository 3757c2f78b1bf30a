package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lunarite/guildbridge/pkg/storage/repository"
)

type playerRepository struct {
	db dbExecutor
}

// dbExecutor is an interface that works with both *sql.DB and *sql.Tx
type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// NewPlayerRepository creates a new PostgreSQL player repository.
func NewPlayerRepository(db dbExecutor) repository.PlayerRepository {
	return &playerRepository{db: db}
}

const playerColumns = `uuid, ign, discord_id, guild_rank, muted_until, joined_at, updated_at`

func (r *playerRepository) scanPlayer(row *sql.Row) (*repository.Player, error) {
	var p repository.Player
	err := row.Scan(&p.UUID, &p.IGN, &p.DiscordID, &p.GuildRank, &p.MutedUntil, &p.JoinedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *playerRepository) GetByUUID(ctx context.Context, uuid string) (*repository.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE uuid = $1`
	return r.scanPlayer(r.db.QueryRowContext(ctx, query, uuid))
}

func (r *playerRepository) GetByIGN(ctx context.Context, ign string) (*repository.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE LOWER(ign) = LOWER($1)`
	return r.scanPlayer(r.db.QueryRowContext(ctx, query, ign))
}

func (r *playerRepository) GetByDiscordID(ctx context.Context, discordID string) (*repository.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE discord_id = $1`
	return r.scanPlayer(r.db.QueryRowContext(ctx, query, discordID))
}

func (r *playerRepository) Upsert(ctx context.Context, p repository.Player) error {
	now := time.Now()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = now
	}
	p.UpdatedAt = now

	query := `INSERT INTO players (uuid, ign, discord_id, guild_rank, muted_until, joined_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (uuid) DO UPDATE SET
	              ign = EXCLUDED.ign,
	              discord_id = EXCLUDED.discord_id,
	              guild_rank = EXCLUDED.guild_rank,
	              muted_until = EXCLUDED.muted_until,
	              updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		p.UUID,
		p.IGN,
		p.DiscordID,
		p.GuildRank,
		p.MutedUntil,
		p.JoinedAt,
		p.UpdatedAt,
	)
	return err
}

func (r *playerRepository) SetMutedUntil(ctx context.Context, uuid string, until int64) error {
	query := `UPDATE players SET muted_until = $2, updated_at = $3 WHERE uuid = $1`
	_, err := r.db.ExecContext(ctx, query, uuid, until, time.Now())
	return err
}

func (r *playerRepository) SetDiscordID(ctx context.Context, uuid, discordID string) error {
	query := `UPDATE players SET discord_id = $2, updated_at = $3 WHERE uuid = $1`
	_, err := r.db.ExecContext(ctx, query, uuid, discordID, time.Now())
	return err
}

func (r *playerRepository) Delete(ctx context.Context, uuid string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM players WHERE uuid = $1`, uuid)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *playerRepository) List(ctx context.Context) ([]repository.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players ORDER BY LOWER(ign)`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []repository.Player
	for rows.Next() {
		var p repository.Player
		if err := rows.Scan(&p.UUID, &p.IGN, &p.DiscordID, &p.GuildRank, &p.MutedUntil, &p.JoinedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (r *playerRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players`).Scan(&count)
	return count, err
}
