package sqlite

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

// NewPlayerRepository creates a new SQLite player repository.
func NewPlayerRepository(db dbExecutor) repository.PlayerRepository {
	return &playerRepository{db: db}
}

const playerColumns = `uuid, ign, discord_id, guild_rank, muted_until, joined_at, updated_at`

func scanPlayer(row *sql.Row) (*repository.Player, error) {
	var p repository.Player
	var joined, updated int64
	err := row.Scan(&p.UUID, &p.IGN, &p.DiscordID, &p.GuildRank, &p.MutedUntil, &joined, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.JoinedAt = time.UnixMilli(joined)
	p.UpdatedAt = time.UnixMilli(updated)
	return &p, nil
}

func (r *playerRepository) GetByUUID(ctx context.Context, uuid string) (*repository.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE uuid = ?`
	return scanPlayer(r.db.QueryRowContext(ctx, query, uuid))
}

func (r *playerRepository) GetByIGN(ctx context.Context, ign string) (*repository.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE LOWER(ign) = LOWER(?)`
	return scanPlayer(r.db.QueryRowContext(ctx, query, ign))
}

func (r *playerRepository) GetByDiscordID(ctx context.Context, discordID string) (*repository.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE discord_id = ? AND discord_id <> ''`
	return scanPlayer(r.db.QueryRowContext(ctx, query, discordID))
}

func (r *playerRepository) Upsert(ctx context.Context, p repository.Player) error {
	now := time.Now()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = now
	}
	p.UpdatedAt = now

	query := `INSERT INTO players (uuid, ign, discord_id, guild_rank, muted_until, joined_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)
	          ON CONFLICT (uuid) DO UPDATE SET
	              ign = excluded.ign,
	              discord_id = excluded.discord_id,
	              guild_rank = excluded.guild_rank,
	              muted_until = excluded.muted_until,
	              updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		p.UUID,
		p.IGN,
		p.DiscordID,
		p.GuildRank,
		p.MutedUntil,
		p.JoinedAt.UnixMilli(),
		p.UpdatedAt.UnixMilli(),
	)
	return err
}

func (r *playerRepository) SetMutedUntil(ctx context.Context, uuid string, until int64) error {
	query := `UPDATE players SET muted_until = ?, updated_at = ? WHERE uuid = ?`
	_, err := r.db.ExecContext(ctx, query, until, time.Now().UnixMilli(), uuid)
	return err
}

func (r *playerRepository) SetDiscordID(ctx context.Context, uuid, discordID string) error {
	query := `UPDATE players SET discord_id = ?, updated_at = ? WHERE uuid = ?`
	_, err := r.db.ExecContext(ctx, query, discordID, time.Now().UnixMilli(), uuid)
	return err
}

func (r *playerRepository) Delete(ctx context.Context, uuid string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM players WHERE uuid = ?`, uuid)
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
		var joined, updated int64
		if err := rows.Scan(&p.UUID, &p.IGN, &p.DiscordID, &p.GuildRank, &p.MutedUntil, &joined, &updated); err != nil {
			return nil, err
		}
		p.JoinedAt = time.UnixMilli(joined)
		p.UpdatedAt = time.UnixMilli(updated)
		players = append(players, p)
	}
	return players, rows.Err()
}

func (r *playerRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players`).Scan(&count)
	return count, err
}
