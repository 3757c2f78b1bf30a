package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lunarite/guildbridge/pkg/storage/repository"
)

func testStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "guildbridge.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPlayerRoundTrip(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	p := repository.Player{
		UUID:      "f7c1d3e2a9b84c55a0e1b2c3d4e5f601",
		IGN:       "Lunarite",
		DiscordID: "186266631", GuildRank: "Elder",
	}
	if err := s.Players().Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Players().GetByIGN(ctx, "lunaRITE")
	if err != nil {
		t.Fatalf("GetByIGN: %v", err)
	}
	if got == nil {
		t.Fatal("GetByIGN returned nil for existing player")
	}
	if got.UUID != p.UUID || got.GuildRank != "Elder" {
		t.Errorf("got %+v, want uuid %s rank Elder", got, p.UUID)
	}
	if got.JoinedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not populated on upsert")
	}

	byDiscord, err := s.Players().GetByDiscordID(ctx, "186266631")
	if err != nil {
		t.Fatalf("GetByDiscordID: %v", err)
	}
	if byDiscord == nil || byDiscord.UUID != p.UUID {
		t.Errorf("GetByDiscordID = %+v, want uuid %s", byDiscord, p.UUID)
	}
}

func TestPlayerMissingIsNil(t *testing.T) {
	s := testStorage(t)

	got, err := s.Players().GetByUUID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetByUUID: %v", err)
	}
	if got != nil {
		t.Errorf("GetByUUID = %+v, want nil", got)
	}
}

func TestPlayerMuteState(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()
	now := time.Now()

	p := repository.Player{UUID: "abc123", IGN: "Steve"}
	if err := s.Players().Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	until := now.Add(time.Hour).UnixMilli()
	if err := s.Players().SetMutedUntil(ctx, "abc123", until); err != nil {
		t.Fatalf("SetMutedUntil: %v", err)
	}

	got, err := s.Players().GetByUUID(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetByUUID: %v", err)
	}
	if !got.Muted(now) {
		t.Error("player not muted after SetMutedUntil")
	}
	if got.Muted(now.Add(2 * time.Hour)) {
		t.Error("mute did not expire")
	}

	if err := s.Players().SetMutedUntil(ctx, "abc123", 0); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	got, _ = s.Players().GetByUUID(ctx, "abc123")
	if got.Muted(now) {
		t.Error("player still muted after reset")
	}
}

func TestPlayerDelete(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	if err := s.Players().Upsert(ctx, repository.Player{UUID: "abc", IGN: "Alex"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Players().Delete(ctx, "abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Players().Delete(ctx, "abc"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second Delete = %v, want sql.ErrNoRows", err)
	}
}

func TestPlayerListAndCount(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	for _, p := range []repository.Player{
		{UUID: "1", IGN: "zeta"},
		{UUID: "2", IGN: "Alpha"},
		{UUID: "3", IGN: "mid"},
	} {
		if err := s.Players().Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert %s: %v", p.IGN, err)
		}
	}

	players, err := s.Players().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(players) != 3 {
		t.Fatalf("List len = %d, want 3", len(players))
	}
	if players[0].IGN != "Alpha" || players[2].IGN != "zeta" {
		t.Errorf("List not ordered by name: %v", []string{players[0].IGN, players[1].IGN, players[2].IGN})
	}

	count, err := s.Players().Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Errorf("Count = %d, want 3", count)
	}
}

func TestGuildMuteCascadeFields(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()
	now := time.Now()

	g := repository.Guild{Name: "Lunar Society", MemberCount: 42}
	if err := s.Guilds().Upsert(ctx, g); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := s.Guilds().SetMutedUntil(ctx, g.Name, now.Add(time.Minute).UnixMilli()); err != nil {
		t.Fatalf("SetMutedUntil: %v", err)
	}
	if err := s.Guilds().SetBotMutedUntil(ctx, g.Name, now.Add(time.Hour).UnixMilli()); err != nil {
		t.Fatalf("SetBotMutedUntil: %v", err)
	}

	got, err := s.Guilds().Get(ctx, g.Name)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil for existing guild")
	}
	if !got.Muted(now) || !got.BotMuted(now) {
		t.Errorf("mute flags not set: %+v", got)
	}
	if got.Muted(now.Add(2 * time.Minute)) {
		t.Error("guild mute did not expire")
	}
	if got.MemberCount != 42 {
		t.Errorf("MemberCount = %d, want 42", got.MemberCount)
	}
}
