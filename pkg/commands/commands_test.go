package commands

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lunarite/guildbridge/pkg/bus"
	"github.com/lunarite/guildbridge/pkg/chat"
	"github.com/lunarite/guildbridge/pkg/config"
	"github.com/lunarite/guildbridge/pkg/minecraft"
	"github.com/lunarite/guildbridge/pkg/storage/sqlite"
)

type fakeSession struct {
	mu     sync.Mutex
	writes []string
	chatCh chan minecraft.ChatPacket
	done   chan struct{}
}

func (s *fakeSession) Write(packetType string, payload any) error {
	if packetType != "chat" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, payload.(string))
	return nil
}

func (s *fakeSession) Chat() <-chan minecraft.ChatPacket { return s.chatCh }
func (s *fakeSession) Done() <-chan struct{}             { return s.done }
func (s *fakeSession) Err() error                        { return nil }
func (s *fakeSession) Username() string                  { return "BridgeBot" }
func (s *fakeSession) UUID() string                      { return "b0b0" }
func (s *fakeSession) Close(string) error                { return nil }

func (s *fakeSession) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.writes))
	copy(out, s.writes)
	return out
}

type fakeDialer struct{ sess *fakeSession }

func (d *fakeDialer) Dial(context.Context) (minecraft.Session, error) { return d.sess, nil }

func newRegistry(t *testing.T) (*Registry, *fakeSession, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sess := &fakeSession{chatCh: make(chan minecraft.ChatPacket, 10), done: make(chan struct{})}
	conn := minecraft.NewConn(&fakeDialer{sess: sess}, bus.New(), config.MinecraftConfig{
		ChatLineLimit:        256,
		MinSendDelayMs:       1,
		ReconnectBaseDelayMs: 1000,
		ReconnectMaxDelayMs:  5000,
	}, &chat.Classifier{Prefix: "!"})
	if err := conn.Run(ctx); err != nil {
		t.Fatalf("conn run: %v", err)
	}

	store, err := sqlite.NewSQLiteStorage(filepath.Join(t.TempDir(), "cmd.db"))
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	if err := store.Connect(ctx); err != nil {
		t.Fatalf("storage connect: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.BridgeConfig{
		CommandPrefix:    "!",
		CommandTimeoutMs: 100,
		StaffRanks:       []string{"Guild Master", "Officer"},
	}
	return NewRegistry(cfg, conn, store), sess, ctx
}

func waitLines(t *testing.T, sess *fakeSession, n int) []string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for len(sess.lines()) < n {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d game lines, have %v", n, sess.lines())
		case <-time.After(5 * time.Millisecond):
		}
	}
	return sess.lines()
}

func invocation(channel chat.Channel, ign, rank, name string, args ...string) *chat.Message {
	return &chat.Message{
		Channel:    channel,
		Author:     &chat.Author{IGN: ign, GuildRank: rank},
		Invocation: &chat.Invocation{Prefix: "!", Name: name, Args: args},
	}
}

func TestPingRepliesOnInvokingChannel(t *testing.T) {
	r, sess, ctx := newRegistry(t)

	r.Dispatch(ctx, invocation(chat.ChannelGuild, "Steve", "", "ping"))
	lines := waitLines(t, sess, 1)
	if got := chat.StripInvisible(lines[0]); got != "/gc pong" {
		t.Errorf("reply = %q, want /gc pong", got)
	}

	r.Dispatch(ctx, invocation(chat.ChannelWhisper, "Steve", "", "ping"))
	lines = waitLines(t, sess, 2)
	if got := chat.StripInvisible(lines[1]); got != "/msg Steve pong" {
		t.Errorf("whisper reply = %q, want /msg Steve pong", got)
	}
}

func TestUnknownCommandIgnored(t *testing.T) {
	r, sess, ctx := newRegistry(t)

	r.Dispatch(ctx, invocation(chat.ChannelGuild, "Steve", "", "frobnicate"))
	time.Sleep(30 * time.Millisecond)
	if n := len(sess.lines()); n != 0 {
		t.Errorf("replies = %d for unknown command, want 0", n)
	}
}

func TestMuteRequiresStaff(t *testing.T) {
	r, sess, ctx := newRegistry(t)

	r.Dispatch(ctx, invocation(chat.ChannelGuild, "Steve", "Member", "mute", "Bob", "10m"))
	lines := waitLines(t, sess, 1)
	if got := chat.StripInvisible(lines[0]); !strings.Contains(got, "staff rank") {
		t.Errorf("reply = %q, want staff refusal", got)
	}
}

func TestMuteTimesOutWithCancelledNotice(t *testing.T) {
	r, sess, ctx := newRegistry(t)

	// Staff issuer, but the server never answers.
	r.Dispatch(ctx, invocation(chat.ChannelGuild, "Steve", "Officer", "mute", "Bob", "10m"))

	lines := waitLines(t, sess, 2) // the outgoing /g mute, then the notice
	if got := chat.StripInvisible(lines[0]); got != "/g mute Bob 10m" {
		t.Errorf("outgoing = %q, want /g mute Bob 10m", got)
	}
	if got := chat.StripInvisible(lines[1]); !strings.Contains(got, "longer than expected") {
		t.Errorf("notice = %q, want timeout notice", got)
	}
}
