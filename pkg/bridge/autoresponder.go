package bridge

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lunarite/guildbridge/pkg/chat"
	"github.com/lunarite/guildbridge/pkg/logger"
	"github.com/lunarite/guildbridge/pkg/minecraft"
	"github.com/lunarite/guildbridge/pkg/storage"
)

// System broadcast shapes the responder reacts to. Rank tags like
// "[MVP+]" are optional on every name.
var (
	joinedPattern    = regexp.MustCompile(`^(?:\[[^\]]+\] )?(\w+) joined the guild!$`)
	leftPattern      = regexp.MustCompile(`^(?:\[[^\]]+\] )?(\w+) left the guild!$`)
	promotedPattern  = regexp.MustCompile(`^(?:\[[^\]]+\] )?(\w+) was promoted from .+ to (.+)$`)
	demotedPattern   = regexp.MustCompile(`^(?:\[[^\]]+\] )?(\w+) was demoted from .+ to (.+)$`)
	questPattern     = regexp.MustCompile(`^\s*GUILD QUEST TIER \d+ COMPLETED!\s*$`)
	friendPattern    = regexp.MustCompile(`^Friend request from (?:\[[^\]]+\] )?(\w+)$`)
	guildMutePattern = regexp.MustCompile(`^(?:\[[^\]]+\] )?(\w+) has muted the guild chat for (\w+)$`)
	guildUnmutePat   = regexp.MustCompile(`^(?:\[[^\]]+\] )?(\w+) has unmuted the guild chat!?$`)
	mutePattern      = regexp.MustCompile(`^(?:\[[^\]]+\] )?(\w+) has muted (?:\[[^\]]+\] )?(\w+) for (\w+)$`)
	unmutePattern    = regexp.MustCompile(`^(?:\[[^\]]+\] )?(\w+) has unmuted (?:\[[^\]]+\] )?(\w+)$`)

	durationPattern = regexp.MustCompile(`^(\d+)([smhd])$`)
)

// AutoResponder reacts to guild system broadcasts: greets joins,
// congratulates promotions and quest completions, accepts friend requests,
// waves back, and tracks mute/unmute lines into the directory.
type AutoResponder struct {
	conn      *minecraft.Conn
	store     storage.Storage
	guildName string
}

func NewAutoResponder(conn *minecraft.Conn, store storage.Storage, guildName string) *AutoResponder {
	return &AutoResponder{conn: conn, store: store, guildName: guildName}
}

// Handle inspects one classified message. It never blocks dispatch on
// storage errors; tracking failures are logged and dropped.
func (a *AutoResponder) Handle(ctx context.Context, msg *chat.Message) {
	if msg.Channel == chat.ChannelWhisper && !msg.Self && msg.Author != nil &&
		strings.Contains(msg.Content, "o/") {
		a.waveBack(msg.Author.IGN)
		return
	}
	if msg.Channel != chat.ChannelUnknown {
		return
	}

	content := msg.Content

	if m := joinedPattern.FindStringSubmatch(content); m != nil {
		a.say(fmt.Sprintf("Welcome to the guild, %s!", m[1]))
		return
	}
	if leftPattern.MatchString(content) {
		return
	}
	if m := promotedPattern.FindStringSubmatch(content); m != nil {
		a.say("gg")
		a.updateRank(ctx, m[1], m[2])
		return
	}
	if m := demotedPattern.FindStringSubmatch(content); m != nil {
		a.updateRank(ctx, m[1], m[2])
		return
	}
	if questPattern.MatchString(content) {
		a.say("gg")
		return
	}
	if m := friendPattern.FindStringSubmatch(content); m != nil {
		if err := a.conn.Chat("/f add "+m[1], "", 1); err != nil {
			logger.WarnCF("bridge", "Friend accept failed", map[string]interface{}{
				"ign":   m[1],
				"error": err.Error(),
			})
		}
		return
	}

	if m := guildMutePattern.FindStringSubmatch(content); m != nil {
		a.setGuildMute(ctx, parseMuteDuration(m[2]))
		return
	}
	if guildUnmutePat.MatchString(content) {
		a.setGuildMute(ctx, 0)
		return
	}
	if m := mutePattern.FindStringSubmatch(content); m != nil {
		a.setPlayerMute(ctx, m[2], parseMuteDuration(m[3]))
		return
	}
	if m := unmutePattern.FindStringSubmatch(content); m != nil {
		a.setPlayerMute(ctx, m[2], 0)
	}
}

// say sends a spam-bypassed guild line; these recur often enough to trip
// the server's duplicate filter otherwise.
func (a *AutoResponder) say(content string) {
	if err := a.conn.Chat(a.conn.SpamBypass(content), "/gc ", 1); err != nil {
		logger.DebugCF("bridge", "Auto-response dropped", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// waveBack answers a whispered wave with a whispered wave.
func (a *AutoResponder) waveBack(ign string) {
	if err := a.conn.Chat(a.conn.SpamBypass("o/"), "/w "+ign+" ", 1); err != nil {
		logger.DebugCF("bridge", "Wave-back dropped", map[string]interface{}{
			"ign":   ign,
			"error": err.Error(),
		})
	}
}

func (a *AutoResponder) updateRank(ctx context.Context, ign, rank string) {
	player, err := a.store.Players().GetByIGN(ctx, ign)
	if err != nil || player == nil {
		return
	}
	player.GuildRank = rank
	if err := a.store.Players().Upsert(ctx, *player); err != nil {
		logger.WarnCF("bridge", "Rank update failed", map[string]interface{}{
			"ign":   ign,
			"error": err.Error(),
		})
	}
}

// setPlayerMute records a mute expiry for ign. The bridge's own account
// being muted is tracked on the guild record instead.
func (a *AutoResponder) setPlayerMute(ctx context.Context, ign string, until int64) {
	if ign == a.conn.Username() {
		if err := a.store.Guilds().SetBotMutedUntil(ctx, a.guildName, until); err != nil {
			logger.WarnCF("bridge", "Bot mute tracking failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return
	}

	player, err := a.store.Players().GetByIGN(ctx, ign)
	if err != nil || player == nil {
		return
	}
	if err := a.store.Players().SetMutedUntil(ctx, player.UUID, until); err != nil {
		logger.WarnCF("bridge", "Mute tracking failed", map[string]interface{}{
			"ign":   ign,
			"error": err.Error(),
		})
	}
}

func (a *AutoResponder) setGuildMute(ctx context.Context, until int64) {
	if err := a.store.Guilds().SetMutedUntil(ctx, a.guildName, until); err != nil {
		logger.WarnCF("bridge", "Guild mute tracking failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// parseMuteDuration turns server mute durations like "10m", "1h" or "7d"
// into an epoch-ms expiry. Unparseable input yields 0 (no mute recorded).
func parseMuteDuration(s string) int64 {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0
	}

	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	return time.Now().Add(time.Duration(n) * unit).UnixMilli()
}
