// Package commands implements the in-game command surface: invocations
// parsed out of guild chat or whispers, answered over the same channel.
package commands

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/lunarite/guildbridge/pkg/chat"
	"github.com/lunarite/guildbridge/pkg/config"
	"github.com/lunarite/guildbridge/pkg/logger"
	"github.com/lunarite/guildbridge/pkg/minecraft"
	"github.com/lunarite/guildbridge/pkg/storage"
)

// Handler answers one invocation; the returned string is sent back on the
// invoking channel. Empty output with nil error sends nothing.
type Handler func(ctx context.Context, msg *chat.Message, args []string) (string, error)

// Registry routes invocations to handlers and replies on the channel the
// invocation arrived on.
type Registry struct {
	cfg      config.BridgeConfig
	conn     *minecraft.Conn
	store    storage.Storage
	handlers map[string]Handler
}

func NewRegistry(cfg config.BridgeConfig, conn *minecraft.Conn, store storage.Storage) *Registry {
	r := &Registry{
		cfg:      cfg,
		conn:     conn,
		store:    store,
		handlers: make(map[string]Handler),
	}
	r.Register("ping", r.ping)
	r.Register("help", r.help)
	r.Register("online", r.online)
	r.Register("mute", r.mute)
	r.Register("unmute", r.unmute)
	return r
}

func (r *Registry) Register(name string, h Handler) {
	r.handlers[strings.ToLower(name)] = h
}

// Dispatch runs the invocation carried by msg, if any handler matches.
func (r *Registry) Dispatch(ctx context.Context, msg *chat.Message) {
	inv := msg.Invocation
	if inv == nil || inv.Name == "" {
		return
	}
	h, ok := r.handlers[strings.ToLower(inv.Name)]
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reply, err := h(ctx, msg, inv.Args)
	if err != nil {
		logger.WarnCF("commands", "Command failed", map[string]interface{}{
			"command": inv.Name,
			"error":   err.Error(),
		})
		reply = "That took longer than expected and was cancelled."
	}
	if reply != "" {
		r.reply(msg, reply)
	}
}

// reply answers on the invoking channel: whispers get a whisper back,
// channel chat gets channel chat.
func (r *Registry) reply(msg *chat.Message, content string) {
	var prefix string
	switch msg.Channel {
	case chat.ChannelWhisper:
		if msg.Author == nil {
			return
		}
		prefix = "/msg " + msg.Author.IGN + " "
	case chat.ChannelOfficer:
		prefix = "/oc "
	case chat.ChannelParty:
		prefix = "/pc "
	default:
		prefix = "/gc "
	}
	if err := r.conn.Chat(content, prefix, 4); err != nil {
		logger.DebugCF("commands", "Reply dropped", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (r *Registry) ping(_ context.Context, _ *chat.Message, _ []string) (string, error) {
	return "pong", nil
}

func (r *Registry) help(_ context.Context, _ *chat.Message, _ []string) (string, error) {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, r.cfg.CommandPrefix+name)
	}
	sort.Strings(names)
	return "Commands: " + strings.Join(names, ", "), nil
}

var onlinePattern = regexp.MustCompile(`Online Members: (\d+)`)

// online asks the server for the member list footer and relays the count.
func (r *Registry) online(ctx context.Context, _ *chat.Message, _ []string) (string, error) {
	count, err := r.conn.RunCommand(ctx, minecraft.Command{
		Text:             "/g online",
		Success:          onlinePattern,
		Timeout:          r.cfg.CommandTimeout(),
		RejectOnTimeout:  true,
		MaxResponseParts: 1,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s members online.", count), nil
}

func (r *Registry) mute(ctx context.Context, msg *chat.Message, args []string) (string, error) {
	if !r.isStaff(ctx, msg) {
		return "You need a staff rank to do that.", nil
	}
	if len(args) < 2 {
		return fmt.Sprintf("Usage: %smute <ign> <duration>", r.cfg.CommandPrefix), nil
	}
	ign, duration := args[0], args[1]

	result, err := r.conn.RunCommand(ctx, minecraft.Command{
		Text:            fmt.Sprintf("/g mute %s %s", ign, duration),
		Success:         regexp.MustCompile(`has muted (?:\[[^\]]+\] )?` + regexp.QuoteMeta(ign)),
		Abort:           regexp.MustCompile(`(is not in your guild|can't mute|Invalid usage)`),
		Timeout:         r.cfg.CommandTimeout(),
		RejectOnAbort:   true,
		RejectOnTimeout: true,
	})
	if err != nil {
		return "", err
	}
	if result == "" {
		return "", nil
	}
	return fmt.Sprintf("Muted %s for %s.", ign, duration), nil
}

func (r *Registry) unmute(ctx context.Context, msg *chat.Message, args []string) (string, error) {
	if !r.isStaff(ctx, msg) {
		return "You need a staff rank to do that.", nil
	}
	if len(args) < 1 {
		return fmt.Sprintf("Usage: %sunmute <ign>", r.cfg.CommandPrefix), nil
	}
	ign := args[0]

	result, err := r.conn.RunCommand(ctx, minecraft.Command{
		Text:            "/g unmute " + ign,
		Success:         regexp.MustCompile(`has unmuted (?:\[[^\]]+\] )?` + regexp.QuoteMeta(ign)),
		Abort:           regexp.MustCompile(`(is not in your guild|not muted|Invalid usage)`),
		Timeout:         r.cfg.CommandTimeout(),
		RejectOnAbort:   true,
		RejectOnTimeout: true,
	})
	if err != nil {
		return "", err
	}
	if result == "" {
		return "", nil
	}
	return fmt.Sprintf("Unmuted %s.", ign), nil
}

// isStaff authorizes mute-class commands by the issuer's directory rank,
// falling back to the rank tag carried on the chat line.
func (r *Registry) isStaff(ctx context.Context, msg *chat.Message) bool {
	if msg.Author == nil {
		return false
	}
	rank := msg.Author.GuildRank
	if player, err := r.store.Players().GetByIGN(ctx, msg.Author.IGN); err == nil && player != nil && player.GuildRank != "" {
		rank = player.GuildRank
	}
	for _, staff := range r.cfg.StaffRanks {
		if staff == rank {
			return true
		}
	}
	return false
}
