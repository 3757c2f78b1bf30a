// Package bridge relays chat between the in-game guild channels and their
// bound Discord channels, and owns the guild link lifecycle.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/lunarite/guildbridge/pkg/bus"
	"github.com/lunarite/guildbridge/pkg/chat"
	"github.com/lunarite/guildbridge/pkg/config"
	"github.com/lunarite/guildbridge/pkg/logger"
	"github.com/lunarite/guildbridge/pkg/minecraft"
	"github.com/lunarite/guildbridge/pkg/rehost"
	"github.com/lunarite/guildbridge/pkg/storage"
	"github.com/lunarite/guildbridge/pkg/storage/repository"
)

// CommandHandler receives game-chat messages carrying a parsed invocation.
type CommandHandler func(ctx context.Context, msg *chat.Message)

// Bridge orchestrates one game connection and its channel bindings for a
// single guild.
type Bridge struct {
	cfg     config.BridgeConfig
	conn    *minecraft.Conn
	bus     *bus.Bus
	client  PlatformClient
	store   storage.Storage
	uploads rehost.Uploader

	bindings    map[chat.Channel]*Binding
	byChannelID map[string]*Binding
	responder   *AutoResponder
	onCommand   CommandHandler

	mu          sync.Mutex
	linkedGuild string
	retryLink   bool
	noticeSent  map[string]time.Time

	// platformTap, when set, sees every bound-channel message before
	// forwarding and may consume it. Used by polls to gather Discord votes.
	platformTap func(bind *Binding, m *discordgo.MessageCreate) bool
}

func New(cfg config.BridgeConfig, conn *minecraft.Conn, b *bus.Bus, client PlatformClient, store storage.Storage, uploads rehost.Uploader) *Bridge {
	if uploads == nil {
		uploads = rehost.Noop{}
	}
	br := &Bridge{
		cfg:         cfg,
		conn:        conn,
		bus:         b,
		client:      client,
		store:       store,
		uploads:     uploads,
		bindings:    make(map[chat.Channel]*Binding),
		byChannelID: make(map[string]*Binding),
		retryLink:   true,
		noticeSent:  make(map[string]time.Time),
	}
	for _, ch := range cfg.Channels {
		bind := newBinding(br, chat.Channel(ch.Type), ch.ChannelID)
		br.bindings[bind.channelType] = bind
		br.byChannelID[bind.channelID] = bind
	}
	br.responder = NewAutoResponder(conn, store, cfg.GuildName)
	return br
}

// SetCommandHandler installs the consumer for game-chat invocations.
func (b *Bridge) SetCommandHandler(h CommandHandler) {
	b.onCommand = h
}

// Binding returns the binding for a channel type, or nil.
func (b *Bridge) Binding(channelType chat.Channel) *Binding {
	return b.bindings[channelType]
}

// Run starts the binding send queues and dispatches bus events until ctx
// is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	for _, bind := range b.bindings {
		go bind.run(ctx)
	}
	go b.consumeDisconnects(ctx)

	for {
		msg, ok := b.bus.ConsumeMessage(ctx)
		if !ok {
			return
		}
		b.dispatch(ctx, msg)
	}
}

// dispatch routes one classified game message: auto-responses first, then
// command invocations, then platform forwarding. The bot's own echoed
// lines are never forwarded or executed.
func (b *Bridge) dispatch(ctx context.Context, msg *chat.Message) {
	b.responder.Handle(ctx, msg)

	if msg.Self {
		return
	}
	if msg.Invocation != nil && msg.Invocation.Name != "" && b.onCommand != nil {
		go b.onCommand(ctx, msg)
	}
	if bind, ok := b.bindings[msg.Channel]; ok {
		bind.ForwardToPlatform(ctx, msg)
	}
}

func (b *Bridge) consumeDisconnects(ctx context.Context) {
	for {
		ev, ok := b.bus.ConsumeDisconnect(ctx)
		if !ok {
			return
		}

		b.mu.Lock()
		guild := b.linkedGuild
		b.linkedGuild = ""
		if ev.Fatal {
			b.retryLink = false
		}
		b.mu.Unlock()

		for _, bind := range b.bindings {
			bind.markNotReady()
		}

		if ev.Fatal || guild == "" {
			continue
		}
		logger.InfoCF("bridge", "Relinking after reconnect", map[string]interface{}{
			"guild": guild,
		})
		go func() {
			if err := b.Link(ctx, guild); err != nil {
				logger.ErrorCF("bridge", "Relink failed", map[string]interface{}{
					"guild": guild,
					"error": err.Error(),
				})
			}
		}()
	}
}

// Link associates the bridge with one guild and brings the channel
// bindings up. Idempotent for the same guild; a different guild unlinks
// first. A missing directory record is retried with capped backoff until
// retry is disabled by a fatal error or an explicit Unlink.
func (b *Bridge) Link(ctx context.Context, guildName string) error {
	b.mu.Lock()
	if b.linkedGuild == guildName && guildName != "" {
		b.mu.Unlock()
		return nil
	}
	if b.linkedGuild != "" {
		b.mu.Unlock()
		b.Unlink()
		b.mu.Lock()
	}
	b.retryLink = true
	b.mu.Unlock()

	for attempt := 1; ; attempt++ {
		b.mu.Lock()
		retry := b.retryLink
		b.mu.Unlock()
		if !retry {
			return fmt.Errorf("link %s: retries disabled", guildName)
		}

		g, err := b.store.Guilds().Get(ctx, guildName)
		if err == nil && g != nil {
			break
		}
		if err != nil {
			logger.WarnCF("bridge", "Guild lookup failed", map[string]interface{}{
				"guild": guildName,
				"error": err.Error(),
			})
		}

		delay := minecraft.Backoff(attempt, b.cfg.LinkRetryBaseDelay(), b.cfg.LinkRetryMaxDelay())
		logger.InfoCF("bridge", "Guild not found, retrying link", map[string]interface{}{
			"guild":   guildName,
			"attempt": attempt,
			"delay":   delay.String(),
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	for _, bind := range b.bindings {
		if err := bind.Init(); err != nil {
			logger.ErrorCF("bridge", "Binding init failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	b.mu.Lock()
	b.linkedGuild = guildName
	b.mu.Unlock()
	b.conn.MarkLinked()

	logger.InfoCF("bridge", "Linked", map[string]interface{}{"guild": guildName})
	return nil
}

// Unlink clears the guild association and marks all bindings not ready.
// The game socket stays open.
func (b *Bridge) Unlink() {
	b.mu.Lock()
	b.linkedGuild = ""
	b.retryLink = false
	b.mu.Unlock()

	for _, bind := range b.bindings {
		bind.markNotReady()
	}
	logger.InfoC("bridge", "Unlinked")
}

// LinkedGuild returns the currently linked guild name, or "".
func (b *Bridge) LinkedGuild() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.linkedGuild
}

// Broadcast cross-posts one announcement to a bound Discord channel and
// the matching game channel, returning per-side success so callers can
// react to partial failure.
func (b *Bridge) Broadcast(ctx context.Context, channelType chat.Channel, content string) (gameOK, platformOK bool) {
	if err := b.conn.Chat(content, gameSide[channelType].Prefix, 0); err == nil {
		gameOK = true
	}

	bind, ok := b.bindings[channelType]
	if !ok || !bind.Ready() {
		return gameOK, false
	}
	if err := b.client.ChannelMessageSend(bind.channelID, content); err != nil {
		logger.WarnCF("bridge", "Broadcast platform send failed", map[string]interface{}{
			"channel": string(channelType),
			"error":   err.Error(),
		})
		return gameOK, false
	}
	return gameOK, true
}

// HandleDiscordMessage routes a platform message to its binding; messages
// from unbound channels are ignored.
func (b *Bridge) HandleDiscordMessage(ctx context.Context, m *discordgo.MessageCreate) {
	bind, ok := b.byChannelID[m.ChannelID]
	if !ok {
		return
	}

	b.mu.Lock()
	tap := b.platformTap
	b.mu.Unlock()
	if tap != nil && tap(bind, m) {
		return
	}

	if !bind.Ready() {
		return
	}
	bind.ForwardToGame(ctx, m)
}

func (b *Bridge) setPlatformTap(tap func(*Binding, *discordgo.MessageCreate) bool) {
	b.mu.Lock()
	b.platformTap = tap
	b.mu.Unlock()
}

// checkMutes applies the mute cascade: player, then guild-wide (staff
// exempt), then the bot's own account. Expired mutes are cleared on read.
func (b *Bridge) checkMutes(ctx context.Context, player *repository.Player) (bool, string) {
	now := time.Now()

	if player != nil && player.MutedUntil != 0 {
		if player.Muted(now) {
			return true, "You are muted in guild chat, so your message was not relayed."
		}
		// Read-repair; the race with concurrent readers is benign.
		if err := b.store.Players().SetMutedUntil(ctx, player.UUID, 0); err != nil {
			logger.WarnCF("bridge", "Mute read-repair failed", map[string]interface{}{
				"uuid":  player.UUID,
				"error": err.Error(),
			})
		}
	}

	guild, err := b.store.Guilds().Get(ctx, b.cfg.GuildName)
	if err != nil || guild == nil {
		return false, ""
	}

	if guild.MutedUntil != 0 {
		if guild.Muted(now) {
			if !b.isStaff(player) {
				return true, "Guild chat is currently muted, so your message was not relayed."
			}
		} else if err := b.store.Guilds().SetMutedUntil(ctx, guild.Name, 0); err != nil {
			logger.WarnCF("bridge", "Guild mute read-repair failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	if guild.BotMutedUntil != 0 {
		if guild.BotMuted(now) {
			return true, "The bridge account is muted, so your message was not relayed."
		}
		if err := b.store.Guilds().SetBotMutedUntil(ctx, guild.Name, 0); err != nil {
			logger.WarnCF("bridge", "Bot mute read-repair failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return false, ""
}

func (b *Bridge) isStaff(player *repository.Player) bool {
	if player == nil {
		return false
	}
	for _, rank := range b.cfg.StaffRanks {
		if rank == player.GuildRank {
			return true
		}
	}
	return false
}

// notifyMuted DMs the sender why their message was dropped, at most once
// per cooldown window.
func (b *Bridge) notifyMuted(userID, reason string) {
	b.mu.Lock()
	last, seen := b.noticeSent[userID]
	now := time.Now()
	if seen && now.Sub(last) < b.cfg.MuteNoticeCooldown() {
		b.mu.Unlock()
		return
	}
	b.noticeSent[userID] = now
	b.mu.Unlock()

	if err := b.client.DirectMessage(userID, reason); err != nil {
		logger.DebugCF("bridge", "Mute notice DM failed", map[string]interface{}{
			"user":  userID,
			"error": err.Error(),
		})
	}
}

const avatarHost = "https://visage.surgeplay.com/bust/"

// avatarURL returns a bust render for the author, resolving the UUID from
// the directory when the chat line did not carry one.
func (b *Bridge) avatarURL(ctx context.Context, author *chat.Author) string {
	if author.UUID != "" {
		return avatarHost + author.UUID
	}
	player, err := b.store.Players().GetByIGN(ctx, author.IGN)
	if err != nil || player == nil || player.UUID == "" {
		return ""
	}
	return avatarHost + player.UUID
}

// displayNameFor resolves a Discord user to their linked in-game name,
// falling back to the account name.
func (b *Bridge) displayNameFor(ctx context.Context, u *discordgo.User) string {
	player, err := b.store.Players().GetByDiscordID(ctx, u.ID)
	if err == nil && player != nil && player.IGN != "" {
		return player.IGN
	}
	return u.Username
}
