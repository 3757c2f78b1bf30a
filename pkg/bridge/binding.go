package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/lunarite/guildbridge/pkg/chat"
	"github.com/lunarite/guildbridge/pkg/logger"
	"github.com/lunarite/guildbridge/pkg/storage/repository"
)

const webhookName = "GuildBridge"

// gameSide maps a bound channel type to its outgoing chat command and the
// tag shown on cross-posted announcements.
var gameSide = map[chat.Channel]struct {
	Prefix string
	Tag    string
}{
	chat.ChannelGuild:   {Prefix: "/gc ", Tag: "Guild"},
	chat.ChannelOfficer: {Prefix: "/oc ", Tag: "Officer"},
	chat.ChannelParty:   {Prefix: "/pc ", Tag: "Party"},
}

// Binding ties one in-game chat channel to one Discord channel. It owns the
// channel's webhook and a serialized platform-side send queue, independent
// of the game-side pacer.
type Binding struct {
	bridge      *Bridge
	channelType chat.Channel
	channelID   string
	gamePrefix  string
	tag         string

	queue chan *discordgo.WebhookParams

	mu       sync.Mutex
	webhook  *discordgo.Webhook
	ready    bool
	disabled bool
}

func newBinding(b *Bridge, channelType chat.Channel, channelID string) *Binding {
	side := gameSide[channelType]
	return &Binding{
		bridge:      b,
		channelType: channelType,
		channelID:   channelID,
		gamePrefix:  side.Prefix,
		tag:         side.Tag,
		queue:       make(chan *discordgo.WebhookParams, 64),
	}
}

// Init resolves or creates the channel webhook. A failure disables the
// binding; it will not be retried until the next Link.
func (bd *Binding) Init() error {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	if bd.disabled {
		return fmt.Errorf("binding %s: disabled by earlier init failure", bd.channelType)
	}
	if bd.ready {
		return nil
	}

	wh, err := bd.fetchOrCreateWebhookLocked()
	if err != nil {
		bd.disabled = true
		return fmt.Errorf("binding %s: %w", bd.channelType, err)
	}
	bd.webhook = wh
	bd.ready = true
	logger.InfoCF("bridge", "Channel binding ready", map[string]interface{}{
		"channel": string(bd.channelType),
		"id":      bd.channelID,
	})
	return nil
}

func (bd *Binding) fetchOrCreateWebhookLocked() (*discordgo.Webhook, error) {
	hooks, err := bd.bridge.client.ChannelWebhooks(bd.channelID)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	for _, wh := range hooks {
		if wh.Name == webhookName {
			return wh, nil
		}
	}
	wh, err := bd.bridge.client.WebhookCreate(bd.channelID, webhookName)
	if err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}
	return wh, nil
}

func (bd *Binding) Ready() bool {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	return bd.ready
}

func (bd *Binding) markNotReady() {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	bd.ready = false
	bd.disabled = false
}

func (bd *Binding) webhookID() string {
	bd.mu.Lock()
	defer bd.mu.Unlock()
	if bd.webhook == nil {
		return ""
	}
	return bd.webhook.ID
}

// run drains the platform send queue until ctx is cancelled.
func (bd *Binding) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case params := <-bd.queue:
			if err := bd.deliver(params); err != nil {
				logger.WarnCF("bridge", "Webhook delivery failed", map[string]interface{}{
					"channel": string(bd.channelType),
					"error":   err.Error(),
				})
			}
		}
	}
}

// deliver executes the webhook, recreating it once when the server reports
// it gone.
func (bd *Binding) deliver(params *discordgo.WebhookParams) error {
	bd.mu.Lock()
	wh := bd.webhook
	bd.mu.Unlock()
	if wh == nil {
		var err error
		bd.mu.Lock()
		wh, err = bd.fetchOrCreateWebhookLocked()
		if err == nil {
			bd.webhook = wh
		}
		bd.mu.Unlock()
		if err != nil {
			return err
		}
	}

	err := bd.bridge.client.WebhookExecute(wh.ID, wh.Token, params)
	if err == nil || !IsResourceGone(err) {
		return err
	}

	// Webhook deleted externally: invalidate and recreate once.
	bd.mu.Lock()
	bd.webhook = nil
	wh, cerr := bd.fetchOrCreateWebhookLocked()
	if cerr == nil {
		bd.webhook = wh
	}
	bd.mu.Unlock()
	if cerr != nil {
		return fmt.Errorf("recreate webhook: %w", cerr)
	}
	return bd.bridge.client.WebhookExecute(wh.ID, wh.Token, params)
}

// ForwardToPlatform queues one classified game message for webhook
// delivery under the author's name and avatar.
func (bd *Binding) ForwardToPlatform(ctx context.Context, msg *chat.Message) {
	if !bd.Ready() || msg.Author == nil {
		return
	}

	params := &discordgo.WebhookParams{
		Username: msg.Author.IGN,
		Content:  msg.Content,
		// Relayed game text must never ping Discord roles or users.
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if avatar := bd.bridge.avatarURL(ctx, msg.Author); avatar != "" {
		params.AvatarURL = avatar
	}

	select {
	case bd.queue <- params:
	case <-ctx.Done():
	}
}

// ForwardToGame relays one Discord message into the bound game channel:
// loop prevention, mute cascade, reply and attachment expansion, then a
// paced send prefixed with the channel command and the sender's name.
func (bd *Binding) ForwardToGame(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.WebhookID != "" && m.WebhookID == bd.webhookID() {
		return
	}

	player, err := bd.bridge.store.Players().GetByDiscordID(ctx, m.Author.ID)
	if err != nil {
		logger.WarnCF("bridge", "Player lookup failed", map[string]interface{}{
			"discord_id": m.Author.ID,
			"error":      err.Error(),
		})
	}

	if blocked, reason := bd.bridge.checkMutes(ctx, player); blocked {
		bd.bridge.notifyMuted(m.Author.ID, reason)
		return
	}

	content := strings.TrimSpace(m.Content)
	if ref := m.ReferencedMessage; ref != nil && ref.Author != nil {
		content = "@" + bd.bridge.displayNameFor(ctx, ref.Author) + " " + content
	}
	for _, att := range m.Attachments {
		hosted, err := bd.bridge.uploads.Upload(ctx, att.URL)
		if err != nil {
			hosted = att.URL
		}
		if content != "" {
			content += " "
		}
		content += hosted
	}
	if content == "" {
		return
	}

	name := displayName(m, player)
	if err := bd.bridge.conn.Chat(content, bd.gamePrefix+name+": ", 0); err != nil {
		logger.WarnCF("bridge", "Game-side send rejected", map[string]interface{}{
			"channel": string(bd.channelType),
			"error":   err.Error(),
		})
	}
}

// displayName prefers the linked in-game name, then the server nickname,
// then the account name.
func displayName(m *discordgo.MessageCreate, player *repository.Player) string {
	if player != nil && player.IGN != "" {
		return player.IGN
	}
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	return m.Author.Username
}
