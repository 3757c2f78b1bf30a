package bridge

import (
	"errors"

	"github.com/bwmarrin/discordgo"
)

// PlatformClient is the slice of the Discord API the bridge uses. Webhook
// delivery failures must be distinguishable as "resource gone" via
// IsResourceGone so bindings can recreate deleted webhooks.
type PlatformClient interface {
	ChannelWebhooks(channelID string) ([]*discordgo.Webhook, error)
	WebhookCreate(channelID, name string) (*discordgo.Webhook, error)
	WebhookExecute(webhookID, token string, params *discordgo.WebhookParams) error
	ChannelMessageSend(channelID, content string) error
	DirectMessage(userID, content string) error
}

// IsResourceGone reports whether err is a 404-class delivery failure
// (deleted webhook or channel) rather than a transient one.
func IsResourceGone(err error) bool {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return false
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownWebhook, discordgo.ErrCodeUnknownChannel:
			return true
		}
	}
	return rest.Response != nil && rest.Response.StatusCode == 404
}

// discordClient adapts *discordgo.Session to PlatformClient.
type discordClient struct {
	s *discordgo.Session
}

// NewDiscordClient wraps a live discordgo session.
func NewDiscordClient(s *discordgo.Session) PlatformClient {
	return &discordClient{s: s}
}

func (c *discordClient) ChannelWebhooks(channelID string) ([]*discordgo.Webhook, error) {
	return c.s.ChannelWebhooks(channelID)
}

func (c *discordClient) WebhookCreate(channelID, name string) (*discordgo.Webhook, error) {
	return c.s.WebhookCreate(channelID, name, "")
}

func (c *discordClient) WebhookExecute(webhookID, token string, params *discordgo.WebhookParams) error {
	_, err := c.s.WebhookExecute(webhookID, token, false, params)
	return err
}

func (c *discordClient) ChannelMessageSend(channelID, content string) error {
	_, err := c.s.ChannelMessageSend(channelID, content)
	return err
}

func (c *discordClient) DirectMessage(userID, content string) error {
	ch, err := c.s.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = c.s.ChannelMessageSend(ch.ID, content)
	return err
}
