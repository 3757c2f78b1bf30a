package config

import (
	"strings"

	"github.com/zalando/go-keyring"
)

const keyringService = "guildbridge"

type secretAccessor struct {
	Key string
	Get func(*Config) string
	Set func(*Config, string)
}

var secretAccessors = []secretAccessor{
	{
		Key: "discord.token",
		Get: func(c *Config) string { return c.Discord.Token },
		Set: func(c *Config, v string) { c.Discord.Token = v },
	},
	{
		Key: "minecraft.session_token",
		Get: func(c *Config) string { return c.Minecraft.SessionToken },
		Set: func(c *Config, v string) { c.Minecraft.SessionToken = v },
	},
	{
		Key: "imgur.client_id",
		Get: func(c *Config) string { return c.Imgur.ClientID },
		Set: func(c *Config, v string) { c.Imgur.ClientID = v },
	},
	{
		Key: "storage.database_url",
		Get: func(c *Config) string { return c.Storage.DatabaseURL },
		Set: func(c *Config, v string) { c.Storage.DatabaseURL = v },
	},
	{
		Key: "dashboard.token",
		Get: func(c *Config) string { return c.Dashboard.Token },
		Set: func(c *Config, v string) { c.Dashboard.Token = v },
	},
}

// resolveSecrets fills empty secret fields from the system keyring.
// Values already present (config file or env) win over the keyring.
func resolveSecrets(cfg *Config) {
	for _, acc := range secretAccessors {
		if strings.TrimSpace(acc.Get(cfg)) != "" {
			continue
		}
		if value, err := keyring.Get(keyringService, acc.Key); err == nil && value != "" {
			acc.Set(cfg, value)
		}
	}
}

// StoreSecret persists one secret into the system keyring under the given
// accessor key ("discord.token", "minecraft.session_token", ...).
func StoreSecret(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// SecretKeys lists the keyring keys guildbridge knows about.
func SecretKeys() []string {
	keys := make([]string, 0, len(secretAccessors))
	for _, acc := range secretAccessors {
		keys = append(keys, acc.Key)
	}
	return keys
}
