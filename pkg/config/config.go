// Package config loads and validates the guildbridge configuration: a JSON
// file with environment overrides on top and secrets resolved from the
// system keyring.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration document.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Minecraft MinecraftConfig `json:"minecraft"`
	Discord   DiscordConfig   `json:"discord"`
	Bridge    BridgeConfig    `json:"bridge"`
	Imgur     ImgurConfig     `json:"imgur"`
	Storage   StorageConfig   `json:"storage"`
	Dashboard DashboardConfig `json:"dashboard"`
	Cron      CronConfig      `json:"cron"`
}

type LoggingConfig struct {
	Level string `json:"level"`
}

// MinecraftConfig configures the game gateway session.
type MinecraftConfig struct {
	GatewayURL   string `json:"gateway_url"`
	Username     string `json:"username"`
	SessionToken string `json:"session_token,omitempty"`

	// ChatLineLimit is the server's maximum chat line length in runes.
	ChatLineLimit  int `json:"chat_line_limit"`
	MinSendDelayMs int `json:"min_send_delay_ms"`

	ReconnectBaseDelayMs int `json:"reconnect_base_delay_ms"`
	ReconnectMaxDelayMs  int `json:"reconnect_max_delay_ms"`
}

func (m MinecraftConfig) MinSendDelay() time.Duration {
	return time.Duration(m.MinSendDelayMs) * time.Millisecond
}

func (m MinecraftConfig) ReconnectBaseDelay() time.Duration {
	return time.Duration(m.ReconnectBaseDelayMs) * time.Millisecond
}

func (m MinecraftConfig) ReconnectMaxDelay() time.Duration {
	return time.Duration(m.ReconnectMaxDelayMs) * time.Millisecond
}

type DiscordConfig struct {
	Token string `json:"token,omitempty"`
}

// ChannelBindingConfig ties one in-game chat channel to one Discord channel.
type ChannelBindingConfig struct {
	// Type is the in-game channel: "guild", "officer" or "party".
	Type      string `json:"type"`
	ChannelID string `json:"channel_id"`
}

type BridgeConfig struct {
	GuildName string                 `json:"guild_name"`
	Channels  []ChannelBindingConfig `json:"channels"`

	CommandPrefix    string `json:"command_prefix"`
	CommandTimeoutMs int    `json:"command_timeout_ms"`

	// MuteNoticeCooldownMs throttles "you are muted" DM notices per user.
	MuteNoticeCooldownMs int `json:"mute_notice_cooldown_ms"`

	// StaffRanks lists guild ranks exempt from the guild-wide mute.
	StaffRanks []string `json:"staff_ranks,omitempty"`

	LinkRetryBaseDelayMs int `json:"link_retry_base_delay_ms"`
	LinkRetryMaxDelayMs  int `json:"link_retry_max_delay_ms"`
}

func (b BridgeConfig) CommandTimeout() time.Duration {
	return time.Duration(b.CommandTimeoutMs) * time.Millisecond
}

func (b BridgeConfig) MuteNoticeCooldown() time.Duration {
	return time.Duration(b.MuteNoticeCooldownMs) * time.Millisecond
}

func (b BridgeConfig) LinkRetryBaseDelay() time.Duration {
	return time.Duration(b.LinkRetryBaseDelayMs) * time.Millisecond
}

func (b BridgeConfig) LinkRetryMaxDelay() time.Duration {
	return time.Duration(b.LinkRetryMaxDelayMs) * time.Millisecond
}

type ImgurConfig struct {
	ClientID string `json:"client_id,omitempty"`
}

// StorageConfig selects the player/guild directory backend.
type StorageConfig struct {
	// Type is "sqlite" or "postgres".
	Type        string `json:"type"`
	Path        string `json:"path,omitempty"`
	DatabaseURL string `json:"database_url,omitempty"`
	SSLEnabled  bool   `json:"ssl_enabled,omitempty"`
}

type DashboardConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Token   string `json:"token,omitempty"`
}

type CronConfig struct {
	// RosterRefresh is a cron expression for the periodic guild roster
	// refresh; empty disables it.
	RosterRefresh string `json:"roster_refresh,omitempty"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".guildbridge", "config.json")
}

func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".guildbridge")
}

func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Minecraft: MinecraftConfig{
			ChatLineLimit:        256,
			MinSendDelayMs:       600,
			ReconnectBaseDelayMs: 5000,
			ReconnectMaxDelayMs:  300000,
		},
		Bridge: BridgeConfig{
			CommandPrefix:        "!",
			CommandTimeoutMs:     5000,
			MuteNoticeCooldownMs: 600000,
			StaffRanks:           []string{"Guild Master", "Officer"},
			LinkRetryBaseDelayMs: 5000,
			LinkRetryMaxDelayMs:  300000,
		},
		Storage: StorageConfig{
			Type: "sqlite",
			Path: filepath.Join(DefaultDataDir(), "guildbridge.db"),
		},
		Dashboard: DashboardConfig{
			Host: "127.0.0.1",
			Port: 18791,
		},
	}
}

// LoadConfig reads the config file, creating it with defaults when absent,
// then layers env overrides and keyring secrets on top and validates the
// result. Env-driven changes are persisted back to the file.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		if err := SaveConfig(path, cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyDefaults(cfg)

	if applyEnvOverrides(cfg) {
		if err := SaveConfig(path, cfg); err != nil {
			return nil, err
		}
	}

	resolveSecrets(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes the config as indented JSON, creating the directory if
// needed. Secret fields resolved from the keyring are tagged omitempty and
// only persisted when set in the file to begin with.
func SaveConfig(path string, cfg *Config) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// applyDefaults fills zero values left by a hand-edited config file.
func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Minecraft.ChatLineLimit <= 0 {
		cfg.Minecraft.ChatLineLimit = def.Minecraft.ChatLineLimit
	}
	if cfg.Minecraft.MinSendDelayMs <= 0 {
		cfg.Minecraft.MinSendDelayMs = def.Minecraft.MinSendDelayMs
	}
	if cfg.Minecraft.ReconnectBaseDelayMs <= 0 {
		cfg.Minecraft.ReconnectBaseDelayMs = def.Minecraft.ReconnectBaseDelayMs
	}
	if cfg.Minecraft.ReconnectMaxDelayMs <= 0 {
		cfg.Minecraft.ReconnectMaxDelayMs = def.Minecraft.ReconnectMaxDelayMs
	}
	if cfg.Bridge.CommandPrefix == "" {
		cfg.Bridge.CommandPrefix = def.Bridge.CommandPrefix
	}
	if cfg.Bridge.CommandTimeoutMs <= 0 {
		cfg.Bridge.CommandTimeoutMs = def.Bridge.CommandTimeoutMs
	}
	if cfg.Bridge.MuteNoticeCooldownMs <= 0 {
		cfg.Bridge.MuteNoticeCooldownMs = def.Bridge.MuteNoticeCooldownMs
	}
	if cfg.Bridge.LinkRetryBaseDelayMs <= 0 {
		cfg.Bridge.LinkRetryBaseDelayMs = def.Bridge.LinkRetryBaseDelayMs
	}
	if cfg.Bridge.LinkRetryMaxDelayMs <= 0 {
		cfg.Bridge.LinkRetryMaxDelayMs = def.Bridge.LinkRetryMaxDelayMs
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = def.Storage.Type
	}
	if cfg.Storage.Type == "sqlite" && cfg.Storage.Path == "" {
		cfg.Storage.Path = def.Storage.Path
	}
	if cfg.Dashboard.Host == "" {
		cfg.Dashboard.Host = def.Dashboard.Host
	}
	if cfg.Dashboard.Port <= 0 {
		cfg.Dashboard.Port = def.Dashboard.Port
	}
}

var validChannelTypes = map[string]bool{
	"guild":   true,
	"officer": true,
	"party":   true,
}

func (c *Config) Validate() error {
	if c.Minecraft.GatewayURL == "" {
		return fmt.Errorf("config: minecraft.gateway_url is required")
	}
	if c.Minecraft.Username == "" {
		return fmt.Errorf("config: minecraft.username is required")
	}

	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("config: storage.path is required for sqlite")
		}
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("config: storage.database_url is required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown storage.type %q", c.Storage.Type)
	}

	seenTypes := map[string]bool{}
	seenChannels := map[string]bool{}
	for i, ch := range c.Bridge.Channels {
		if !validChannelTypes[ch.Type] {
			return fmt.Errorf("config: bridge.channels[%d]: unknown type %q", i, ch.Type)
		}
		if ch.ChannelID == "" {
			return fmt.Errorf("config: bridge.channels[%d]: channel_id is required", i)
		}
		if seenTypes[ch.Type] {
			return fmt.Errorf("config: bridge.channels[%d]: duplicate binding for %q", i, ch.Type)
		}
		if seenChannels[ch.ChannelID] {
			return fmt.Errorf("config: bridge.channels[%d]: channel %s already bound", i, ch.ChannelID)
		}
		seenTypes[ch.Type] = true
		seenChannels[ch.ChannelID] = true
	}

	return nil
}
