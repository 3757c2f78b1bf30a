package config

import (
	"os"
	"strconv"
	"strings"
)

// applyEnvOverrides applies selected runtime environment variables into the
// config. Returns true when any value changed so callers can persist the
// updated config.
func applyEnvOverrides(cfg *Config) bool {
	if cfg == nil {
		return false
	}

	changed := false

	setString := func(dst *string, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		if *dst != value {
			*dst = value
			changed = true
		}
	}
	setInt := func(dst *int, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		if *dst != parsed {
			*dst = parsed
			changed = true
		}
	}
	setBool := func(dst *bool, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return
		}
		if *dst != parsed {
			*dst = parsed
			changed = true
		}
	}

	env := func(keys ...string) string {
		for _, key := range keys {
			if value := strings.TrimSpace(os.Getenv(key)); value != "" {
				return value
			}
		}
		return ""
	}

	setString(&cfg.Logging.Level, env("GUILDBRIDGE_LOG_LEVEL"))

	setString(&cfg.Minecraft.GatewayURL, env("GUILDBRIDGE_MC_GATEWAY_URL"))
	setString(&cfg.Minecraft.Username, env("GUILDBRIDGE_MC_USERNAME"))
	setString(&cfg.Minecraft.SessionToken, env("GUILDBRIDGE_MC_SESSION_TOKEN"))
	setInt(&cfg.Minecraft.ChatLineLimit, env("GUILDBRIDGE_MC_CHAT_LINE_LIMIT"))
	setInt(&cfg.Minecraft.MinSendDelayMs, env("GUILDBRIDGE_MC_MIN_SEND_DELAY_MS"))

	setString(&cfg.Discord.Token, env("GUILDBRIDGE_DISCORD_TOKEN", "DISCORD_TOKEN"))

	setString(&cfg.Bridge.GuildName, env("GUILDBRIDGE_GUILD_NAME"))
	setString(&cfg.Bridge.CommandPrefix, env("GUILDBRIDGE_COMMAND_PREFIX"))
	setInt(&cfg.Bridge.CommandTimeoutMs, env("GUILDBRIDGE_COMMAND_TIMEOUT_MS"))

	setString(&cfg.Imgur.ClientID, env("GUILDBRIDGE_IMGUR_CLIENT_ID", "IMGUR_CLIENT_ID"))

	setString(&cfg.Storage.Type, env("GUILDBRIDGE_STORAGE_TYPE"))
	setString(&cfg.Storage.Path, env("GUILDBRIDGE_STORAGE_PATH"))
	setString(&cfg.Storage.DatabaseURL, env("GUILDBRIDGE_STORAGE_DATABASE_URL", "DATABASE_URL"))
	setBool(&cfg.Storage.SSLEnabled, env("GUILDBRIDGE_STORAGE_SSL"))

	setBool(&cfg.Dashboard.Enabled, env("GUILDBRIDGE_DASHBOARD_ENABLED"))
	setString(&cfg.Dashboard.Host, env("GUILDBRIDGE_DASHBOARD_HOST"))
	setInt(&cfg.Dashboard.Port, env("GUILDBRIDGE_DASHBOARD_PORT"))
	setString(&cfg.Dashboard.Token, env("GUILDBRIDGE_DASHBOARD_TOKEN"))

	setString(&cfg.Cron.RosterRefresh, env("GUILDBRIDGE_ROSTER_REFRESH_CRON"))

	return changed
}
