package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	flag "github.com/spf13/pflag"

	"github.com/lunarite/guildbridge/pkg/bridge"
	"github.com/lunarite/guildbridge/pkg/bus"
	"github.com/lunarite/guildbridge/pkg/chat"
	"github.com/lunarite/guildbridge/pkg/commands"
	"github.com/lunarite/guildbridge/pkg/config"
	"github.com/lunarite/guildbridge/pkg/cron"
	"github.com/lunarite/guildbridge/pkg/dashboard"
	"github.com/lunarite/guildbridge/pkg/logger"
	"github.com/lunarite/guildbridge/pkg/minecraft"
	"github.com/lunarite/guildbridge/pkg/rehost"
	"github.com/lunarite/guildbridge/pkg/storage"
)

var version = "dev"

var (
	configPath  = flag.StringP("config", "c", "", "path to config file")
	logLevel    = flag.String("log-level", "", "override logging level (debug, info, warn, error)")
	showVersion = flag.BoolP("version", "v", false, "print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("guildbridge %s\n", version)
		return
	}

	switch flag.Arg(0) {
	case "migrate":
		migrateDataCommand()
		return
	case "export":
		outputDir := flag.Arg(1)
		if outputDir == "" {
			outputDir = "guildbridge-export"
		}
		exportDataCommand(outputDir)
		return
	case "":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	logger.SetLevel(cfg.Logging.Level)

	if err := run(cfg); err != nil {
		logger.ErrorCF("main", "Exiting with error", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Discord.Token == "" {
		return fmt.Errorf("discord.token is not set (config file, env or keyring)")
	}
	dg, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentGuildMessages |
		discordgo.IntentMessageContent |
		discordgo.IntentDirectMessages

	msgBus := bus.New()
	classifier := &chat.Classifier{Prefix: cfg.Bridge.CommandPrefix}
	dialer := &minecraft.WebsocketDialer{
		URL:      cfg.Minecraft.GatewayURL,
		Username: cfg.Minecraft.Username,
		Token:    cfg.Minecraft.SessionToken,
	}
	conn := minecraft.NewConn(dialer, msgBus, cfg.Minecraft, classifier)

	var uploads rehost.Uploader
	if cfg.Imgur.ClientID != "" {
		uploads = rehost.NewImgurClient(cfg.Imgur.ClientID)
	}

	br := bridge.New(cfg.Bridge, conn, msgBus, bridge.NewDiscordClient(dg), store, uploads)
	registry := commands.NewRegistry(cfg.Bridge, conn, store)
	br.SetCommandHandler(registry.Dispatch)

	dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		br.HandleDiscordMessage(ctx, m)
	})
	if err := dg.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	defer dg.Close()

	if err := conn.Run(ctx); err != nil {
		if minecraft.IsFatal(err) {
			return fmt.Errorf("game login: %w", err)
		}
		// Non-fatal connect failures keep retrying in the background.
		logger.WarnCF("main", "Initial game connect failed, retrying", map[string]interface{}{
			"error": err.Error(),
		})
	}

	go br.Run(ctx)
	if cfg.Bridge.GuildName != "" {
		go func() {
			if err := br.Link(ctx, cfg.Bridge.GuildName); err != nil {
				logger.ErrorCF("main", "Guild link failed", map[string]interface{}{
					"guild": cfg.Bridge.GuildName,
					"error": err.Error(),
				})
			}
		}()
	}

	if cfg.Cron.RosterRefresh != "" {
		sched := cron.NewScheduler()
		sched.Add(cron.Job{
			Name: "roster-refresh",
			Expr: cfg.Cron.RosterRefresh,
			Run: func(jobCtx context.Context) error {
				return br.RefreshRoster(jobCtx)
			},
		})
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("cron: %w", err)
		}
	}

	if cfg.Dashboard.Enabled {
		if cfg.Dashboard.Token == "" {
			return fmt.Errorf("dashboard.token is required when the dashboard is enabled")
		}
		srv := dashboard.NewServer(cfg.Dashboard, conn, br, store, msgBus)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Stop()
	}

	logger.InfoCF("main", "guildbridge running", map[string]interface{}{
		"version": version,
		"guild":   cfg.Bridge.GuildName,
	})

	<-ctx.Done()
	logger.InfoC("main", "Shutting down")
	conn.Disconnect("shutting down")
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	storeCfg := storage.DefaultConfig(cfg.Storage.Type)
	storeCfg.Path = cfg.Storage.Path
	storeCfg.DatabaseURL = cfg.Storage.DatabaseURL
	storeCfg.SSLEnabled = cfg.Storage.SSLEnabled

	store, err := storage.NewStorage(storeCfg)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := store.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("connect storage: %w", err)
	}
	return store, nil
}
