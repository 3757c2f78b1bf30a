package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lunarite/guildbridge/pkg/config"
	"github.com/lunarite/guildbridge/pkg/storage"
)

// migrateDataCommand migrates the player and guild directory between the
// sqlite and postgres backends, in whichever direction the config implies.
func migrateDataCommand() {
	fmt.Println("🔄 GuildBridge Data Migration Tool")
	fmt.Println("==================================")
	fmt.Println()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("❌ Error loading config: %v\n", err)
		os.Exit(1)
	}

	var sourceConfig, destConfig storage.Config

	if cfg.Storage.Type == "postgres" {
		// Migrating TO postgres, source is the sqlite file
		sourceConfig = storage.DefaultConfig("sqlite")
		sourceConfig.Path = sqlitePath(cfg)

		destConfig = storage.DefaultConfig("postgres")
		destConfig.DatabaseURL = cfg.Storage.DatabaseURL
		destConfig.SSLEnabled = cfg.Storage.SSLEnabled
	} else {
		// Export FROM postgres back to sqlite
		sourceConfig = storage.DefaultConfig("postgres")
		sourceConfig.DatabaseURL = cfg.Storage.DatabaseURL
		sourceConfig.SSLEnabled = cfg.Storage.SSLEnabled

		destConfig = storage.DefaultConfig("sqlite")
		destConfig.Path = sqlitePath(cfg)
	}

	fmt.Printf("📁 Source: %s\n", sourceConfig.Type)
	fmt.Printf("📁 Destination: %s\n", destConfig.Type)
	fmt.Println()

	fmt.Print("⚠️  This will migrate all data. Continue? (yes/no): ")
	var confirm string
	fmt.Scanln(&confirm)
	if confirm != "yes" {
		fmt.Println("❌ Migration cancelled")
		return
	}

	fmt.Printf("🔌 Connecting to source (%s)...\n", sourceConfig.Type)
	sourceStore, err := storage.NewStorage(sourceConfig)
	if err != nil {
		fmt.Printf("❌ Error creating source storage: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := sourceStore.Connect(ctx); err != nil {
		fmt.Printf("❌ Error connecting to source: %v\n", err)
		os.Exit(1)
	}
	defer sourceStore.Close()

	fmt.Printf("🔌 Connecting to destination (%s)...\n", destConfig.Type)
	destStore, err := storage.NewStorage(destConfig)
	if err != nil {
		fmt.Printf("❌ Error creating destination storage: %v\n", err)
		os.Exit(1)
	}

	if err := destStore.Connect(ctx); err != nil {
		fmt.Printf("❌ Error connecting to destination: %v\n", err)
		os.Exit(1)
	}
	defer destStore.Close()

	fmt.Println()
	fmt.Println("📦 Migrating players...")
	if err := migratePlayers(ctx, sourceStore, destStore); err != nil {
		fmt.Printf("❌ Error migrating players: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("📦 Migrating guilds...")
	if err := migrateGuilds(ctx, sourceStore, destStore); err != nil {
		fmt.Printf("❌ Error migrating guilds: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("✅ Migration completed successfully!")
	fmt.Println()
	fmt.Println("⚠️  Remember to:")
	fmt.Printf("   1. Update storage.type to '%s' in config.json\n", destConfig.Type)
	fmt.Println("   2. Restart GuildBridge for changes to take effect")
}

func sqlitePath(cfg *config.Config) string {
	if cfg.Storage.Type == "sqlite" && cfg.Storage.Path != "" {
		return cfg.Storage.Path
	}
	return config.DefaultConfig().Storage.Path
}

func migratePlayers(ctx context.Context, source, dest storage.Storage) error {
	players, err := source.Players().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list players: %w", err)
	}

	fmt.Printf("   Found %d players\n", len(players))

	for i, player := range players {
		fmt.Printf("   [%d/%d] Migrating player: %s\n", i+1, len(players), player.IGN)
		if err := dest.Players().Upsert(ctx, player); err != nil {
			return fmt.Errorf("failed to save player %s: %w", player.IGN, err)
		}
	}

	fmt.Printf("   ✅ Migrated %d players\n", len(players))
	return nil
}

func migrateGuilds(ctx context.Context, source, dest storage.Storage) error {
	// The directory holds one guild per linked bot, but migrate whatever
	// records exist.
	names, err := listGuildNames(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to list guilds: %w", err)
	}

	fmt.Printf("   Found %d guilds\n", len(names))

	for i, name := range names {
		fmt.Printf("   [%d/%d] Migrating guild: %s\n", i+1, len(names), name)
		guild, err := source.Guilds().Get(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to get guild %s: %w", name, err)
		}
		if guild == nil {
			continue
		}
		if err := dest.Guilds().Upsert(ctx, *guild); err != nil {
			return fmt.Errorf("failed to save guild %s: %w", name, err)
		}
	}

	fmt.Printf("   ✅ Migrated %d guilds\n", len(names))
	return nil
}

func listGuildNames(ctx context.Context, store storage.Storage) ([]string, error) {
	return store.Guilds().Names(ctx)
}

// exportDataCommand dumps the directory from the configured storage to JSON
// files for offline inspection or backup.
func exportDataCommand(outputDir string) {
	fmt.Println("📤 GuildBridge Data Export Tool")
	fmt.Println("===============================")
	fmt.Println()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("❌ Error loading config: %v\n", err)
		os.Exit(1)
	}

	storeCfg := storage.DefaultConfig(cfg.Storage.Type)
	storeCfg.Path = cfg.Storage.Path
	storeCfg.DatabaseURL = cfg.Storage.DatabaseURL
	storeCfg.SSLEnabled = cfg.Storage.SSLEnabled

	fmt.Printf("📁 Storage type: %s\n", cfg.Storage.Type)
	fmt.Printf("📁 Output directory: %s\n", outputDir)
	fmt.Println()

	store, err := storage.NewStorage(storeCfg)
	if err != nil {
		fmt.Printf("❌ Error creating storage: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := store.Connect(ctx); err != nil {
		fmt.Printf("❌ Error connecting to storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Printf("❌ Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("📦 Exporting players...")
	players, err := store.Players().List(ctx)
	if err != nil {
		fmt.Printf("❌ Error listing players: %v\n", err)
		os.Exit(1)
	}
	if err := writeExport(fmt.Sprintf("%s/players.json", outputDir), players); err != nil {
		fmt.Printf("❌ Error exporting players: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("   ✅ Exported %d players\n", len(players))

	fmt.Println("📦 Exporting guilds...")
	names, err := listGuildNames(ctx, store)
	if err != nil {
		fmt.Printf("❌ Error listing guilds: %v\n", err)
		os.Exit(1)
	}
	guilds := make([]interface{}, 0, len(names))
	for _, name := range names {
		guild, err := store.Guilds().Get(ctx, name)
		if err != nil {
			fmt.Printf("❌ Error reading guild %s: %v\n", name, err)
			os.Exit(1)
		}
		if guild != nil {
			guilds = append(guilds, guild)
		}
	}
	if err := writeExport(fmt.Sprintf("%s/guilds.json", outputDir), guilds); err != nil {
		fmt.Printf("❌ Error exporting guilds: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("   ✅ Exported %d guilds\n", len(guilds))

	fmt.Println()
	fmt.Printf("✅ Export completed successfully to: %s\n", outputDir)
}

func writeExport(filename string, data interface{}) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
