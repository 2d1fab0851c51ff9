package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"autolingo/internal/cache"
	"autolingo/internal/config"
	"autolingo/internal/database"
	"autolingo/internal/logging"
	"autolingo/internal/notification"
	"autolingo/internal/plex"
	"autolingo/internal/scheduler"
	"autolingo/internal/watcher"
	"autolingo/internal/web"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	configPath string
	verbosity  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "autolingo",
		Short: "Autolingo - Automatic audio and subtitle track selection for Plex",
		Long:  `Autolingo watches a Plex server and propagates each user's audio and subtitle track selection across the episodes of a show.`,
		RunE:  run,
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to the configuration file (or set CONFIG_PATH env var)")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("autolingo %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Check for CONFIG_PATH env var if using the default
	if configPath == "./config.yaml" {
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			configPath = envPath
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store := config.NewStore(cfg)

	logging.Setup(verbosity, cfg.Log)

	log.Info().
		Str("version", version).
		Str("config", configPath).
		Str("plex_url", cfg.Plex.URL).
		Str("update_level", cfg.UpdateLevel).
		Str("update_strategy", cfg.UpdateStrategy).
		Msg("Starting Autolingo")

	// Reload config on file changes; log settings are re-applied live.
	cfgWatcher, err := config.NewWatcher(configPath, store, func(updated *config.Config) {
		logging.Setup(verbosity, updated.Log)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Config file watching unavailable, changes require a restart")
	} else {
		defer cfgWatcher.Stop()
	}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	client := plex.NewClient(cfg.Plex.URL, cfg.Plex.Token, cfg.Plex.Timeout)

	// Notification providers
	notifier := notification.NewManager()
	defer notifier.Stop()
	if cfg.Notifications.Discord.WebhookURL != "" {
		notifier.RegisterProvider("discord", notification.NewDiscordProvider(cfg.Notifications.Discord))
	}
	for i, hook := range cfg.Notifications.Webhooks {
		if hook.URL == "" {
			continue
		}
		if err := notification.ValidateWebhookBody(hook.Body); err != nil {
			log.Fatal().Err(err).Int("webhook", i).Msg("Invalid webhook body template")
		}
		name := fmt.Sprintf("webhook-%d", i+1)
		notifier.RegisterProvider(name, notification.NewWebhookProvider(name, hook))
	}
	if started := notifier.Start(); !started {
		log.Debug().Msg("Notification manager not started (no providers configured)")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	// Event watcher
	eventWatcher := watcher.New(store, client, db, cache.New(), notifier)
	eventWatcher.Start(ctx)
	defer eventWatcher.Stop()

	// Scheduled full sync
	if cfg.Scheduler.Enable && cfg.Scheduler.Schedule != "" {
		sched, err := scheduler.New(cfg.Scheduler.Schedule, func() {
			eventWatcher.RunScheduledSync(ctx)
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create scheduler")
		}
		sched.Start()
		defer sched.Stop()
	}

	// API server, optional
	if cfg.HTTP.Port > 0 {
		server := web.NewServer(store, db, notifier, eventWatcher.RunScheduledSync, version)
		if err := server.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	} else {
		<-ctx.Done()
	}

	log.Info().Msg("Autolingo stopped")
	return nil
}
