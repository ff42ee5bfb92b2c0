package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"clipvault/internal/cache"
	"clipvault/internal/clipboard"
	"clipvault/internal/config"
	"clipvault/internal/content"
	"clipvault/internal/export"
	"clipvault/internal/logger"
	"clipvault/internal/server"
	"clipvault/internal/service"
	"clipvault/internal/storage"
	"clipvault/internal/storage/sqlite"
)

func main() {
	var (
		dbPath     = flag.String("db", "", "Database path (default: ~/.clipvault/clipvault.db)")
		port       = flag.Int("port", 0, "HTTP API port (default: 9890)")
		poll       = flag.Duration("poll", 0, "Clipboard poll interval (default: 700ms)")
		budget     = flag.Int64("budget", 0, "Storage budget in bytes (default: 2 GiB)")
		exportDir  = flag.String("export-dir", "", "Markdown export directory (enables export)")
		exportTick = flag.Duration("export-interval", 0, "Markdown export interval (default: 5m)")
		region     = flag.String("region", "", "Default region for phone-number detection (default: US)")
		verbose    = flag.Bool("verbose", false, "Enable debug logging")
		stop       = flag.Bool("stop", false, "Stop a running daemon and exit")
	)
	flag.Parse()

	if *stop {
		pid, err := server.StopRunning()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to stop daemon: %v\n", err)
			os.Exit(1)
		}
		if pid == 0 {
			fmt.Println("no daemon running")
		} else {
			fmt.Printf("stopped daemon (pid %d)\n", pid)
		}
		return
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log := logger.New("main")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}
	applyFlags(cfg, *dbPath, *port, *poll, *budget, *exportDir, *exportTick, *region)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		log.Fatal().Err(err).Msg("creating data directory")
	}

	store, err := sqlite.New(storage.Config{DBPath: cfg.DBPath})
	if err != nil {
		log.Fatal().Err(err).Msg("initializing storage")
	}

	thumbs, err := cache.New(cfg.ThumbCacheDir, cache.DefaultMemoryEntries, logger.New("thumbs"))
	if err != nil {
		log.Fatal().Err(err).Msg("initializing thumbnail cache")
	}

	iconStore, err := cache.New(cfg.IconCacheDir, cache.DefaultMemoryEntries, logger.New("icons"))
	if err != nil {
		log.Fatal().Err(err).Msg("initializing icon cache")
	}
	icons := cache.NewIconCache(iconStore, clipboard.NewIconFetcher(logger.New("icons")), nil, logger.New("icons"))

	access := clipboard.NewAccess(logger.New("clipboard"))
	focus := clipboard.NewFocusProvider(logger.New("clipboard"))
	monitor := clipboard.NewMonitor(access, focus, cfg.PollInterval, logger.New("monitor"))

	classifier := content.NewClassifier(cfg.PhoneRegion)
	svc := service.New(store, thumbs, monitor, classifier, cfg.StorageBudget, logger.New("service"))

	if err := svc.Start(); err != nil {
		log.Fatal().Err(err).Msg("starting clipboard service")
	}

	srv := server.New(svc, icons, server.Config{Port: cfg.APIPort}, logger.New("server"))
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("starting http server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var exporter *export.Exporter
	if cfg.ExportEnabled {
		exporter, err = export.New(svc, export.Config{
			Dir:      cfg.ExportDir,
			Interval: cfg.ExportInterval,
		}, logger.New("export"))
		if err != nil {
			log.Fatal().Err(err).Msg("initializing markdown export")
		}
		if err := exporter.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("starting markdown export")
		}
	}

	log.Info().
		Str("db", cfg.DBPath).
		Int("port", cfg.APIPort).
		Int64("budget", cfg.StorageBudget).
		Msg("clipvault started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	if exporter != nil {
		exporter.Stop()
	}
	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("stopping http server")
	}
	if err := svc.Stop(); err != nil {
		log.Error().Err(err).Msg("stopping clipboard service")
	}
	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("closing storage")
	}
}

// applyFlags overlays explicitly provided command-line values onto the
// environment-derived configuration.
func applyFlags(cfg *config.Config, dbPath string, port int, poll time.Duration, budget int64, exportDir string, exportTick time.Duration, region string) {
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if port != 0 {
		cfg.APIPort = port
	}
	if poll != 0 {
		cfg.PollInterval = poll
	}
	if budget != 0 {
		cfg.StorageBudget = budget
	}
	if exportDir != "" {
		cfg.ExportEnabled = true
		cfg.ExportDir = exportDir
	}
	if exportTick != 0 {
		cfg.ExportInterval = exportTick
	}
	if region != "" {
		cfg.PhoneRegion = region
	}
}
