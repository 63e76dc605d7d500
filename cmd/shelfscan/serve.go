package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/eargollo/shelfscan/internal/api"
	"github.com/eargollo/shelfscan/internal/camera"
	"github.com/eargollo/shelfscan/internal/config"
	"github.com/eargollo/shelfscan/internal/events"
	"github.com/eargollo/shelfscan/internal/lookup"
	"github.com/eargollo/shelfscan/internal/scan"
	"github.com/eargollo/shelfscan/internal/scheduler"
	"github.com/eargollo/shelfscan/web"
)

func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scanning server and capture page",
		Example: `  # Serve the capture page on the configured address
  shelfscan serve

  # Override the listen address
  shelfscan serve --addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http_addr)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("shelfscan starting",
		"version", version,
		"log_level", cfg.LogLevel,
		"http_addr", cfg.HTTPAddr,
		"db_path", cfg.DBPath,
		"camera", cfg.Camera.Source,
		"decoder", cfg.Scanner.Decoder,
		"lookup_configured", cfg.LookupConfigured())

	// ── Database ───────────────────────────────────────────────────────────
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	// ── Camera, decoder and lookup ─────────────────────────────────────────
	checkOrigin := api.OriginChecker(cfg.AllowedOrigins)
	var browser *camera.Browser
	if cfg.Camera.Source == config.SourceBrowser {
		browser = camera.NewBrowser(checkOrigin)
	}
	dev, err := buildDevice(cfg, browser)
	if err != nil {
		return err
	}
	dec, err := buildDecoder(cfg)
	if err != nil {
		return err
	}
	lk, cache := lookup.FromConfig(cfg, database)
	if !cfg.LookupConfigured() {
		slog.Warn("AIRTABLE_API_KEY or base id missing; lookups will fail")
	}

	// ── Scan manager ───────────────────────────────────────────────────────
	hub := events.NewHub(checkOrigin)
	defer hub.Close()
	mgr := scan.NewManager(database, dev, dec, lk, hub, managerConfig(cfg))
	defer mgr.Close()

	// ── Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.New()
	if err := sched.SetJob("purge-history", cfg.PurgeSchedule, func(ctx context.Context) error {
		n, err := scan.PurgeHistory(ctx, database, cfg.HistoryRetentionDays)
		if err == nil && n > 0 {
			slog.Info("purged old sessions", "count", n)
		}
		return err
	}); err != nil {
		slog.Warn("failed to register history purge", "error", err)
	}
	if cache != nil {
		if err := sched.SetJob("purge-lookup-cache", "@hourly", func(ctx context.Context) error {
			_, err := cache.Purge(ctx)
			return err
		}); err != nil {
			slog.Warn("failed to register cache purge", "error", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	// ── HTTP server ────────────────────────────────────────────────────────
	srv := api.New(cfg.HTTPAddr, database, cfg, mgr, hub, browser, sched, version, web.Static())
	if err := srv.Run(ctx); err != nil {
		return err
	}
	slog.Info("shelfscan stopped")
	return nil
}
