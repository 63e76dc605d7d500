package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/eargollo/shelfscan/internal/camera"
	"github.com/eargollo/shelfscan/internal/config"
	"github.com/eargollo/shelfscan/internal/db"
	"github.com/eargollo/shelfscan/internal/decoder"
	"github.com/eargollo/shelfscan/internal/scan"
	"github.com/eargollo/shelfscan/internal/session"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "shelfscan",
		Short: "Scan shelf barcodes and look them up in the inventory table",
		Long: `shelfscan reads barcodes from a camera, one code per session, and
looks each detected code up in an Airtable inventory table.

Frames come from a browser page, a network camera or a directory of images.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	cmd.AddCommand(
		newServeCmd(&configPath),
		newScanCmd(&configPath),
		newLookupCmd(&configPath),
		newDecodeCmd(&configPath),
	)
	return cmd
}

// loadConfig reads the config and installs the slog default at its level.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	return cfg, nil
}

// openDB opens the database, applies migrations and closes out sessions a
// previous process left running.
func openDB(cfg *config.Config) (*sql.DB, error) {
	database, err := db.OpenMigrated(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := scan.MarkStaleSessions(database); err != nil {
		slog.Warn("mark stale sessions", "error", err)
	}
	return database, nil
}

// buildDevice returns the frame source selected by camera.source. browser is
// only used for the browser source.
func buildDevice(cfg *config.Config, browser *camera.Browser) (camera.Device, error) {
	switch cfg.Camera.Source {
	case config.SourceBrowser:
		if browser == nil {
			return nil, fmt.Errorf("camera.source %q needs the HTTP server", cfg.Camera.Source)
		}
		return browser, nil
	case config.SourceHTTP:
		devs := make([]camera.Device, 0, len(cfg.Camera.Devices))
		for _, d := range cfg.Camera.Devices {
			devs = append(devs, camera.NewHTTPCamera(d.Name, d.URL, camera.ParseFacing(d.Facing)))
		}
		return camera.NewPreferred(devs...), nil
	case config.SourceDir:
		return camera.NewDir(cfg.Camera.Dir, true), nil
	}
	return nil, fmt.Errorf("unknown camera.source %q", cfg.Camera.Source)
}

func buildDecoder(cfg *config.Config) (decoder.Decoder, error) {
	dec, err := decoder.New(cfg.Scanner.Decoder)
	if err != nil {
		return nil, err
	}
	return decoder.Scaled(dec, cfg.Scanner.MaxFrameWidth), nil
}

func managerConfig(cfg *config.Config) scan.Config {
	return scan.Config{
		Session: session.Config{
			Cooldown:       cfg.Scanner.Cooldown,
			FrameInterval:  cfg.Scanner.FrameInterval,
			AcquireTimeout: cfg.Scanner.AcquireTimeout,
			Constraints:    camera.Constraints{Facing: camera.ParseFacing(cfg.Camera.Facing)},
		},
		LookupDelay: cfg.Scanner.LookupDelay,
		DecoderName: cfg.Scanner.Decoder,
	}
}

// parseLogLevel converts a config string ("debug", "info", "warn", "error")
// to its slog.Level equivalent. Unknown values default to Info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
