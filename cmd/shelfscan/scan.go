package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/eargollo/shelfscan/internal/config"
	"github.com/eargollo/shelfscan/internal/events"
	"github.com/eargollo/shelfscan/internal/lookup"
	"github.com/eargollo/shelfscan/internal/scan"
)

// waiter turns manager events into a single outcome for the CLI.
type waiter struct {
	done chan scan.LookupResult
	fail chan struct{}
}

func (w *waiter) Publish(typ string, data any) {
	switch typ {
	case events.TypeLookup:
		if res, ok := data.(scan.LookupResult); ok {
			select {
			case w.done <- res:
			default:
			}
		}
	case events.TypeError:
		select {
		case w.fail <- struct{}{}:
		default:
		}
	}
}

func newScanCmd(configPath *string) *cobra.Command {
	var (
		dir     string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan session against a directory of frames and print the lookup",
		Example: `  # Scan the images in ./frames until a code is found
  shelfscan scan --dir ./frames`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if dir != "" {
				cfg.Camera.Source = config.SourceDir
				cfg.Camera.Dir = dir
			}
			if cfg.Camera.Source == config.SourceBrowser {
				return errors.New("scan needs --dir or a non-browser camera.source")
			}
			cfg.Scanner.LookupDelay = 0

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return scanOnce(ctx, cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory of frame images (overrides camera settings)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up after this long")
	return cmd
}

func scanOnce(ctx context.Context, cfg *config.Config, out io.Writer) error {
	database, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	dev, err := buildDevice(cfg, nil)
	if err != nil {
		return err
	}
	dec, err := buildDecoder(cfg)
	if err != nil {
		return err
	}
	lk, _ := lookup.FromConfig(cfg, database)

	w := &waiter{done: make(chan scan.LookupResult, 1), fail: make(chan struct{}, 1)}
	mgr := scan.NewManager(database, dev, dec, lk, w, managerConfig(cfg))
	defer mgr.Close()

	if _, err := mgr.Start("cli"); err != nil {
		return err
	}

	select {
	case res := <-w.done:
		printResult(out, res)
		return nil
	case <-w.fail:
		if info := mgr.State().Error; info != nil {
			return fmt.Errorf("camera %s: %s", info.Cause, info.Message)
		}
		return errors.New("scan failed")
	case <-ctx.Done():
		mgr.Reset()
		return fmt.Errorf("no code detected: %w", ctx.Err())
	}
}

func printResult(out io.Writer, res scan.LookupResult) {
	fmt.Fprintf(out, "code:   %s\n", res.Code)
	fmt.Fprintf(out, "lookup: %s\n", res.Status)
	if res.Error != "" {
		fmt.Fprintf(out, "error:  %s\n", res.Error)
	}
	printFields(out, res.Fields)
}

func printFields(out io.Writer, fields []lookup.Field) {
	for _, f := range fields {
		fmt.Fprintf(out, "  %s: %s\n", f.Label, f.Value)
	}
}
