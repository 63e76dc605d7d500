package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eargollo/shelfscan/internal/lookup"
)

func newLookupCmd(configPath *string) *cobra.Command {
	var noCache bool

	cmd := &cobra.Command{
		Use:   "lookup <code>",
		Short: "Look a code up in the inventory table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if noCache {
				cfg.Airtable.CacheTTL = -1
			}
			database, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			lk, _ := lookup.FromConfig(cfg, database)
			rec, err := lk.Lookup(cmd.Context(), args[0])
			if errors.Is(err, lookup.ErrNoRecord) {
				fmt.Fprintf(cmd.OutOrStdout(), "no record for %s\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", rec.ID, rec.Source)
			printFields(cmd.OutOrStdout(), lookup.DisplayFields(rec))
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the local lookup cache")
	return cmd
}
