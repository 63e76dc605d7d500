package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eargollo/shelfscan/internal/decoder"
	"github.com/eargollo/shelfscan/internal/frame"
)

func newDecodeCmd(configPath *string) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "decode <image>...",
		Short: "Decode barcodes from still images",
		Long: `Runs the configured decoder over each image and prints what it read.
Useful for checking a decoder choice against sample frames.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if name != "" {
				cfg.Scanner.Decoder = name
			}
			dec, err := buildDecoder(cfg)
			if err != nil {
				return err
			}
			defer dec.Close()

			out := cmd.OutOrStdout()
			for _, path := range args {
				img, err := frame.Load(path)
				if err != nil {
					fmt.Fprintf(out, "%s\terror\t%v\n", path, err)
					continue
				}
				res := dec.Decode(cmd.Context(), img)
				switch res.Kind {
				case decoder.Found:
					fmt.Fprintf(out, "%s\t%s\t%s\n", path, res.Format, res.Code)
				case decoder.Failed:
					fmt.Fprintf(out, "%s\tfailed\t%v\n", path, res.Err)
				default:
					fmt.Fprintf(out, "%s\tnot_found\n", path)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "decoder", "", fmt.Sprintf("decoder to use (%v)", decoder.Names()))
	return cmd
}
