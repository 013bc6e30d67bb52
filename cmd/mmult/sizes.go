package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/haormj/mmult/kernel"
)

func addConfigFlags(fs *pflag.FlagSet, cfg *kernel.Config) {
	def := kernel.DefaultConfig()

	fs.IntVar(&cfg.Batch, "batch", def.Batch, "input rows per invocation")
	fs.IntVar(&cfg.Feat, "feat", def.Feat, "features per row")
	fs.IntVar(&cfg.Classes, "classes", def.Classes, "output classes")
	fs.IntVar(&cfg.Tiling, "tiling", def.Tiling, "rows per tile")
}

func newSizesCmd() *cobra.Command {
	var cfg kernel.Config

	cmd := &cobra.Command{
		Use:   "sizes",
		Short: "Print stream lengths for a configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "config:         %s\n", cfg)
			fmt.Fprintf(w, "input packets:  %d\n", cfg.InputPackets())
			fmt.Fprintf(w, "output packets: %d\n", cfg.OutputPackets())
			fmt.Fprintf(w, "tiles:          %d\n", cfg.Tiles())

			return nil
		},
	}

	addConfigFlags(cmd.Flags(), &cfg)

	return cmd
}
