package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/haormj/version"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

type rootOptions struct {
	verbose bool
}

func newLogger(cmd *cobra.Command, opts *rootOptions) *slog.Logger {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "mmult",
		Short:         "Streamed fixed-point matrix-multiply kernel",
		Version:       version.FullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log kernel state transitions")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newSizesCmd())

	for _, add := range extraCommands {
		rootCmd.AddCommand(add(opts))
	}

	return rootCmd
}

// extraCommands is extended by build-tagged files.
var extraCommands []func(*rootOptions) *cobra.Command

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mmult:", err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
