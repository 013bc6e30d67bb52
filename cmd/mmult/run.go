package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/ajroetker/go-highway/hwy"
	"github.com/spf13/cobra"

	"github.com/haormj/mmult/devsim"
	"github.com/haormj/mmult/host"
	"github.com/haormj/mmult/kernel"
	"github.com/haormj/mmult/stream"
)

type runOptions struct {
	cfg      kernel.Config
	engine   string
	workers  int
	seed     int64
	simulate bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one invocation on a random problem and check it against the reference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInvocation(cmd, root, opts)
		},
	}

	fs := cmd.Flags()
	addConfigFlags(fs, &opts.cfg)
	fs.StringVar(&opts.engine, "engine", "cpu", fmt.Sprintf("dot-product engine %v", engineNames()))
	fs.IntVar(&opts.workers, "workers", 0, "simd engine workers, 0 for GOMAXPROCS")
	fs.Int64Var(&opts.seed, "seed", 548, "problem generator seed")
	fs.BoolVar(&opts.simulate, "simulate", false, "run through the cycle-stepped device simulation")

	return cmd
}

func runInvocation(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	logger := newLogger(cmd, root)
	cfg := opts.cfg

	if err := cfg.Validate(); err != nil {
		return err
	}

	engine, err := newEngine(opts.engine, opts.workers)
	if err != nil {
		return err
	}

	k, err := kernel.New(cfg, kernel.WithEngine(engine), kernel.WithLogger(logger))
	if err != nil {
		return err
	}
	defer k.Close()

	logger.Debug("kernel ready", "config", cfg, "engine", opts.engine, "simd", hwy.CurrentName())

	p := host.Random(cfg, rand.New(rand.NewSource(opts.seed)))

	in, err := host.Encode(cfg, p)
	if err != nil {
		return err
	}

	var (
		out    []stream.Packet
		cycles uint64
	)

	start := time.Now()

	if opts.simulate {
		res, err := devsim.Run(k, in)
		if err != nil {
			return err
		}
		out, cycles = res.Output, res.Cycles
	} else {
		out, err = k.Process(cmd.Context(), in)
		if err != nil {
			return err
		}
	}

	elapsed := time.Since(start)

	scores, err := host.Decode(cfg, out)
	if err != nil {
		return err
	}

	if i := host.Mismatch(scores, host.Reference(cfg, p)); i >= 0 {
		return fmt.Errorf("score %d (row %d, class %d) differs from reference", i, i/cfg.Classes, i%cfg.Classes)
	}

	stats := k.Stats()
	logger.Info("invocation complete",
		"packets_in", stats.PacketsIn,
		"packets_out", stats.PacketsOut,
		"tiles", stats.Tiles,
		"macs", stats.MACs,
		"elapsed", elapsed)

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s engine=%s: %d scores match reference\n", cfg, opts.engine, len(scores))
	if opts.simulate {
		fmt.Fprintf(w, "simulated cycles: %d\n", cycles)
	}

	return nil
}
