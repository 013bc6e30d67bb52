// Package kernel is the streamed fixed-point matrix-multiply kernel. One
// invocation consumes an offset vector, a weight matrix and a batch of input
// rows from a packet stream and emits the batch of int32 score rows.
//
// Control flow is fixed: offsets, then weights, then for each tile of Tiling
// rows: load, compute, store. The last output packet of the invocation is the
// only one flagged Last.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/haormj/mmult/accelerated"
	"github.com/haormj/mmult/accelerated/cpu"
	"github.com/haormj/mmult/stream"
)

var (
	ErrBusy       = errors.New("kernel: invocation in progress")
	ErrStreamSize = errors.New("kernel: input stream has wrong length")
)

type Option func(*Kernel)

// WithEngine selects the dot-product datapath. The kernel calls SetupContext
// in New and Release in Close.
func WithEngine(e accelerated.Engine) Option {
	return func(k *Kernel) {
		k.engine = e
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(k *Kernel) {
		k.logger = l
	}
}

type Kernel struct {
	cfg    Config
	engine accelerated.Engine
	logger *slog.Logger

	state State
	stats Stats

	offsetBuf []int32
	weightBuf []int8
	inBuf     []uint8
	outBuf    []int32

	// cursor within the current load phase, in packets
	phaseIdx int
	// running output packet count across all tiles
	outIdx int
	tile   int
}

// New validates cfg and builds a kernel around it. An invalid configuration
// never produces a kernel.
func New(cfg Config, opts ...Option) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	k := &Kernel{
		cfg:       cfg,
		offsetBuf: make([]int32, cfg.Classes),
		weightBuf: make([]int8, cfg.Classes*cfg.Feat),
		inBuf:     make([]uint8, cfg.Tiling*cfg.Feat),
		outBuf:    make([]int32, cfg.Tiling*cfg.Classes),
	}

	for _, opt := range opts {
		opt(k)
	}

	if k.engine == nil {
		k.engine = &cpu.CPU{}
	}

	if k.logger == nil {
		k.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := k.engine.SetupContext(); err != nil {
		return nil, fmt.Errorf("kernel: failed to set up engine: %w", err)
	}

	return k, nil
}

// MustNew is New for configurations known to be valid; it panics otherwise.
func MustNew(cfg Config, opts ...Option) *Kernel {
	k, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}

	return k
}

func (k *Kernel) Config() Config {
	return k.cfg
}

func (k *Kernel) State() State {
	return k.state
}

// Done reports whether the last invocation emitted its final packet.
func (k *Kernel) Done() bool {
	return k.state == Done
}

func (k *Kernel) Stats() Stats {
	return k.stats
}

// Close releases the engine.
func (k *Kernel) Close() error {
	if err := k.engine.Release(); err != nil {
		return fmt.Errorf("kernel: failed to release engine: %w", err)
	}

	return nil
}

// Reset abandons any invocation in progress and returns to Idle.
func (k *Kernel) Reset() {
	k.transition(Idle)
}

// Run executes one whole invocation, popping exactly InputPackets packets from
// in and pushing exactly OutputPackets packets to out. ctx is checked between
// tiles.
func (k *Kernel) Run(ctx context.Context, in *stream.Reader, out *stream.Writer) error {
	if k.state != Idle && k.state != Done {
		return ErrBusy
	}

	for {
		if k.state == LoadTile && k.phaseIdx == 0 {
			if err := ctx.Err(); err != nil {
				k.Reset()
				return err
			}
		}

		p, err := in.Pop()
		if err != nil {
			k.Reset()
			return fmt.Errorf("kernel: %s: %w", k.cfg, err)
		}

		produced, err := k.Feed(p)
		if err != nil {
			k.Reset()
			return err
		}

		for _, o := range produced {
			if err := out.Push(o); err != nil {
				k.Reset()
				return fmt.Errorf("kernel: %s: %w", k.cfg, err)
			}
		}

		if k.state == Done {
			return nil
		}
	}
}

// Process runs one invocation over a complete input stream and returns the
// complete output stream.
func (k *Kernel) Process(ctx context.Context, in []stream.Packet) ([]stream.Packet, error) {
	if len(in) != k.cfg.InputPackets() {
		return nil, fmt.Errorf("%w: got %d packets, want %d", ErrStreamSize, len(in), k.cfg.InputPackets())
	}

	out := stream.NewWriter(k.cfg.OutputPackets())
	if err := k.Run(ctx, stream.NewReader(in), out); err != nil {
		return nil, err
	}

	return out.Packets(), nil
}

// Feed consumes one input packet and returns the output packets it completes.
// Output is produced only by the last packet of each tile. Feeding an Idle or
// Done kernel starts a new invocation. On error the kernel returns to Idle.
func (k *Kernel) Feed(p stream.Packet) ([]stream.Packet, error) {
	if k.state == Idle || k.state == Done {
		k.begin()
	}

	k.stats.PacketsIn++
	payload := p.Payload()

	var (
		out []stream.Packet
		err error
	)

	switch k.state {
	case LoadOffsets:
		err = k.unpackOffsets(payload)
	case LoadWeights:
		err = k.unpackWeights(payload)
	case LoadTile:
		out, err = k.loadTile(payload)
	default:
		err = fmt.Errorf("kernel: cannot accept input in state %s", k.state)
	}

	// A failed invocation is abandoned; the next packet starts a new one.
	if err != nil {
		k.transition(Idle)
		return nil, err
	}

	return out, nil
}

func (k *Kernel) begin() {
	clear(k.offsetBuf)
	clear(k.weightBuf)
	clear(k.inBuf)
	clear(k.outBuf)

	k.stats = Stats{}
	k.outIdx = 0
	k.tile = 0

	k.transition(LoadOffsets)
}

func (k *Kernel) transition(to State) {
	if k.state != to {
		k.logger.Debug("kernel state", "from", k.state, "to", to, "tile", k.tile)
	}

	k.state = to
	k.phaseIdx = 0
}
