package kernel_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/haormj/mmult/accelerated/cpu"
	"github.com/haormj/mmult/accelerated/simd"
	"github.com/haormj/mmult/host"
	"github.com/haormj/mmult/kernel"
	"github.com/haormj/mmult/stream"
)

func testRNG() *rand.Rand {
	return rand.New(rand.NewSource(548))
}

func run(t *testing.T, k *kernel.Kernel, p host.Problem) []stream.Packet {
	t.Helper()

	in, err := host.Encode(k.Config(), p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	out, err := k.Process(context.Background(), in)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	return out
}

func TestWorkedExample(t *testing.T) {
	cfg := kernel.Config{Batch: 2, Feat: 8, Classes: 2, Tiling: 1}
	k := kernel.MustNew(cfg)
	defer k.Close()

	p := host.Problem{
		Offsets: []int32{0, 0},
		Weights: []int8{
			1, 1, 1, 1, 1, 1, 1, 1,
			2, 2, 2, 2, 2, 2, 2, 2,
		},
		Inputs: []uint8{
			1, 1, 1, 1, 1, 1, 1, 1,
			1, 1, 1, 1, 1, 1, 1, 1,
		},
	}

	in, err := host.Encode(cfg, p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(in) != 1+2+2 {
		t.Fatalf("input stream has %d packets, want 5", len(in))
	}

	out, err := k.Process(context.Background(), in)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("output stream has %d packets, want 2", len(out))
	}
	if out[0].Last || !out[1].Last {
		t.Errorf("last flags = %t,%t, want false,true", out[0].Last, out[1].Last)
	}

	scores, err := host.Decode(cfg, out)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	want := []int32{8, 16, 8, 16}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("scores[%d] = %d, want %d", i, scores[i], want[i])
		}
	}
}

func TestMatchesReference(t *testing.T) {
	testCases := []kernel.Config{
		{Batch: 4, Feat: 8, Classes: 2, Tiling: 2},
		{Batch: 12, Feat: 40, Classes: 6, Tiling: 4},
		{Batch: 32, Feat: 256, Classes: 10, Tiling: 8},
		{Batch: 9, Feat: 64, Classes: 4, Tiling: 3},
	}

	rng := testRNG()

	for _, cfg := range testCases {
		t.Run(cfg.String(), func(t *testing.T) {
			k := kernel.MustNew(cfg)
			defer k.Close()

			p := host.Random(cfg, rng)
			out := run(t, k, p)

			scores, err := host.Decode(cfg, out)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			if i := host.Mismatch(scores, host.Reference(cfg, p)); i >= 0 {
				t.Errorf("Mismatch at index %d", i)
			}
		})
	}
}

func TestWrapsLikeReference(t *testing.T) {
	cfg := kernel.Config{Batch: 2, Feat: 16, Classes: 2, Tiling: 1}
	k := kernel.MustNew(cfg)
	defer k.Close()

	p := host.Problem{
		Offsets: []int32{2147483000, -2147483000},
		Weights: make([]int8, cfg.Classes*cfg.Feat),
		Inputs:  make([]uint8, cfg.Batch*cfg.Feat),
	}
	for i := range p.Weights {
		if i < cfg.Feat {
			p.Weights[i] = 127
		} else {
			p.Weights[i] = -128
		}
	}
	for i := range p.Inputs {
		p.Inputs[i] = 255
	}

	scores, err := host.Decode(cfg, run(t, k, p))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if i := host.Mismatch(scores, host.Reference(cfg, p)); i >= 0 {
		t.Errorf("Mismatch at index %d: got=%d", i, scores[i])
	}
}

func TestExactStreamConsumption(t *testing.T) {
	cfg := kernel.Config{Batch: 6, Feat: 16, Classes: 4, Tiling: 3}
	k := kernel.MustNew(cfg)
	defer k.Close()

	in, err := host.Encode(cfg, host.Random(cfg, testRNG()))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Extra trailing packets must be left untouched.
	extra := append(in, stream.NewPacket(stream.Payload{}, false), stream.NewPacket(stream.Payload{}, false))
	r := stream.NewReader(extra)
	w := stream.NewWriter(cfg.OutputPackets())

	if err := k.Run(context.Background(), r, w); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if r.Consumed() != cfg.InputPackets() {
		t.Errorf("consumed %d packets, want %d", r.Consumed(), cfg.InputPackets())
	}
	if r.Remaining() != 2 {
		t.Errorf("remaining = %d, want 2", r.Remaining())
	}
	if w.Len() != cfg.OutputPackets() {
		t.Errorf("produced %d packets, want %d", w.Len(), cfg.OutputPackets())
	}

	stats := k.Stats()
	if stats.PacketsIn != cfg.InputPackets() || stats.PacketsOut != cfg.OutputPackets() {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Tiles != cfg.Tiles() {
		t.Errorf("stats.Tiles = %d, want %d", stats.Tiles, cfg.Tiles())
	}
	if want := int64(cfg.Batch * cfg.Classes * cfg.Feat); stats.MACs != want {
		t.Errorf("stats.MACs = %d, want %d", stats.MACs, want)
	}
	if k.State() != kernel.Done {
		t.Errorf("State() = %s, want done", k.State())
	}
}

func TestShortStream(t *testing.T) {
	cfg := kernel.Config{Batch: 4, Feat: 8, Classes: 2, Tiling: 2}
	k := kernel.MustNew(cfg)
	defer k.Close()

	in, err := host.Encode(cfg, host.Random(cfg, testRNG()))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, err := k.Process(context.Background(), in[:len(in)-1]); !errors.Is(err, kernel.ErrStreamSize) {
		t.Errorf("Process(short) err = %v, want ErrStreamSize", err)
	}

	err = k.Run(context.Background(), stream.NewReader(in[:len(in)-1]), stream.NewWriter(cfg.OutputPackets()))
	if !errors.Is(err, stream.ErrUnderflow) {
		t.Errorf("Run(short) err = %v, want ErrUnderflow", err)
	}
	if k.State() != kernel.Idle {
		t.Errorf("State() after failed run = %s, want idle", k.State())
	}

	// The kernel is usable again after a failed run.
	if _, err := k.Process(context.Background(), in); err != nil {
		t.Errorf("Process after failure: %v", err)
	}
}

func TestSingleLastFlag(t *testing.T) {
	rng := testRNG()

	for _, tiling := range []int{1, 2, 3, 4, 6, 12} {
		cfg := kernel.Config{Batch: 12, Feat: 8, Classes: 4, Tiling: tiling}

		t.Run(cfg.String(), func(t *testing.T) {
			k := kernel.MustNew(cfg)
			defer k.Close()

			out := run(t, k, host.Random(cfg, rng))

			var flagged []int
			for i, p := range out {
				if p.Last {
					flagged = append(flagged, i)
				}
			}

			if len(flagged) != 1 || flagged[0] != len(out)-1 {
				t.Errorf("Last set on packets %v of %d", flagged, len(out))
			}
		})
	}
}

func TestIdempotent(t *testing.T) {
	cfg := kernel.Config{Batch: 8, Feat: 32, Classes: 4, Tiling: 2}
	k := kernel.MustNew(cfg)
	defer k.Close()

	rng := testRNG()
	p := host.Random(cfg, rng)

	first := run(t, k, p)

	// A different invocation in between must leave no trace.
	run(t, k, host.Random(cfg, rng))

	second := run(t, k, p)

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("packet %d differs between runs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestTilingDoesNotChangeResult(t *testing.T) {
	base := kernel.Config{Batch: 16, Feat: 64, Classes: 6}
	p := host.Random(kernel.Config{Batch: 16, Feat: 64, Classes: 6, Tiling: 1}, testRNG())

	var want []int32
	for _, tiling := range []int{1, 2, 4, 8, 16} {
		cfg := base
		cfg.Tiling = tiling

		k := kernel.MustNew(cfg)
		scores, err := host.Decode(cfg, run(t, k, p))
		k.Close()
		if err != nil {
			t.Fatalf("tiling=%d Decode: %v", tiling, err)
		}

		if want == nil {
			want = scores
			continue
		}

		if i := host.Mismatch(scores, want); i >= 0 {
			t.Errorf("tiling=%d differs from tiling=1 at index %d", tiling, i)
		}
	}
}

func TestSIMDEngine(t *testing.T) {
	cfg := kernel.Config{Batch: 32, Feat: 128, Classes: 10, Tiling: 16}
	p := host.Random(cfg, testRNG())

	k := kernel.MustNew(cfg, kernel.WithEngine(simd.New(4)))
	defer k.Close()

	scores, err := host.Decode(cfg, run(t, k, p))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if i := host.Mismatch(scores, host.Reference(cfg, p)); i >= 0 {
		t.Errorf("Mismatch at index %d", i)
	}
}

func TestFeed(t *testing.T) {
	cfg := kernel.Config{Batch: 4, Feat: 8, Classes: 2, Tiling: 2}
	k := kernel.MustNew(cfg)
	defer k.Close()

	in, err := host.Encode(cfg, host.Random(cfg, testRNG()))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if k.State() != kernel.Idle {
		t.Fatalf("initial State() = %s, want idle", k.State())
	}

	var produced []int
	for i, p := range in {
		out, err := k.Feed(p)
		if err != nil {
			t.Fatalf("Feed(%d): %v", i, err)
		}
		if len(out) > 0 {
			produced = append(produced, i)
		}

		switch {
		case i == 0:
			if k.State() != kernel.LoadWeights {
				t.Errorf("after offsets State() = %s, want load_weights", k.State())
			}
		case i == 2:
			if k.State() != kernel.LoadTile {
				t.Errorf("after weights State() = %s, want load_tile", k.State())
			}
		}
	}

	// Offsets 1, weights 2, then two tiles of two packets each.
	if len(produced) != 2 || produced[0] != 4 || produced[1] != 6 {
		t.Errorf("outputs produced after packets %v, want [4 6]", produced)
	}
	if k.State() != kernel.Done || !k.Done() {
		t.Errorf("final State() = %s, Done() = %t, want done", k.State(), k.Done())
	}
}

func TestRunBusy(t *testing.T) {
	cfg := kernel.Config{Batch: 4, Feat: 8, Classes: 2, Tiling: 2}
	k := kernel.MustNew(cfg)
	defer k.Close()

	in, err := host.Encode(cfg, host.Random(cfg, testRNG()))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, err := k.Feed(in[0]); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	if _, err := k.Process(context.Background(), in); !errors.Is(err, kernel.ErrBusy) {
		t.Errorf("Process mid-invocation err = %v, want ErrBusy", err)
	}

	k.Reset()
	if _, err := k.Process(context.Background(), in); err != nil {
		t.Errorf("Process after Reset: %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	cfg := kernel.Config{Batch: 4, Feat: 8, Classes: 2, Tiling: 2}
	k := kernel.MustNew(cfg)
	defer k.Close()

	in, err := host.Encode(cfg, host.Random(cfg, testRNG()))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := k.Process(ctx, in); !errors.Is(err, context.Canceled) {
		t.Errorf("Process(cancelled) err = %v, want context.Canceled", err)
	}
}

// flakyEngine is the CPU datapath with injectable failures and a hook run
// after every tile.
type flakyEngine struct {
	cpu.CPU

	loadErr   error
	tileErr   error
	afterTile func()
}

func (f *flakyEngine) LoadWeights(offset []int32, w []int8, feat, classes int) error {
	if f.loadErr != nil {
		return f.loadErr
	}

	return f.CPU.LoadWeights(offset, w, feat, classes)
}

func (f *flakyEngine) DotTile(out []int32, in []uint8, rows int) error {
	if f.tileErr != nil {
		return f.tileErr
	}

	if err := f.CPU.DotTile(out, in, rows); err != nil {
		return err
	}

	if f.afterTile != nil {
		f.afterTile()
	}

	return nil
}

func TestFeedRecoversFromEngineError(t *testing.T) {
	errDeviceLost := errors.New("device lost")

	testCases := []struct {
		name string
		// index of the packet whose Feed fails
		failAt int
		engine *flakyEngine
	}{
		{"load_weights", 2, &flakyEngine{loadErr: errDeviceLost}},
		{"dot_tile", 4, &flakyEngine{tileErr: errDeviceLost}},
	}

	cfg := kernel.Config{Batch: 4, Feat: 8, Classes: 2, Tiling: 2}
	p := host.Random(cfg, testRNG())

	in, err := host.Encode(cfg, p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			k := kernel.MustNew(cfg, kernel.WithEngine(tc.engine))
			defer k.Close()

			for i := 0; i < tc.failAt; i++ {
				if _, err := k.Feed(in[i]); err != nil {
					t.Fatalf("Feed(%d): %v", i, err)
				}
			}

			if _, err := k.Feed(in[tc.failAt]); !errors.Is(err, errDeviceLost) {
				t.Fatalf("Feed(%d) err = %v, want device lost", tc.failAt, err)
			}
			if k.State() != kernel.Idle {
				t.Errorf("State() after engine error = %s, want idle", k.State())
			}

			// The next packet opens a fresh invocation instead of indexing past
			// the abandoned phase.
			if _, err := k.Feed(in[tc.failAt+1]); err != nil {
				t.Fatalf("Feed after error: %v", err)
			}
			if k.State() != kernel.LoadWeights {
				t.Errorf("State() after restart = %s, want load_weights", k.State())
			}
			k.Reset()

			tc.engine.loadErr = nil
			tc.engine.tileErr = nil

			scores, err := host.Decode(cfg, run(t, k, p))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			if i := host.Mismatch(scores, host.Reference(cfg, p)); i >= 0 {
				t.Errorf("Mismatch at index %d", i)
			}
		})
	}
}

func TestRunCancelledBetweenTiles(t *testing.T) {
	cfg := kernel.Config{Batch: 4, Feat: 8, Classes: 2, Tiling: 2}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := &flakyEngine{afterTile: cancel}
	k := kernel.MustNew(cfg, kernel.WithEngine(engine))
	defer k.Close()

	in, err := host.Encode(cfg, host.Random(cfg, testRNG()))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	r := stream.NewReader(in)
	w := stream.NewWriter(cfg.OutputPackets())

	if err := k.Run(ctx, r, w); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}

	if k.State() != kernel.Idle {
		t.Errorf("State() after cancel = %s, want idle", k.State())
	}

	// Offsets 1, weights 2, first tile 2.
	if r.Consumed() != 5 {
		t.Errorf("consumed %d packets, want 5", r.Consumed())
	}

	// Only the first tile was stored, and none of it carries Last.
	if want := cfg.OutputPackets() / cfg.Tiles(); w.Len() != want {
		t.Errorf("produced %d packets, want %d", w.Len(), want)
	}
	for i, p := range w.Packets() {
		if p.Last {
			t.Errorf("packet %d of a cancelled run carries Last", i)
		}
	}
}
