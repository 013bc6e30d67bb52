// Package enginetest holds the conformance checks every accelerated.Engine
// must pass.
package enginetest

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/haormj/mmult/accelerated"
)

// Reference computes the tile in int64 and truncates to int32.
func Reference(offset []int32, w []int8, in []uint8, rows, feat, classes int) []int32 {
	out := make([]int32, rows*classes)

	for i := range rows {
		for j := range classes {
			sum := int64(offset[j])
			for k := range feat {
				sum += int64(in[i*feat+k]) * int64(w[j*feat+k])
			}
			out[i*classes+j] = int32(sum)
		}
	}

	return out
}

type shape struct {
	name                string
	rows, feat, classes int
}

var shapes = []shape{
	{"tiny_1x8x2", 1, 8, 2},
	{"one_bank_4x32x10", 4, 32, 10},
	{"partial_bank_3x40x6", 3, 40, 6},
	{"wide_16x256x10", 16, 256, 10},
	{"tall_65x64x4", 65, 64, 4},
}

// Run checks engine against Reference over random tiles, extreme values and
// shape errors. newEngine must return a fresh, not yet set up engine.
func Run(t *testing.T, newEngine func() accelerated.Engine) {
	t.Helper()

	t.Run("random", func(t *testing.T) {
		rng := rand.New(rand.NewSource(548))

		for _, sh := range shapes {
			t.Run(sh.name, func(t *testing.T) {
				offset := make([]int32, sh.classes)
				w := make([]int8, sh.classes*sh.feat)
				in := make([]uint8, sh.rows*sh.feat)

				for i := range offset {
					offset[i] = int32(rng.Intn(1<<20) - 1<<19)
				}
				for i := range w {
					w[i] = int8(rng.Intn(256) - 128)
				}
				for i := range in {
					in[i] = uint8(rng.Intn(256))
				}

				check(t, newEngine(), offset, w, in, sh)
			})
		}
	})

	t.Run("extremes", func(t *testing.T) {
		sh := shape{"extremes", 2, 64, 4}

		offset := []int32{math.MaxInt32, math.MinInt32, 0, -1}
		w := make([]int8, sh.classes*sh.feat)
		in := make([]uint8, sh.rows*sh.feat)

		for i := range w {
			if i%2 == 0 {
				w[i] = math.MinInt8
			} else {
				w[i] = math.MaxInt8
			}
		}
		for i := range in {
			in[i] = math.MaxUint8
		}

		check(t, newEngine(), offset, w, in, sh)
	})

	t.Run("shape_errors", func(t *testing.T) {
		e := newEngine()
		if err := e.SetupContext(); err != nil {
			t.Fatalf("SetupContext: %v", err)
		}
		defer e.Release()

		if err := e.DotTile(make([]int32, 2), make([]uint8, 8), 1); err == nil {
			t.Error("DotTile before LoadWeights succeeded")
		}

		if err := e.LoadWeights(make([]int32, 3), make([]int8, 16), 8, 2); !errors.Is(err, accelerated.ErrShape) {
			t.Errorf("LoadWeights(bad offset) err = %v, want ErrShape", err)
		}

		if err := e.LoadWeights(make([]int32, 2), make([]int8, 16), 8, 2); err != nil {
			t.Fatalf("LoadWeights: %v", err)
		}

		if err := e.DotTile(make([]int32, 2), make([]uint8, 7), 1); !errors.Is(err, accelerated.ErrShape) {
			t.Errorf("DotTile(short input) err = %v, want ErrShape", err)
		}

		if err := e.DotTile(make([]int32, 3), make([]uint8, 8), 1); !errors.Is(err, accelerated.ErrShape) {
			t.Errorf("DotTile(long output) err = %v, want ErrShape", err)
		}
	})
}

func check(t *testing.T, e accelerated.Engine, offset []int32, w []int8, in []uint8, sh shape) {
	t.Helper()

	if err := e.SetupContext(); err != nil {
		t.Fatalf("SetupContext: %v", err)
	}
	defer e.Release()

	if err := e.LoadWeights(offset, w, sh.feat, sh.classes); err != nil {
		t.Fatalf("LoadWeights: %v", err)
	}

	out := make([]int32, sh.rows*sh.classes)
	if err := e.DotTile(out, in, sh.rows); err != nil {
		t.Fatalf("DotTile: %v", err)
	}

	ref := Reference(offset, w, in, sh.rows, sh.feat, sh.classes)
	for i := range out {
		if out[i] != ref[i] {
			t.Errorf("Mismatch at index %d: got=%d ref=%d", i, out[i], ref[i])
			return
		}
	}

	// A second tile on the same weights must not see state from the first.
	if err := e.DotTile(out, in, sh.rows); err != nil {
		t.Fatalf("second DotTile: %v", err)
	}
	for i := range out {
		if out[i] != ref[i] {
			t.Errorf("second tile mismatch at index %d: got=%d ref=%d", i, out[i], ref[i])
			return
		}
	}
}
