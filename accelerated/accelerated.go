// Package accelerated defines the dot-product datapath the kernel drives once
// per tile, and the checks shared by every implementation.
package accelerated

import (
	"errors"
	"fmt"
)

// PartitionFactor is the number of features held by one bank of the
// block-partitioned weight and input buffers.
const PartitionFactor = 32

var (
	ErrNoWeights = errors.New("accelerated: weights not loaded")
	ErrShape     = errors.New("accelerated: buffer shape mismatch")
)

// Engine computes out[i][j] = offset[j] + sum_k in[i][k]*w[j][k] for one tile.
//
// LoadWeights is called once per invocation before any tile; the slices stay
// owned by the caller and must not change until the next LoadWeights. DotTile
// may be called any number of times afterwards. All arithmetic is int32 with
// two's complement wraparound.
type Engine interface {
	SetupContext() error
	LoadWeights(offset []int32, w []int8, feat, classes int) error
	DotTile(out []int32, in []uint8, rows int) error
	Release() error
}

// Weights is the read-only state an engine keeps between LoadWeights and
// DotTile.
type Weights struct {
	Offset  []int32
	W       []int8
	Feat    int
	Classes int
}

// NewWeights checks the slice shapes against feat and classes.
func NewWeights(offset []int32, w []int8, feat, classes int) (Weights, error) {
	if feat <= 0 || classes <= 0 {
		return Weights{}, fmt.Errorf("%w: feat=%d classes=%d", ErrShape, feat, classes)
	}

	if len(offset) != classes {
		return Weights{}, fmt.Errorf("%w: offset length %d, want %d", ErrShape, len(offset), classes)
	}

	if len(w) != classes*feat {
		return Weights{}, fmt.Errorf("%w: weight length %d, want %d", ErrShape, len(w), classes*feat)
	}

	return Weights{Offset: offset, W: w, Feat: feat, Classes: classes}, nil
}

// CheckTile validates the tile buffers against loaded weights.
func (w Weights) CheckTile(out []int32, in []uint8, rows int) error {
	if w.W == nil {
		return ErrNoWeights
	}

	if len(in) != rows*w.Feat {
		return fmt.Errorf("%w: input length %d, want %d", ErrShape, len(in), rows*w.Feat)
	}

	if len(out) != rows*w.Classes {
		return fmt.Errorf("%w: output length %d, want %d", ErrShape, len(out), rows*w.Classes)
	}

	return nil
}

// Row returns the weight vector for class j.
func (w Weights) Row(j int) []int8 {
	return w.W[j*w.Feat : (j+1)*w.Feat]
}
