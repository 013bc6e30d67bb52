// Package simd is the vectorised dot-product datapath. Each class reduction
// runs on go-highway vectors, and the rows of a tile are spread across a
// persistent worker pool.
package simd

import (
	"github.com/ajroetker/go-highway/hwy"
	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"

	"github.com/haormj/mmult/accelerated"
)

type SIMD struct {
	workers int
	pool    *workerpool.Pool
	ownPool bool

	weights accelerated.Weights
	// w32 is the weight matrix widened once per invocation.
	w32 []int32
}

// New returns an engine that creates its own pool of workers goroutines in
// SetupContext. workers <= 0 means GOMAXPROCS.
func New(workers int) *SIMD {
	return &SIMD{workers: workers}
}

// NewWithPool returns an engine that runs on an existing pool. The pool is
// not closed by Release.
func NewWithPool(pool *workerpool.Pool) *SIMD {
	return &SIMD{pool: pool}
}

// SetupContext implements accelerated.Engine.
func (s *SIMD) SetupContext() error {
	if s.pool == nil {
		s.pool = workerpool.New(s.workers)
		s.ownPool = true
	}

	return nil
}

// LoadWeights implements accelerated.Engine.
func (s *SIMD) LoadWeights(offset []int32, w []int8, feat, classes int) error {
	weights, err := accelerated.NewWeights(offset, w, feat, classes)
	if err != nil {
		return err
	}

	if cap(s.w32) < len(w) {
		s.w32 = make([]int32, len(w))
	}
	s.w32 = s.w32[:len(w)]

	for i, v := range w {
		s.w32[i] = int32(v)
	}

	s.weights = weights

	return nil
}

// DotTile implements accelerated.Engine.
func (s *SIMD) DotTile(out []int32, in []uint8, rows int) error {
	if err := s.weights.CheckTile(out, in, rows); err != nil {
		return err
	}

	if s.pool == nil {
		s.rows(out, in, 0, rows)
		return nil
	}

	s.pool.ParallelFor(rows, func(start, end int) {
		s.rows(out, in, start, end)
	})

	return nil
}

func (s *SIMD) rows(out []int32, in []uint8, start, end int) {
	feat := s.weights.Feat
	classes := s.weights.Classes

	x := make([]int32, feat)

	for i := start; i < end; i++ {
		for k, v := range in[i*feat : (i+1)*feat] {
			x[k] = int32(v)
		}

		for j := 0; j < classes; j++ {
			out[i*classes+j] = s.weights.Offset[j] + dot(x, s.w32[j*feat:(j+1)*feat])
		}
	}
}

// dot reduces x·w with full vectors and a scalar tail.
func dot(x, w []int32) int32 {
	acc := hwy.Zero[int32]()
	lanes := acc.NumLanes()

	var k int
	for k = 0; lanes > 0 && k+lanes <= len(x); k += lanes {
		acc = hwy.Add(hwy.Mul(hwy.Load(x[k:]), hwy.Load(w[k:])), acc)
	}

	sum := hwy.ReduceSum(acc)

	for ; k < len(x); k++ {
		sum += x[k] * w[k]
	}

	return sum
}

// Release implements accelerated.Engine.
func (s *SIMD) Release() error {
	if s.ownPool && s.pool != nil {
		s.pool.Close()
		s.pool = nil
		s.ownPool = false
	}

	s.weights = accelerated.Weights{}

	return nil
}

var _ accelerated.Engine = &SIMD{}
