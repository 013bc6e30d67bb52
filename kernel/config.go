package kernel

import (
	"errors"
	"fmt"
	"math"

	"github.com/haormj/mmult/stream"
)

// Packing ratios, fixed by the element widths: int32 offsets and outputs,
// int8 weights, uint8 inputs, all in a 64-bit packet.
const (
	OffsetsPerPacket = stream.Int32sPerPacket
	WeightsPerPacket = stream.Int8sPerPacket
	InputsPerPacket  = stream.Uint8sPerPacket
	OutputsPerPacket = stream.Int32sPerPacket
)

// Largest magnitude of one input*weight product.
const maxProduct = math.MaxUint8 * -math.MinInt8

var (
	ErrDimension       = errors.New("kernel: dimensions must be positive")
	ErrTiling          = errors.New("kernel: batch not divisible by tiling")
	ErrFeatPacking     = errors.New("kernel: feat not divisible by packing ratio")
	ErrClassPacking    = errors.New("kernel: classes not divisible by offset packing ratio")
	ErrOutputPacking   = errors.New("kernel: batch*classes not divisible by output packing ratio")
	ErrAccumulatorSize = errors.New("kernel: accumulator too narrow for feat")
)

// Config is the build-time shape of a kernel. It is validated once, by New.
type Config struct {
	Batch   int
	Feat    int
	Classes int
	// Tiling is the number of batch rows per tile.
	Tiling int
}

// DefaultConfig is the shape of the classifier the kernel was first built for.
func DefaultConfig() Config {
	return Config{
		Batch:   2048,
		Feat:    256,
		Classes: 10,
		Tiling:  128,
	}
}

// Validate reports the first structural violation, if any.
func (c Config) Validate() error {
	if c.Batch <= 0 || c.Feat <= 0 || c.Classes <= 0 || c.Tiling <= 0 {
		return fmt.Errorf("%w: batch=%d feat=%d classes=%d tiling=%d",
			ErrDimension, c.Batch, c.Feat, c.Classes, c.Tiling)
	}

	if c.Batch%c.Tiling != 0 {
		return fmt.Errorf("%w: batch=%d tiling=%d", ErrTiling, c.Batch, c.Tiling)
	}

	if c.Feat%WeightsPerPacket != 0 || c.Feat%InputsPerPacket != 0 {
		return fmt.Errorf("%w: feat=%d", ErrFeatPacking, c.Feat)
	}

	if c.Classes%OffsetsPerPacket != 0 {
		return fmt.Errorf("%w: classes=%d", ErrClassPacking, c.Classes)
	}

	if (c.Batch*c.Classes)%OutputsPerPacket != 0 {
		return fmt.Errorf("%w: batch*classes=%d", ErrOutputPacking, c.Batch*c.Classes)
	}

	if int64(c.Feat)*maxProduct > math.MaxInt32 {
		return fmt.Errorf("%w: feat=%d", ErrAccumulatorSize, c.Feat)
	}

	return nil
}

// Tiles is the number of outer iterations.
func (c Config) Tiles() int {
	return c.Batch / c.Tiling
}

func (c Config) offsetPackets() int {
	return c.Classes / OffsetsPerPacket
}

func (c Config) weightPackets() int {
	return c.Classes * c.Feat / WeightsPerPacket
}

func (c Config) tilePackets() int {
	return c.Tiling * c.Feat / InputsPerPacket
}

func (c Config) tileOutputPackets() int {
	return c.Tiling * c.Classes / OutputsPerPacket
}

// InputPackets is the exact length of the input stream (IS_SIZE).
func (c Config) InputPackets() int {
	return c.offsetPackets() + c.weightPackets() + c.Batch*c.Feat/InputsPerPacket
}

// OutputPackets is the exact length of the output stream (OS_SIZE).
func (c Config) OutputPackets() int {
	return c.Batch * c.Classes / OutputsPerPacket
}

func (c Config) String() string {
	return fmt.Sprintf("batch=%d feat=%d classes=%d tiling=%d", c.Batch, c.Feat, c.Classes, c.Tiling)
}
