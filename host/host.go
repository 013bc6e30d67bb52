// Package host builds kernel input streams from matrices and turns output
// streams back into scores. It is what the host side of the channel does
// around a kernel invocation.
package host

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/haormj/mmult/kernel"
	"github.com/haormj/mmult/stream"
)

var (
	ErrShape      = errors.New("host: problem shape does not match config")
	ErrFraming    = errors.New("host: bad end-of-stream framing")
	ErrStreamSize = errors.New("host: output stream has wrong length")
)

// Problem is one invocation's worth of operands. Weights are Classes rows of
// Feat; Inputs are Batch rows of Feat.
type Problem struct {
	Offsets []int32
	Weights []int8
	Inputs  []uint8
}

func (p Problem) Validate(cfg kernel.Config) error {
	if len(p.Offsets) != cfg.Classes {
		return fmt.Errorf("%w: %d offsets, want %d", ErrShape, len(p.Offsets), cfg.Classes)
	}

	if len(p.Weights) != cfg.Classes*cfg.Feat {
		return fmt.Errorf("%w: %d weights, want %d", ErrShape, len(p.Weights), cfg.Classes*cfg.Feat)
	}

	if len(p.Inputs) != cfg.Batch*cfg.Feat {
		return fmt.Errorf("%w: %d inputs, want %d", ErrShape, len(p.Inputs), cfg.Batch*cfg.Feat)
	}

	return nil
}

// Random fills a problem for cfg from rng. Offsets stay small enough that a
// sum never wraps, so scores are meaningful as well as reproducible.
func Random(cfg kernel.Config, rng *rand.Rand) Problem {
	p := Problem{
		Offsets: make([]int32, cfg.Classes),
		Weights: make([]int8, cfg.Classes*cfg.Feat),
		Inputs:  make([]uint8, cfg.Batch*cfg.Feat),
	}

	for i := range p.Offsets {
		p.Offsets[i] = int32(rng.Intn(1<<16) - 1<<15)
	}
	for i := range p.Weights {
		p.Weights[i] = int8(rng.Intn(256) - 128)
	}
	for i := range p.Inputs {
		p.Inputs[i] = uint8(rng.Intn(256))
	}

	return p
}

// Encode lays p out in kernel order: offsets, weights row-major, then inputs
// row-major, which is also tile order.
func Encode(cfg kernel.Config, p Problem) ([]stream.Packet, error) {
	if err := p.Validate(cfg); err != nil {
		return nil, err
	}

	packets := make([]stream.Packet, 0, cfg.InputPackets())

	for i := 0; i < len(p.Offsets); i += kernel.OffsetsPerPacket {
		payload, err := stream.PackInt32s(p.Offsets[i : i+kernel.OffsetsPerPacket])
		if err != nil {
			return nil, fmt.Errorf("host: offsets: %w", err)
		}
		packets = append(packets, stream.NewPacket(payload, false))
	}

	for i := 0; i < len(p.Weights); i += kernel.WeightsPerPacket {
		payload, err := stream.PackInt8s(p.Weights[i : i+kernel.WeightsPerPacket])
		if err != nil {
			return nil, fmt.Errorf("host: weights: %w", err)
		}
		packets = append(packets, stream.NewPacket(payload, false))
	}

	for i := 0; i < len(p.Inputs); i += kernel.InputsPerPacket {
		payload, err := stream.PackUint8s(p.Inputs[i : i+kernel.InputsPerPacket])
		if err != nil {
			return nil, fmt.Errorf("host: inputs: %w", err)
		}
		last := i+kernel.InputsPerPacket == len(p.Inputs)
		packets = append(packets, stream.NewPacket(payload, last))
	}

	return packets, nil
}

// Decode turns an output stream into Batch rows of Classes scores. Exactly the
// final packet must carry Last.
func Decode(cfg kernel.Config, out []stream.Packet) ([]int32, error) {
	if len(out) != cfg.OutputPackets() {
		return nil, fmt.Errorf("%w: got %d packets, want %d", ErrStreamSize, len(out), cfg.OutputPackets())
	}

	scores := make([]int32, cfg.Batch*cfg.Classes)

	for i, p := range out {
		if p.Last != (i == len(out)-1) {
			return nil, fmt.Errorf("%w: packet %d of %d has last=%t", ErrFraming, i, len(out), p.Last)
		}

		j := i * kernel.OutputsPerPacket
		if err := stream.UnpackInt32s(p.Payload(), scores[j:j+kernel.OutputsPerPacket]); err != nil {
			return nil, fmt.Errorf("host: output packet %d: %w", i, err)
		}
	}

	return scores, nil
}

// Reference computes the scores in exact arithmetic and truncates each to the
// int32 accumulator width.
func Reference(cfg kernel.Config, p Problem) []int32 {
	out := make([]int32, cfg.Batch*cfg.Classes)

	for b := range cfg.Batch {
		x := p.Inputs[b*cfg.Feat : (b+1)*cfg.Feat]

		for j := range cfg.Classes {
			w := p.Weights[j*cfg.Feat : (j+1)*cfg.Feat]

			sum := int64(p.Offsets[j])
			for k := range cfg.Feat {
				sum += int64(x[k]) * int64(w[k])
			}

			out[b*cfg.Classes+j] = int32(sum)
		}
	}

	return out
}

// Mismatch returns the first index where got and want differ, or -1.
func Mismatch(got, want []int32) int {
	if len(got) != len(want) {
		return min(len(got), len(want))
	}

	for i := range got {
		if got[i] != want[i] {
			return i
		}
	}

	return -1
}
