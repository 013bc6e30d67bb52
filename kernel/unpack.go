package kernel

import (
	"fmt"

	"github.com/haormj/mmult/stream"
)

// unpackOffsets fills OffsetsPerPacket entries of the offset buffer.
func (k *Kernel) unpackOffsets(p stream.Payload) error {
	i := k.phaseIdx * OffsetsPerPacket

	if err := stream.UnpackInt32s(p, k.offsetBuf[i:i+OffsetsPerPacket]); err != nil {
		return fmt.Errorf("kernel: offset packet %d: %w", k.phaseIdx, err)
	}

	k.phaseIdx++
	if k.phaseIdx == k.cfg.offsetPackets() {
		k.transition(LoadWeights)
	}

	return nil
}

// unpackWeights fills WeightsPerPacket entries of one class row. Rows are
// contiguous, so the flat packet index maps straight onto the buffer.
func (k *Kernel) unpackWeights(p stream.Payload) error {
	i := k.phaseIdx * WeightsPerPacket

	if err := stream.UnpackInt8s(p, k.weightBuf[i:i+WeightsPerPacket]); err != nil {
		return fmt.Errorf("kernel: weight packet %d: %w", k.phaseIdx, err)
	}

	k.phaseIdx++
	if k.phaseIdx < k.cfg.weightPackets() {
		return nil
	}

	if err := k.engine.LoadWeights(k.offsetBuf, k.weightBuf, k.cfg.Feat, k.cfg.Classes); err != nil {
		return fmt.Errorf("kernel: failed to load weights: %w", err)
	}

	k.transition(LoadTile)

	return nil
}
