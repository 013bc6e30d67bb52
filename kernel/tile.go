package kernel

import (
	"fmt"

	"github.com/haormj/mmult/stream"
)

// loadTile fills InputsPerPacket features of the current tile, row-major.
// The packet completing a tile runs compute and store and returns the tile's
// output packets.
func (k *Kernel) loadTile(p stream.Payload) ([]stream.Packet, error) {
	i := k.phaseIdx * InputsPerPacket

	if err := stream.UnpackUint8s(p, k.inBuf[i:i+InputsPerPacket]); err != nil {
		return nil, fmt.Errorf("kernel: tile %d input packet %d: %w", k.tile, k.phaseIdx, err)
	}

	k.phaseIdx++
	if k.phaseIdx < k.cfg.tilePackets() {
		return nil, nil
	}

	if err := k.computeTile(); err != nil {
		return nil, err
	}

	out, err := k.storeTile()
	if err != nil {
		return nil, err
	}

	k.tile++
	k.stats.Tiles++

	if k.tile == k.cfg.Tiles() {
		k.transition(Done)
	} else {
		k.transition(LoadTile)
	}

	return out, nil
}

func (k *Kernel) computeTile() error {
	k.transition(ComputeTile)

	if err := k.engine.DotTile(k.outBuf, k.inBuf, k.cfg.Tiling); err != nil {
		return fmt.Errorf("kernel: tile %d: %w", k.tile, err)
	}

	k.stats.MACs += int64(k.cfg.Tiling) * int64(k.cfg.Classes) * int64(k.cfg.Feat)

	return nil
}
