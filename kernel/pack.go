package kernel

import (
	"fmt"

	"github.com/haormj/mmult/stream"
)

// storeTile packs the output tile row-major, OutputsPerPacket scores per
// packet. Last is decided from the running count over the whole invocation,
// never from the position inside the tile.
func (k *Kernel) storeTile() ([]stream.Packet, error) {
	k.transition(StoreTile)

	total := k.cfg.OutputPackets()
	out := make([]stream.Packet, 0, k.cfg.tileOutputPackets())

	for i := 0; i < len(k.outBuf); i += OutputsPerPacket {
		payload, err := stream.PackInt32s(k.outBuf[i : i+OutputsPerPacket])
		if err != nil {
			return nil, fmt.Errorf("kernel: tile %d output %d: %w", k.tile, i, err)
		}

		k.outIdx++
		out = append(out, stream.NewPacket(payload, k.outIdx == total))
	}

	k.stats.PacketsOut += len(out)

	return out, nil
}
