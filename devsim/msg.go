package devsim

import (
	"github.com/sarchlab/akita/v3/sim"

	"github.com/haormj/mmult/stream"
)

// PacketMsg carries one stream beat over an akita connection.
type PacketMsg struct {
	sim.MsgMeta

	Packet stream.Packet
}

func (m *PacketMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}

func newPacketMsg(src, dst sim.Port, now sim.VTimeInSec, p stream.Packet) *PacketMsg {
	msg := &PacketMsg{Packet: p}
	msg.ID = sim.GetIDGenerator().Generate()
	msg.Src = src
	msg.Dst = dst
	msg.SendTime = now
	msg.TrafficBytes = stream.PayloadBytes

	return msg
}
