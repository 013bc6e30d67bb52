package devsim

import (
	"fmt"

	"github.com/sarchlab/akita/v3/sim"

	"github.com/haormj/mmult/stream"
)

// Host drains an input stream into the device one packet per tick and
// collects the output stream until the end-of-stream packet arrives.
type Host struct {
	*sim.TickingComponent

	In  sim.Port
	Out sim.Port

	dst      sim.Port
	toSend   []stream.Packet
	received []stream.Packet
	done     bool
	err      error
}

func NewHost(name string, engine sim.Engine, freq sim.Freq) *Host {
	h := &Host{}
	h.TickingComponent = sim.NewTickingComponent(name, engine, freq, h)
	h.In = sim.NewLimitNumMsgPort(h, 1, name+".In")
	h.Out = sim.NewLimitNumMsgPort(h, 1, name+".Out")

	return h
}

// Submit queues packets for the device input port dst.
func (h *Host) Submit(dst sim.Port, packets []stream.Packet) {
	h.dst = dst
	h.toSend = append(h.toSend, packets...)
	h.done = false
}

// Received returns the output packets collected so far.
func (h *Host) Received() []stream.Packet {
	return h.received
}

// Done reports whether the end-of-stream packet has arrived.
func (h *Host) Done() bool {
	return h.done
}

func (h *Host) Err() error {
	return h.err
}

func (h *Host) Tick(now sim.VTimeInSec) bool {
	madeProgress := false

	madeProgress = h.send(now) || madeProgress
	madeProgress = h.receive(now) || madeProgress

	return madeProgress
}

func (h *Host) send(now sim.VTimeInSec) bool {
	if len(h.toSend) == 0 {
		return false
	}

	if err := h.Out.Send(newPacketMsg(h.Out, h.dst, now, h.toSend[0])); err != nil {
		return false
	}

	h.toSend = h.toSend[1:]

	return true
}

func (h *Host) receive(now sim.VTimeInSec) bool {
	if h.done {
		return false
	}

	item := h.In.Retrieve(now)
	if item == nil {
		return false
	}

	msg, ok := item.(*PacketMsg)
	if !ok {
		h.err = fmt.Errorf("devsim: %s: unexpected message %T", h.Name(), item)
		return false
	}

	h.received = append(h.received, msg.Packet)
	if msg.Packet.Last {
		h.done = true
	}

	return true
}
