package devsim

import (
	"fmt"

	"github.com/sarchlab/akita/v3/sim"

	"github.com/haormj/mmult/kernel"
	"github.com/haormj/mmult/stream"
)

// Device runs a kernel behind a pair of stream ports. Each tick it accepts at
// most one input packet and sends at most one output packet. It stops
// accepting input while a finished tile is still draining.
type Device struct {
	*sim.TickingComponent

	In  sim.Port
	Out sim.Port

	Control Control

	kernel  *kernel.Kernel
	dst     sim.Port
	pending []stream.Packet
	err     error
}

func NewDevice(name string, engine sim.Engine, freq sim.Freq, k *kernel.Kernel) *Device {
	d := &Device{kernel: k}
	d.TickingComponent = sim.NewTickingComponent(name, engine, freq, d)
	d.In = sim.NewLimitNumMsgPort(d, 1, name+".In")
	d.Out = sim.NewLimitNumMsgPort(d, 1, name+".Out")

	return d
}

// SetDestination names the port output packets are addressed to.
func (d *Device) SetDestination(p sim.Port) {
	d.dst = p
}

// Err is the first error the kernel reported, if any.
func (d *Device) Err() error {
	return d.err
}

func (d *Device) Tick(now sim.VTimeInSec) bool {
	if d.err != nil {
		return false
	}

	madeProgress := false

	madeProgress = d.send(now) || madeProgress
	madeProgress = d.receive(now) || madeProgress

	return madeProgress
}

func (d *Device) send(now sim.VTimeInSec) bool {
	if len(d.pending) == 0 {
		return false
	}

	p := d.pending[0]
	if err := d.Out.Send(newPacketMsg(d.Out, d.dst, now, p)); err != nil {
		return false
	}

	d.pending = d.pending[1:]

	if p.Last {
		d.Control.finish()
	}

	return true
}

func (d *Device) receive(now sim.VTimeInSec) bool {
	if !d.Control.Running() || len(d.pending) > 0 {
		return false
	}

	item := d.In.Retrieve(now)
	if item == nil {
		return false
	}

	msg, ok := item.(*PacketMsg)
	if !ok {
		d.err = fmt.Errorf("devsim: %s: unexpected message %T", d.Name(), item)
		return false
	}

	out, err := d.kernel.Feed(msg.Packet)
	if err != nil {
		d.err = fmt.Errorf("devsim: %s: %w", d.Name(), err)
		return false
	}

	d.Control.accepted()
	d.pending = append(d.pending, out...)

	return true
}
