// Package devsim places a kernel in a cycle-stepped akita simulation: a host
// component streams packets to a device component over a direct connection,
// one packet per cycle in each direction.
package devsim

import (
	"errors"
	"fmt"

	"github.com/sarchlab/akita/v3/sim"

	"github.com/haormj/mmult/kernel"
	"github.com/haormj/mmult/stream"
)

// DefaultFreq is the clock both components run at.
const DefaultFreq = 1 * sim.GHz

var ErrIncomplete = errors.New("devsim: simulation ended before end of stream")

// Result is the outcome of one simulated invocation.
type Result struct {
	Output  []stream.Packet
	Cycles  uint64
	Control uint32
	Stats   kernel.Stats
}

// Run simulates one invocation of k over in.
func Run(k *kernel.Kernel, in []stream.Packet) (Result, error) {
	engine := sim.NewSerialEngine()

	host := NewHost("Host", engine, DefaultFreq)
	device := NewDevice("Device", engine, DefaultFreq, k)

	conn := sim.NewDirectConnection("Conn", engine, DefaultFreq)
	conn.PlugIn(host.Out, 1)
	conn.PlugIn(host.In, 1)
	conn.PlugIn(device.In, 1)
	conn.PlugIn(device.Out, 1)

	device.SetDestination(host.In)
	host.Submit(device.In, in)

	k.Reset()
	device.Control.Start()
	host.TickLater(0)

	if err := engine.Run(); err != nil {
		return Result{}, fmt.Errorf("devsim: engine: %w", err)
	}

	if err := device.Err(); err != nil {
		return Result{}, err
	}

	if err := host.Err(); err != nil {
		return Result{}, err
	}

	res := Result{
		Output:  host.Received(),
		Cycles:  uint64(float64(engine.CurrentTime())*float64(DefaultFreq) + 0.5),
		Control: device.Control.Read(),
		Stats:   k.Stats(),
	}

	if !host.Done() || !device.Control.Done() {
		return res, fmt.Errorf("%w: received %d of %d packets",
			ErrIncomplete, len(res.Output), k.Config().OutputPackets())
	}

	return res, nil
}
