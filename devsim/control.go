package devsim

// Bits of the block-level control register at offset 0.
const (
	CtrlStart uint32 = 1 << 0
	CtrlDone  uint32 = 1 << 1
	CtrlIdle  uint32 = 1 << 2
	CtrlReady uint32 = 1 << 3
)

// Control is the start/done handshake the host uses to trigger a run.
// Done is sticky until the next Start.
type Control struct {
	start bool
	done  bool
	ready bool
}

// Start requests an invocation. Ignored while one is running.
func (c *Control) Start() {
	if c.start {
		return
	}

	c.start = true
	c.done = false
	c.ready = false
}

func (c *Control) Running() bool {
	return c.start
}

func (c *Control) Done() bool {
	return c.done
}

// accepted is raised once the first input has been taken.
func (c *Control) accepted() {
	c.ready = true
}

func (c *Control) finish() {
	c.start = false
	c.done = true
}

// Read returns the register value.
func (c *Control) Read() uint32 {
	var v uint32

	if c.start {
		v |= CtrlStart
	}
	if c.done {
		v |= CtrlDone
	}
	if !c.start {
		v |= CtrlIdle
	}
	if c.ready {
		v |= CtrlReady
	}

	return v
}
