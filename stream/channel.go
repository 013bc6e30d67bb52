package stream

import (
	"errors"
	"fmt"
)

var (
	ErrUnderflow = errors.New("stream: read past end of input")
	ErrOverflow  = errors.New("stream: write past end of output")
)

// Reader pops packets from an ordered input sequence.
type Reader struct {
	packets []Packet
	idx     int
}

func NewReader(packets []Packet) *Reader {
	return &Reader{packets: packets}
}

// Pop returns the next packet and advances the cursor by one.
func (r *Reader) Pop() (Packet, error) {
	if r.idx >= len(r.packets) {
		return Packet{}, fmt.Errorf("%w: cursor at %d", ErrUnderflow, r.idx)
	}

	p := r.packets[r.idx]
	r.idx++

	return p, nil
}

// Consumed is the number of packets popped so far.
func (r *Reader) Consumed() int {
	return r.idx
}

// Remaining is the number of packets not yet popped.
func (r *Reader) Remaining() int {
	return len(r.packets) - r.idx
}

// Writer collects packets up to a fixed capacity.
type Writer struct {
	packets []Packet
	limit   int
}

func NewWriter(capacity int) *Writer {
	return &Writer{
		packets: make([]Packet, 0, capacity),
		limit:   capacity,
	}
}

// Push appends p to the output.
func (w *Writer) Push(p Packet) error {
	if len(w.packets) >= w.limit {
		return fmt.Errorf("%w: capacity %d", ErrOverflow, w.limit)
	}

	w.packets = append(w.packets, p)

	return nil
}

func (w *Writer) Len() int {
	return len(w.packets)
}

// Packets returns the packets pushed so far.
func (w *Writer) Packets() []Packet {
	return w.packets
}
