// Package stream implements the point-to-point packet channel the kernel reads
// from and writes to: a 64-bit AXI4-Stream style beat with sideband, and
// cursors over ordered packet sequences.
package stream

import "fmt"

// PayloadBytes is the width of a packet data word.
const PayloadBytes = 8

// fullMask marks every payload byte valid.
const fullMask = uint8(1<<PayloadBytes - 1)

// Payload is the data word carried by one packet.
type Payload [PayloadBytes]byte

// Packet is a single beat on the stream. Only Data carries meaning for the
// kernel; the sideband fields are forwarded untouched and ignored on read.
type Packet struct {
	Data Payload

	Keep uint8
	Strb uint8
	User uint8
	ID   uint8
	Dest uint8

	// Last marks the final packet of a stream.
	Last bool
}

// NewPacket wraps payload with full byte-validity masks and zero routing.
func NewPacket(payload Payload, last bool) Packet {
	return Packet{
		Data: payload,
		Keep: fullMask,
		Strb: fullMask,
		Last: last,
	}
}

// Payload returns the data word.
func (p Packet) Payload() Payload {
	return p.Data
}

func (p Packet) String() string {
	return fmt.Sprintf("packet{data=%x last=%t}", p.Data[:], p.Last)
}
