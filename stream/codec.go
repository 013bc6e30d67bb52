package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Elements per packet for each element type.
const (
	Int32sPerPacket = PayloadBytes / 4
	Int8sPerPacket  = PayloadBytes
	Uint8sPerPacket = PayloadBytes
)

var ErrElementCount = errors.New("stream: wrong element count for packet")

func checkCount(got, want int) error {
	if got != want {
		return fmt.Errorf("%w: got %d, want %d", ErrElementCount, got, want)
	}

	return nil
}

// PackInt32s encodes exactly Int32sPerPacket values, little-endian.
func PackInt32s(vals []int32) (Payload, error) {
	var p Payload

	if err := checkCount(len(vals), Int32sPerPacket); err != nil {
		return p, err
	}

	for i, v := range vals {
		binary.LittleEndian.PutUint32(p[i*4:], uint32(v))
	}

	return p, nil
}

// UnpackInt32s decodes Int32sPerPacket values into dst.
func UnpackInt32s(p Payload, dst []int32) error {
	if err := checkCount(len(dst), Int32sPerPacket); err != nil {
		return err
	}

	for i := range dst {
		dst[i] = int32(binary.LittleEndian.Uint32(p[i*4:]))
	}

	return nil
}

// PackInt8s encodes exactly Int8sPerPacket signed bytes.
func PackInt8s(vals []int8) (Payload, error) {
	var p Payload

	if err := checkCount(len(vals), Int8sPerPacket); err != nil {
		return p, err
	}

	for i, v := range vals {
		p[i] = byte(v)
	}

	return p, nil
}

// UnpackInt8s decodes Int8sPerPacket signed bytes into dst.
func UnpackInt8s(p Payload, dst []int8) error {
	if err := checkCount(len(dst), Int8sPerPacket); err != nil {
		return err
	}

	for i := range dst {
		dst[i] = int8(p[i])
	}

	return nil
}

// PackUint8s encodes exactly Uint8sPerPacket bytes.
func PackUint8s(vals []uint8) (Payload, error) {
	var p Payload

	if err := checkCount(len(vals), Uint8sPerPacket); err != nil {
		return p, err
	}

	copy(p[:], vals)

	return p, nil
}

// UnpackUint8s decodes Uint8sPerPacket bytes into dst.
func UnpackUint8s(p Payload, dst []uint8) error {
	if err := checkCount(len(dst), Uint8sPerPacket); err != nil {
		return err
	}

	copy(dst, p[:])

	return nil
}
