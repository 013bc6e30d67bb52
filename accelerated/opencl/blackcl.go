//go:build opencl

package opencl

import (
	_ "embed"
	"encoding/binary"
	"fmt"

	"github.com/haormj/mmult/accelerated"
	"gitlab.com/microo8/blackcl"
)

//go:embed mmult.cl
var mmultSrc string

const localGroupSize = 64

type OpenCL struct {
	device *blackcl.Device
	kernel *blackcl.Kernel

	bufferCache map[string]map[int]*blackcl.Bytes

	weights   accelerated.Weights
	offsetDev *blackcl.Bytes
	weightDev *blackcl.Bytes
}

func New() *OpenCL {
	return &OpenCL{
		bufferCache: make(map[string]map[int]*blackcl.Bytes),
	}
}

// Release implements accelerated.Engine.
func (o *OpenCL) Release() error {
	for _, bufferMap := range o.bufferCache {
		for _, buffer := range bufferMap {
			buffer.Release()
		}
	}
	o.bufferCache = make(map[string]map[int]*blackcl.Bytes)
	o.weights = accelerated.Weights{}

	if o.device == nil {
		return nil
	}

	if err := o.device.Release(); err != nil {
		return fmt.Errorf("accelerated/opencl: failed to release device: %w", err)
	}
	o.device = nil

	return nil
}

// AllocBuffer returns a device buffer of size bytes, reusing one allocated
// earlier under the same tag and size.
func (o *OpenCL) AllocBuffer(bufferTag string, size int) (*blackcl.Bytes, error) {
	if _, ok := o.bufferCache[bufferTag]; !ok {
		o.bufferCache[bufferTag] = make(map[int]*blackcl.Bytes)
	}

	if buffer, ok := o.bufferCache[bufferTag][size]; ok {
		return buffer, nil
	}

	buffer, err := o.device.NewBytes(size)
	if err != nil {
		return nil, fmt.Errorf("accelerated/opencl: failed to create %q buffer of %d bytes: %w", bufferTag, size, err)
	}

	o.bufferCache[bufferTag][size] = buffer

	return buffer, nil
}

// LoadWeights implements accelerated.Engine. Offsets and weights are copied
// to the device once and reused by every tile.
func (o *OpenCL) LoadWeights(offset []int32, w []int8, feat, classes int) error {
	weights, err := accelerated.NewWeights(offset, w, feat, classes)
	if err != nil {
		return err
	}

	if o.device == nil {
		return fmt.Errorf("accelerated/opencl: device not set up")
	}

	offsetBytes := make([]byte, 4*len(offset))
	for i, v := range offset {
		binary.LittleEndian.PutUint32(offsetBytes[4*i:], uint32(v))
	}

	weightBytes := make([]byte, len(w))
	for i, v := range w {
		weightBytes[i] = byte(v)
	}

	if o.offsetDev, err = o.AllocBuffer("offset", len(offsetBytes)); err != nil {
		return err
	}

	if o.weightDev, err = o.AllocBuffer("w", len(weightBytes)); err != nil {
		return err
	}

	offsetCopyComplete := o.offsetDev.Copy(offsetBytes)
	weightCopyComplete := o.weightDev.Copy(weightBytes)

	if err := <-offsetCopyComplete; err != nil {
		return fmt.Errorf("accelerated/opencl: failed to copy offsets to device: %w", err)
	}

	if err := <-weightCopyComplete; err != nil {
		return fmt.Errorf("accelerated/opencl: failed to copy weights to device: %w", err)
	}

	o.weights = weights

	return nil
}

// DotTile implements accelerated.Engine.
func (o *OpenCL) DotTile(out []int32, in []uint8, rows int) error {
	if err := o.weights.CheckTile(out, in, rows); err != nil {
		return err
	}

	inDev, err := o.AllocBuffer("in", len(in))
	if err != nil {
		return err
	}

	outDev, err := o.AllocBuffer("out", 4*len(out))
	if err != nil {
		return err
	}

	if err := <-inDev.Copy(in); err != nil {
		return fmt.Errorf("accelerated/opencl: failed to copy tile to device: %w", err)
	}

	n := len(out)
	globalSize := n
	localSize := 1

	if globalSize%localGroupSize == 0 {
		localSize = localGroupSize
	}

	run := o.kernel.Global(globalSize).Local(localSize).Run(
		outDev, inDev, o.weightDev, o.offsetDev,
		uint32(o.weights.Feat), uint32(o.weights.Classes), uint32(n))
	if err := <-run; err != nil {
		return fmt.Errorf("accelerated/opencl: failed to run mmult: %w", err)
	}

	outHost, err := outDev.Data()
	if err != nil {
		return fmt.Errorf("accelerated/opencl: failed to get output data: %w", err)
	}

	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(outHost[4*i:]))
	}

	return nil
}

// SetupContext implements accelerated.Engine.
func (o *OpenCL) SetupContext() error {
	var err error

	o.device, err = blackcl.GetDefaultDevice()
	if err != nil {
		return fmt.Errorf("accelerated/opencl: failed to get default device: %w", err)
	}

	o.device.AddProgram(mmultSrc)
	o.kernel = o.device.Kernel("mmult")

	return nil
}

var _ accelerated.Engine = &OpenCL{}
