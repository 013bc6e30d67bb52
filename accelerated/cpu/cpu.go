package cpu

import "github.com/haormj/mmult/accelerated"

// CPU is the sequential datapath. The reduction over features walks the
// partitioned banks in order, accumulating one partial sum per bank.
type CPU struct {
	weights accelerated.Weights
}

// LoadWeights implements accelerated.Engine.
func (c *CPU) LoadWeights(offset []int32, w []int8, feat, classes int) error {
	weights, err := accelerated.NewWeights(offset, w, feat, classes)
	if err != nil {
		return err
	}

	c.weights = weights

	return nil
}

// DotTile implements accelerated.Engine.
func (c *CPU) DotTile(out []int32, in []uint8, rows int) error {
	if err := c.weights.CheckTile(out, in, rows); err != nil {
		return err
	}

	feat := c.weights.Feat
	classes := c.weights.Classes

	for i := 0; i < rows; i++ {
		x := in[i*feat : (i+1)*feat]

		for j := 0; j < classes; j++ {
			out[i*classes+j] = c.weights.Offset[j] + dot(x, c.weights.Row(j))
		}
	}

	return nil
}

func dot(x []uint8, w []int8) int32 {
	var acc int32

	for bank := 0; bank < len(x); bank += accelerated.PartitionFactor {
		end := min(bank+accelerated.PartitionFactor, len(x))

		var partial int32
		for k := bank; k < end; k++ {
			partial += int32(x[k]) * int32(w[k])
		}

		acc += partial
	}

	return acc
}

// Release implements accelerated.Engine.
func (c *CPU) Release() error {
	c.weights = accelerated.Weights{}

	return nil
}

// SetupContext implements accelerated.Engine.
func (*CPU) SetupContext() error {
	return nil
}

var _ accelerated.Engine = &CPU{}
