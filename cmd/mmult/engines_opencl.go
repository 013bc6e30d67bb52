//go:build opencl

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haormj/mmult/accelerated"
	"github.com/haormj/mmult/accelerated/goopencl"
	"github.com/haormj/mmult/accelerated/opencl"
)

func init() {
	engines["opencl"] = func(int) accelerated.Engine {
		return opencl.New()
	}

	extraCommands = append(extraCommands, newDevicesCmd)
}

func newDevicesCmd(*rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List OpenCL platforms and their GPU devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			platforms, err := goopencl.DiscoverGPUs()
			if err != nil {
				return err
			}

			if len(platforms) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no OpenCL platforms")
				return nil
			}

			for _, p := range platforms {
				fmt.Fprintf(cmd.OutOrStdout(), "platform %d: %d GPU devices, %d available\n",
					p.Index, p.Devices, p.Available)
			}

			return nil
		},
	}
}
