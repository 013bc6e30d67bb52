//go:build opencl

// Package goopencl enumerates the OpenCL devices the opencl engine can run on.
package goopencl

import (
	"fmt"

	"github.com/passkeyra/go-opencl/opencl"
)

// Platform summarises the devices of one OpenCL platform.
type Platform struct {
	Index     int
	Devices   int
	Available int
}

// Discover lists every platform with its count of devices of deviceType.
func Discover(deviceType opencl.DeviceType) ([]Platform, error) {
	platforms, err := opencl.GetPlatforms()
	if err != nil {
		return nil, fmt.Errorf("accelerated/goopencl: failed to get platforms: %w", err)
	}

	var out []Platform

	for i, platform := range platforms {
		devices, err := platform.GetDevices(deviceType)
		if err != nil {
			return nil, fmt.Errorf("accelerated/goopencl: platform %d: failed to get devices: %w", i, err)
		}

		p := Platform{Index: i, Devices: len(devices)}

		for _, device := range devices {
			var available bool
			err = device.GetInfo(opencl.DeviceAvailable, &available)
			if err == nil && available {
				p.Available++
			}
		}

		out = append(out, p)
	}

	return out, nil
}

// DiscoverGPUs is Discover for GPU devices.
func DiscoverGPUs() ([]Platform, error) {
	return Discover(opencl.DeviceTypeGPU)
}
