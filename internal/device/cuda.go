//go:build cuda

package device

import (
	"fmt"

	"gorgonia.org/cu"
)

type accelerator struct {
	name   string
	memory int64
	ctx    cu.CUContext
}

// openAccelerator opens a context on the first CUDA device. The context is
// kept for the lifetime of the process.
func openAccelerator() (*accelerator, error) {
	n, err := cu.NumDevices()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("no CUDA devices")
	}
	dev, err := cu.GetDevice(0)
	if err != nil {
		return nil, err
	}
	name, err := dev.Name()
	if err != nil {
		return nil, err
	}
	mem, err := dev.TotalMem()
	if err != nil {
		return nil, err
	}
	ctx, err := dev.MakeContext(cu.SchedAuto)
	if err != nil {
		return nil, err
	}
	return &accelerator{name: name, memory: mem, ctx: ctx}, nil
}
