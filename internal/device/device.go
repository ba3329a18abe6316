// Package device selects the compute device for a training run and provides
// the bounded fan-out used for per-sentence work.
package device

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// ErrAcceleratorUnavailable is returned when an accelerator is required but
// none can be opened.
var ErrAcceleratorUnavailable = errors.New("accelerator unavailable")

// Kind names a device class.
type Kind string

const (
	Auto Kind = "auto"
	CPU  Kind = "cpu"
	CUDA Kind = "cuda"
)

// Device is the compute context chosen once at process start.
type Device struct {
	Kind     Kind
	Name     string
	Workers  int
	Features []string

	accel *accelerator
}

// Select resolves want ("auto", "cpu" or "cuda") to a device. workers <= 0
// means one worker per logical core.
func Select(want string, workers int) (*Device, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(want)))
	if kind == "" {
		kind = Auto
	}
	if workers <= 0 {
		workers = cpuid.CPU.LogicalCores
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	switch kind {
	case CPU:
		return cpuDevice(workers), nil
	case CUDA, Auto:
		accel, err := openAccelerator()
		if err != nil {
			if kind == CUDA {
				return nil, fmt.Errorf("%w: %v", ErrAcceleratorUnavailable, err)
			}
			return cpuDevice(workers), nil
		}
		d := cpuDevice(workers)
		d.Kind = CUDA
		d.Name = accel.name
		d.accel = accel
		return d, nil
	default:
		return nil, fmt.Errorf("unknown device %q", want)
	}
}

func cpuDevice(workers int) *Device {
	name := cpuid.CPU.BrandName
	if name == "" {
		name = runtime.GOARCH
	}
	var features []string
	for _, f := range []cpuid.FeatureID{cpuid.AVX, cpuid.AVX2, cpuid.FMA3, cpuid.AVX512F, cpuid.ASIMD} {
		if cpuid.CPU.Supports(f) {
			features = append(features, f.String())
		}
	}
	return &Device{Kind: CPU, Name: name, Workers: workers, Features: features}
}

// String describes the device for logs.
func (d *Device) String() string {
	return fmt.Sprintf("%s (%s, %d workers)", d.Kind, d.Name, d.Workers)
}

// Compute names where tensor math runs. Every kernel is a gonum routine on
// the host; an accelerator only holds a context for the run.
func (d *Device) Compute() string { return "host" }

// ForEach runs body for every i in [0, n) on at most d.Workers goroutines
// and returns when all calls are done.
func (d *Device) ForEach(n int, body func(i int)) {
	ForEach(n, d.Workers, body)
}

// ForEach runs body for every i in [0, n) with at most limit concurrent
// goroutines.
func ForEach(n, limit int, body func(i int)) {
	if n <= 0 {
		return
	}
	if limit <= 1 || n == 1 {
		for i := range n {
			body(i)
		}
		return
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			body(i)
		}()
	}
	wg.Wait()
}
