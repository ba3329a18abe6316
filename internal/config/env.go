package config

import (
	"log/slog"
	"math/rand/v2"

	"github.com/happyhackingspace/nerd/internal/device"
)

// Env is the read-only run context created once at start and passed to
// every component.
type Env struct {
	Config Config
	Device *device.Device
	Logger *slog.Logger
}

// NewEnv validates cfg and selects the compute device.
func NewEnv(cfg Config, logger *slog.Logger) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dev, err := device.Select(cfg.Device, cfg.Workers)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Device selected", "device", dev.String(), "compute", dev.Compute(), "features", dev.Features)
	if dev.Kind == device.CUDA {
		logger.Warn("CUDA context held but tensor math runs on the host; expect CPU training speed", "gpu", dev.Name)
	}
	return &Env{Config: cfg, Device: dev, Logger: logger}, nil
}

// Rand returns a generator seeded from the configured seed and stream, so
// independent consumers draw independent but reproducible sequences.
func (e *Env) Rand(stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(e.Config.Seed, stream))
}

// Random number streams used by the pipeline.
const (
	StreamSplit uint64 = iota + 1
	StreamInit
	StreamDropout
)
