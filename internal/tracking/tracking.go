// Package tracking hands run parameters, per-epoch scalars and artifacts to
// experiment-tracking sinks.
package tracking

import (
	"errors"
	"maps"
	"slices"
)

// Tracker receives everything a training run reports.
type Tracker interface {
	// LogParams records the run configuration once, before training.
	LogParams(params map[string]any) error
	// LogMetrics records named scalars for one epoch.
	LogMetrics(epoch int, metrics map[string]float64) error
	// LogArtifact stores a named blob, e.g. the history or the report.
	LogArtifact(name string, data []byte) error
	// Close flushes the sink.
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) LogParams(map[string]any) error           { return nil }
func (Nop) LogMetrics(int, map[string]float64) error { return nil }
func (Nop) LogArtifact(string, []byte) error         { return nil }
func (Nop) Close() error                             { return nil }

// Multi fans every call out to all trackers and joins their errors.
type Multi []Tracker

func (m Multi) LogParams(params map[string]any) error {
	var errs []error
	for _, t := range m {
		errs = append(errs, t.LogParams(params))
	}
	return errors.Join(errs...)
}

func (m Multi) LogMetrics(epoch int, metrics map[string]float64) error {
	var errs []error
	for _, t := range m {
		errs = append(errs, t.LogMetrics(epoch, metrics))
	}
	return errors.Join(errs...)
}

func (m Multi) LogArtifact(name string, data []byte) error {
	var errs []error
	for _, t := range m {
		errs = append(errs, t.LogArtifact(name, data))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
