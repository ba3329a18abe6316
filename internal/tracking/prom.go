package tracking

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PromTracker exposes per-epoch scalars as gauges and rewrites a
// node-exporter textfile after every epoch. Metric names like
// "val_f1" become nerd_epoch_metric{split="val",name="f1"}.
type PromTracker struct {
	Path string

	registry *prometheus.Registry
	values   *prometheus.GaugeVec
	epoch    prometheus.Gauge
	params   *prometheus.GaugeVec
}

// NewPromTracker registers the gauges on a private registry. An empty path
// keeps the metrics in memory only.
func NewPromTracker(path string) *PromTracker {
	t := &PromTracker{
		Path:     path,
		registry: prometheus.NewRegistry(),
		values: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nerd",
			Name:      "epoch_metric",
			Help:      "Last reported per-epoch training scalar.",
		}, []string{"split", "name"}),
		epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nerd",
			Name:      "epochs_completed",
			Help:      "Number of completed epochs.",
		}),
		params: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nerd",
			Name:      "run_param",
			Help:      "Numeric run parameters.",
		}, []string{"name"}),
	}
	t.registry.MustRegister(t.values, t.epoch, t.params)
	return t
}

// Registry returns the registry holding the gauges.
func (t *PromTracker) Registry() *prometheus.Registry { return t.registry }

// LogParams sets one run_param gauge per numeric parameter; other values are
// skipped.
func (t *PromTracker) LogParams(params map[string]any) error {
	for _, k := range sortedKeys(params) {
		if v, ok := numeric(params[k]); ok {
			t.params.WithLabelValues(k).Set(v)
		}
	}
	return t.flush()
}

// LogMetrics sets the epoch_metric gauges. A "train_" or "val_" prefix
// becomes the split label.
func (t *PromTracker) LogMetrics(epoch int, metrics map[string]float64) error {
	for name, v := range metrics {
		split, metric := "all", name
		if i := strings.IndexByte(name, '_'); i > 0 {
			split, metric = name[:i], name[i+1:]
		}
		t.values.WithLabelValues(split, metric).Set(v)
	}
	t.epoch.Set(float64(epoch))
	return t.flush()
}

// LogArtifact is a no-op: gauges carry scalars only.
func (t *PromTracker) LogArtifact(string, []byte) error { return nil }

// Close rewrites the textfile one last time.
func (t *PromTracker) Close() error { return t.flush() }

func (t *PromTracker) flush() error {
	if t.Path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(t.Path, t.registry)
}

func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}
