package tracking

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTracker(t *testing.T) {
	root := t.TempDir()
	tr, err := NewFileTracker(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, tr.ID), tr.Dir)

	require.NoError(t, tr.LogParams(map[string]any{"cell": "LSTM", "epochs": 3}))
	require.NoError(t, tr.LogMetrics(1, map[string]float64{"train_loss": 2.5}))
	require.NoError(t, tr.LogMetrics(2, map[string]float64{"train_loss": 1.5}))
	require.NoError(t, tr.LogArtifact("history.json", []byte(`{}`)))
	require.Error(t, tr.LogArtifact("../escape.json", nil))
	require.NoError(t, tr.Close())

	var params map[string]any
	data, err := os.ReadFile(filepath.Join(tr.Dir, "params.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &params))
	assert.Equal(t, "LSTM", params["cell"])

	f, err := os.Open(filepath.Join(tr.Dir, "metrics.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	var lines []metricsLine
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var l metricsLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		lines = append(lines, l)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, 2, lines[1].Epoch)
	assert.Equal(t, 1.5, lines[1].Metrics["train_loss"])

	_, err = os.Stat(filepath.Join(tr.Dir, "artifacts", "history.json"))
	require.NoError(t, err)
}

func TestPromTracker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nerd.prom")
	tr := NewPromTracker(path)
	require.NoError(t, tr.LogParams(map[string]any{"learning_rate": 0.001, "cell": "LSTM", "bidirectional": true}))
	require.NoError(t, tr.LogMetrics(4, map[string]float64{"val_f1": 0.5, "train_loss": 1.25}))

	assert.Equal(t, 0.5, testutil.ToFloat64(tr.values.WithLabelValues("val", "f1")))
	assert.Equal(t, 1.25, testutil.ToFloat64(tr.values.WithLabelValues("train", "loss")))
	assert.Equal(t, 4.0, testutil.ToFloat64(tr.epoch))
	assert.Equal(t, 1.0, testutil.ToFloat64(tr.params.WithLabelValues("bidirectional")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `nerd_epoch_metric{name="f1",split="val"} 0.5`), text)
	assert.Contains(t, text, "nerd_epochs_completed 4")
	assert.NotContains(t, text, `name="cell"`)

	require.NoError(t, NewPromTracker("").LogMetrics(1, map[string]float64{"loss": 1}))
}

type failing struct{ Nop }

func (failing) LogMetrics(int, map[string]float64) error { return errors.New("sink down") }

func TestMulti(t *testing.T) {
	root := t.TempDir()
	ft, err := NewFileTracker(root)
	require.NoError(t, err)
	m := Multi{Nop{}, ft, failing{}}

	require.NoError(t, m.LogParams(map[string]any{"a": 1}))
	err = m.LogMetrics(1, map[string]float64{"x": 1})
	require.ErrorContains(t, err, "sink down")
	require.NoError(t, m.LogArtifact("report.txt", []byte("ok")))
	require.NoError(t, m.Close())

	data, err := os.ReadFile(filepath.Join(ft.Dir, "metrics.jsonl"))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
