package train

import (
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyhackingspace/nerd/internal/config"
	"github.com/happyhackingspace/nerd/internal/device"
	"github.com/happyhackingspace/nerd/internal/features"
	"github.com/happyhackingspace/nerd/internal/metrics"
	"github.com/happyhackingspace/nerd/internal/nn"
	"github.com/happyhackingspace/nerd/internal/postag"
	"github.com/happyhackingspace/nerd/internal/tracking"
	"github.com/happyhackingspace/nerd/model"
)

func testEnv(t *testing.T, batchSize int) *config.Env {
	t.Helper()
	dev, err := device.Select("cpu", 2)
	require.NoError(t, err)
	cfg := config.Default()
	cfg.BatchSize = batchSize
	cfg.Seed = 7
	return &config.Env{Config: cfg, Device: dev, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func johnSamples(n int) []features.Sample {
	tokens := []string{"John", "lives", "in", "Paris"}
	tags := []string{"PERSON", "O", "O", "LOCATION"}
	pos := postag.NewRuleTagger().Tag(tokens)
	out := make([]features.Sample, n)
	for i := range out {
		out[i] = features.Sample{Tokens: tokens, Tags: tags, POS: pos}
	}
	return out
}

type fixture struct {
	enc        *features.Encoder
	train, val *features.Dataset
	model      *model.Model
	opt        *nn.Adam
}

func newFixture(t *testing.T, trainN, valN int) fixture {
	t.Helper()
	enc, err := features.Fit(johnSamples(trainN), features.Options{MaxLen: 10, MaxWordLen: 6})
	require.NoError(t, err)
	tr, err := enc.Encode(johnSamples(trainN))
	require.NoError(t, err)
	va, err := enc.Encode(johnSamples(valN))
	require.NoError(t, err)
	m, err := model.New(model.Config{
		NumWords:      enc.Words.Size(),
		NumChars:      enc.Chars.Size(),
		NumPOS:        enc.POS.Size(),
		NumTags:       enc.NumTags(),
		WordDim:       8,
		CharDim:       4,
		CNNOut:        4,
		MaxWordLen:    6,
		Cell:          "LSTM",
		Hidden:        8,
		Layers:        1,
		Bidirectional: true,
		LinearHidden:  8,
		Workers:       2,
	}, rand.New(rand.NewPCG(11, 12)))
	require.NoError(t, err)
	return fixture{enc: enc, train: tr, val: va, model: m, opt: nn.NewAdam(m.Parameters(), 0.01, 0)}
}

func TestLossFallsOnLearnableData(t *testing.T) {
	f := newFixture(t, 50, 5)
	tr := tracking.NewPromTracker("")
	c, err := NewController(testEnv(t, 10), f.model, f.opt, f.train, f.val, Options{
		OutsideID: f.enc.OutsideID(),
		Label:     f.enc.Tags.Symbol,
		Tracker:   tr,
	})
	require.NoError(t, err)
	assert.Equal(t, Idle, c.State())

	h, err := c.Run(20)
	require.NoError(t, err)
	assert.Equal(t, Done, c.State())

	for _, s := range []Series{h.Train, h.Validation} {
		assert.Equal(t, 20, s.Len())
		assert.Len(t, s.Accuracy, 20)
		assert.Len(t, s.Precision, 20)
		assert.Len(t, s.Recall, 20)
		assert.Len(t, s.F1, 20)
		for _, l := range s.Loss {
			assert.GreaterOrEqual(t, l, 0.0)
		}
	}
	assert.Equal(t, 20, h.Epochs())
	assert.Less(t, h.Train.Loss[19], h.Train.Loss[0])
	assert.Less(t, h.Validation.Loss[19], h.Validation.Loss[0])
	assert.Greater(t, h.Validation.Accuracy[19], 0.9)

	report := c.Report()
	assert.Contains(t, report.Labels(), "PERSON")
	assert.Equal(t, 20, report.Total)

	_, err = c.Run(1)
	require.ErrorIs(t, err, ErrNotIdle)
}

func TestValidationDoesNotUpdate(t *testing.T) {
	f := newFixture(t, 4, 3)
	c, err := NewController(testEnv(t, 2), f.model, f.opt, f.train, f.val, Options{OutsideID: f.enc.OutsideID()})
	require.NoError(t, err)

	before := append([]float64(nil), f.model.CRF.Transitions.Value.Data...)
	loss, acc, err := c.epoch(1, f.val, false)
	require.NoError(t, err)
	assert.Greater(t, loss, 0.0)
	assert.Equal(t, 12, acc.Total())
	assert.Equal(t, before, f.model.CRF.Transitions.Value.Data)

	_, _, err = c.epoch(1, f.train, true)
	require.NoError(t, err)
	assert.NotEqual(t, before, f.model.CRF.Transitions.Value.Data)
}

// snapshotOptimizer records the parameter values each Step starts from.
type snapshotOptimizer struct {
	*nn.Adam
	params []*nn.Param
	before [][]float64
}

func (o *snapshotOptimizer) Step() {
	o.before = o.before[:0]
	for _, p := range o.params {
		o.before = append(o.before, append([]float64(nil), p.Value.Data...))
	}
	o.Adam.Step()
}

func TestTrainMetricsUsePreStepParameters(t *testing.T) {
	f := newFixture(t, 8, 2)
	params := f.model.Parameters()
	opt := &snapshotOptimizer{Adam: nn.NewAdam(params, 2.0, 0), params: params}
	c, err := NewController(testEnv(t, 8), f.model, opt, f.train, f.val, Options{OutsideID: f.enc.OutsideID()})
	require.NoError(t, err)

	_, got, err := c.epoch(1, f.train, true)
	require.NoError(t, err)
	require.Len(t, opt.before, len(params))

	for i, p := range params {
		copy(p.Value.Data, opt.before[i])
	}
	paths, err := f.model.Decode(model.InputOf(f.train))
	require.NoError(t, err)
	want := metrics.NewAccumulator(f.enc.OutsideID())
	for r, path := range paths {
		require.NoError(t, want.Add(f.train.Tags.Row(r), path))
	}

	assert.Equal(t, want.Classes(), got.Classes())
	assert.Equal(t, want.Total(), got.Total())
	assert.Equal(t, want.Scores(), got.Scores())
	for _, truth := range want.Classes() {
		for _, pred := range want.Classes() {
			assert.Equal(t, want.Count(truth, pred), got.Count(truth, pred), "confusion[%d][%d]", truth, pred)
		}
	}
}

func TestControllerAlignsSplits(t *testing.T) {
	f := newFixture(t, 4, 2)
	short, err := f.enc.Encode([]features.Sample{{Tokens: []string{"Paris"}, Tags: []string{"LOCATION"}}})
	require.NoError(t, err)
	c, err := NewController(testEnv(t, 4), f.model, f.opt, f.train, short, Options{})
	require.NoError(t, err)
	assert.Equal(t, f.train.Width(), short.Width())

	h, err := c.Run(1)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Epochs())

	_, err = NewController(testEnv(t, 4), f.model, f.opt, f.train, nil, Options{})
	require.ErrorIs(t, err, features.ErrEmptyInput)
}

func TestHistorySave(t *testing.T) {
	var h History
	h.Train.Loss = []float64{1}
	data, err := h.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"loss": [`)
	require.NoError(t, h.Save(t.TempDir()+"/"+HistoryFile))
	assert.Equal(t, 0, h.Epochs())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "training", TrainingEpoch.String())
	assert.Equal(t, "State(9)", State(9).String())
}
