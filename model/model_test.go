package model

import (
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyhackingspace/nerd/internal/features"
	"github.com/happyhackingspace/nerd/internal/postag"
	"github.com/happyhackingspace/nerd/internal/tensor"
)

func tinyData(t *testing.T) (*features.Encoder, *features.Dataset) {
	t.Helper()
	tagger := postag.NewRuleTagger()
	var samples []features.Sample
	for _, s := range [][2][]string{
		{{"John", "lives", "in", "Paris"}, {"PERSON", "O", "O", "LOCATION"}},
		{{"Mary", "left"}, {"PERSON", "O"}},
		{{"Berlin", "is", "big"}, {"LOCATION", "O", "O"}},
	} {
		samples = append(samples, features.Sample{Tokens: s[0], Tags: s[1], POS: tagger.Tag(s[0])})
	}
	enc, err := features.Fit(samples, features.Options{MaxLen: 8, MaxWordLen: 6})
	require.NoError(t, err)
	d, err := enc.Encode(samples)
	require.NoError(t, err)
	return enc, d
}

func tinyConfig(enc *features.Encoder, cell string) Config {
	return Config{
		NumWords:      enc.Words.Size(),
		NumChars:      enc.Chars.Size(),
		NumPOS:        enc.POS.Size(),
		NumTags:       enc.NumTags(),
		WordDim:       4,
		CharDim:       3,
		CNNOut:        3,
		MaxWordLen:    enc.MaxWordLen,
		Cell:          cell,
		Hidden:        3,
		Layers:        2,
		Bidirectional: true,
		LinearHidden:  5,
	}
}

func TestNewConfigErrors(t *testing.T) {
	enc, _ := tinyData(t)
	rng := rand.New(rand.NewPCG(1, 1))

	cfg := tinyConfig(enc, "LSTM")
	cfg.Pretrained = tensor.New(cfg.NumWords, cfg.WordDim+1)
	_, err := New(cfg, rng)
	require.ErrorIs(t, err, ErrEmbeddingDim)

	cfg = tinyConfig(enc, "transformer")
	_, err = New(cfg, rng)
	require.ErrorIs(t, err, ErrCellType)

	cfg = tinyConfig(enc, "GRU")
	cfg.MaxWordLen = 4
	_, err = New(cfg, rng)
	require.ErrorIs(t, err, ErrWordLen)

	cfg = tinyConfig(enc, "GRU")
	cfg.NumTags = 0
	_, err = New(cfg, rng)
	require.Error(t, err)
}

func TestPretrainedFrozen(t *testing.T) {
	enc, d := tinyData(t)
	cfg := tinyConfig(enc, "LSTM")
	table := tensor.New(cfg.NumWords, cfg.WordDim)
	for i := range table.Data {
		table.Data[i] = float64(i)
	}
	cfg.Pretrained = table
	cfg.FreezeEmbeddings = true
	m, err := New(cfg, rand.New(rand.NewPCG(2, 2)))
	require.NoError(t, err)
	assert.Equal(t, table.Data, m.word.Weight.Value.Data)

	_, err = m.Loss(InputOf(d), d.Tags, true)
	require.NoError(t, err)
	assert.Equal(t, make([]float64, len(table.Data)), m.word.Weight.Grad.Data)
}

func TestForwardAndDecodeShapes(t *testing.T) {
	for _, cell := range []string{"LSTM", "GRU"} {
		t.Run(cell, func(t *testing.T) {
			enc, d := tinyData(t)
			cfg := tinyConfig(enc, cell)
			cfg.Dropout = 0.3
			m, err := New(cfg, rand.New(rand.NewPCG(3, 3)))
			require.NoError(t, err)

			em, err := m.Forward(InputOf(d), true)
			require.NoError(t, err)
			assert.Equal(t, []int{3, 4, enc.NumTags() + 1}, em.Shape)

			paths, err := m.Decode(InputOf(d))
			require.NoError(t, err)
			require.Len(t, paths, 3)
			for i, p := range paths {
				assert.Len(t, p, d.Width())
				for j, y := range p {
					assert.True(t, y >= 0 && y <= enc.NumTags())
					if j >= d.Lengths[i] {
						assert.Zero(t, y)
					}
				}
			}

			bad := InputOf(d)
			bad.POS = tensor.New(3, 4, 1)
			_, err = m.Forward(bad, false)
			require.Error(t, err)
		})
	}
}

func TestDropoutSource(t *testing.T) {
	enc, d := tinyData(t)
	cfg := tinyConfig(enc, "GRU")
	cfg.Dropout = 0.5
	build := func(seed uint64) *Model {
		m, err := New(cfg, rand.New(rand.NewPCG(7, 7)))
		require.NoError(t, err)
		m.SetDropoutSource(rand.New(rand.NewPCG(seed, seed)))
		return m
	}
	forward := func(m *Model) []float64 {
		em, err := m.Forward(InputOf(d), true)
		require.NoError(t, err)
		return em.Data
	}

	a, b, c := build(9), build(9), build(10)
	assert.Equal(t, a.Parameters()[0].Value.Data, c.Parameters()[0].Value.Data)
	first := forward(a)
	assert.Equal(t, first, forward(b))
	assert.NotEqual(t, first, forward(c))
}

func TestLossGradients(t *testing.T) {
	enc, d := tinyData(t)
	cfg := tinyConfig(enc, "GRU")
	cfg.AuxWeight = 0.5
	cfg.ClassWeights = []float64{0, 1, 2, 1}
	require.Len(t, cfg.ClassWeights, cfg.Labels())
	m, err := New(cfg, rand.New(rand.NewPCG(4, 4)))
	require.NoError(t, err)
	in := InputOf(d)

	for _, p := range m.Parameters() {
		p.ZeroGrad()
	}
	r, err := m.Loss(in, d.Tags, true)
	require.NoError(t, err)
	assert.Greater(t, r.Loss, 0.0)
	assert.Equal(t, 9, r.Tokens)

	value := func() float64 {
		r, err := m.Loss(in, d.Tags, false)
		require.NoError(t, err)
		return r.Loss
	}
	const h = 1e-6
	for _, p := range m.Parameters() {
		for i := 0; i < len(p.Value.Data); i += 1 + len(p.Value.Data)/5 {
			orig := p.Value.Data[i]
			p.Value.Data[i] = orig + h
			up := value()
			p.Value.Data[i] = orig - h
			down := value()
			p.Value.Data[i] = orig
			assert.InDelta(t, (up-down)/(2*h), p.Grad.Data[i], 1e-4, "%s[%d]", p.Name, i)
		}
	}
}

func TestCrossEntropy(t *testing.T) {
	em, _ := tensor.FromData([]float64{2, 0, 0, 0, 0, 3}, 1, 2, 3)
	tags := &tensor.Index{Shape: []int{1, 2}, Data: []int{0, 2}}
	mask := &tensor.Index{Shape: []int{1, 2}, Data: []int{1, 0}}

	loss, grad := CrossEntropy(em, tags, mask, nil)
	assert.Greater(t, loss, 0.0)
	assert.Equal(t, []float64{0, 0, 0}, grad.Data[3:])
	sum := grad.Data[0] + grad.Data[1] + grad.Data[2]
	assert.InDelta(t, 0, sum, 1e-12)

	weighted, _ := CrossEntropy(em, tags, mask, []float64{2, 1, 1})
	assert.InDelta(t, 2*loss, weighted, 1e-12)

	none, _ := CrossEntropy(em, tags, tensor.NewIndex(1, 2), nil)
	assert.Zero(t, none)
}

func TestSaveLoad(t *testing.T) {
	enc, d := tinyData(t)
	cfg := tinyConfig(enc, "LSTM")
	m, err := New(cfg, rand.New(rand.NewPCG(5, 5)))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), File)
	require.NoError(t, m.Save(path))
	loaded, err := Load(path, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.CRF.Workers)

	a, err := m.Forward(InputOf(d), false)
	require.NoError(t, err)
	b, err := loaded.Forward(InputOf(d), false)
	require.NoError(t, err)
	assert.InDeltaSlice(t, a.Data, b.Data, 1e-12)

	pa, err := m.Decode(InputOf(d))
	require.NoError(t, err)
	pb, err := loaded.Decode(InputOf(d))
	require.NoError(t, err)
	assert.Equal(t, pa, pb)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"), 1)
	require.Error(t, err)
}
