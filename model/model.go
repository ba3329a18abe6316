// Package model is the sequence tagger: word embeddings, a character CNN,
// POS one-hot rows and lexical flags are fused per token, run through a
// recurrent stack and two linear layers, and scored by a CRF.
package model

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/happyhackingspace/nerd/crf"
	"github.com/happyhackingspace/nerd/internal/features"
	"github.com/happyhackingspace/nerd/internal/nn"
	"github.com/happyhackingspace/nerd/internal/tensor"
	"github.com/happyhackingspace/nerd/internal/textutil"
)

// KernelWidth is the character convolution width.
const KernelWidth = 5

var (
	// ErrEmbeddingDim is returned when a pretrained table does not match the
	// configured word embedding.
	ErrEmbeddingDim = errors.New("pretrained embedding dimension mismatch")
	// ErrCellType is returned for a cell other than LSTM or GRU.
	ErrCellType = nn.ErrCellType
	// ErrWordLen is returned when words are narrower than the kernel.
	ErrWordLen = errors.New("max word length shorter than convolution kernel")
)

// Config fixes the shape of a Model.
type Config struct {
	NumWords int `json:"num_words"`
	NumChars int `json:"num_chars"`
	NumPOS   int `json:"num_pos"`
	// NumTags counts real tags; the output layer has NumTags+1 units with
	// unit 0 for padding.
	NumTags int `json:"num_tags"`

	WordDim       int     `json:"word_dim"`
	CharDim       int     `json:"char_dim"`
	CNNOut        int     `json:"cnn_out"`
	MaxWordLen    int     `json:"max_word_len"`
	Cell          string  `json:"cell"`
	Hidden        int     `json:"hidden"`
	Layers        int     `json:"layers"`
	Bidirectional bool    `json:"bidirectional"`
	LinearHidden  int     `json:"linear_hidden"`
	Dropout       float64 `json:"dropout"`

	FreezeEmbeddings bool `json:"freeze_embeddings"`
	// Pretrained initializes the word table when set: NumWords x WordDim.
	Pretrained *tensor.Dense `json:"-"`

	// AuxWeight scales an optional class-weighted token cross-entropy added
	// to the CRF loss. 0 disables it.
	AuxWeight    float64   `json:"aux_weight,omitempty"`
	ClassWeights []float64 `json:"class_weights,omitempty"`

	Workers int `json:"-"`
}

// Labels returns the size of the emission space, padding included.
func (c Config) Labels() int { return c.NumTags + 1 }

// Input is one batch of encoded features.
type Input struct {
	Words  *tensor.Index // B x T
	Chars  *tensor.Index // B x T x W
	POS    *tensor.Dense // B x T x P
	Enrich *tensor.Dense // B x T x 7
}

// InputOf returns the model input view of an encoded dataset.
func InputOf(d *features.Dataset) Input {
	return Input{Words: d.Words, Chars: d.Chars, POS: d.POS, Enrich: d.Enrich}
}

// Model holds every layer. Forward caches activations for the following
// Backward, so a Model serves one batch at a time.
type Model struct {
	Config Config
	CRF    *crf.CRF

	word     *nn.Embedding
	wordDrop *nn.Dropout
	char     *nn.Embedding
	charDrop *nn.Dropout
	conv     *nn.Conv1D
	pool     nn.MaxPool
	fuse     nn.ReLU
	rnn      *nn.Recurrent
	rnnDrop  *nn.Dropout
	linear1  *nn.Linear
	act      nn.ReLU
	linDrop  *nn.Dropout
	linear2  *nn.Linear

	batch, steps int
}

// New builds a model. Configuration problems are reported here, never
// during training.
func New(cfg Config, rng *rand.Rand) (*Model, error) {
	for name, v := range map[string]int{
		"num_words": cfg.NumWords, "num_chars": cfg.NumChars, "num_pos": cfg.NumPOS,
		"num_tags": cfg.NumTags, "word_dim": cfg.WordDim, "char_dim": cfg.CharDim,
		"cnn_out": cfg.CNNOut, "linear_hidden": cfg.LinearHidden,
	} {
		if v <= 0 {
			return nil, fmt.Errorf("model: %s must be positive, got %d", name, v)
		}
	}
	if cfg.MaxWordLen < KernelWidth {
		return nil, fmt.Errorf("%w: %d < %d", ErrWordLen, cfg.MaxWordLen, KernelWidth)
	}
	if p := cfg.Pretrained; p != nil {
		if len(p.Shape) != 2 || p.Shape[1] != cfg.WordDim {
			return nil, fmt.Errorf("%w: table shape %v, word_dim %d", ErrEmbeddingDim, p.Shape, cfg.WordDim)
		}
		if p.Shape[0] != cfg.NumWords {
			return nil, fmt.Errorf("model: pretrained table has %d rows for %d words", p.Shape[0], cfg.NumWords)
		}
	}
	if cfg.ClassWeights != nil && len(cfg.ClassWeights) != cfg.Labels() {
		return nil, fmt.Errorf("model: %d class weights for %d labels", len(cfg.ClassWeights), cfg.Labels())
	}

	m := &Model{
		Config:   cfg,
		word:     nn.NewEmbedding("word_embeddings", cfg.NumWords, cfg.WordDim, rng),
		wordDrop: nn.NewDropout(cfg.Dropout, rng),
		char:     nn.NewEmbedding("char_embeddings", cfg.NumChars, cfg.CharDim, rng),
		charDrop: nn.NewDropout(cfg.Dropout, rng),
		conv:     nn.NewConv1D("char_cnn", cfg.CharDim, cfg.CNNOut, KernelWidth, rng),
	}
	if cfg.Pretrained != nil {
		if err := m.word.LoadPretrained(cfg.Pretrained, cfg.FreezeEmbeddings); err != nil {
			return nil, err
		}
	}
	rnn, err := nn.NewRecurrent(cfg.Cell, m.fusedWidth(), cfg.Hidden, cfg.Layers, cfg.Bidirectional, cfg.Dropout, rng)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	m.rnn = rnn
	m.rnnDrop = nn.NewDropout(cfg.Dropout, rng)
	m.linear1 = nn.NewLinear("linear1", rnn.Out(), cfg.LinearHidden, rng)
	m.linDrop = nn.NewDropout(cfg.Dropout, rng)
	m.linear2 = nn.NewLinear("linear2", cfg.LinearHidden, cfg.Labels(), rng)
	m.CRF = crf.New(cfg.Labels(), rng)
	m.CRF.Workers = max(1, cfg.Workers)
	return m, nil
}

// SetDropoutSource makes every dropout layer draw from rng, leaving the
// generator used for initialization untouched.
func (m *Model) SetDropoutSource(rng *rand.Rand) {
	for _, d := range append([]*nn.Dropout{m.wordDrop, m.charDrop, m.rnnDrop, m.linDrop}, m.rnn.Dropouts()...) {
		d.Reseed(rng)
	}
}

func (m *Model) fusedWidth() int {
	return m.Config.WordDim + m.Config.NumPOS + m.Config.CNNOut + textutil.EnrichDim
}

// Parameters returns every tensor the optimizer updates, CRF included.
// Frozen embeddings are listed but flagged.
func (m *Model) Parameters() []*nn.Param {
	ps := append(m.word.Parameters(), m.char.Parameters()...)
	ps = append(ps, m.conv.Parameters()...)
	ps = append(ps, m.rnn.Parameters()...)
	ps = append(ps, m.linear1.Parameters()...)
	ps = append(ps, m.linear2.Parameters()...)
	return append(ps, m.CRF.Parameters()...)
}

func (m *Model) check(in Input) error {
	if in.Words == nil || in.Chars == nil || in.POS == nil || in.Enrich == nil {
		return errors.New("model: incomplete input")
	}
	b, t := in.Words.Dim(0), in.Words.Dim(1)
	switch {
	case len(in.Chars.Shape) != 3 || in.Chars.Dim(0) != b || in.Chars.Dim(1) != t:
		return fmt.Errorf("model: chars shape %v does not match words %v", in.Chars.Shape, in.Words.Shape)
	case len(in.POS.Shape) != 3 || in.POS.Dim(0) != b || in.POS.Dim(1) != t || in.POS.Dim(2) != m.Config.NumPOS:
		return fmt.Errorf("model: POS shape %v, want (%d, %d, %d)", in.POS.Shape, b, t, m.Config.NumPOS)
	case len(in.Enrich.Shape) != 3 || in.Enrich.Dim(0) != b || in.Enrich.Dim(1) != t || in.Enrich.Dim(2) != textutil.EnrichDim:
		return fmt.Errorf("model: enrichment shape %v, want (%d, %d, %d)", in.Enrich.Shape, b, t, textutil.EnrichDim)
	}
	return nil
}

// Forward returns the emission scores (B, T, NumTags+1). train enables
// dropout.
func (m *Model) Forward(in Input, train bool) (*tensor.Dense, error) {
	if err := m.check(in); err != nil {
		return nil, err
	}
	b, t, w := in.Words.Dim(0), in.Words.Dim(1), in.Chars.Dim(2)
	m.batch, m.steps = b, t

	words, err := m.word.Forward(in.Words)
	if err != nil {
		return nil, err
	}
	words = m.wordDrop.Forward(words, train)

	chars, err := m.char.Forward(in.Chars)
	if err != nil {
		return nil, err
	}
	chars = m.charDrop.Forward(chars, train)
	perWord, err := chars.Reshape(b*t, w, m.Config.CharDim)
	if err != nil {
		return nil, err
	}
	conv, err := m.conv.Forward(perWord)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	pooled, err := m.pool.Forward(conv).Reshape(b, t, m.Config.CNNOut)
	if err != nil {
		return nil, err
	}

	x := m.fuse.Forward(tensor.ConcatLast(words, in.POS, pooled, in.Enrich))
	h := m.rnnDrop.Forward(m.rnn.Forward(x, train), train)
	z := m.linDrop.Forward(m.act.Forward(m.linear1.Forward(h)), train)
	return m.linear2.Forward(z), nil
}

// Backward propagates the emission gradient of the last Forward into every
// parameter gradient.
func (m *Model) Backward(dEmissions *tensor.Dense) error {
	b, t := m.batch, m.steps
	dz := m.act.Backward(m.linDrop.Backward(m.linear2.Backward(dEmissions)))
	dh := m.rnnDrop.Backward(m.linear1.Backward(dz))
	dx := m.fuse.Backward(m.rnn.Backward(dh))

	parts := tensor.SplitLast(dx, m.Config.WordDim, m.Config.NumPOS, m.Config.CNNOut, textutil.EnrichDim)
	m.word.Backward(m.wordDrop.Backward(parts[0]))

	dPooled, err := parts[2].Reshape(b*t, m.Config.CNNOut)
	if err != nil {
		return err
	}
	dChars := m.conv.Backward(m.pool.Backward(dPooled))
	dChars = m.charDrop.Backward(dChars)
	m.char.Backward(dChars)
	return nil
}

// Decode is the inference path: emissions without dropout, then the CRF
// best path over each row's valid prefix. Positions past a sentence's end
// hold crf.PadTag.
func (m *Model) Decode(in Input) ([][]int, error) {
	em, err := m.Forward(in, false)
	if err != nil {
		return nil, err
	}
	return m.CRF.Decode(em, features.Mask(in.Words))
}
