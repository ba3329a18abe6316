package nn

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/happyhackingspace/nerd/internal/tensor"
)

// ErrPretrainedShape is returned when a pretrained table does not match the
// embedding it is loaded into.
var ErrPretrainedShape = errors.New("pretrained weights shape mismatch")

// Embedding maps integer ids to dense vectors.
type Embedding struct {
	Weight *Param

	ids *tensor.Index
}

// NewEmbedding creates a vocab x dim table initialized from N(0, 1).
func NewEmbedding(name string, vocab, dim int, rng *rand.Rand) *Embedding {
	e := &Embedding{Weight: NewParam(name, vocab, dim)}
	normal(e.Weight, rng)
	return e
}

// Dim returns the embedding width.
func (e *Embedding) Dim() int { return e.Weight.Value.Dim(1) }

// LoadPretrained replaces the table with m. When freeze is set the table
// receives no gradient updates.
func (e *Embedding) LoadPretrained(m *tensor.Dense, freeze bool) error {
	if len(m.Shape) != 2 || m.Shape[0] != e.Weight.Value.Shape[0] || m.Shape[1] != e.Weight.Value.Shape[1] {
		return fmt.Errorf("%w: have %v, want %v", ErrPretrainedShape, m.Shape, e.Weight.Value.Shape)
	}
	copy(e.Weight.Value.Data, m.Data)
	e.Weight.Frozen = freeze
	return nil
}

// Forward looks up every id; the result has shape ids.Shape + [dim].
func (e *Embedding) Forward(ids *tensor.Index) (*tensor.Dense, error) {
	vocab, dim := e.Weight.Value.Shape[0], e.Dim()
	shape := append(append([]int(nil), ids.Shape...), dim)
	out := tensor.New(shape...)
	for i, id := range ids.Data {
		if id < 0 || id >= vocab {
			return nil, fmt.Errorf("embedding %s: id %d out of range [0, %d)", e.Weight.Name, id, vocab)
		}
		copy(out.Data[i*dim:(i+1)*dim], e.Weight.Value.Row(id))
	}
	e.ids = ids
	return out, nil
}

// Backward scatters dOut into the rows that were looked up.
func (e *Embedding) Backward(dOut *tensor.Dense) {
	if e.Weight.Frozen || e.ids == nil {
		return
	}
	dim := e.Dim()
	for i, id := range e.ids.Data {
		g := e.Weight.Grad.Row(id)
		for j, v := range dOut.Data[i*dim : (i+1)*dim] {
			g[j] += v
		}
	}
}

// Parameters returns the trainable tensors.
func (e *Embedding) Parameters() []*Param { return []*Param{e.Weight} }
