package nn

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/happyhackingspace/nerd/internal/tensor"
)

// ErrCellType is returned for a recurrent cell name other than LSTM or GRU.
var ErrCellType = errors.New("invalid recurrent cell type")

// Sequence is one direction of one recurrent layer.
type Sequence interface {
	Forward(x *tensor.Dense) *tensor.Dense
	Backward(dOut *tensor.Dense) *tensor.Dense
	Parameters() []*Param
}

// Recurrent is a stack of (optionally bidirectional) recurrent layers with
// dropout between layers. Directions are concatenated forward first.
type Recurrent struct {
	Cell   string
	Hidden int
	Layers [][]Sequence

	drops []*Dropout
}

// NewRecurrent builds the stack. cell is "LSTM" or "GRU" (case-insensitive).
func NewRecurrent(cell string, in, hidden, layers int, bidirectional bool, dropout float64, rng *rand.Rand) (*Recurrent, error) {
	cell = strings.ToUpper(cell)
	if cell != "LSTM" && cell != "GRU" {
		return nil, fmt.Errorf("%w: %q", ErrCellType, cell)
	}
	if layers < 1 || hidden < 1 {
		return nil, fmt.Errorf("recurrent: need at least one layer and one hidden unit, got %d and %d", layers, hidden)
	}
	dirs := 1
	if bidirectional {
		dirs = 2
	}
	r := &Recurrent{Cell: cell, Hidden: hidden}
	for l := range layers {
		var stack []Sequence
		for d := range dirs {
			name := fmt.Sprintf("rnn.l%d", l)
			if d == 1 {
				name += "_reverse"
			}
			if cell == "GRU" {
				stack = append(stack, NewGRU(name, in, hidden, d == 1, rng))
			} else {
				stack = append(stack, NewLSTM(name, in, hidden, d == 1, rng))
			}
		}
		r.Layers = append(r.Layers, stack)
		if l < layers-1 {
			r.drops = append(r.drops, NewDropout(dropout, rng))
		}
		in = hidden * dirs
	}
	return r, nil
}

// Out returns the output width (hidden times directions).
func (r *Recurrent) Out() int { return r.Hidden * len(r.Layers[0]) }

// Forward runs the stack over x (B, T, D).
func (r *Recurrent) Forward(x *tensor.Dense, train bool) *tensor.Dense {
	in := x
	for l, stack := range r.Layers {
		outs := make([]*tensor.Dense, len(stack))
		for d, s := range stack {
			outs[d] = s.Forward(in)
		}
		in = outs[0]
		if len(outs) > 1 {
			in = tensor.ConcatLast(outs...)
		}
		if l < len(r.drops) {
			in = r.drops[l].Forward(in, train)
		}
	}
	return in
}

// Backward propagates dOut through every layer and returns dx.
func (r *Recurrent) Backward(dOut *tensor.Dense) *tensor.Dense {
	d := dOut
	for l := len(r.Layers) - 1; l >= 0; l-- {
		if l < len(r.drops) {
			d = r.drops[l].Backward(d)
		}
		stack := r.Layers[l]
		parts := []*tensor.Dense{d}
		if len(stack) > 1 {
			widths := make([]int, len(stack))
			for i := range widths {
				widths[i] = r.Hidden
			}
			parts = tensor.SplitLast(d, widths...)
		}
		var dx *tensor.Dense
		for i, s := range stack {
			g := s.Backward(parts[i])
			if dx == nil {
				dx = g
			} else {
				dx.AddInPlace(g)
			}
		}
		d = dx
	}
	return d
}

// Parameters returns the trainable tensors of every layer.
func (r *Recurrent) Parameters() []*Param {
	var ps []*Param
	for _, stack := range r.Layers {
		for _, s := range stack {
			ps = append(ps, s.Parameters()...)
		}
	}
	return ps
}

// Dropouts returns the inter-layer dropout layers, bottom first.
func (r *Recurrent) Dropouts() []*Dropout { return r.drops }
