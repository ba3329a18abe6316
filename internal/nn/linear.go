package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/happyhackingspace/nerd/internal/tensor"
)

// Linear is y = xW + b applied over the last axis.
type Linear struct {
	W *Param // in x out
	B *Param // out

	x *tensor.Dense
}

// NewLinear creates a layer with U(-1/sqrt(in), 1/sqrt(in)) initialization.
func NewLinear(name string, in, out int, rng *rand.Rand) *Linear {
	l := &Linear{
		W: NewParam(name+".weight", in, out),
		B: NewParam(name+".bias", out),
	}
	bound := 1 / math.Sqrt(float64(in))
	uniform(l.W, bound, rng)
	uniform(l.B, bound, rng)
	return l
}

// In returns the input width.
func (l *Linear) In() int { return l.W.Value.Dim(0) }

// Out returns the output width.
func (l *Linear) Out() int { return l.W.Value.Dim(1) }

// Forward maps x (..., in) to (..., out).
func (l *Linear) Forward(x *tensor.Dense) *tensor.Dense {
	shape := append([]int(nil), x.Shape...)
	shape[len(shape)-1] = l.Out()
	out := tensor.New(shape...)
	out.Matrix().Mul(x.Matrix(), l.W.Value.Matrix())
	addBias(out.Data, l.B.Value.Data)
	l.x = x
	return out
}

// Backward accumulates dW, dB and returns dx.
func (l *Linear) Backward(dOut *tensor.Dense) *tensor.Dense {
	dy := dOut.Matrix()
	var gw mat.Dense
	gw.Mul(l.x.Matrix().T(), dy)
	acc := l.W.Grad.Matrix()
	acc.Add(acc, &gw)
	addRowSums(l.B.Grad.Data, dOut.Data)

	dx := tensor.New(l.x.Shape...)
	dx.Matrix().Mul(dy, l.W.Value.Matrix().T())
	return dx
}

// Parameters returns the trainable tensors.
func (l *Linear) Parameters() []*Param { return []*Param{l.W, l.B} }
