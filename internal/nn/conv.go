package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/happyhackingspace/nerd/internal/tensor"
)

// Conv1D is a valid (unpadded) one-dimensional convolution over axis 1 of
// an (N, W, C) input, producing (N, W-K+1, F).
type Conv1D struct {
	Kernel int
	W      *Param // K*C x F
	B      *Param // F

	in   []int
	cols *tensor.Dense
}

// NewConv1D creates a convolution with in channels, out filters and the
// given kernel width.
func NewConv1D(name string, in, out, kernel int, rng *rand.Rand) *Conv1D {
	c := &Conv1D{
		Kernel: kernel,
		W:      NewParam(name+".weight", kernel*in, out),
		B:      NewParam(name+".bias", out),
	}
	bound := 1 / math.Sqrt(float64(kernel*in))
	uniform(c.W, bound, rng)
	uniform(c.B, bound, rng)
	return c
}

// Forward convolves x.
func (c *Conv1D) Forward(x *tensor.Dense) (*tensor.Dense, error) {
	if len(x.Shape) != 3 {
		return nil, fmt.Errorf("conv1d: want 3-d input, got shape %v", x.Shape)
	}
	n, w, ch := x.Shape[0], x.Shape[1], x.Shape[2]
	if ch*c.Kernel != c.W.Value.Dim(0) {
		return nil, fmt.Errorf("conv1d: input has %d channels, weights expect %d", ch, c.W.Value.Dim(0)/c.Kernel)
	}
	positions := w - c.Kernel + 1
	if positions < 1 {
		return nil, fmt.Errorf("conv1d: width %d shorter than kernel %d", w, c.Kernel)
	}

	patch := c.Kernel * ch
	cols := tensor.New(n*positions, patch)
	for i := range n {
		base := i * w * ch
		for p := range positions {
			copy(cols.Row(i*positions+p), x.Data[base+p*ch:base+p*ch+patch])
		}
	}

	filters := c.W.Value.Dim(1)
	out := tensor.New(n, positions, filters)
	out.Matrix().Mul(cols.Matrix(), c.W.Value.Matrix())
	addBias(out.Data, c.B.Value.Data)

	c.in = append(c.in[:0], x.Shape...)
	c.cols = cols
	return out, nil
}

// Backward accumulates filter gradients and returns dx.
func (c *Conv1D) Backward(dOut *tensor.Dense) *tensor.Dense {
	n, w, ch := c.in[0], c.in[1], c.in[2]
	positions := w - c.Kernel + 1
	patch := c.Kernel * ch

	dy := dOut.Matrix()
	var gw mat.Dense
	gw.Mul(c.cols.Matrix().T(), dy)
	acc := c.W.Grad.Matrix()
	acc.Add(acc, &gw)
	addRowSums(c.B.Grad.Data, dOut.Data)

	dcols := tensor.New(n*positions, patch)
	dcols.Matrix().Mul(dy, c.W.Value.Matrix().T())

	dx := tensor.New(n, w, ch)
	for i := range n {
		base := i * w * ch
		for p := range positions {
			dst := dx.Data[base+p*ch : base+p*ch+patch]
			for j, v := range dcols.Row(i*positions + p) {
				dst[j] += v
			}
		}
	}
	return dx
}

// Parameters returns the trainable tensors.
func (c *Conv1D) Parameters() []*Param { return []*Param{c.W, c.B} }

// MaxPool reduces (N, P, F) to (N, F) by taking the maximum over axis 1.
type MaxPool struct {
	in     []int
	argmax []int
}

// Forward pools x.
func (m *MaxPool) Forward(x *tensor.Dense) *tensor.Dense {
	n, p, f := x.Shape[0], x.Shape[1], x.Shape[2]
	out := tensor.New(n, f)
	m.argmax = make([]int, n*f)
	for i := range n {
		for k := range f {
			best, at := math.Inf(-1), 0
			for j := range p {
				if v := x.Data[(i*p+j)*f+k]; v > best {
					best, at = v, j
				}
			}
			out.Data[i*f+k] = best
			m.argmax[i*f+k] = at
		}
	}
	m.in = append(m.in[:0], x.Shape...)
	return out
}

// Backward routes each gradient to the position that won the max.
func (m *MaxPool) Backward(dOut *tensor.Dense) *tensor.Dense {
	n, p, f := m.in[0], m.in[1], m.in[2]
	dx := tensor.New(n, p, f)
	for i := range n {
		for k := range f {
			dx.Data[(i*p+m.argmax[i*f+k])*f+k] = dOut.Data[i*f+k]
		}
	}
	return dx
}
