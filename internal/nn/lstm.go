package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/happyhackingspace/nerd/internal/tensor"
)

// LSTM runs one direction of a long short-term memory layer over a
// (B, T, D) batch. Gate order in the packed weights is input, forget, cell,
// output.
type LSTM struct {
	Hidden  int
	Reverse bool
	Wih     *Param // D x 4H
	Whh     *Param // H x 4H
	B       *Param // 4H

	x     *tensor.Dense
	gates [][]float64 // per time step, B x 4H activations
	cells [][]float64 // per time step, B x H
	hs    [][]float64 // per time step, B x H
}

// NewLSTM creates an LSTM direction with U(-1/sqrt(H), 1/sqrt(H)) weights.
func NewLSTM(name string, in, hidden int, reverse bool, rng *rand.Rand) *LSTM {
	l := &LSTM{
		Hidden:  hidden,
		Reverse: reverse,
		Wih:     NewParam(name+".weight_ih", in, 4*hidden),
		Whh:     NewParam(name+".weight_hh", hidden, 4*hidden),
		B:       NewParam(name+".bias", 4*hidden),
	}
	bound := 1 / math.Sqrt(float64(hidden))
	for _, p := range l.Parameters() {
		uniform(p, bound, rng)
	}
	return l
}

// Forward returns the hidden state at every step, shape (B, T, H).
func (l *LSTM) Forward(x *tensor.Dense) *tensor.Dense {
	b, steps, h := x.Shape[0], x.Shape[1], l.Hidden
	g := 4 * h
	xw := project(x, l.Wih, l.B)
	out := tensor.New(b, steps, h)

	l.x = x
	l.gates = make([][]float64, steps)
	l.cells = make([][]float64, steps)
	l.hs = make([][]float64, steps)

	hPrev := make([]float64, b*h)
	cPrev := make([]float64, b*h)
	for _, t := range order(steps, l.Reverse) {
		hw := recurrentTerm(hPrev, b, l.Whh)
		gates := make([]float64, b*g)
		c := make([]float64, b*h)
		hNew := make([]float64, b*h)
		for i := range b {
			src := xw.Data[(i*steps+t)*g : (i*steps+t+1)*g]
			gi := gates[i*g : (i+1)*g]
			for j := range g {
				gi[j] = src[j] + hw[i*g+j]
			}
			for j := range h {
				ig := sigmoid(gi[j])
				fg := sigmoid(gi[h+j])
				cg := math.Tanh(gi[2*h+j])
				og := sigmoid(gi[3*h+j])
				gi[j], gi[h+j], gi[2*h+j], gi[3*h+j] = ig, fg, cg, og
				cv := fg*cPrev[i*h+j] + ig*cg
				c[i*h+j] = cv
				hNew[i*h+j] = og * math.Tanh(cv)
			}
			copy(out.Data[(i*steps+t)*h:(i*steps+t+1)*h], hNew[i*h:(i+1)*h])
		}
		l.gates[t], l.cells[t], l.hs[t] = gates, c, hNew
		hPrev, cPrev = hNew, c
	}
	return out
}

// Backward runs backpropagation through time and returns dx.
func (l *LSTM) Backward(dOut *tensor.Dense) *tensor.Dense {
	b, steps, h := l.x.Shape[0], l.x.Shape[1], l.Hidden
	g := 4 * h
	dxw := tensor.New(b, steps, g)
	dhNext := make([]float64, b*h)
	dcNext := make([]float64, b*h)
	zeros := make([]float64, b*h)

	seq := order(steps, l.Reverse)
	for k := len(seq) - 1; k >= 0; k-- {
		t := seq[k]
		hPrev, cPrev := zeros, zeros
		if k > 0 {
			hPrev, cPrev = l.hs[seq[k-1]], l.cells[seq[k-1]]
		}
		gates, c := l.gates[t], l.cells[t]
		da := make([]float64, b*g)
		for i := range b {
			gi := gates[i*g : (i+1)*g]
			di := da[i*g : (i+1)*g]
			for j := range h {
				ig, fg, cg, og := gi[j], gi[h+j], gi[2*h+j], gi[3*h+j]
				tc := math.Tanh(c[i*h+j])
				dh := dOut.Data[(i*steps+t)*h+j] + dhNext[i*h+j]
				dc := dcNext[i*h+j] + dh*og*(1-tc*tc)
				di[j] = dc * cg * ig * (1 - ig)
				di[h+j] = dc * cPrev[i*h+j] * fg * (1 - fg)
				di[2*h+j] = dc * ig * (1 - cg*cg)
				di[3*h+j] = dh * tc * og * (1 - og)
				dcNext[i*h+j] = dc * fg
			}
			copy(dxw.Data[(i*steps+t)*g:(i*steps+t+1)*g], di)
		}
		dhNext = recurrentBackward(hPrev, da, b, l.Whh)
	}
	return projectBackward(l.x, dxw, l.Wih, l.B)
}

// Parameters returns the trainable tensors.
func (l *LSTM) Parameters() []*Param { return []*Param{l.Wih, l.Whh, l.B} }

// order lists the time steps in processing order.
func order(steps int, reverse bool) []int {
	out := make([]int, steps)
	for i := range out {
		if reverse {
			out[i] = steps - 1 - i
		} else {
			out[i] = i
		}
	}
	return out
}

// project computes x W + b for every (batch, step) row.
func project(x *tensor.Dense, w, b *Param) *tensor.Dense {
	shape := append([]int(nil), x.Shape...)
	shape[len(shape)-1] = w.Value.Dim(1)
	out := tensor.New(shape...)
	out.Matrix().Mul(x.Matrix(), w.Value.Matrix())
	addBias(out.Data, b.Value.Data)
	return out
}

// projectBackward accumulates the input projection gradients and returns dx.
func projectBackward(x, dxw *tensor.Dense, w, b *Param) *tensor.Dense {
	dy := dxw.Matrix()
	var gw mat.Dense
	gw.Mul(x.Matrix().T(), dy)
	acc := w.Grad.Matrix()
	acc.Add(acc, &gw)
	addRowSums(b.Grad.Data, dxw.Data)

	dx := tensor.New(x.Shape...)
	dx.Matrix().Mul(dy, w.Value.Matrix().T())
	return dx
}

// recurrentTerm returns hPrev (B x H) times whh (H x G) as a flat B x G slice.
func recurrentTerm(hPrev []float64, b int, whh *Param) []float64 {
	h, g := whh.Value.Dim(0), whh.Value.Dim(1)
	out := make([]float64, b*g)
	res := mat.NewDense(b, g, out)
	res.Mul(mat.NewDense(b, h, hPrev), whh.Value.Matrix())
	return out
}

// recurrentBackward accumulates hPrevᵀ·da into whh and returns da·whhᵀ.
func recurrentBackward(hPrev, da []float64, b int, whh *Param) []float64 {
	h, g := whh.Value.Dim(0), whh.Value.Dim(1)
	dam := mat.NewDense(b, g, da)
	var gw mat.Dense
	gw.Mul(mat.NewDense(b, h, hPrev).T(), dam)
	acc := whh.Grad.Matrix()
	acc.Add(acc, &gw)

	dh := make([]float64, b*h)
	mat.NewDense(b, h, dh).Mul(dam, whh.Value.Matrix().T())
	return dh
}
