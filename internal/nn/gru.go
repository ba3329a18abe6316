package nn

import (
	"math"
	"math/rand/v2"

	"github.com/happyhackingspace/nerd/internal/tensor"
)

// GRU runs one direction of a gated recurrent unit layer over a (B, T, D)
// batch. Gate order is reset, update, new; the reset gate is applied to the
// recurrent term of the new gate after its bias.
type GRU struct {
	Hidden  int
	Reverse bool
	Wih     *Param // D x 3H
	Whh     *Param // H x 3H
	Bih     *Param // 3H
	Bhh     *Param // 3H

	x     *tensor.Dense
	gates [][]float64 // per time step, B x 3H activations (r, z, n)
	hn    [][]float64 // per time step, B x H recurrent term of the new gate
	hs    [][]float64 // per time step, B x H
}

// NewGRU creates a GRU direction with U(-1/sqrt(H), 1/sqrt(H)) weights.
func NewGRU(name string, in, hidden int, reverse bool, rng *rand.Rand) *GRU {
	g := &GRU{
		Hidden:  hidden,
		Reverse: reverse,
		Wih:     NewParam(name+".weight_ih", in, 3*hidden),
		Whh:     NewParam(name+".weight_hh", hidden, 3*hidden),
		Bih:     NewParam(name+".bias_ih", 3*hidden),
		Bhh:     NewParam(name+".bias_hh", 3*hidden),
	}
	bound := 1 / math.Sqrt(float64(hidden))
	for _, p := range g.Parameters() {
		uniform(p, bound, rng)
	}
	return g
}

// Forward returns the hidden state at every step, shape (B, T, H).
func (r *GRU) Forward(x *tensor.Dense) *tensor.Dense {
	b, steps, h := x.Shape[0], x.Shape[1], r.Hidden
	g := 3 * h
	xw := project(x, r.Wih, r.Bih)
	out := tensor.New(b, steps, h)

	r.x = x
	r.gates = make([][]float64, steps)
	r.hn = make([][]float64, steps)
	r.hs = make([][]float64, steps)

	hPrev := make([]float64, b*h)
	for _, t := range order(steps, r.Reverse) {
		hw := recurrentTerm(hPrev, b, r.Whh)
		addBias(hw, r.Bhh.Value.Data)
		gates := make([]float64, b*g)
		hn := make([]float64, b*h)
		hNew := make([]float64, b*h)
		for i := range b {
			src := xw.Data[(i*steps+t)*g : (i*steps+t+1)*g]
			rec := hw[i*g : (i+1)*g]
			gi := gates[i*g : (i+1)*g]
			for j := range h {
				rg := sigmoid(src[j] + rec[j])
				zg := sigmoid(src[h+j] + rec[h+j])
				ng := math.Tanh(src[2*h+j] + rg*rec[2*h+j])
				gi[j], gi[h+j], gi[2*h+j] = rg, zg, ng
				hn[i*h+j] = rec[2*h+j]
				hNew[i*h+j] = (1-zg)*ng + zg*hPrev[i*h+j]
			}
			copy(out.Data[(i*steps+t)*h:(i*steps+t+1)*h], hNew[i*h:(i+1)*h])
		}
		r.gates[t], r.hn[t], r.hs[t] = gates, hn, hNew
		hPrev = hNew
	}
	return out
}

// Backward runs backpropagation through time and returns dx.
func (r *GRU) Backward(dOut *tensor.Dense) *tensor.Dense {
	b, steps, h := r.x.Shape[0], r.x.Shape[1], r.Hidden
	g := 3 * h
	dxw := tensor.New(b, steps, g)
	dhNext := make([]float64, b*h)
	zeros := make([]float64, b*h)

	seq := order(steps, r.Reverse)
	for k := len(seq) - 1; k >= 0; k-- {
		t := seq[k]
		hPrev := zeros
		if k > 0 {
			hPrev = r.hs[seq[k-1]]
		}
		gates, hn := r.gates[t], r.hn[t]
		dhg := make([]float64, b*g)
		direct := make([]float64, b*h)
		for i := range b {
			gi := gates[i*g : (i+1)*g]
			dx := dxw.Data[(i*steps+t)*g : (i*steps+t+1)*g]
			dr := dhg[i*g : (i+1)*g]
			for j := range h {
				rg, zg, ng := gi[j], gi[h+j], gi[2*h+j]
				dh := dOut.Data[(i*steps+t)*h+j] + dhNext[i*h+j]
				dn := dh * (1 - zg)
				dz := dh * (hPrev[i*h+j] - ng)
				direct[i*h+j] = dh * zg

				dan := dn * (1 - ng*ng)
				dar := dan * hn[i*h+j] * rg * (1 - rg)
				daz := dz * zg * (1 - zg)

				dx[j], dx[h+j], dx[2*h+j] = dar, daz, dan
				dr[j], dr[h+j], dr[2*h+j] = dar, daz, dan*rg
			}
		}
		addRowSums(r.Bhh.Grad.Data, dhg)
		dhNext = recurrentBackward(hPrev, dhg, b, r.Whh)
		for i, v := range direct {
			dhNext[i] += v
		}
	}
	return projectBackward(r.x, dxw, r.Wih, r.Bih)
}

// Parameters returns the trainable tensors.
func (r *GRU) Parameters() []*Param { return []*Param{r.Wih, r.Whh, r.Bih, r.Bhh} }
