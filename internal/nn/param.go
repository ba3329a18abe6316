// Package nn implements the network layers used by the tagger. Every layer
// caches what it needs during Forward and accumulates parameter gradients in
// Backward; callers zero gradients between optimizer steps.
package nn

import (
	"math"
	"math/rand/v2"

	"github.com/happyhackingspace/nerd/internal/tensor"
)

// Param is a trainable tensor with its accumulated gradient.
type Param struct {
	Name   string
	Value  *tensor.Dense
	Grad   *tensor.Dense
	Frozen bool
}

// NewParam allocates a zero-valued parameter.
func NewParam(name string, shape ...int) *Param {
	return &Param{Name: name, Value: tensor.New(shape...), Grad: tensor.New(shape...)}
}

// ZeroGrad resets the accumulated gradient.
func (p *Param) ZeroGrad() {
	p.Grad.Zero()
}

// uniform fills p with U(-bound, bound).
func uniform(p *Param, bound float64, rng *rand.Rand) {
	for i := range p.Value.Data {
		p.Value.Data[i] = (rng.Float64()*2 - 1) * bound
	}
}

// normal fills p with N(0, 1).
func normal(p *Param, rng *rand.Rand) {
	for i := range p.Value.Data {
		p.Value.Data[i] = rng.NormFloat64()
	}
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// addRowSums adds the column sums of m (rows x len(dst)) into dst.
func addRowSums(dst []float64, m []float64) {
	c := len(dst)
	for r := 0; r < len(m)/c; r++ {
		row := m[r*c : (r+1)*c]
		for j, v := range row {
			dst[j] += v
		}
	}
}

// addBias adds b to every row of m.
func addBias(m []float64, b []float64) {
	c := len(b)
	for r := 0; r < len(m)/c; r++ {
		row := m[r*c : (r+1)*c]
		for j := range row {
			row[j] += b[j]
		}
	}
}
