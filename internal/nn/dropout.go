package nn

import (
	"math/rand/v2"

	"github.com/happyhackingspace/nerd/internal/tensor"
)

// Dropout zeroes activations with probability P while training and rescales
// the survivors by 1/(1-P).
type Dropout struct {
	P float64

	rng  *rand.Rand
	mask []float64
}

// NewDropout creates a dropout layer drawing from rng.
func NewDropout(p float64, rng *rand.Rand) *Dropout {
	return &Dropout{P: p, rng: rng}
}

// Reseed switches the layer to draw its masks from rng.
func (d *Dropout) Reseed(rng *rand.Rand) { d.rng = rng }

// Forward applies dropout when train is set and P > 0; otherwise it is the
// identity.
func (d *Dropout) Forward(x *tensor.Dense, train bool) *tensor.Dense {
	if !train || d.P <= 0 {
		d.mask = nil
		return x
	}
	keep := 1 - d.P
	out := tensor.New(x.Shape...)
	d.mask = make([]float64, len(x.Data))
	for i, v := range x.Data {
		if d.rng.Float64() < keep {
			d.mask[i] = 1 / keep
			out.Data[i] = v / keep
		}
	}
	return out
}

// Backward routes dOut through the last mask.
func (d *Dropout) Backward(dOut *tensor.Dense) *tensor.Dense {
	if d.mask == nil {
		return dOut
	}
	dx := tensor.New(dOut.Shape...)
	for i, v := range dOut.Data {
		dx.Data[i] = v * d.mask[i]
	}
	return dx
}
