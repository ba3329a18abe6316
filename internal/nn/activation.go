package nn

import "github.com/happyhackingspace/nerd/internal/tensor"

// ReLU is max(0, x).
type ReLU struct {
	active []bool
}

// Forward applies the rectifier.
func (r *ReLU) Forward(x *tensor.Dense) *tensor.Dense {
	out := tensor.New(x.Shape...)
	r.active = make([]bool, len(x.Data))
	for i, v := range x.Data {
		if v > 0 {
			out.Data[i] = v
			r.active[i] = true
		}
	}
	return out
}

// Backward passes gradient where the input was positive.
func (r *ReLU) Backward(dOut *tensor.Dense) *tensor.Dense {
	dx := tensor.New(dOut.Shape...)
	for i, v := range dOut.Data {
		if r.active[i] {
			dx.Data[i] = v
		}
	}
	return dx
}
