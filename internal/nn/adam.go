package nn

import "math"

// Adam is the Adam optimizer with optional element-wise gradient clipping.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64
	Clip  float64 // 0 disables clipping

	params []*Param
	t      int
	m      map[*Param][]float64
	v      map[*Param][]float64
}

// NewAdam creates an optimizer over params with the usual betas.
func NewAdam(params []*Param, lr, clip float64) *Adam {
	return &Adam{
		LR:     lr,
		Beta1:  0.9,
		Beta2:  0.999,
		Eps:    1e-8,
		Clip:   clip,
		params: params,
		m:      make(map[*Param][]float64),
		v:      make(map[*Param][]float64),
	}
}

// Step applies one update to every non-frozen parameter.
func (a *Adam) Step() {
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for _, p := range a.params {
		if p.Frozen {
			continue
		}
		m, ok := a.m[p]
		if !ok {
			m = make([]float64, len(p.Value.Data))
			a.m[p] = m
			a.v[p] = make([]float64, len(p.Value.Data))
		}
		v := a.v[p]
		for i, g := range p.Grad.Data {
			if a.Clip > 0 {
				g = max(-a.Clip, min(a.Clip, g))
			}
			m[i] = a.Beta1*m[i] + (1-a.Beta1)*g
			v[i] = a.Beta2*v[i] + (1-a.Beta2)*g*g
			p.Value.Data[i] -= a.LR * (m[i] / c1) / (math.Sqrt(v[i]/c2) + a.Eps)
		}
	}
}

// ZeroGrad clears the gradients of every parameter.
func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}
