package model

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/happyhackingspace/nerd/crf"
	"github.com/happyhackingspace/nerd/internal/features"
	"github.com/happyhackingspace/nerd/internal/tensor"
)

// Result is the outcome of scoring one batch.
type Result struct {
	Emissions *tensor.Dense
	Mask      *tensor.Index
	// Loss is the per-token CRF negative log-likelihood plus the weighted
	// auxiliary term.
	Loss   float64
	CRF    crf.Loss
	Aux    float64
	Tokens int
}

// Loss scores a batch against its gold tags. With train set it runs with
// dropout and back-propagates into the parameter gradients; otherwise no
// gradient is touched.
func (m *Model) Loss(in Input, tags *tensor.Index, train bool) (Result, error) {
	em, err := m.Forward(in, train)
	if err != nil {
		return Result{}, err
	}
	mask := features.Mask(in.Words)
	l, err := m.CRF.NegLogLikelihood(em, tags, mask)
	if err != nil {
		return Result{}, err
	}
	r := Result{Emissions: em, Mask: mask, Loss: l.Value, CRF: l, Tokens: l.Tokens}
	grad := l.Grad
	if w := m.Config.AuxWeight; w > 0 {
		aux, auxGrad := CrossEntropy(em, tags, mask, m.Config.ClassWeights)
		r.Aux = aux
		r.Loss += w * aux
		for i, g := range auxGrad.Data {
			grad.Data[i] += w * g
		}
	}
	if !train {
		return r, nil
	}
	m.CRF.Accumulate(l)
	return r, m.Backward(grad)
}

// CrossEntropy is the class-weighted softmax cross-entropy of the emissions
// at valid positions, averaged over valid tokens. weights may be nil for
// uniform weighting. It returns the loss and its emission gradient.
func CrossEntropy(emissions *tensor.Dense, tags, mask *tensor.Index, weights []float64) (float64, *tensor.Dense) {
	L := emissions.Dim(2)
	grad := tensor.New(emissions.Shape...)
	total, tokens := 0.0, 0
	probs := make([]float64, L)
	for i, valid := range mask.Data {
		if valid == 0 {
			continue
		}
		tokens++
		row := emissions.Row(i)
		lse := floats.LogSumExp(row)
		y := tags.Data[i]
		w := 1.0
		if weights != nil {
			w = weights[y]
		}
		total += w * (lse - row[y])
		for k, v := range row {
			probs[k] = math.Exp(v - lse)
		}
		g := grad.Row(i)
		for k, p := range probs {
			g[k] = w * p
		}
		g[y] -= w
	}
	if tokens == 0 {
		return 0, grad
	}
	scale := 1 / float64(tokens)
	floats.Scale(scale, grad.Data)
	return total * scale, grad
}
