package crf

import (
	"fmt"

	"github.com/happyhackingspace/nerd/internal/tensor"
)

// Loss is the negative log-likelihood of a batch of gold paths.
type Loss struct {
	// Value is the summed negative log-likelihood divided by Tokens. It is 0
	// when the batch has no valid positions.
	Value  float64
	Sum    float64
	Tokens int

	// Grad is dValue/d emissions, zero at masked positions.
	Grad *tensor.Dense

	// Gradients of Value with respect to the CRF potentials.
	TransGrad []float64
	StartGrad []float64
	EndGrad   []float64
}

type rowLoss struct {
	nll        float64
	trans      []float64
	start, end []float64
}

// NegLogLikelihood scores the gold tags under the global normalization. The
// emission gradient is marginals minus the gold one-hot, the transition
// gradient is pairwise marginals minus gold transition counts. Rows whose mask
// is all zero contribute nothing.
func (c *CRF) NegLogLikelihood(emissions *tensor.Dense, tags, mask *tensor.Index) (Loss, error) {
	if err := c.checkEmissions(emissions, mask); err != nil {
		return Loss{}, err
	}
	if len(tags.Shape) != 2 || tags.Dim(0) != mask.Dim(0) || tags.Dim(1) != mask.Dim(1) {
		return Loss{}, fmt.Errorf("crf: tags shape %v does not match mask %v", tags.Shape, mask.Shape)
	}
	B, T, L := emissions.Dim(0), emissions.Dim(1), c.NumLabels
	lengths := Lengths(mask)
	tokens := 0
	for b, n := range lengths {
		tokens += n
		for _, y := range tags.Data[b*T : b*T+n] {
			if y < 0 || y >= L {
				return Loss{}, fmt.Errorf("crf: tag %d out of range [0, %d)", y, L)
			}
		}
	}

	loss := Loss{
		Tokens:    tokens,
		Grad:      tensor.New(B, T, L),
		TransGrad: make([]float64, L*L),
		StartGrad: make([]float64, L),
		EndGrad:   make([]float64, L),
	}
	if tokens == 0 {
		return loss, nil
	}

	trans := c.TransScores()
	rows := make([]rowLoss, B)
	c.forEach(B, func(b int) {
		n := lengths[b]
		if n == 0 {
			return
		}
		gold := tags.Data[b*T : b*T+n]
		states := c.StateScores(emissions, b, n)
		fb := ForwardBackward(states, trans)

		r := rowLoss{
			nll:   fb.LogZ - PathScore(states, trans, gold),
			trans: make([]float64, L*L),
			start: make([]float64, L),
			end:   make([]float64, L),
		}
		for t := range n {
			g := loss.Grad.Data[(b*T+t)*L : (b*T+t+1)*L]
			copy(g, fb.Marginals[t])
			g[gold[t]]--
		}
		copy(r.start, fb.Marginals[0])
		r.start[gold[0]]--
		copy(r.end, fb.Marginals[n-1])
		r.end[gold[n-1]]--
		for t, pair := range TransitionMarginals(fb, states, trans) {
			for i := range L {
				for j := range L {
					r.trans[i*L+j] += pair[i][j]
				}
			}
			r.trans[gold[t]*L+gold[t+1]]--
		}
		rows[b] = r
	})

	scale := 1 / float64(tokens)
	for _, r := range rows {
		if r.trans == nil {
			continue
		}
		loss.Sum += r.nll
		for i, v := range r.trans {
			loss.TransGrad[i] += v * scale
		}
		for i := range L {
			loss.StartGrad[i] += r.start[i] * scale
			loss.EndGrad[i] += r.end[i] * scale
		}
	}
	loss.Value = loss.Sum * scale
	for i := range loss.Grad.Data {
		loss.Grad.Data[i] *= scale
	}
	return loss, nil
}

// Accumulate adds the potential gradients of l into the CRF parameters.
func (c *CRF) Accumulate(l Loss) {
	for i, v := range l.TransGrad {
		c.Transitions.Grad.Data[i] += v
	}
	for i := range l.StartGrad {
		c.Start.Grad.Data[i] += l.StartGrad[i]
		c.End.Grad.Data[i] += l.EndGrad[i]
	}
}
