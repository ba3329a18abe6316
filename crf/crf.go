// Package crf implements the linear-chain Conditional Random Field that sits
// on top of the tagger's emission scores.
//
// Label 0 is the padding label. It takes part in the lattice like any other
// label but is also the filler written at masked positions by Decode.
package crf

import (
	"fmt"
	"math/rand/v2"

	"github.com/happyhackingspace/nerd/internal/device"
	"github.com/happyhackingspace/nerd/internal/nn"
	"github.com/happyhackingspace/nerd/internal/tensor"
)

// PadTag is the label written at masked positions of a decoded path.
const PadTag = 0

// CRF holds the transition potentials.
type CRF struct {
	NumLabels   int
	Transitions *nn.Param // [from][to]
	Start       *nn.Param // score of starting in a label
	End         *nn.Param // score of ending in a label

	// Workers bounds the per-sentence fan-out. Values below 2 run serially.
	Workers int
}

// New creates a CRF over numLabels labels with potentials drawn from
// U(-0.1, 0.1).
func New(numLabels int, rng *rand.Rand) *CRF {
	c := &CRF{
		NumLabels:   numLabels,
		Transitions: nn.NewParam("crf.transitions", numLabels, numLabels),
		Start:       nn.NewParam("crf.start_transitions", numLabels),
		End:         nn.NewParam("crf.end_transitions", numLabels),
		Workers:     1,
	}
	for _, p := range c.Parameters() {
		for i := range p.Value.Data {
			p.Value.Data[i] = rng.Float64()*0.2 - 0.1
		}
	}
	return c
}

// Parameters returns the trainable tensors.
func (c *CRF) Parameters() []*nn.Param {
	return []*nn.Param{c.Transitions, c.Start, c.End}
}

// TransScores returns the [L][L] transition score matrix.
func (c *CRF) TransScores() [][]float64 {
	L := c.NumLabels
	trans := make([][]float64, L)
	for i := range L {
		trans[i] = append([]float64(nil), c.Transitions.Value.Row(i)...)
	}
	return trans
}

// StateScores builds the [n][L] state score matrix of one sentence: the
// emissions of its first n positions with the start potentials folded into
// position 0 and the end potentials into position n-1.
func (c *CRF) StateScores(emissions *tensor.Dense, row, n int) [][]float64 {
	L := c.NumLabels
	T := emissions.Dim(1)
	scores := make([][]float64, n)
	for t := range n {
		scores[t] = append([]float64(nil), emissions.Data[(row*T+t)*L:(row*T+t+1)*L]...)
	}
	if n > 0 {
		for y := range L {
			scores[0][y] += c.Start.Value.Data[y]
			scores[n-1][y] += c.End.Value.Data[y]
		}
	}
	return scores
}

// Lengths returns the valid length of every mask row: the number of leading
// non-zero entries.
func Lengths(mask *tensor.Index) []int {
	B, T := mask.Dim(0), mask.Dim(1)
	out := make([]int, B)
	for b := range B {
		n := 0
		for n < T && mask.Data[b*T+n] != 0 {
			n++
		}
		out[b] = n
	}
	return out
}

func (c *CRF) forEach(n int, body func(i int)) {
	device.ForEach(n, c.Workers, body)
}

func (c *CRF) checkEmissions(emissions *tensor.Dense, mask *tensor.Index) error {
	if len(emissions.Shape) != 3 || emissions.Dim(2) != c.NumLabels {
		return fmt.Errorf("crf: emissions shape %v, want (B, T, %d)", emissions.Shape, c.NumLabels)
	}
	if len(mask.Shape) != 2 || mask.Dim(0) != emissions.Dim(0) || mask.Dim(1) != emissions.Dim(1) {
		return fmt.Errorf("crf: mask shape %v does not match emissions %v", mask.Shape, emissions.Shape)
	}
	return nil
}
