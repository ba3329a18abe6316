package crf

import (
	"math"

	"github.com/happyhackingspace/nerd/internal/tensor"
)

// Viterbi finds the best label sequence using the Viterbi algorithm
// (log-domain). Ties go to the lowest label index reaching the maximal score.
func Viterbi(stateScores, transScores [][]float64) ([]int, float64) {
	T := len(stateScores)
	if T == 0 {
		return nil, math.Inf(-1)
	}
	L := len(stateScores[0])

	// delta[t][y] = best score ending at time t with label y
	delta := make([][]float64, T)
	// psi[t][y] = best previous label for backtracking
	psi := make([][]int, T)

	delta[0] = append([]float64(nil), stateScores[0]...)
	psi[0] = make([]int, L)

	for t := 1; t < T; t++ {
		delta[t] = make([]float64, L)
		psi[t] = make([]int, L)
		for y := range L {
			bestScore := math.Inf(-1)
			bestPrev := 0
			for yp := range L {
				score := delta[t-1][yp] + transScores[yp][y]
				if score > bestScore {
					bestScore = score
					bestPrev = yp
				}
			}
			delta[t][y] = bestScore + stateScores[t][y]
			psi[t][y] = bestPrev
		}
	}

	bestScore := math.Inf(-1)
	bestLabel := 0
	for y := range L {
		if delta[T-1][y] > bestScore {
			bestScore = delta[T-1][y]
			bestLabel = y
		}
	}

	path := make([]int, T)
	path[T-1] = bestLabel
	for t := T - 2; t >= 0; t-- {
		path[t] = psi[t+1][path[t+1]]
	}

	return path, bestScore
}

// Decode returns the best path of every sentence in the batch. Each path has
// the padded width T; positions past a row's valid length hold PadTag, and a
// row with no valid positions is all PadTag.
func (c *CRF) Decode(emissions *tensor.Dense, mask *tensor.Index) ([][]int, error) {
	if err := c.checkEmissions(emissions, mask); err != nil {
		return nil, err
	}
	B, T := emissions.Dim(0), emissions.Dim(1)
	lengths := Lengths(mask)
	trans := c.TransScores()

	paths := make([][]int, B)
	c.forEach(B, func(b int) {
		path := make([]int, T)
		if n := lengths[b]; n > 0 {
			best, _ := Viterbi(c.StateScores(emissions, b, n), trans)
			copy(path, best)
		}
		paths[b] = path
	})
	return paths, nil
}
