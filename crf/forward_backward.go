package crf

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// ForwardBackwardResult holds the results of the forward-backward algorithm.
// Alpha and Beta are kept in the log domain.
type ForwardBackwardResult struct {
	LogZ      float64     // log partition function
	Marginals [][]float64 // [T][L] marginal probabilities P(y_t=j|x)
	Alpha     [][]float64 // [T][L] log forward variables
	Beta      [][]float64 // [T][L] log backward variables
}

// ForwardBackward runs the forward and backward recursions over the lattice.
// stateScores: [T][L] per-position label scores
// transScores: [L][L] transition scores
func ForwardBackward(stateScores, transScores [][]float64) ForwardBackwardResult {
	T := len(stateScores)
	if T == 0 {
		return ForwardBackwardResult{}
	}
	L := len(stateScores[0])
	buf := make([]float64, L)

	alpha := make([][]float64, T)
	alpha[0] = append([]float64(nil), stateScores[0]...)
	for t := 1; t < T; t++ {
		alpha[t] = make([]float64, L)
		for y := range L {
			for yp := range L {
				buf[yp] = alpha[t-1][yp] + transScores[yp][y]
			}
			alpha[t][y] = floats.LogSumExp(buf) + stateScores[t][y]
		}
	}

	beta := make([][]float64, T)
	beta[T-1] = make([]float64, L)
	for t := T - 2; t >= 0; t-- {
		beta[t] = make([]float64, L)
		for y := range L {
			for yn := range L {
				buf[yn] = transScores[y][yn] + stateScores[t+1][yn] + beta[t+1][yn]
			}
			beta[t][y] = floats.LogSumExp(buf)
		}
	}

	logZ := floats.LogSumExp(alpha[T-1])

	marginals := make([][]float64, T)
	for t := range T {
		marginals[t] = make([]float64, L)
		for y := range L {
			marginals[t][y] = math.Exp(alpha[t][y] + beta[t][y] - logZ)
		}
	}

	return ForwardBackwardResult{
		LogZ:      logZ,
		Marginals: marginals,
		Alpha:     alpha,
		Beta:      beta,
	}
}

// TransitionMarginals computes P(y_{t-1}=i, y_t=j | x) for all t, i, j.
// Returns [T-1][L][L] tensor.
func TransitionMarginals(fb ForwardBackwardResult, stateScores, transScores [][]float64) [][][]float64 {
	T := len(stateScores)
	if T <= 1 {
		return nil
	}
	L := len(stateScores[0])

	result := make([][][]float64, T-1)
	for t := range T - 1 {
		result[t] = make([][]float64, L)
		for i := range L {
			result[t][i] = make([]float64, L)
			for j := range L {
				result[t][i][j] = math.Exp(fb.Alpha[t][i] + transScores[i][j] + stateScores[t+1][j] + fb.Beta[t+1][j] - fb.LogZ)
			}
		}
	}
	return result
}

// PathScore returns the unnormalized score of path.
func PathScore(stateScores, transScores [][]float64, path []int) float64 {
	s := 0.0
	for t, y := range path {
		s += stateScores[t][y]
		if t > 0 {
			s += transScores[path[t-1]][y]
		}
	}
	return s
}
