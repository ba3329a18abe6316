package features

import "math/rand/v2"

// Batches splits [0, n) into consecutive batches of at most size rows. With
// shuffle set the order is a permutation drawn from (seed, epoch), so it
// changes every epoch and repeats across runs with the same seed.
func Batches(n, size int, shuffle bool, seed uint64, epoch int) [][]int {
	if n <= 0 {
		return nil
	}
	if size <= 0 {
		size = n
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if shuffle {
		rng := rand.New(rand.NewPCG(seed, uint64(epoch)))
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	var out [][]int
	for start := 0; start < n; start += size {
		out = append(out, order[start:min(start+size, n)])
	}
	return out
}
