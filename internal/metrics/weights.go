package metrics

// ClassWeights returns balanced inverse-frequency weights for tag ids in
// [0, numLabels): n / (k * count[c]) where n counts the non-padding ids and k
// the distinct non-padding classes present. Padding and absent classes get 0.
func ClassWeights(ids []int, numLabels int) []float64 {
	counts := make([]int, numLabels)
	n := 0
	for _, id := range ids {
		if id == PadID || id < 0 || id >= numLabels {
			continue
		}
		counts[id]++
		n++
	}
	k := 0
	for _, c := range counts {
		if c > 0 {
			k++
		}
	}
	weights := make([]float64, numLabels)
	if k == 0 {
		return weights
	}
	for id, c := range counts {
		if c > 0 {
			weights[id] = float64(n) / (float64(k) * float64(c))
		}
	}
	return weights
}
