package metrics

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateExample(t *testing.T) {
	s, err := Evaluate([]int{1, 1, 2, 2}, []int{1, 1, 2, 1}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, s.Accuracy, 1e-12)
	assert.InDelta(t, 5.0/6, s.Precision, 1e-12)
	assert.InDelta(t, 0.75, s.Recall, 1e-12)
	assert.InDelta(t, (0.8+2.0/3)/2, s.F1, 1e-12)
	for _, v := range []float64{s.Precision, s.Recall, s.F1} {
		assert.True(t, v > 0 && v < 1)
	}
}

func TestEvaluateRemapsPadding(t *testing.T) {
	// Padding in the truth and pad fillers in the prediction both count as
	// the outside class 3.
	s, err := Evaluate([]int{2, 0, 0}, []int{2, 0, 3}, 3)
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.Accuracy)
	assert.Equal(t, 1.0, s.F1)
}

func TestEvaluateZeroDivision(t *testing.T) {
	// Class 2 is predicted but never true, class 1 never predicted.
	s, err := Evaluate([]int{1, 1}, []int{2, 2}, 3)
	require.NoError(t, err)
	assert.Zero(t, s.Accuracy)
	assert.Zero(t, s.Precision)
	assert.Zero(t, s.Recall)
	assert.Zero(t, s.F1)

	empty, err := Evaluate(nil, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, Scores{}, empty)
}

func TestEvaluateLengthMismatch(t *testing.T) {
	_, err := Evaluate([]int{1}, nil, 1)
	require.Error(t, err)
}

func TestAccumulatorIsCumulative(t *testing.T) {
	a := NewAccumulator(1)
	require.NoError(t, a.Add([]int{1, 1}, []int{1, 1}))
	require.NoError(t, a.Add([]int{2, 2}, []int{2, 1}))
	want, err := Evaluate([]int{1, 1, 2, 2}, []int{1, 1, 2, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, want, a.Scores())
	assert.Equal(t, 4, a.Total())

	a.Reset()
	assert.Equal(t, Scores{}, a.Scores())
}

func TestReport(t *testing.T) {
	a := NewAccumulator(1)
	require.NoError(t, a.Add([]int{1, 1, 2, 2}, []int{1, 1, 2, 1}))
	names := map[int]string{1: "O", 2: "PERSON"}
	r := a.Report(func(id int) string { return names[id] })

	require.Len(t, r.Classes, 2)
	assert.Equal(t, []string{"O", "PERSON"}, r.Labels())
	assert.Equal(t, 2, r.Classes[1].Support)
	assert.InDelta(t, 0.75, r.Macro.Recall, 1e-12)
	assert.InDelta(t, (2.0/3*2+1*2)/4, r.Weighted.Precision, 1e-12)
	assert.Equal(t, 1, r.Confusion["PERSON"]["O"])
	assert.Equal(t, 2, r.Confusion["O"]["O"])

	text := r.String()
	assert.True(t, strings.Contains(text, "PERSON"))
	assert.True(t, strings.Contains(text, "weighted avg"))
	assert.Contains(t, text, fmt.Sprintf("%9.2f", 0.75))
}

func TestClassWeights(t *testing.T) {
	var ids []int
	for i := range 100 {
		if i < 90 {
			ids = append(ids, 1)
		} else {
			ids = append(ids, 2)
		}
	}
	ids = append(ids, 0, 0, 0)
	w := ClassWeights(ids, 4)
	assert.Zero(t, w[0])
	assert.Zero(t, w[3])
	assert.Greater(t, w[2], w[1])
	assert.InDelta(t, 100.0/(2*90), w[1], 1e-12)
	assert.InDelta(t, 100.0/(2*10), w[2], 1e-12)

	assert.Equal(t, []float64{0, 0}, ClassWeights([]int{0}, 2))
}
