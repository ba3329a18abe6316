package device

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectCPU(t *testing.T) {
	d, err := Select("CPU", 3)
	require.NoError(t, err)
	assert.Equal(t, CPU, d.Kind)
	assert.Equal(t, 3, d.Workers)
	assert.NotEmpty(t, d.Name)
	assert.Equal(t, "host", d.Compute())
}

func TestSelectDefaultsWorkers(t *testing.T) {
	d, err := Select("cpu", 0)
	require.NoError(t, err)
	assert.Positive(t, d.Workers)
}

func TestSelectUnknown(t *testing.T) {
	_, err := Select("tpu", 1)
	require.Error(t, err)
}

func TestSelectAutoFallsBack(t *testing.T) {
	d, err := Select("auto", 1)
	require.NoError(t, err)
	assert.Contains(t, []Kind{CPU, CUDA}, d.Kind)
}

func TestForEach(t *testing.T) {
	for _, limit := range []int{0, 1, 4} {
		out := make([]int, 100)
		var calls atomic.Int64
		ForEach(len(out), limit, func(i int) {
			calls.Add(1)
			out[i] = i * i
		})
		assert.Equal(t, int64(100), calls.Load())
		for i, v := range out {
			assert.Equal(t, i*i, v)
		}
	}
	ForEach(0, 4, func(int) { t.Fatal("called for empty range") })
}
