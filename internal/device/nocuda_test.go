//go:build !cuda

package device

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectCUDARequiredWithoutSupport(t *testing.T) {
	_, err := Select("cuda", 1)
	require.ErrorIs(t, err, ErrAcceleratorUnavailable)
}
