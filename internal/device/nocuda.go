//go:build !cuda

package device

import "errors"

type accelerator struct {
	name string
}

func openAccelerator() (*accelerator, error) {
	return nil, errors.New("built without cuda support")
}
