package core

import (
	"errors"
)

var (
	// ErrDeviceLost means the GPU stopped responding; no further
	// submissions will succeed.
	ErrDeviceLost = errors.New("device lost")
	// ErrReleased means an operation touched an already-released
	// resource.
	ErrReleased = errors.New("resource released")
)
