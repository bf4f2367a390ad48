package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMapHeight  = errors.New("invalid environment map height")
	ErrConversion        = errors.New("texture conversion failed")
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	ErrInvalidTexture    = errors.New("invalid texture")
	ErrDispatch          = errors.New("environment map dispatch failed")
	ErrClosed            = errors.New("mapper is closed")
)

// CapabilityError reports that the compute device cannot run the environment
// map kernel. It is fatal for the mapper: callers disable environment mapping
// instead of retrying.
type CapabilityError struct {
	Stage  string // instance, adapter, device, shader, layout, pipeline
	Reason string
	Err    error
}

func (e *CapabilityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("environment mapping unavailable (%s): %s: %v", e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("environment mapping unavailable (%s): %s", e.Stage, e.Reason)
}

func (e *CapabilityError) Unwrap() error { return e.Err }
