package core

import (
	"errors"
	"fmt"
)

var (
	ErrMissingBufferView           = errors.New("accessor missing buffer view")
	ErrMissingURI                  = errors.New("buffer missing uri")
	ErrMissingField                = errors.New("missing required field")
	ErrUnknownComponentType        = errors.New("unknown component type")
	ErrUnknownAccessorType         = errors.New("unknown accessor type")
	ErrIndexOutOfRange             = errors.New("index out of range")
	ErrBadArity                    = errors.New("wrong number of components")
	ErrNodeCycle                   = errors.New("node referenced more than once")
	ErrUnsupportedLayoutTransition = errors.New("unsupported layout transition")
	ErrDeviceNotIdle               = errors.New("device not confirmed idle")
	ErrRangeOutOfBounds            = errors.New("range outside of allocation")
	ErrSamplerMismatch             = errors.New("sampler parameters mismatch")
	ErrDestroyed                   = errors.New("resource already destroyed")
	ErrUnknown                     = errors.New("unknown")
)

type LoadErrorKind int

const (
	MalformedAsset LoadErrorKind = iota
	IOFailure
)

func (k LoadErrorKind) String() string {
	switch k {
	case MalformedAsset:
		return "malformed asset"
	case IOFailure:
		return "i/o failure"
	}
	return "unknown"
}

// LoadError reports a document that cannot be turned into a scene, either
// because its content is invalid or because a file could not be read.
type LoadError struct {
	Kind LoadErrorKind
	Op   string
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func NewMalformedError(op, path string, err error) *LoadError {
	return &LoadError{Kind: MalformedAsset, Op: op, Path: path, Err: err}
}

func NewIOError(op, path string, err error) *LoadError {
	return &LoadError{Kind: IOFailure, Op: op, Path: path, Err: err}
}

// DeviceError carries the raw result code of a failed GPU call.
type DeviceError struct {
	Op   string
	Code int32
	Name string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s failed with %s (%d)", e.Op, e.Name, e.Code)
}

// AllocationError is returned once descriptor allocation has exhausted its
// single retry.
type AllocationError struct {
	Op  string
	Err error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation failed: %s: %v", e.Op, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }
