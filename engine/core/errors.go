package core

import (
	"errors"
)

// Usage errors. The call site is wrong; retrying will not help.
var (
	ErrInvalidSubresource = errors.New("invalid subresource")
	ErrAlreadyRecording   = errors.New("session is already recording")
	ErrNotRecording       = errors.New("session is not recording")
	ErrNoFramebufferSet   = errors.New("no framebuffer set")
	ErrNoPipelineSet      = errors.New("no pipeline set")
	ErrOutOfRange         = errors.New("out of range")
	ErrInvalidOperation   = errors.New("invalid operation")
	ErrDimensionMismatch  = errors.New("dimension mismatch")
)

// Unsupported-configuration errors. The abstraction was extended without
// updating the state tracker.
var (
	ErrUnsupportedTransition = errors.New("unsupported layout transition")
	ErrUnsupportedResource   = errors.New("unsupported resource binding")
)

// Resource exhaustion.
var (
	ErrResourceAllocation = errors.New("resource allocation failure")
)

type ErrorClass int

const (
	ErrorClassUnknown ErrorClass = iota
	ErrorClassUsage
	ErrorClassConfiguration
	ErrorClassExhaustion
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassUsage:
		return "usage"
	case ErrorClassConfiguration:
		return "configuration"
	case ErrorClassExhaustion:
		return "exhaustion"
	}
	return "unknown"
}

var usageErrors = [...]error{
	ErrInvalidSubresource,
	ErrAlreadyRecording,
	ErrNotRecording,
	ErrNoFramebufferSet,
	ErrNoPipelineSet,
	ErrOutOfRange,
	ErrInvalidOperation,
	ErrDimensionMismatch,
}

// ClassOf reports which part of the error taxonomy err belongs to.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	switch {
	case errors.Is(err, ErrUnsupportedTransition), errors.Is(err, ErrUnsupportedResource):
		return ErrorClassConfiguration
	case errors.Is(err, ErrResourceAllocation):
		return ErrorClassExhaustion
	}
	for _, e := range usageErrors {
		if errors.Is(err, e) {
			return ErrorClassUsage
		}
	}
	return ErrorClassUnknown
}

// IsFatal reports whether err indicates a broken abstraction or an exhausted
// device rather than a caller mistake.
func IsFatal(err error) bool {
	c := ClassOf(err)
	return c == ErrorClassConfiguration || c == ErrorClassExhaustion
}
