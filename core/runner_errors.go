package core

import (
	"context"
	"errors"
	"fmt"
)

// RemoteErrorKind classifies remote client failures.
type RemoteErrorKind string

const (
	// RemoteErrorTransport is a network-level failure reaching the service.
	RemoteErrorTransport RemoteErrorKind = "transport"
	// RemoteErrorExecution is a non-2xx response from the execution service.
	RemoteErrorExecution RemoteErrorKind = "execution"
	// RemoteErrorGeneration is a non-2xx response from the inference service.
	RemoteErrorGeneration RemoteErrorKind = "generation"
	// RemoteErrorMalformed is a response body with an unexpected shape.
	RemoteErrorMalformed RemoteErrorKind = "malformed"
	// RemoteErrorTimeout is a call that exceeded the operation timeout.
	RemoteErrorTimeout RemoteErrorKind = "timeout"
	// RemoteErrorCanceled is a call canceled by its caller.
	RemoteErrorCanceled RemoteErrorKind = "canceled"
	// RemoteErrorUnknown is an uncategorized failure.
	RemoteErrorUnknown RemoteErrorKind = "unknown"
)

// RemoteError wraps remote client failures with a stable classification.
type RemoteError struct {
	Kind       RemoteErrorKind
	Op         string
	StatusCode int
	Message    string
	Err        error
}

// NewRemoteError constructs a classified remote error.
func NewRemoteError(kind RemoteErrorKind, op string, err error) *RemoteError {
	return &RemoteError{Kind: kind, Op: op, Err: err}
}

func (e *RemoteError) Error() string {
	if e == nil {
		return "remote error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed with status %d", e.Op, e.StatusCode)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s failed", e.Op)
	}
	return "remote error"
}

func (e *RemoteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RemoteErrorKindOf classifies err. Context errors map to timeout or canceled
// even when a client returned them unwrapped.
func RemoteErrorKindOf(err error) RemoteErrorKind {
	if err == nil {
		return ""
	}
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Kind != "" {
		return remote.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return RemoteErrorTimeout
	}
	if errors.Is(err, context.Canceled) {
		return RemoteErrorCanceled
	}
	return RemoteErrorUnknown
}
