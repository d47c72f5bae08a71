package remote

import (
	"context"
	"errors"
	"fmt"
)

// Reason classifies why a remote prediction failed.
type Reason string

const (
	ReasonTimeout Reason = "timeout"
	ReasonNetwork Reason = "network"
	ReasonServer  Reason = "server"
	ReasonFormat  Reason = "format"
)

// Error is a classified remote prediction failure.
type Error struct {
	Reason     Reason
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote %s error (status %d): %v", e.Reason, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote %s error: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed.
func (e *Error) Retryable() bool {
	switch e.Reason {
	case ReasonNetwork:
		return true
	case ReasonServer:
		return e.StatusCode >= 500
	default:
		return false
	}
}

// ReasonOf returns the failure class of err. Errors that are not *Error are
// classified as timeout when a deadline expired and network otherwise.
func ReasonOf(err error) Reason {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonNetwork
}
