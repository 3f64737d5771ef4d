package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies action failures.
type ErrorKind int

const (
	// TransientIO covers network and filesystem errors that may succeed on retry.
	TransientIO ErrorKind = iota

	// MalformedInput means an input could not be decoded. Never retried.
	MalformedInput

	// ResourceUnavailable means a required tool or encoder is missing or
	// every fallback failed.
	ResourceUnavailable

	// DependencyFailed is recorded for actions whose inputs never materialized.
	DependencyFailed
)

// String returns the kebab-case name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case TransientIO:
		return "transient-io"
	case MalformedInput:
		return "malformed-input"
	case ResourceUnavailable:
		return "resource-unavailable"
	case DependencyFailed:
		return "dependency-failed"
	default:
		return "unknown"
	}
}

// Error is a classified action error.
type Error struct {
	Kind ErrorKind
	Op   string

	// Reason names the failure in reports, e.g. "encode-exhausted". The
	// kind's name is reported when empty.
	Reason string

	Err error
}

// NewError wraps err with a kind and the operation that failed.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithReason sets the reported reason of e and returns e.
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	return e
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain. Unclassified
// errors are treated as TransientIO, since plain filesystem and network
// errors make up nearly all of them.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return TransientIO
}

// ReasonOf returns the first reason set on an *Error in err's chain,
// falling back to the name of KindOf(err).
func ReasonOf(err error) string {
	for cur := err; cur != nil; {
		var e *Error
		if !errors.As(cur, &e) {
			break
		}
		if e.Reason != "" {
			return e.Reason
		}
		cur = e.Err
	}
	return KindOf(err).String()
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return KindOf(err) == TransientIO
}
