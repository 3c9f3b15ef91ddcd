// Package errors provides error handling for valstream.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Wrap with context
//	if err := client.Select(ctx, q, -1, fn); err != nil {
//	    return errors.Wrap(errors.ErrSourceFailure, err.Error())
//	}
//
//	// Distinguish a hang from a crash
//	if errors.IsTimeout(err) {
//	    engine.Restart()
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Assertions and panics
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors shared by the pipeline stages.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrInvalidRequest indicates the run request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = New("operation timed out")

	// ErrChannelTimeout indicates a queue read did not complete in time.
	// It is a hang, not a crash, and is never carried as an Exception message.
	ErrChannelTimeout = Wrap(ErrTimeout, "channel read")

	// ErrSourceFailure indicates the data source could not be contacted or answered badly
	ErrSourceFailure = New("source failure")

	// ErrValidatorFailure indicates the constraint validator failed
	ErrValidatorFailure = New("validator failure")

	// ErrClosed indicates a send on a channel that already carried EndOfStream
	ErrClosed = New("channel closed")

	// ErrNotAlive indicates a task was submitted to a stopped runner
	ErrNotAlive = New("runner not alive")
)

// IsTimeout reports whether err is or wraps ErrTimeout (including ErrChannelTimeout)
func IsTimeout(err error) bool {
	return err != nil && Is(err, ErrTimeout)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}

// SourceFailure marks err as a data source failure
func SourceFailure(err error) error {
	if err == nil {
		return nil
	}
	return WithSecondaryError(Wrap(ErrSourceFailure, err.Error()), err)
}

// ValidatorFailure marks err as a validator failure
func ValidatorFailure(err error) error {
	if err == nil {
		return nil
	}
	return WithSecondaryError(Wrap(ErrValidatorFailure, err.Error()), err)
}
