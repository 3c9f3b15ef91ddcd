package stats

import (
	"context"

	"github.com/teranos/valstream/errors"
)

// ErrorCode represents the classification of a stage failure
type ErrorCode string

const (
	ErrorCodeSource         ErrorCode = "source_failure"
	ErrorCodeValidator      ErrorCode = "validator_failure"
	ErrorCodeChannelTimeout ErrorCode = "channel_timeout"
	ErrorCodeChannelClosed  ErrorCode = "channel_closed"
	ErrorCodeCanceled       ErrorCode = "canceled"
	ErrorCodeUnknown        ErrorCode = "unknown"
)

// ErrorContext provides structured information about a stage failure
type ErrorContext struct {
	Stage   string    // Where the error occurred
	Code    ErrorCode // Error classification
	Message string    // Human-readable message
	Fatal   bool      // Does the run have to be abandoned?
}

// ClassifyError categorizes an error raised by a stage
func ClassifyError(stage string, err error) ErrorContext {
	if err == nil {
		return ErrorContext{Stage: stage, Code: ErrorCodeUnknown, Message: "unknown error"}
	}

	ec := ErrorContext{
		Stage:   stage,
		Message: err.Error(),
		Fatal:   true,
	}

	switch {
	case errors.Is(err, errors.ErrSourceFailure):
		ec.Code = ErrorCodeSource
	case errors.Is(err, errors.ErrValidatorFailure):
		ec.Code = ErrorCodeValidator
	case errors.Is(err, errors.ErrChannelTimeout):
		ec.Code = ErrorCodeChannelTimeout
	case errors.Is(err, errors.ErrClosed):
		ec.Code = ErrorCodeChannelClosed
	case errors.Is(err, context.Canceled):
		ec.Code = ErrorCodeCanceled
	default:
		ec.Code = ErrorCodeUnknown
	}

	return ec
}
