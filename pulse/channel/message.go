// Package channel provides the typed message channels that connect pipeline stages.
//
// Every stream is a sequence of Data messages terminated by exactly one
// EndOfStream. Exception messages report a fatal error and may appear before
// the terminator. Two interchangeable backends exist: an unbounded queue that
// never blocks the producer, and a bounded pipe whose sends block once the
// buffer is full.
package channel

import (
	"fmt"
)

// Kind discriminates the Message union.
type Kind int

const (
	Data Kind = iota
	EndOfStream
	Exception
)

func (k Kind) String() string {
	switch k {
	case Data:
		return "data"
	case EndOfStream:
		return "eof"
	case Exception:
		return "exception"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is one item on a channel. Payload is set only for Data, Err only for Exception.
type Message[T any] struct {
	Kind    Kind
	Payload T
	Err     error
}

// DataOf wraps v in a Data message.
func DataOf[T any](v T) Message[T] {
	return Message[T]{Kind: Data, Payload: v}
}

// EOF returns the stream terminator.
func EOF[T any]() Message[T] {
	return Message[T]{Kind: EndOfStream}
}

// Failure wraps err in an Exception message.
func Failure[T any](err error) Message[T] {
	return Message[T]{Kind: Exception, Err: err}
}

// IsEOF reports whether m terminates the stream.
func (m Message[T]) IsEOF() bool { return m.Kind == EndOfStream }

// IsException reports whether m carries an error.
func (m Message[T]) IsException() bool { return m.Kind == Exception }
