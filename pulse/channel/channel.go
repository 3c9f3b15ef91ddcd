package channel

import (
	"context"
	"sync"
	"time"

	"github.com/teranos/valstream/errors"
)

// Backend selects the transport behind an Endpoint.
type Backend string

const (
	// Queue is unbounded, multi-producer safe and never blocks a sender.
	Queue Backend = "queue"
	// Pipe is bounded; Send blocks while the buffer is full.
	Pipe Backend = "pipe"
)

// ErrInvalidated is returned by every operation on an endpoint after its
// runner stopped. Invalidated endpoints are never revived.
var ErrInvalidated = errors.Wrap(errors.ErrClosed, "channel invalidated")

// ParseBackend converts a configuration string into a Backend.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case Queue, Pipe:
		return Backend(s), nil
	default:
		return "", errors.NewInvalidRequestError("unknown channel backend %q", s)
	}
}

// Sender is the producer half of a channel.
type Sender[T any] interface {
	Send(ctx context.Context, v T) error
	Fail(ctx context.Context, err error) error
	Close(ctx context.Context) error
}

// Receiver is the consumer half of a channel.
type Receiver[T any] interface {
	Recv(ctx context.Context) (Message[T], error)
	Poll(timeout time.Duration) (Message[T], bool, error)
}

// Terminator is what a runner needs to finish a stage's outputs: an
// idempotent Close.
type Terminator interface {
	Close(ctx context.Context) error
}

// Invalidator is implemented by endpoints a runner tears down on stop.
type Invalidator interface {
	Invalidate()
}

// transport is the storage behind an Endpoint.
type transport[T any] interface {
	put(ctx context.Context, m Message[T]) error
	get(ctx context.Context) (Message[T], error)
	tryGet() (Message[T], bool, error)
	invalidate()
	size() int
}

// Endpoint is a sender/receiver pair over one transport. One producer and one
// logical consumer per endpoint per run.
type Endpoint[T any] struct {
	backend Backend
	t       transport[T]

	// producer side
	sendMu sync.Mutex
	closed bool

	// consumer side
	recvMu  sync.Mutex
	eofSeen bool
}

var (
	_ Sender[int]   = (*Endpoint[int])(nil)
	_ Receiver[int] = (*Endpoint[int])(nil)
	_ Terminator    = (*Endpoint[int])(nil)
	_ Invalidator   = (*Endpoint[int])(nil)
)

// New creates an endpoint on the given backend. capacity bounds the pipe
// buffer and is ignored by the queue.
func New[T any](backend Backend, capacity int) (*Endpoint[T], error) {
	switch backend {
	case Queue:
		return &Endpoint[T]{backend: backend, t: newQueue[T]()}, nil
	case Pipe:
		if capacity <= 0 {
			return nil, errors.NewInvalidRequestError("pipe capacity must be > 0, got %d", capacity)
		}
		return &Endpoint[T]{backend: backend, t: newPipe[T](capacity)}, nil
	default:
		return nil, errors.NewInvalidRequestError("unknown channel backend %q", backend)
	}
}

// Backend returns the transport kind.
func (e *Endpoint[T]) Backend() Backend { return e.backend }

// Len returns the number of buffered messages.
func (e *Endpoint[T]) Len() int { return e.t.size() }

// Send enqueues v as a Data message. Sending after Close returns ErrClosed.
func (e *Endpoint[T]) Send(ctx context.Context, v T) error {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	if e.closed {
		return errors.ErrClosed
	}
	return e.t.put(ctx, DataOf(v))
}

// Fail enqueues an Exception message. The stream stays open; the producer
// still owes an EndOfStream.
func (e *Endpoint[T]) Fail(ctx context.Context, err error) error {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	if e.closed {
		return errors.ErrClosed
	}
	return e.t.put(ctx, Failure[T](err))
}

// Close enqueues the single EndOfStream. Further calls are no-ops.
func (e *Endpoint[T]) Close(ctx context.Context) error {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	if e.closed {
		return nil
	}
	if err := e.t.put(ctx, EOF[T]()); err != nil {
		return err
	}
	e.closed = true
	return nil
}

// Closed reports whether EndOfStream was sent.
func (e *Endpoint[T]) Closed() bool {
	e.sendMu.Lock()
	defer e.sendMu.Unlock()
	return e.closed
}

// Recv blocks until a message arrives or ctx is done. Once EndOfStream was
// received, Recv keeps returning it without blocking.
func (e *Endpoint[T]) Recv(ctx context.Context) (Message[T], error) {
	e.recvMu.Lock()
	defer e.recvMu.Unlock()
	if e.eofSeen {
		return EOF[T](), nil
	}
	m, err := e.t.get(ctx)
	if err != nil {
		return Message[T]{}, err
	}
	if m.IsEOF() {
		e.eofSeen = true
	}
	return m, nil
}

// Poll waits at most timeout for a message. ok is false when nothing arrived.
// A non-positive timeout checks without waiting.
func (e *Endpoint[T]) Poll(timeout time.Duration) (Message[T], bool, error) {
	e.recvMu.Lock()
	defer e.recvMu.Unlock()
	if e.eofSeen {
		return EOF[T](), true, nil
	}

	var (
		m   Message[T]
		ok  bool
		err error
	)
	if timeout <= 0 {
		m, ok, err = e.t.tryGet()
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		m, err = e.t.get(ctx)
		cancel()
		ok = err == nil
		if errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
	}
	if err != nil || !ok {
		return Message[T]{}, false, err
	}
	if m.IsEOF() {
		e.eofSeen = true
	}
	return m, true, nil
}

// Invalidate tears the endpoint down. Blocked senders and receivers return
// ErrInvalidated and buffered messages are discarded.
func (e *Endpoint[T]) Invalidate() {
	e.t.invalidate()
}
