package channel

import (
	"context"
	"sync"
)

// pipe is a bounded FIFO over a buffered Go channel. put blocks while full.
type pipe[T any] struct {
	ch   chan Message[T]
	dead chan struct{}
	once sync.Once
}

func newPipe[T any](capacity int) *pipe[T] {
	return &pipe[T]{
		ch:   make(chan Message[T], capacity),
		dead: make(chan struct{}),
	}
}

func (p *pipe[T]) put(ctx context.Context, m Message[T]) error {
	select {
	case <-p.dead:
		return ErrInvalidated
	default:
	}

	select {
	case p.ch <- m:
		return nil
	case <-p.dead:
		return ErrInvalidated
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipe[T]) tryGet() (Message[T], bool, error) {
	select {
	case <-p.dead:
		return Message[T]{}, false, ErrInvalidated
	default:
	}

	select {
	case m := <-p.ch:
		return m, true, nil
	default:
		return Message[T]{}, false, nil
	}
}

func (p *pipe[T]) get(ctx context.Context) (Message[T], error) {
	select {
	case <-p.dead:
		return Message[T]{}, ErrInvalidated
	default:
	}

	select {
	case m := <-p.ch:
		return m, nil
	case <-p.dead:
		return Message[T]{}, ErrInvalidated
	case <-ctx.Done():
		return Message[T]{}, ctx.Err()
	}
}

// invalidate never closes ch; a sender racing with invalidate would panic.
func (p *pipe[T]) invalidate() {
	p.once.Do(func() {
		close(p.dead)
	})
}

func (p *pipe[T]) size() int {
	return len(p.ch)
}
