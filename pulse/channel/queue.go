package channel

import (
	"context"
	"sync"
)

// queue is an unbounded FIFO. put never blocks.
type queue[T any] struct {
	mu     sync.Mutex
	items  []Message[T]
	notify chan struct{}
	dead   chan struct{}
	once   sync.Once
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{
		notify: make(chan struct{}, 1),
		dead:   make(chan struct{}),
	}
}

func (q *queue[T]) put(_ context.Context, m Message[T]) error {
	q.mu.Lock()
	select {
	case <-q.dead:
		q.mu.Unlock()
		return ErrInvalidated
	default:
	}
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// pop removes the head under the lock. The caller must hold q.mu.
func (q *queue[T]) pop() Message[T] {
	m := q.items[0]
	var zero Message[T]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return m
}

func (q *queue[T]) tryGet() (Message[T], bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case <-q.dead:
		return Message[T]{}, false, ErrInvalidated
	default:
	}
	if len(q.items) == 0 {
		return Message[T]{}, false, nil
	}
	return q.pop(), true, nil
}

func (q *queue[T]) get(ctx context.Context) (Message[T], error) {
	for {
		m, ok, err := q.tryGet()
		if err != nil {
			return Message[T]{}, err
		}
		if ok {
			return m, nil
		}

		select {
		case <-q.notify:
		case <-q.dead:
			return Message[T]{}, ErrInvalidated
		case <-ctx.Done():
			return Message[T]{}, ctx.Err()
		}
	}
}

func (q *queue[T]) invalidate() {
	q.once.Do(func() {
		q.mu.Lock()
		close(q.dead)
		q.items = nil
		q.mu.Unlock()
	})
}

func (q *queue[T]) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
