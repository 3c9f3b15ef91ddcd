package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/valstream/errors"
)

var backends = []struct {
	name     string
	backend  Backend
	capacity int
}{
	{"queue", Queue, 0},
	{"pipe", Pipe, 64},
}

func TestFIFOAndSingleEOF(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			ep, err := New[int](b.backend, b.capacity)
			require.NoError(t, err)

			for i := 0; i < 10; i++ {
				require.NoError(t, ep.Send(ctx, i))
			}
			require.NoError(t, ep.Close(ctx))
			require.NoError(t, ep.Close(ctx), "Close must be idempotent")

			// exactly 10 data messages and one EOF are buffered
			assert.Equal(t, 11, ep.Len())

			for i := 0; i < 10; i++ {
				m, err := ep.Recv(ctx)
				require.NoError(t, err)
				require.Equal(t, Data, m.Kind)
				assert.Equal(t, i, m.Payload)
			}
			m, err := ep.Recv(ctx)
			require.NoError(t, err)
			assert.True(t, m.IsEOF())
			assert.Equal(t, 0, ep.Len())
		})
	}
}

func TestSendAfterClose(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			ep, err := New[string](b.backend, b.capacity)
			require.NoError(t, err)

			require.NoError(t, ep.Close(ctx))
			assert.True(t, errors.Is(ep.Send(ctx, "late"), errors.ErrClosed))
			assert.True(t, errors.Is(ep.Fail(ctx, errors.New("late")), errors.ErrClosed))
			assert.True(t, ep.Closed())
		})
	}
}

func TestRecvAfterEOFIsSticky(t *testing.T) {
	ctx := context.Background()
	ep, err := New[int](Queue, 0)
	require.NoError(t, err)
	require.NoError(t, ep.Close(ctx))

	for i := 0; i < 3; i++ {
		m, err := ep.Recv(ctx)
		require.NoError(t, err)
		assert.True(t, m.IsEOF())
	}
	m, ok, err := ep.Poll(0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, m.IsEOF())
}

func TestExceptionDoesNotTerminate(t *testing.T) {
	ctx := context.Background()
	ep, err := New[int](Queue, 0)
	require.NoError(t, err)

	require.NoError(t, ep.Fail(ctx, errors.New("boom")))
	require.NoError(t, ep.Send(ctx, 1))
	require.NoError(t, ep.Close(ctx))

	m, _ := ep.Recv(ctx)
	require.True(t, m.IsException())
	assert.EqualError(t, m.Err, "boom")

	m, _ = ep.Recv(ctx)
	assert.Equal(t, 1, m.Payload)

	m, _ = ep.Recv(ctx)
	assert.True(t, m.IsEOF())
}

func TestPollTimesOutWithoutError(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ep, err := New[int](b.backend, b.capacity)
			require.NoError(t, err)

			start := time.Now()
			_, ok, err := ep.Poll(20 * time.Millisecond)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

			_, ok, err = ep.Poll(0)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestPollSeesLateSend(t *testing.T) {
	ep, err := New[int](Queue, 0)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		ep.Send(context.Background(), 7)
	}()

	m, ok, err := ep.Poll(2 * time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, m.Payload)
}

func TestPipeBlocksWhenFull(t *testing.T) {
	ep, err := New[int](Pipe, 2)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, ep.Send(ctx, 1))
	require.NoError(t, ep.Send(ctx, 2))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err = ep.Send(short, 3)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "third send should block until deadline, got %v", err)

	m, _ := ep.Recv(ctx)
	assert.Equal(t, 1, m.Payload)
	require.NoError(t, ep.Send(ctx, 3))
}

func TestQueueNeverBlocks(t *testing.T) {
	ep, err := New[int](Queue, 1)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			ep.Send(context.Background(), i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queue sends blocked without a consumer")
	}
	assert.Equal(t, 10000, ep.Len())
}

func TestInvalidateUnblocks(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ep, err := New[int](b.backend, 1)
			require.NoError(t, err)

			var wg sync.WaitGroup
			wg.Add(1)
			var recvErr error
			go func() {
				defer wg.Done()
				_, recvErr = ep.Recv(context.Background())
			}()

			time.Sleep(10 * time.Millisecond)
			ep.Invalidate()
			ep.Invalidate()
			wg.Wait()

			assert.True(t, errors.Is(recvErr, ErrInvalidated))
			assert.True(t, errors.Is(recvErr, errors.ErrClosed))
			assert.True(t, errors.Is(ep.Send(context.Background(), 1), ErrInvalidated))
		})
	}
}

func TestConcurrentProducersOnQueue(t *testing.T) {
	ep, err := New[int](Queue, 0)
	require.NoError(t, err)

	const producers, each = 8, 250
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				ep.Send(context.Background(), i)
			}
		}()
	}
	wg.Wait()
	require.NoError(t, ep.Close(context.Background()))

	count := 0
	for {
		m, err := ep.Recv(context.Background())
		require.NoError(t, err)
		if m.IsEOF() {
			break
		}
		count++
	}
	assert.Equal(t, producers*each, count)
}

func TestNewRejectsBadBackend(t *testing.T) {
	_, err := New[int]("ring", 1)
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = New[int](Pipe, 0)
	assert.True(t, errors.IsInvalidRequestError(err))

	b, err := ParseBackend("pipe")
	require.NoError(t, err)
	assert.Equal(t, Pipe, b)
	_, err = ParseBackend("")
	assert.Error(t, err)
}

func TestCollect(t *testing.T) {
	ctx := context.Background()
	for _, backend := range []Backend{Queue, Pipe} {
		ep, err := New[string](backend, 8)
		require.NoError(t, err)
		require.NoError(t, ep.Send(ctx, "a"))
		require.NoError(t, ep.Send(ctx, "b"))
		require.NoError(t, ep.Close(ctx))

		got, err := Collect[string](ctx, ep)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, got, "backend %s", backend)
	}

	ep, _ := New[string](Queue, 0)
	require.NoError(t, ep.Send(ctx, "a"))
	require.NoError(t, ep.Fail(ctx, errors.New("boom")))
	got, err := Collect[string](ctx, ep)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"a"}, got)
}
