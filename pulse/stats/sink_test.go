package stats

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/valstream/errors"
)

func newTestSink() *Sink {
	return NewSink(zap.NewNop().Sugar())
}

func TestEmitAndGet(t *testing.T) {
	s := newTestSink()
	s.Emit("run-1", TopicContactSource, "source", map[string]any{FieldRows: 3, FieldElapsed: 2 * time.Second})

	m, ok := s.Get("run-1", TopicContactSource)
	require.True(t, ok)
	assert.Equal(t, 3, m.Int(FieldRows))
	assert.Equal(t, 2*time.Second, m.Duration(FieldElapsed))
	assert.False(t, m.Time.IsZero())

	_, ok = s.Get("run-2", TopicContactSource)
	assert.False(t, ok, "messages are scoped to their run")
}

func TestLookForExceptionIsNonDestructive(t *testing.T) {
	s := newTestSink()
	s.Emit("run-1", TopicXJoin, "xjoin", nil)
	s.Exception("run-1", "validation", errors.ValidatorFailure(errors.New("shape missing")))

	for i := 0; i < 2; i++ {
		m, ok := s.LookForException("run-1")
		require.True(t, ok)
		assert.Equal(t, "validation", m.Stage)
		assert.True(t, errors.Is(m.Err, errors.ErrValidatorFailure))
		assert.Equal(t, string(ErrorCodeValidator), m.Fields[FieldErrorCode])
	}

	_, ok := s.Get("run-1", TopicXJoin)
	assert.True(t, ok)
	assert.Len(t, s.Exceptions("run-1"), 1)
}

func TestExpectWaitsForAllTopics(t *testing.T) {
	s := newTestSink()
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Emit("r", TopicContactSource, "source", map[string]any{FieldRows: 1})
		time.Sleep(10 * time.Millisecond)
		s.Emit("r", TopicPostProcessing, "post_processing", map[string]any{FieldRows: 1})
	}()

	got, err := s.Expect(context.Background(), "r", []Topic{TopicContactSource, TopicPostProcessing}, 2*time.Second)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestExpectTimesOutDistinctly(t *testing.T) {
	s := newTestSink()
	_, err := s.Expect(context.Background(), "r", []Topic{TopicXJoin}, 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrChannelTimeout))
	assert.True(t, errors.IsTimeout(err))
}

func TestExpectReturnsException(t *testing.T) {
	s := newTestSink()
	go func() {
		time.Sleep(5 * time.Millisecond)
		s.Exception("r", "source", errors.SourceFailure(errors.New("refused")))
	}()

	_, err := s.Expect(context.Background(), "r", []Topic{TopicContactSource}, 2*time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSourceFailure))
	assert.False(t, errors.IsTimeout(err))
}

func TestTimeoutIsNotAnException(t *testing.T) {
	s := newTestSink()
	s.Timeout("r", "post_processing", errors.Wrap(errors.ErrChannelTimeout, "raw bindings"))

	_, isException := s.LookForException("r")
	assert.False(t, isException)
	m, ok := s.LookForTimeout("r")
	require.True(t, ok)
	assert.Equal(t, "post_processing", m.Stage)

	_, err := s.Expect(context.Background(), "r", []Topic{TopicPostProcessing}, time.Second)
	assert.True(t, errors.IsTimeout(err))
}

func TestDrainAndReset(t *testing.T) {
	s := newTestSink()
	s.Emit("a", TopicXJoin, "xjoin", nil)
	s.Emit("b", TopicXJoin, "xjoin", nil)

	assert.Len(t, s.Drain("a"), 1)
	assert.Len(t, s.Drain("a"), 0)
	assert.Equal(t, 1, s.Pending())

	s.Reset()
	assert.Equal(t, 0, s.Pending())
}

func TestReleasedRunDropsLateMessages(t *testing.T) {
	s := newTestSink()
	s.Emit("gone", TopicContactSource, "source", nil)

	assert.Len(t, s.Release("gone"), 1)
	s.Exception("gone", "post_processing", errors.New("send on invalidated channel"))
	s.Timeout("gone", "xjoin", errors.ErrChannelTimeout)
	s.Emit("gone", TopicXJoin, "xjoin", nil)

	assert.Equal(t, 0, s.Pending(), "late messages of a released run are dropped")
	_, ok := s.LookForException("gone")
	assert.False(t, ok)

	s.Emit("live", TopicXJoin, "xjoin", nil)
	assert.Equal(t, 1, s.Pending())
	assert.Len(t, s.Release("gone"), 0)
}

func TestReleasedMemoryIsBounded(t *testing.T) {
	s := newTestSink()
	for i := 0; i <= releasedMemory; i++ {
		s.Release(fmt.Sprintf("run-%d", i))
	}
	assert.Len(t, s.recent, releasedMemory)
	assert.Len(t, s.released, releasedMemory)

	// the oldest id is forgotten first
	s.Emit("run-0", TopicXJoin, "xjoin", nil)
	s.Emit("run-1", TopicXJoin, "xjoin", nil)
	assert.Equal(t, 1, s.Pending())
}

func TestConcurrentEmit(t *testing.T) {
	s := newTestSink()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Emit("r", TopicXJoin, "xjoin", nil)
		}()
	}
	wg.Wait()
	assert.Len(t, s.Drain("r"), 50)
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{errors.SourceFailure(errors.New("x")), ErrorCodeSource},
		{errors.ValidatorFailure(errors.New("x")), ErrorCodeValidator},
		{errors.Wrap(errors.ErrChannelTimeout, "post"), ErrorCodeChannelTimeout},
		{errors.ErrClosed, ErrorCodeChannelClosed},
		{context.Canceled, ErrorCodeCanceled},
		{errors.New("mystery"), ErrorCodeUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifyError("s", c.err).Code, "error %v", c.err)
	}
	assert.Equal(t, ErrorCodeUnknown, ClassifyError("s", nil).Code)
}
