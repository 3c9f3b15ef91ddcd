package validation

import (
	"context"
	"sync"
	"time"

	"github.com/teranos/valstream/pulse/channel"
	"github.com/teranos/valstream/pulse/stats"
	"github.com/teranos/valstream/record"
)

// Transmitter adapts validator callbacks into a verdict stream. The first
// verdict also records the first_validation_result timestamp. After a send
// fails every later verdict is dropped and Err reports the failure.
type Transmitter struct {
	ctx   context.Context
	runID string
	sink  *stats.Sink
	out   channel.Sender[record.Verdict]
	first sync.Once

	mu    sync.Mutex
	count int
	err   error
}

// NewTransmitter creates a transmitter streaming to out. A nil out only
// records statistics.
func NewTransmitter(ctx context.Context, runID string, sink *stats.Sink, out channel.Sender[record.Verdict]) *Transmitter {
	return &Transmitter{ctx: ctx, runID: runID, sink: sink, out: out}
}

// Send implements shape.Transmitter.
func (t *Transmitter) Send(instance, shapeID string, valid bool, reason string) {
	t.first.Do(func() {
		t.sink.Emit(t.runID, stats.TopicFirstValidationResult, StageName, map[string]any{
			stats.FieldTimestamp: time.Now(),
		})
	})

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return
	}
	if t.out != nil {
		err := t.out.Send(t.ctx, record.Verdict{
			Instance: instance,
			Shape:    shapeID,
			Valid:    valid,
			Reason:   reason,
		})
		if err != nil {
			t.err = err
			return
		}
	}
	t.count++
}

// Count returns the number of verdicts accepted.
func (t *Transmitter) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Err returns the first send failure.
func (t *Transmitter) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
