// Package stats is the statistics and exception side-channel shared by all
// runners. The sink lives as long as the process; every message carries the
// identifier of the run that produced it.
package stats

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/valstream/errors"
)

// Message is one statistics record.
type Message struct {
	RunID  string
	Topic  Topic
	Stage  string
	Fields map[string]any
	Err    error
	Time   time.Time
}

// releasedMemory bounds how many released run ids the sink remembers.
const releasedMemory = 256

// Sink collects statistics messages per run.
type Sink struct {
	mu       sync.Mutex
	runs     map[string][]Message
	released map[string]struct{}
	recent   []string // released ids, oldest first
	changed  chan struct{}
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewSink creates an empty sink.
func NewSink(logger *zap.SugaredLogger) *Sink {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Sink{
		runs:     make(map[string][]Message),
		released: make(map[string]struct{}),
		changed:  make(chan struct{}),
		logger:   logger,
		now:      time.Now,
	}
}

// Emit records a one-shot statistics message.
func (s *Sink) Emit(runID string, topic Topic, stage string, fields map[string]any) {
	s.push(Message{RunID: runID, Topic: topic, Stage: stage, Fields: fields})
}

// Exception records a fatal stage error for runID.
func (s *Sink) Exception(runID, stage string, err error) {
	ec := ClassifyError(stage, err)
	s.logger.Errorw("Stage failed",
		"run_id", runID,
		"stage", stage,
		"error_code", ec.Code,
		"error", err)
	s.push(Message{
		RunID:  runID,
		Topic:  TopicException,
		Stage:  stage,
		Err:    err,
		Fields: map[string]any{FieldErrorCode: string(ec.Code)},
	})
}

// Timeout records that a stage gave up waiting on an input. A timeout is not
// an exception: LookForException ignores it and the run driver answers it
// with a restart.
func (s *Sink) Timeout(runID, stage string, err error) {
	s.logger.Warnw("Stage timed out",
		"run_id", runID,
		"stage", stage,
		"error", err)
	s.push(Message{
		RunID:  runID,
		Topic:  TopicTimeout,
		Stage:  stage,
		Err:    err,
		Fields: map[string]any{FieldErrorCode: string(ErrorCodeChannelTimeout)},
	})
}

// LookForTimeout returns the first timeout recorded for runID.
func (s *Sink) LookForTimeout(runID string) (Message, bool) {
	return s.Get(runID, TopicTimeout)
}

func (s *Sink) push(m Message) {
	s.mu.Lock()
	if _, gone := s.released[m.RunID]; gone {
		s.mu.Unlock()
		s.logger.Debugw("Dropping statistics for released run", "run_id", m.RunID, "topic", m.Topic)
		return
	}
	if m.Time.IsZero() {
		m.Time = s.now()
	}
	s.runs[m.RunID] = append(s.runs[m.RunID], m)
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

// LookForException returns the first exception recorded for runID without
// consuming anything.
func (s *Sink) LookForException(runID string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.runs[runID] {
		if m.Topic == TopicException {
			return m, true
		}
	}
	return Message{}, false
}

// Exceptions returns every exception recorded for runID.
func (s *Sink) Exceptions(runID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.runs[runID] {
		if m.Topic == TopicException {
			out = append(out, m)
		}
	}
	return out
}

// Get returns the first message for runID and topic.
func (s *Sink) Get(runID string, topic Topic) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.runs[runID] {
		if m.Topic == topic {
			return m, true
		}
	}
	return Message{}, false
}

// Expect waits until every topic has been recorded for runID. It returns early
// with the exception's error when a stage fails, and with ErrChannelTimeout
// when timeout elapses first.
func (s *Sink) Expect(ctx context.Context, runID string, topics []Topic, timeout time.Duration) (map[Topic]Message, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		found := make(map[Topic]Message, len(topics))
		var exc, hung *Message
		for i, m := range s.runs[runID] {
			if m.Topic == TopicException && exc == nil {
				exc = &s.runs[runID][i]
			}
			if m.Topic == TopicTimeout && hung == nil {
				hung = &s.runs[runID][i]
			}
			if _, seen := found[m.Topic]; !seen {
				found[m.Topic] = m
			}
		}
		wait := s.changed
		s.mu.Unlock()

		if exc != nil {
			return nil, errors.Wrapf(exc.Err, "stage %s failed", exc.Stage)
		}
		if hung != nil {
			return nil, errors.Wrapf(errors.ErrChannelTimeout, "stage %s timed out", hung.Stage)
		}
		complete := true
		for _, t := range topics {
			if _, ok := found[t]; !ok {
				complete = false
				break
			}
		}
		if complete {
			return found, nil
		}

		select {
		case <-wait:
		case <-deadline.C:
			return nil, errors.Wrapf(errors.ErrChannelTimeout, "waiting for statistics of run %s", runID)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Drain removes and returns all messages recorded for runID.
func (s *Sink) Drain(runID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.runs[runID]
	delete(s.runs, runID)
	return msgs
}

// Release drains runID and drops anything recorded for it afterwards, such as
// the exit of a stage that outlived its run.
func (s *Sink) Release(runID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.runs[runID]
	delete(s.runs, runID)
	if _, ok := s.released[runID]; ok {
		return msgs
	}
	s.released[runID] = struct{}{}
	s.recent = append(s.recent, runID)
	if len(s.recent) > releasedMemory {
		delete(s.released, s.recent[0])
		s.recent = s.recent[1:]
	}
	return msgs
}

// Reset discards everything; used after a restart so no run inherits residue.
// Released run ids are remembered across a reset.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = make(map[string][]Message)
}

// Pending returns the number of runs with recorded messages.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Int reads an integer field, tolerating the numeric types stages emit.
func (m Message) Int(field string) int {
	switch v := m.Fields[field].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Duration reads a time.Duration field.
func (m Message) Duration(field string) time.Duration {
	if d, ok := m.Fields[field].(time.Duration); ok {
		return d
	}
	return 0
}

// Timestamp reads a time.Time field, falling back to the message time.
func (m Message) Timestamp(field string) time.Time {
	if ts, ok := m.Fields[field].(time.Time); ok {
		return ts
	}
	return m.Time
}
