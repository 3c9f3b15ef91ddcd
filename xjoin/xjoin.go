// Package xjoin implements the adaptive, non-blocking symmetric hash join
// between the verdict stream (left) and the query-solution stream (right).
//
// Each arriving tuple is inserted into its side's table and probed against
// the other side, so results flow as soon as both halves of a match exist,
// whatever the relative speed of the producers. Once both inputs are
// exhausted, right tuples whose key never met a verdict are forwarded once
// with a nil verdict.
package xjoin

import (
	"context"
	"time"

	"github.com/teranos/valstream/errors"
	"github.com/teranos/valstream/pulse/channel"
	"github.com/teranos/valstream/record"
)

// DefaultPollTimeout bounds how long one Step waits when neither side has
// anything buffered.
const DefaultPollTimeout = 10 * time.Millisecond

// Counts summarises the pairs produced.
type Counts struct {
	Pairs     int `json:"pairs"`
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
	Left      int `json:"left"`
	Right     int `json:"right"`
}

type side int

const (
	left side = iota
	right
)

// XJoin is the join state for one run.
type XJoin struct {
	leftIn  channel.Receiver[record.Verdict]
	rightIn channel.Receiver[record.JoinTuple]
	out     channel.Sender[record.Pair]
	poll    time.Duration

	leftTable  map[string][]record.Verdict
	rightTable map[string][]record.JoinTuple
	rightSeen  []record.JoinTuple // arrival order, for the unmatched tail

	leftBuf  *channel.Message[record.Verdict]
	rightBuf *channel.Message[record.JoinTuple]
	leftEOF  bool
	rightEOF bool
	turn     side
	finished bool

	counts Counts
}

// New creates a join reading verdicts and tuples and writing pairs to out.
// A non-positive poll uses DefaultPollTimeout.
func New(verdicts channel.Receiver[record.Verdict], tuples channel.Receiver[record.JoinTuple], out channel.Sender[record.Pair], poll time.Duration) *XJoin {
	if poll <= 0 {
		poll = DefaultPollTimeout
	}
	return &XJoin{
		leftIn:     verdicts,
		rightIn:    tuples,
		out:        out,
		poll:       poll,
		leftTable:  make(map[string][]record.Verdict),
		rightTable: make(map[string][]record.JoinTuple),
	}
}

// Step processes at most one input message. It returns true once both inputs
// are exhausted and the unmatched tail has been forwarded. A read error halts
// the join; the tail is not forwarded.
func (x *XJoin) Step(ctx context.Context) (bool, error) {
	if x.finished {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if err := x.fill(); err != nil {
		return false, err
	}

	switch {
	case x.leftBuf != nil && x.rightBuf != nil:
		if x.turn == left {
			x.turn = right
			return false, x.takeLeft(ctx)
		}
		x.turn = left
		return false, x.takeRight(ctx)
	case x.leftBuf != nil:
		return false, x.takeLeft(ctx)
	case x.rightBuf != nil:
		return false, x.takeRight(ctx)
	}

	if x.leftEOF && x.rightEOF {
		if err := x.flushUnmatched(ctx); err != nil {
			return false, err
		}
		x.finished = true
		return true, nil
	}
	return false, nil
}

// Run steps until the join is done or fails.
func (x *XJoin) Run(ctx context.Context) error {
	for {
		done, err := x.Step(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// Counts returns the pairs produced so far.
func (x *XJoin) Counts() Counts { return x.counts }

// fill buffers one message per open side. Both sides are checked without
// waiting first; only when nothing is ready does it wait up to the poll
// timeout on one side, alternating between calls.
func (x *XJoin) fill() error {
	if err := x.tryLeft(0); err != nil {
		return err
	}
	if err := x.tryRight(0); err != nil {
		return err
	}
	if x.leftBuf != nil || x.rightBuf != nil {
		return nil
	}

	waitLeft := !x.leftEOF && (x.turn == left || x.rightEOF)
	if waitLeft {
		return x.tryLeft(x.poll)
	}
	if !x.rightEOF {
		return x.tryRight(x.poll)
	}
	return nil
}

func (x *XJoin) tryLeft(timeout time.Duration) error {
	if x.leftEOF || x.leftBuf != nil {
		return nil
	}
	m, ok, err := x.leftIn.Poll(timeout)
	if err != nil {
		return errors.Wrap(err, "failed to read verdicts")
	}
	if ok {
		x.leftBuf = &m
	}
	return nil
}

func (x *XJoin) tryRight(timeout time.Duration) error {
	if x.rightEOF || x.rightBuf != nil {
		return nil
	}
	m, ok, err := x.rightIn.Poll(timeout)
	if err != nil {
		return errors.Wrap(err, "failed to read query solutions")
	}
	if ok {
		x.rightBuf = &m
	}
	return nil
}

// takeLeft inserts the buffered verdict and probes the right table.
func (x *XJoin) takeLeft(ctx context.Context) error {
	m := *x.leftBuf
	x.leftBuf = nil

	switch m.Kind {
	case channel.EndOfStream:
		x.leftEOF = true
		return nil
	case channel.Exception:
		return errors.Wrap(m.Err, "verdict stream failed")
	}

	v := m.Payload
	x.counts.Left++
	x.leftTable[v.Instance] = append(x.leftTable[v.Instance], v)
	for _, t := range x.rightTable[v.Instance] {
		if err := x.emit(ctx, &v, t); err != nil {
			return err
		}
	}
	return nil
}

// takeRight appends the buffered tuple and probes the left table.
func (x *XJoin) takeRight(ctx context.Context) error {
	m := *x.rightBuf
	x.rightBuf = nil

	switch m.Kind {
	case channel.EndOfStream:
		x.rightEOF = true
		return nil
	case channel.Exception:
		return errors.Wrap(m.Err, "solution stream failed")
	}

	t := m.Payload
	x.counts.Right++
	x.rightTable[t.Key] = append(x.rightTable[t.Key], t)
	x.rightSeen = append(x.rightSeen, t)
	for i := range x.leftTable[t.Key] {
		v := x.leftTable[t.Key][i]
		if err := x.emit(ctx, &v, t); err != nil {
			return err
		}
	}
	return nil
}

func (x *XJoin) emit(ctx context.Context, v *record.Verdict, t record.JoinTuple) error {
	var pv *record.Verdict
	if v != nil {
		cp := *v
		pv = &cp
	}
	if err := x.out.Send(ctx, record.Pair{Verdict: pv, Tuple: t}); err != nil {
		return errors.Wrap(err, "failed to emit join result")
	}
	x.counts.Pairs++
	if pv != nil {
		x.counts.Matched++
	} else {
		x.counts.Unmatched++
	}
	return nil
}

func (x *XJoin) flushUnmatched(ctx context.Context) error {
	for _, t := range x.rightSeen {
		if len(x.leftTable[t.Key]) > 0 {
			continue
		}
		if err := x.emit(ctx, nil, t); err != nil {
			return err
		}
	}
	return nil
}
