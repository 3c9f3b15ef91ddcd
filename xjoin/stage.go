package xjoin

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/valstream/logger"
	"github.com/teranos/valstream/pulse/channel"
	"github.com/teranos/valstream/pulse/stats"
	"github.com/teranos/valstream/record"
)

// StageName identifies the join in statistics and logs.
const StageName = "xjoin"

// Task wires the join of one run.
type Task struct {
	Verdicts    channel.Receiver[record.Verdict]
	Tuples      channel.Receiver[record.JoinTuple]
	Out         channel.Sender[record.Pair]
	PollTimeout time.Duration
}

// Outputs returns the channels the runner terminates after the task.
func (t Task) Outputs() []channel.Terminator {
	return []channel.Terminator{t.Out}
}

// Stage is the join worker.
type Stage struct {
	logger *zap.SugaredLogger
}

// NewStage creates the join worker.
func NewStage(logger *zap.SugaredLogger) *Stage {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Stage{logger: logger.Named(StageName)}
}

// Work runs the join to completion and reports its counts.
func (s *Stage) Work(ctx context.Context, runID string, task Task, sink *stats.Sink) error {
	start := time.Now()
	x := New(task.Verdicts, task.Tuples, task.Out, task.PollTimeout)
	if err := x.Run(ctx); err != nil {
		s.logger.Debugw("Join halted", logger.FieldRunID, runID, "counts", x.Counts())
		return err
	}

	c := x.Counts()
	sink.Emit(runID, stats.TopicXJoin, StageName, map[string]any{
		stats.FieldPairs:     c.Pairs,
		stats.FieldMatched:   c.Matched,
		stats.FieldUnmatched: c.Unmatched,
		stats.FieldElapsed:   time.Since(start),
	})
	s.logger.Debugw("Join finished",
		logger.FieldRunID, runID,
		"pairs", c.Pairs,
		"matched", c.Matched,
		"unmatched", c.Unmatched,
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return nil
}
