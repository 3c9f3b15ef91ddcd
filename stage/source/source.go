// Package source executes the user query and feeds its solutions to the
// join and to post-processing.
package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/valstream/errors"
	"github.com/teranos/valstream/logger"
	"github.com/teranos/valstream/pulse/channel"
	"github.com/teranos/valstream/pulse/stats"
	"github.com/teranos/valstream/record"
	"github.com/teranos/valstream/sparql"
)

// StageName identifies the stage in statistics and logs.
const StageName = "source"

// Task describes the query of one run. Client is per run, so runs against
// different endpoints never share state.
type Task struct {
	Client    *sparql.Client
	Query     string
	TargetVar string // join attribute
	Limit     int    // -1 = unlimited

	Raw  channel.Sender[record.RawBinding] // to post-processing
	Join channel.Sender[record.JoinTuple]  // to the join
}

// Outputs returns the channels the runner terminates after the task.
func (t Task) Outputs() []channel.Terminator {
	return []channel.Terminator{t.Raw, t.Join}
}

// Stage is the source-contact worker.
type Stage struct {
	logger *zap.SugaredLogger
}

// New creates the stage.
func New(logger *zap.SugaredLogger) *Stage {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Stage{logger: logger.Named(StageName)}
}

// Work executes the query once and emits every solution as a raw binding and
// as a join tuple. Failures are returned as SourceFailure.
func (s *Stage) Work(ctx context.Context, runID string, task Task, sink *stats.Sink) error {
	if task.Client == nil {
		return errors.SourceFailure(errors.New("no source client in task"))
	}
	start := time.Now()
	targetVar := sparql.NormalizeVar(task.TargetVar)

	seq := 0
	_, n, err := task.Client.Select(ctx, task.Query, task.Limit, func(b sparql.Binding) error {
		key := Key(b, targetVar)
		if err := task.Raw.Send(ctx, record.RawBinding{Seq: seq, Key: key, Binding: b}); err != nil {
			return errors.Wrap(err, "raw binding channel")
		}
		if err := task.Join.Send(ctx, record.JoinTuple{Seq: seq, Key: key, Projection: Project(b)}); err != nil {
			return errors.Wrap(err, "join channel")
		}
		seq++
		return nil
	})
	if err != nil {
		return errors.SourceFailure(err)
	}

	elapsed := time.Since(start)
	sink.Emit(runID, stats.TopicContactSource, StageName, map[string]any{
		stats.FieldRows:    n,
		stats.FieldElapsed: elapsed,
	})
	s.logger.Infow("Query executed",
		logger.FieldRunID, runID,
		logger.FieldEndpoint, task.Client.Endpoint(),
		logger.FieldCount, n,
		logger.FieldDurationMS, elapsed.Milliseconds())
	return nil
}

// Key returns the join attribute of b: the value bound to targetVar, or ""
// when the variable is unbound.
func Key(b sparql.Binding, targetVar string) string {
	return b[targetVar].Value
}

// Project drops literal-valued variables; only resources take part in the join.
func Project(b sparql.Binding) sparql.Binding {
	return b.Without(func(_ string, t sparql.Term) bool { return t.IsLiteral() })
}
