// Package validation runs the shape validator for one run and turns its
// verdicts into a stream for the join.
package validation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/valstream/errors"
	"github.com/teranos/valstream/logger"
	"github.com/teranos/valstream/pulse/channel"
	"github.com/teranos/valstream/pulse/stats"
	"github.com/teranos/valstream/record"
	"github.com/teranos/valstream/shape"
)

// StageName identifies the stage in statistics and logs.
const StageName = "validation"

// Task describes the validation work of one run.
type Task struct {
	Validator       shape.Validator
	StartFromTarget bool
	ShapeVars       record.VarSet

	Verdicts     channel.Sender[record.Verdict] // to the join
	ShapeVarsOut channel.Sender[record.VarSet]  // to post-processing, one message
}

// Outputs returns the channels the runner terminates after the task.
func (t Task) Outputs() []channel.Terminator {
	return []channel.Terminator{t.Verdicts, t.ShapeVarsOut}
}

// Stage is the validation worker.
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

// Work sends the shape-variable set, validates and streams every verdict.
// Any validator error is returned as a ValidatorFailure.
func (s *Stage) Work(ctx context.Context, runID string, task Task, sink *stats.Sink) error {
	start := time.Now()
	log := s.logger.With(logger.FieldRunID, runID)

	if err := task.ShapeVarsOut.Send(ctx, task.ShapeVars); err != nil {
		return errors.ValidatorFailure(errors.Wrap(err, "failed to send shape variables"))
	}

	tx := NewTransmitter(ctx, runID, sink, task.Verdicts)
	report, err := task.Validator.Validate(ctx, task.StartFromTarget, tx)
	if err == nil {
		err = tx.Err()
	}
	if err != nil {
		return errors.ValidatorFailure(err)
	}

	elapsed := time.Since(start)
	sink.Emit(runID, stats.TopicValidation, StageName, map[string]any{
		stats.FieldVerdicts: tx.Count(),
		stats.FieldElapsed:  elapsed,
	})
	log.Infow("Validation finished",
		logger.FieldCount, tx.Count(),
		"valid", report.Valid,
		"invalid", report.Invalid,
		"queries", report.Queries,
		logger.FieldDurationMS, elapsed.Milliseconds())
	return nil
}
