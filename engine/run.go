package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/valstream/am"
	"github.com/teranos/valstream/errors"
	"github.com/teranos/valstream/logger"
	"github.com/teranos/valstream/metrics"
	"github.com/teranos/valstream/output"
	"github.com/teranos/valstream/pulse/channel"
	"github.com/teranos/valstream/pulse/runner"
	"github.com/teranos/valstream/pulse/stats"
	"github.com/teranos/valstream/record"
	"github.com/teranos/valstream/shape"
	"github.com/teranos/valstream/sparql"
	"github.com/teranos/valstream/stage/postprocess"
	"github.com/teranos/valstream/stage/source"
	"github.com/teranos/valstream/stage/validation"
	"github.com/teranos/valstream/xjoin"
)

// Error messages returned on the restart path.
const (
	msgStatsTimeout   = "Timeout while calculating statistics"
	msgResultsTimeout = "Timeout while reading results"
)

// Request is the run-level boundary: what to query, what to validate
// against and where. Zero fields fall back to the configuration.
type Request struct {
	Query       string            `json:"query"`
	TargetShape string            `json:"target_shape,omitempty"`
	TargetVar   string            `json:"target_var,omitempty"`
	ShapeVars   map[string]string `json:"shape_vars,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"` // overrides the query endpoint
	Limit       *int              `json:"limit,omitempty"`    // nil or -1 = unlimited

	// OnRow, when set, sees every row as soon as it is read.
	OnRow func(record.Row) error `json:"-"`
}

// Result is a completed run. Results are never partial: a failed run returns
// an error instead.
type Result struct {
	RunID    string        `json:"run_id"`
	Format   string        `json:"format"`
	Rows     []record.Row  `json:"-"`
	Document any           `json:"document"`
	Elapsed  time.Duration `json:"elapsed"`
}

// plan is a request resolved against the configuration.
type plan struct {
	runID       string
	query       string
	targetShape string
	targetVar   string
	vars        record.VarSet
	limit       int
	endpoint    string
	cfg         *am.Config
	builder     output.Builder
}

func (e *Engine) resolve(req Request) (*plan, error) {
	cfg, builder, _ := e.snapshot()

	p := &plan{
		runID:       uuid.NewString(),
		query:       strings.TrimSpace(req.Query),
		targetShape: firstNonEmpty(req.TargetShape, cfg.Validation.TargetShape),
		targetVar:   sparql.NormalizeVar(firstNonEmpty(req.TargetVar, cfg.Validation.TargetVar)),
		limit:       -1,
		endpoint:    strings.TrimSpace(req.Endpoint),
		cfg:         cfg,
		builder:     builder,
	}
	if req.Limit != nil {
		p.limit = *req.Limit
	}
	if p.query == "" {
		return nil, errors.NewInvalidRequestError("query cannot be empty")
	}
	if p.targetShape == "" {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("no target shape given"),
			"set validation.target_shape or pass target_shape with the request")
	}
	if p.targetVar == "" {
		return nil, errors.NewInvalidRequestError("no target variable given")
	}
	if p.limit < -1 {
		return nil, errors.NewInvalidRequestError("limit must be -1 or >= 0, got %d", p.limit)
	}

	p.vars = record.VarSet{}
	for v, s := range cfg.Validation.ShapeVars {
		p.vars[sparql.NormalizeVar(v)] = s
	}
	for v, s := range req.ShapeVars {
		p.vars[sparql.NormalizeVar(v)] = s
	}
	p.vars[p.targetVar] = p.targetShape
	return p, nil
}

// Run executes req and returns the output document built for the configured
// format. A stage exception fails the run; a hang restarts every runner and
// fails the run with a timeout error. A run that does not finish, including
// one whose ctx is cancelled, is aborted on every runner.
func (e *Engine) Run(ctx context.Context, req Request) (res *Result, err error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	start := time.Now()
	format := ""
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf("run aborted: %v", p)
			e.logger.Errorw("Panic during run", "panic", p)
		}
		metrics.RunsTotal.WithLabelValues(format, outcome(err)).Inc()
		metrics.RunDuration.WithLabelValues(format).Observe(time.Since(start).Seconds())
	}()

	p, err := e.resolve(req)
	if err != nil {
		return nil, err
	}
	format = p.builder.Format()
	log := e.logger.With(logger.FieldRunID, p.runID, logger.FieldFormat, format)
	log.Infow("Run started", logger.FieldShape, p.targetShape, logger.FieldBackend, p.cfg.Pipeline.Backend)
	log.Debugw("Run plan", "plan", p.String())

	finished := false
	defer func() {
		if !finished {
			// a failed or cancelled run may leave stages parked on its channels
			e.abort(p.runID)
		}
		e.release(p.runID)
	}()

	collected, err := e.execute(ctx, p, req.OnRow)
	if err != nil {
		if errors.IsTimeout(err) {
			if rerr := e.Restart(); rerr != nil {
				log.Errorw("Restart failed", logger.FieldError, rerr)
			}
		}
		log.Warnw("Run failed", logger.FieldError, err)
		return nil, err
	}
	finished = true

	collected.Start = start
	collected.End = time.Now()
	doc, err := p.builder.Build(collected)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build output")
	}

	metrics.RowsTotal.Add(float64(len(collected.Rows)))
	log.Infow("Run finished",
		logger.FieldCount, len(collected.Rows),
		logger.FieldDurationMS, collected.End.Sub(start).Milliseconds())
	return &Result{
		RunID:    p.runID,
		Format:   format,
		Rows:     collected.Rows,
		Document: doc,
		Elapsed:  collected.End.Sub(start),
	}, nil
}

// execute wires and submits the four stages and collects their output.
func (e *Engine) execute(ctx context.Context, p *plan, onRow func(record.Row) error) (*output.Run, error) {
	_, _, hc := e.snapshot()
	cfg := p.cfg
	backend, err := channel.ParseBackend(cfg.Pipeline.Backend)
	if err != nil {
		return nil, err
	}
	capacity := cfg.Pipeline.PipeCapacity
	serial := cfg.Pipeline.Serial
	timeout := cfg.Pipeline.QueueTimeout()

	queryEndpoint := cfg.Source.QueryEndpoint()
	if p.endpoint != "" {
		queryEndpoint = p.endpoint
	}
	queryClient, err := sparql.NewClient(queryEndpoint, hc, e.logger)
	if err != nil {
		return nil, errors.Wrap(err, "source endpoint")
	}
	// the validator always talks to the public endpoint
	validatorClient, err := sparql.NewClient(cfg.Source.Endpoint, hc, e.logger)
	if err != nil {
		return nil, errors.Wrap(err, "validation endpoint")
	}

	validator, err := e.prepareValidator(p, validatorClient)
	if err != nil {
		return nil, err
	}

	// channels belong to the runner producing into them
	raw, err := runner.AllocateChannels[record.RawBinding](e.source, p.runID, 1, backend, capacity)
	if err != nil {
		return nil, err
	}
	tuples, err := runner.AllocateChannels[record.JoinTuple](e.source, p.runID, 1, backend, capacity)
	if err != nil {
		return nil, err
	}
	verdicts, err := runner.AllocateChannels[record.Verdict](e.validation, p.runID, 1, backend, capacity)
	if err != nil {
		return nil, err
	}
	varSets, err := runner.AllocateChannels[record.VarSet](e.validation, p.runID, 1, backend, capacity)
	if err != nil {
		return nil, err
	}
	pairs, err := runner.AllocateChannels[record.Pair](e.join, p.runID, 1, backend, capacity)
	if err != nil {
		return nil, err
	}
	rows, err := runner.AllocateChannels[record.Row](e.post, p.runID, 1, backend, capacity)
	if err != nil {
		return nil, err
	}
	trace, err := runner.AllocateChannels[time.Time](e.post, p.runID, 1, backend, capacity)
	if err != nil {
		return nil, err
	}

	srcTask := source.Task{
		Client:    queryClient,
		Query:     p.query,
		TargetVar: p.targetVar,
		Limit:     p.limit,
		Raw:       raw[0],
		Join:      tuples[0],
	}
	valTask := validation.Task{
		Validator:       validator,
		StartFromTarget: cfg.Validation.StartWithTargetShape,
		ShapeVars:       p.vars,
		Verdicts:        verdicts[0],
		ShapeVarsOut:    varSets[0],
	}
	joinTask := xjoin.Task{
		Verdicts:    verdicts[0],
		Tuples:      tuples[0],
		Out:         pairs[0],
		PollTimeout: cfg.Pipeline.PollInterval(),
	}
	postTask := postprocess.Task{
		Pairs:     pairs[0],
		Raw:       raw[0],
		ShapeVars: varSets[0],
		Timeout:   timeout,
		Rows:      rows[0],
		Trace:     trace[0],
	}

	if err := e.source.Submit(p.runID, srcTask, srcTask.Outputs(), serial); err != nil {
		return nil, err
	}
	if err := e.validation.Submit(p.runID, valTask, valTask.Outputs(), serial); err != nil {
		return nil, err
	}
	if err := e.join.Submit(p.runID, joinTask, joinTask.Outputs(), serial); err != nil {
		return nil, err
	}
	if err := e.post.Submit(p.runID, postTask, postTask.Outputs(), serial); err != nil {
		return nil, err
	}

	run := &output.Run{RunID: p.runID}
	// rows are drained to EndOfStream even after the callback fails
	var rowErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return readAll(gctx, rows[0], timeout, func(r record.Row) error {
			run.Rows = append(run.Rows, r)
			if onRow != nil && rowErr == nil {
				rowErr = onRow(r)
			}
			return nil
		})
	})
	g.Go(func() error {
		return readAll(gctx, trace[0], timeout, func(ts time.Time) error {
			run.Trace = append(run.Trace, ts)
			return nil
		})
	})
	readErr := g.Wait()

	if exc, ok := e.sink.LookForException(p.runID); ok {
		ec := stats.ClassifyError(exc.Stage, exc.Err)
		metrics.StageExceptionsTotal.WithLabelValues(exc.Stage, string(ec.Code)).Inc()
		return nil, errors.Wrapf(exc.Err, "stage %s failed", exc.Stage)
	}
	if _, ok := e.sink.LookForTimeout(p.runID); ok {
		return nil, errors.Wrap(errors.ErrChannelTimeout, msgResultsTimeout)
	}
	if readErr != nil {
		if errors.IsTimeout(readErr) {
			return nil, errors.Wrap(readErr, msgResultsTimeout)
		}
		return nil, errors.Wrap(readErr, "failed to read results")
	}

	if rowErr != nil {
		return nil, errors.Wrap(rowErr, "row callback failed")
	}

	if cfg.Output.Format == am.FormatStats {
		topics := []stats.Topic{
			stats.TopicContactSource,
			stats.TopicValidation,
			stats.TopicXJoin,
			stats.TopicPostProcessing,
		}
		found, err := e.sink.Expect(ctx, p.runID, topics, timeout)
		if err != nil {
			return nil, errors.WithSecondaryError(errors.Wrap(errors.ErrChannelTimeout, msgStatsTimeout), err)
		}
		if first, ok := e.sink.Get(p.runID, stats.TopicFirstValidationResult); ok {
			found[stats.TopicFirstValidationResult] = first
		}
		run.Stats = found
	} else {
		run.Stats = make(map[stats.Topic]stats.Message)
		for _, m := range e.sink.Drain(p.runID) {
			if _, seen := run.Stats[m.Topic]; !seen {
				run.Stats[m.Topic] = m
			}
		}
	}
	return run, nil
}

// prepareValidator loads the shapes, reduces the network for the query and
// returns the validator for the run.
func (e *Engine) prepareValidator(p *plan, client *sparql.Client) (shape.Validator, error) {
	shapes, err := shape.LoadDir(p.cfg.Validation.SchemaDir)
	if err != nil {
		return nil, err
	}
	network, err := shape.Reduce(shapes, shape.ReduceOptions{
		Targets:           []string{p.targetShape},
		Query:             p.query,
		Prune:             p.cfg.Validation.PruneShapeNetwork,
		RemoveConstraints: p.cfg.Validation.RemoveConstraints,
	})
	if err != nil {
		return nil, err
	}
	for v, id := range p.vars {
		if _, ok := network.Shape(id); !ok {
			e.logger.Debugw("Shape variable refers to a shape outside the reduced network",
				"variable", v, logger.FieldShape, id)
		}
	}
	return shape.NewValidator(client, network, p.query, p.targetVar, e.logger), nil
}

// readAll reads r until EndOfStream. Each read waits at most timeout; a
// cancelled ctx ends the wait at once.
func readAll[T any](ctx context.Context, r channel.Receiver[T], timeout time.Duration, fn func(T) error) error {
	for {
		rctx, cancel := context.WithTimeout(ctx, timeout)
		m, err := r.Recv(rctx)
		cancel()
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return errors.Wrapf(errors.ErrChannelTimeout, "no message within %s", timeout)
			}
			return err
		}
		switch m.Kind {
		case channel.Data:
			if err := fn(m.Payload); err != nil {
				return err
			}
		case channel.Exception:
			return m.Err
		case channel.EndOfStream:
			return nil
		}
	}
}

func (e *Engine) release(runID string) {
	for _, r := range e.runners() {
		r.Release(runID)
	}
	e.sink.Release(runID)
}

// abort cancels the run's tasks and invalidates its channels on every runner.
func (e *Engine) abort(runID string) {
	for _, r := range e.runners() {
		r.Abort(runID)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.IsTimeout(err):
		return metrics.OutcomeTimeout
	case errors.Is(err, errors.ErrSourceFailure), errors.Is(err, errors.ErrValidatorFailure):
		return metrics.OutcomeException
	default:
		return metrics.OutcomeError
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// String describes the plan for logs.
func (p *plan) String() string {
	return fmt.Sprintf("run %s: %s over ?%s (limit %d)", p.runID, p.targetShape, p.targetVar, p.limit)
}
