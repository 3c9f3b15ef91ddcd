// Package runner supervises the long-lived worker behind each pipeline stage.
//
// A Runner owns one execution slot. It is started once per process, receives
// one task per run and survives failing tasks: an error or panic inside a
// task becomes an Exception on the statistics sink (a channel timeout is
// recorded as a timeout instead) and the task's output channels are still
// terminated. Abort tears a single run down; Stop invalidates every channel
// the runner allocated, and Restart is the only recovery path for a hung
// runner.
package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/teranos/valstream/errors"
	"github.com/teranos/valstream/pulse/channel"
	"github.com/teranos/valstream/pulse/stats"
)

// Worker executes one task for one run.
type Worker[T any] func(ctx context.Context, runID string, task T, sink *stats.Sink) error

// Config contains configuration for a runner
type Config struct {
	Name        string        // stage name used in logs and exceptions
	StopTimeout time.Duration // how long Stop waits for an in-flight task
}

// DefaultConfig returns sensible defaults
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		StopTimeout: 5 * time.Second,
	}
}

// Counters is a snapshot of task accounting
type Counters struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Runner supervises a single worker slot for one pipeline stage.
type Runner[T any] struct {
	cfg    Config
	work   Worker[T]
	sink   *stats.Sink
	logger runnerLogger
	parent context.Context

	mu       sync.Mutex
	state    State
	ctx      context.Context
	cancel   context.CancelFunc
	pool     *ants.Pool
	channels map[string][]channel.Invalidator // by run id
	scopes   map[string]context.CancelFunc     // task contexts by run id

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New creates a stopped runner. Call Start before submitting tasks.
func New[T any](parent context.Context, cfg Config, work Worker[T], sink *stats.Sink, logger *zap.SugaredLogger) *Runner[T] {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultConfig(cfg.Name).StopTimeout
	}
	return &Runner[T]{
		cfg:      cfg,
		work:     work,
		sink:     sink,
		logger:   runnerLogger{logger.Named("runner").With("runner", cfg.Name)},
		parent:   parent,
		state:    StateStopped,
		channels: make(map[string][]channel.Invalidator),
		scopes:   make(map[string]context.CancelFunc),
	}
}

// Name returns the stage name.
func (r *Runner[T]) Name() string { return r.cfg.Name }

// Start spawns the worker slot. Starting a running runner is a no-op.
func (r *Runner[T]) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRunning {
		return nil
	}
	r.state = StateStarting
	r.logger.Starting("Runner starting")

	pool, err := ants.NewPool(1,
		ants.WithPanicHandler(func(p interface{}) {
			r.logger.Errorw("Panic escaped runner task", "panic", p)
		}),
	)
	if err != nil {
		r.state = StateStopped
		return errors.Wrapf(err, "failed to start runner %s", r.cfg.Name)
	}

	if warning := checkMemoryPressure(); warning != "" {
		r.logger.Warnw("Memory pressure warning", "warning", warning)
	}

	r.ctx, r.cancel = context.WithCancel(r.parent)
	r.pool = pool
	r.state = StateRunning
	r.logger.Pulse("Runner started")
	return nil
}

// Stop cancels the in-flight task, invalidates every channel allocated through
// this runner and releases the worker slot. Stopping a stopped runner is a no-op.
func (r *Runner[T]) Stop() error {
	r.mu.Lock()
	if r.state == StateStopped {
		r.mu.Unlock()
		return nil
	}
	channels := r.channels
	r.channels = make(map[string][]channel.Invalidator)
	r.scopes = make(map[string]context.CancelFunc)
	cancel, pool := r.cancel, r.pool
	r.pool = nil
	r.state = StateStopped
	r.mu.Unlock()

	invalidated := 0
	for _, eps := range channels {
		for _, ep := range eps {
			ep.Invalidate()
			invalidated++
		}
	}
	if cancel != nil {
		cancel()
	}

	if pool != nil {
		if err := pool.ReleaseTimeout(r.cfg.StopTimeout); err != nil {
			// the task ignores cancellation; it will finish against invalidated channels
			r.logger.Closing("Runner stop timeout - task may still be running",
				"timeout", r.cfg.StopTimeout, "error", err)
			return nil
		}
	}

	r.logger.Closing("Runner stopped", "channels_invalidated", invalidated)
	return nil
}

// Restart stops the runner, waits settle and starts it again.
func (r *Runner[T]) Restart(settle time.Duration) error {
	if err := r.Stop(); err != nil {
		return err
	}
	if settle > 0 {
		time.Sleep(settle)
	}
	return r.Start()
}

// IsAlive reports whether the runner accepts tasks.
func (r *Runner[T]) IsAlive() bool {
	return r.State() == StateRunning
}

// State returns the current lifecycle state.
func (r *Runner[T]) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Counters returns task accounting since process start.
func (r *Runner[T]) Counters() Counters {
	return Counters{
		Submitted: r.submitted.Load(),
		Completed: r.completed.Load(),
		Failed:    r.failed.Load(),
	}
}

// AllocateChannels creates n fresh endpoints for runID and registers them
// with r so Stop can invalidate them.
func AllocateChannels[M any, T any](r *Runner[T], runID string, n int, backend channel.Backend, capacity int) ([]*channel.Endpoint[M], error) {
	eps := make([]*channel.Endpoint[M], 0, n)
	for i := 0; i < n; i++ {
		ep, err := channel.New[M](backend, capacity)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		return nil, errors.Wrapf(errors.ErrNotAlive, "runner %s", r.cfg.Name)
	}
	for _, ep := range eps {
		r.channels[runID] = append(r.channels[runID], ep)
	}
	return eps, nil
}

// Release forgets the channels allocated for runID without invalidating them.
// Call it once the run's consumers are done.
func (r *Runner[T]) Release(runID string) {
	r.mu.Lock()
	cancel := r.scopes[runID]
	delete(r.channels, runID)
	delete(r.scopes, runID)
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Abort tears down the run: its tasks are cancelled and its channels are
// invalidated, so a producer blocked on a full pipe returns and the worker
// slot frees up. Other runs are not affected.
func (r *Runner[T]) Abort(runID string) {
	r.mu.Lock()
	eps := r.channels[runID]
	cancel := r.scopes[runID]
	delete(r.channels, runID)
	delete(r.scopes, runID)
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, ep := range eps {
		ep.Invalidate()
	}
	if len(eps) > 0 || cancel != nil {
		r.logger.Debugw("Run aborted", "run_id", runID, "channels_invalidated", len(eps))
	}
}

// scope returns the task context for runID, derived from the runner context.
// Caller must hold r.mu.
func (r *Runner[T]) scope(runID string) context.Context {
	ctx, cancel := context.WithCancel(r.ctx)
	if prev, ok := r.scopes[runID]; ok {
		r.scopes[runID] = func() { prev(); cancel() }
	} else {
		r.scopes[runID] = cancel
	}
	return ctx
}

// Submit hands task to the worker slot. outputs are closed when the task
// returns, after any failure has been pushed to the sink. With serial set the
// task runs in the caller's goroutine and Submit returns when it is done.
func (r *Runner[T]) Submit(runID string, task T, outputs []channel.Terminator, serial bool) error {
	r.mu.Lock()
	state, pool := r.state, r.pool
	var ctx context.Context
	if state == StateRunning {
		ctx = r.scope(runID)
	}
	r.mu.Unlock()

	if state != StateRunning {
		return errors.WithHint(
			errors.Wrapf(errors.ErrNotAlive, "runner %s is %s", r.cfg.Name, state),
			"start or restart the runner before submitting tasks")
	}

	r.submitted.Add(1)
	if serial {
		r.execute(ctx, runID, task, outputs)
		return nil
	}

	if err := pool.Submit(func() { r.execute(ctx, runID, task, outputs) }); err != nil {
		r.submitted.Add(-1)
		return errors.Wrapf(err, "failed to submit task to runner %s", r.cfg.Name)
	}
	return nil
}

// execute runs one task and terminates its outputs.
func (r *Runner[T]) execute(ctx context.Context, runID string, task T, outputs []channel.Terminator) {
	start := time.Now()
	log := r.logger.With("run_id", runID)

	err := r.call(ctx, runID, task)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		// aborted or stopped; nobody is waiting for this run
		r.failed.Add(1)
		log.Debugw("Task cancelled", "error", err)
	case errors.Is(err, errors.ErrChannelTimeout):
		r.failed.Add(1)
		r.sink.Timeout(runID, r.cfg.Name, err)
	default:
		r.failed.Add(1)
		r.sink.Exception(runID, r.cfg.Name, err)
	}

	for _, out := range outputs {
		if cerr := out.Close(ctx); cerr != nil && !errors.Is(cerr, channel.ErrInvalidated) && ctx.Err() == nil {
			log.Warnw("Failed to close stage output", "error", cerr)
		}
	}

	r.completed.Add(1)
	log.Debugw("Task finished",
		"duration_ms", time.Since(start).Milliseconds(),
		"failed", err != nil)
}

// call invokes the worker, converting a panic into an error.
func (r *Runner[T]) call(ctx context.Context, runID string, task T) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf("panic in %s worker: %v", r.cfg.Name, p)
		}
	}()
	return r.work(ctx, runID, task, r.sink)
}
