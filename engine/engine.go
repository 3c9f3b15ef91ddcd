// Package engine drives runs: it owns the four stage runners and the
// statistics sink, wires fresh channels for every run, checks for stage
// exceptions before trusting a result and restarts the runners when a run
// hangs.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/valstream/am"
	"github.com/teranos/valstream/errors"
	"github.com/teranos/valstream/internal/httpclient"
	"github.com/teranos/valstream/metrics"
	"github.com/teranos/valstream/output"
	"github.com/teranos/valstream/pulse/runner"
	"github.com/teranos/valstream/pulse/stats"
	"github.com/teranos/valstream/stage/postprocess"
	"github.com/teranos/valstream/stage/source"
	"github.com/teranos/valstream/stage/validation"
	"github.com/teranos/valstream/xjoin"
)

// lifecycle is the part of a runner the engine manages without knowing its
// task type.
type lifecycle interface {
	Name() string
	Start() error
	Stop() error
	IsAlive() bool
	Release(runID string)
	Abort(runID string)
}

// Engine executes runs one at a time.
type Engine struct {
	logger *zap.SugaredLogger
	sink   *stats.Sink

	source     *runner.Runner[source.Task]
	validation *runner.Runner[validation.Task]
	join       *runner.Runner[xjoin.Task]
	post       *runner.Runner[postprocess.Task]

	cfgMu   sync.RWMutex
	cfg     *am.Config
	builder output.Builder
	http    *httpclient.Client

	runMu sync.Mutex // one run at a time
}

// New creates an engine for cfg and starts its runners.
func New(ctx context.Context, cfg *am.Config, logger *zap.SugaredLogger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	e := &Engine{
		logger: logger.Named("engine"),
		sink:   stats.NewSink(logger.Named("stats")),
	}
	if err := e.Reconfigure(cfg); err != nil {
		return nil, err
	}

	rcfg := func(name string) runner.Config {
		c := runner.DefaultConfig(name)
		c.StopTimeout = cfg.Pipeline.StopTimeout()
		return c
	}
	e.source = runner.New[source.Task](ctx, rcfg(source.StageName), source.New(logger).Work, e.sink, logger)
	e.validation = runner.New[validation.Task](ctx, rcfg(validation.StageName), validation.New(logger).Work, e.sink, logger)
	e.join = runner.New[xjoin.Task](ctx, rcfg(xjoin.StageName), xjoin.NewStage(logger).Work, e.sink, logger)
	e.post = runner.New[postprocess.Task](ctx, rcfg(postprocess.StageName), postprocess.New(logger).Work, e.sink, logger)

	if err := e.start(); err != nil {
		e.stop()
		return nil, err
	}
	return e, nil
}

// Reconfigure validates cfg and makes it the configuration of later runs.
// The output builder is chosen here, once per configuration.
func (e *Engine) Reconfigure(cfg *am.Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	builder, err := output.ForFormat(cfg.Output)
	if err != nil {
		return err
	}
	hc := httpclient.New(httpclient.Options{
		Timeout:           cfg.Source.Timeout(),
		AllowPrivateHosts: cfg.Source.AllowPrivateHosts,
		RequestsPerSecond: cfg.Source.MaxRequestsPerSecond,
	})

	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	e.cfg = cfg
	e.builder = builder
	e.http = hc
	return nil
}

// WithHTTPClient replaces the client used to reach endpoints. Tests use it
// to talk to in-process servers.
func (e *Engine) WithHTTPClient(hc *httpclient.Client) *Engine {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	e.http = hc
	return e
}

func (e *Engine) snapshot() (*am.Config, output.Builder, *httpclient.Client) {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg, e.builder, e.http
}

// Config returns the active configuration.
func (e *Engine) Config() *am.Config {
	cfg, _, _ := e.snapshot()
	return cfg
}

// Sink returns the statistics sink shared by all runners.
func (e *Engine) Sink() *stats.Sink { return e.sink }

func (e *Engine) runners() []lifecycle {
	return []lifecycle{e.source, e.validation, e.join, e.post}
}

func (e *Engine) start() error {
	for _, r := range e.runners() {
		if err := r.Start(); err != nil {
			return err
		}
	}
	e.updateAliveGauge()
	return nil
}

func (e *Engine) stop() {
	for _, r := range e.runners() {
		if err := r.Stop(); err != nil {
			e.logger.Warnw("Failed to stop runner", "runner", r.Name(), "error", err)
		}
	}
	e.updateAliveGauge()
}

// Restart stops every runner, pauses and starts them again. Statistics of
// abandoned runs are discarded so the next run starts clean.
func (e *Engine) Restart() error {
	cfg, _, _ := e.snapshot()
	e.logger.Warnw("Restarting runners", "settle", cfg.Pipeline.RestartSettle())
	metrics.RestartsTotal.Inc()

	e.stop()
	if settle := cfg.Pipeline.RestartSettle(); settle > 0 {
		time.Sleep(settle)
	}
	e.sink.Reset()
	return e.start()
}

// Alive reports the liveness of every runner by stage name.
func (e *Engine) Alive() map[string]bool {
	out := make(map[string]bool, 4)
	for _, r := range e.runners() {
		out[r.Name()] = r.IsAlive()
	}
	return out
}

// Healthy reports whether every runner accepts tasks.
func (e *Engine) Healthy() bool {
	for _, alive := range e.Alive() {
		if !alive {
			return false
		}
	}
	return true
}

func (e *Engine) updateAliveGauge() {
	n := 0
	for _, r := range e.runners() {
		if r.IsAlive() {
			n++
		}
	}
	metrics.RunnersAlive.Set(float64(n))
}

// Close stops every runner.
func (e *Engine) Close() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.stop()
	return nil
}
