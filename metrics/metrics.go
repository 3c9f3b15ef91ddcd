// Package metrics exposes prometheus collectors for runs and the HTTP front end.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes
const (
	OutcomeOK        = "ok"
	OutcomeException = "exception"
	OutcomeTimeout   = "timeout"
	OutcomeError     = "error"
)

var (
	// RunsTotal counts runs by output format and outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valstream_runs_total",
			Help: "Total number of runs",
		},
		[]string{"format", "outcome"},
	)
	// RunDuration is the wall time of a run.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "valstream_run_duration_seconds",
			Help:    "Run latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"format"},
	)
	// RowsTotal counts reconstructed result rows.
	RowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "valstream_rows_total",
			Help: "Total number of result rows returned",
		},
	)
	// StageExceptionsTotal counts stage failures by stage and error code.
	StageExceptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valstream_stage_exceptions_total",
			Help: "Total number of stage exceptions",
		},
		[]string{"stage", "code"},
	)
	// RestartsTotal counts full runner restarts.
	RestartsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "valstream_restarts_total",
			Help: "Total number of runner restarts",
		},
	)
	// RunnersAlive is the number of runners accepting tasks.
	RunnersAlive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "valstream_runners_alive",
			Help: "Number of runners in the running state",
		},
	)
	// RequestTotal counts HTTP requests by method, path and status.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valstream_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	// RequestDuration is the latency of HTTP requests.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "valstream_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
