// Package output turns the rows of a finished run into the response
// document. The set of builders is closed: test, simple and stats, chosen
// once from configuration.
package output

import (
	"sort"
	"time"

	"github.com/teranos/valstream/am"
	"github.com/teranos/valstream/errors"
	"github.com/teranos/valstream/pulse/stats"
	"github.com/teranos/valstream/record"
)

// Run is everything a builder may use about one finished run.
type Run struct {
	RunID string
	Start time.Time
	End   time.Time
	Rows  []record.Row
	Trace []time.Time                   // one per row
	Stats map[stats.Topic]stats.Message // one-shot statistics, may be empty
}

// Builder renders a run.
type Builder interface {
	Format() string
	Build(run *Run) (any, error)
}

// ForFormat returns the builder for cfg.Format.
func ForFormat(cfg am.OutputConfig) (Builder, error) {
	switch cfg.Format {
	case am.FormatTest:
		return TestBuilder{}, nil
	case am.FormatSimple:
		return SimpleBuilder{}, nil
	case am.FormatStats:
		return &StatsBuilder{
			Directory:      cfg.Directory,
			TestIdentifier: cfg.TestIdentifier,
			ApproachName:   cfg.ApproachName,
		}, nil
	default:
		return nil, errors.NewInvalidRequestError("unknown output format %q", cfg.Format)
	}
}

// Target is an (instance, shape) pair in the test document.
type Target struct {
	Instance string `json:"instance"`
	Shape    string `json:"shape"`
}

// TestDocument lists the distinct validated targets of a run.
type TestDocument struct {
	ValidTargets   []Target `json:"validTargets"`
	InvalidTargets []Target `json:"invalidTargets"`
}

// TestBuilder reports which targets are valid and which are not. It is what
// conformance tests compare against.
type TestBuilder struct{}

// Format implements Builder.
func (TestBuilder) Format() string { return am.FormatTest }

// Build implements Builder.
func (TestBuilder) Build(run *Run) (any, error) {
	valid := make(map[Target]bool)
	invalid := make(map[Target]bool)
	for _, row := range run.Rows {
		for _, v := range row.Validations {
			t := Target{Instance: v.Instance, Shape: v.Shape}
			if v.Valid {
				valid[t] = true
			} else {
				invalid[t] = true
			}
		}
	}
	return TestDocument{
		ValidTargets:   sortedTargets(valid),
		InvalidTargets: sortedTargets(invalid),
	}, nil
}

func sortedTargets(set map[Target]bool) []Target {
	out := make([]Target, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Instance != out[j].Instance {
			return out[i].Instance < out[j].Instance
		}
		return out[i].Shape < out[j].Shape
	})
	return out
}
