// Package postprocess rebuilds complete result rows from join results and
// the raw query solutions, and records when each row became available.
package postprocess

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/valstream/errors"
	"github.com/teranos/valstream/logger"
	"github.com/teranos/valstream/pulse/channel"
	"github.com/teranos/valstream/pulse/stats"
	"github.com/teranos/valstream/record"
)

// StageName identifies the stage in statistics and logs.
const StageName = "post_processing"

// Task wires post-processing for one run.
type Task struct {
	Pairs     channel.Receiver[record.Pair]
	Raw       channel.Receiver[record.RawBinding]
	ShapeVars channel.Receiver[record.VarSet]
	// Timeout bounds the wait for raw solutions and the shape-variable set
	// once the join has finished.
	Timeout time.Duration

	Rows  channel.Sender[record.Row]
	Trace channel.Sender[time.Time] // one timestamp per row
}

// Outputs returns the channels the runner terminates after the task.
func (t Task) Outputs() []channel.Terminator {
	return []channel.Terminator{t.Rows, t.Trace}
}

// rawIndex holds the raw solutions by sequence number and counts them per
// join key.
type rawIndex struct {
	bySeq map[int]record.RawBinding
	byKey map[string]int
}

func (ix *rawIndex) add(rb record.RawBinding) {
	if _, ok := ix.bySeq[rb.Seq]; !ok {
		ix.byKey[rb.Key]++
	}
	ix.bySeq[rb.Seq] = rb
}

func (ix *rawIndex) get(seq int) (record.RawBinding, bool) {
	rb, ok := ix.bySeq[seq]
	return rb, ok
}

// Result summarises one post-processing run.
type Result struct {
	Rows       int
	Pairs      int
	Unresolved int // pairs whose raw solution never arrived
}

// group collects the pairs of one join key that have not been emitted yet.
type group struct {
	key   string
	pairs []record.Pair
	seqs  map[int]struct{}
}

// Run consumes the join output until EndOfStream while following the raw
// solutions and the shape-variable set. Pairs are grouped by join key: each
// key yields one row carrying every verdict for it, the join projections and
// the raw values of variables that are not shape variables.
//
// A key is reconciled once the raw solutions and the shape-variable set are
// complete and every raw solution for the key has arrived as a pair. Its row
// is sent right away, followed by the send time on the trace channel. Keys
// still open when the join ends are flushed in order of their first pair. A
// pair for a key whose row was already sent starts a new row for that key.
//
// When the raw solutions or the shape-variable set are not complete within
// task.Timeout after the join ended, Run fails with ErrChannelTimeout.
func Run(ctx context.Context, task Task, log *zap.SugaredLogger) (Result, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pairs := follow(ctx, task.Pairs)
	raws := follow(ctx, task.Raw)
	varSets := follow(ctx, task.ShapeVars)

	raw := &rawIndex{bySeq: make(map[int]record.RawBinding), byKey: make(map[string]int)}
	var vars record.VarSet
	var order []*group
	open := make(map[string]*group)
	var res Result

	emit := func(g *group) error {
		row := record.Row{Key: g.key}
		for _, p := range g.pairs {
			res.Pairs++
			if p.Verdict != nil {
				addVerdict(&row, *p.Verdict)
			}
			for name, t := range p.Tuple.Projection {
				row.AddValue(name, t)
			}
			rb, ok := raw.get(p.Tuple.Seq)
			if !ok {
				res.Unresolved++
				continue
			}
			for name, t := range rb.Binding {
				if !vars.Has(name) {
					row.AddValue(name, t)
				}
			}
		}
		if err := task.Rows.Send(ctx, row); err != nil {
			return errors.Wrap(err, "failed to emit row")
		}
		if err := task.Trace.Send(ctx, time.Now()); err != nil {
			return errors.Wrap(err, "failed to emit trace timestamp")
		}
		res.Rows++
		return nil
	}

	// flush emits reconciled keys, or every open key when all is set.
	flush := func(all bool) error {
		if raws.items != nil || varSets.items != nil {
			return nil
		}
		kept := order[:0]
		for _, g := range order {
			want := raw.byKey[g.key]
			if all || (want > 0 && len(g.seqs) >= want) {
				delete(open, g.key)
				if err := emit(g); err != nil {
					return err
				}
				continue
			}
			kept = append(kept, g)
		}
		clear(order[len(kept):])
		order = kept
		return nil
	}

	// deadline starts once the join has ended.
	var deadline <-chan time.Time
	timer := time.NewTimer(task.Timeout)
	timer.Stop()
	defer timer.Stop()
	for pairs.items != nil || raws.items != nil || varSets.items != nil {
		select {
		case p, ok := <-pairs.items:
			if !ok {
				if err := <-pairs.done; err != nil {
					return res, errors.Wrap(err, "failed to read join results")
				}
				pairs.items = nil
				timer.Reset(task.Timeout)
				deadline = timer.C
				continue
			}
			g, found := open[p.Tuple.Key]
			if !found {
				g = &group{key: p.Tuple.Key, seqs: make(map[int]struct{})}
				open[p.Tuple.Key] = g
				order = append(order, g)
			}
			g.pairs = append(g.pairs, p)
			g.seqs[p.Tuple.Seq] = struct{}{}
		case rb, ok := <-raws.items:
			if !ok {
				if err := <-raws.done; err != nil {
					return res, errors.Wrap(err, "failed to read stage input")
				}
				raws.items = nil
				break
			}
			raw.add(rb)
		case vs, ok := <-varSets.items:
			if !ok {
				if err := <-varSets.done; err != nil {
					return res, errors.Wrap(err, "failed to read stage input")
				}
				varSets.items = nil
				break
			}
			if vars == nil {
				vars = vs
			}
		case <-deadline:
			return res, errors.Wrapf(errors.ErrChannelTimeout, "raw solutions not reconciled within %s", task.Timeout)
		case <-ctx.Done():
			return res, ctx.Err()
		}
		if err := flush(false); err != nil {
			return res, err
		}
	}

	if err := flush(true); err != nil {
		return res, err
	}
	if res.Unresolved > 0 {
		log.Warnw("Join results without raw solution", logger.FieldCount, res.Unresolved)
	}
	return res, nil
}

// feed carries the payloads of one receiver into the Run loop. items is
// closed after the last payload; done then holds the reason reading stopped.
type feed[T any] struct {
	items chan T
	done  chan error
}

// follow reads r until EndOfStream in the background.
func follow[T any](ctx context.Context, r channel.Receiver[T]) *feed[T] {
	f := &feed[T]{items: make(chan T), done: make(chan error, 1)}
	go func() {
		defer close(f.items)
		f.done <- drain(ctx, r, func(v T) bool {
			select {
			case f.items <- v:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return f
}

// drain reads r until EndOfStream, handing every payload to fn until fn
// returns false.
func drain[T any](ctx context.Context, r channel.Receiver[T], fn func(T) bool) error {
	for {
		m, err := r.Recv(ctx)
		if err != nil {
			return err
		}
		switch m.Kind {
		case channel.Data:
			if !fn(m.Payload) {
				return ctx.Err()
			}
		case channel.Exception:
			return m.Err
		case channel.EndOfStream:
			return nil
		}
	}
}

// addVerdict appends v unless the row already holds a verdict for the same
// instance and shape.
func addVerdict(row *record.Row, v record.Verdict) {
	for _, have := range row.Validations {
		if have.Instance == v.Instance && have.Shape == v.Shape {
			return
		}
	}
	row.Validations = append(row.Validations, v)
}

// Stage is the post-processing worker.
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

// Work runs post-processing and reports the number of rows.
func (s *Stage) Work(ctx context.Context, runID string, task Task, sink *stats.Sink) error {
	start := time.Now()
	log := s.logger.With(logger.FieldRunID, runID)

	res, err := Run(ctx, task, log)
	if err != nil {
		return err
	}

	sink.Emit(runID, stats.TopicPostProcessing, StageName, map[string]any{
		stats.FieldRows:    res.Rows,
		stats.FieldPairs:   res.Pairs,
		stats.FieldElapsed: time.Since(start),
	})
	log.Debugw("Rows reconstructed",
		logger.FieldCount, res.Rows,
		"pairs", res.Pairs,
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return nil
}
