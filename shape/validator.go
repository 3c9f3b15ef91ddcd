package shape

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/valstream/errors"
	"github.com/teranos/valstream/sparql"
)

// DefaultBatchSize is the number of focus nodes bound per constraint query.
const DefaultBatchSize = 50

// Transmitter receives one call per validated (instance, shape) pair.
type Transmitter interface {
	Send(instance, shape string, valid bool, reason string)
}

// Report summarises one validation.
type Report struct {
	Shapes    []string      `json:"shapes"` // traversal order
	Instances int           `json:"instances"`
	Valid     int           `json:"valid"`
	Invalid   int           `json:"invalid"`
	Queries   int           `json:"queries"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Validator evaluates a shape network and reports verdicts as they are decided.
type Validator interface {
	Validate(ctx context.Context, startFromTarget bool, tx Transmitter) (Report, error)
}

// CardinalityValidator checks min/max cardinality constraints against a
// SPARQL endpoint. Instances of the primary target shape are the distinct
// values of the target variable in the user query. A constraint with a shape
// reference counts only the values that conform to the referenced shape.
type CardinalityValidator struct {
	client    *sparql.Client
	network   *Network
	query     string
	targetVar string
	batchSize int
	logger    *zap.SugaredLogger
}

// NewValidator creates a validator for network. query and targetVar select
// the focus nodes of the primary target; with an empty query the target
// shape's own target definition is used.
func NewValidator(client *sparql.Client, network *Network, query, targetVar string, logger *zap.SugaredLogger) *CardinalityValidator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &CardinalityValidator{
		client:    client,
		network:   network,
		query:     query,
		targetVar: sparql.NormalizeVar(targetVar),
		batchSize: DefaultBatchSize,
		logger:    logger,
	}
}

// WithBatchSize overrides the number of focus nodes per query.
func (v *CardinalityValidator) WithBatchSize(n int) *CardinalityValidator {
	if n > 0 {
		v.batchSize = n
	}
	return v
}

// verdict memo entry; pending entries are on the current evaluation path and
// count as conforming, which resolves recursive shapes to the largest
// consistent assignment.
type verdict struct {
	valid   bool
	reason  string
	pending bool
}

type run struct {
	*CardinalityValidator
	tx     Transmitter
	memo   map[string]map[string]*verdict
	report Report
}

// Validate evaluates the network. With startFromTarget only the primary
// target's instances and the instances they reference are validated;
// otherwise every shape in traversal order is validated against its own
// target definition as well.
func (v *CardinalityValidator) Validate(ctx context.Context, startFromTarget bool, tx Transmitter) (Report, error) {
	start := time.Now()
	targets := v.network.Targets()
	primary := targets[0]

	r := &run{
		CardinalityValidator: v,
		tx:                   tx,
		memo:                 make(map[string]map[string]*verdict),
	}
	if startFromTarget {
		r.report.Shapes = v.network.NodeOrder(primary)
	} else {
		r.report.Shapes = v.network.NodeOrder()
	}

	for _, id := range r.report.Shapes {
		if startFromTarget && id != primary {
			continue
		}
		instances, err := r.focusNodes(ctx, id, id == primary)
		if err != nil {
			return r.report, err
		}
		v.logger.Debugw("Validating shape", "shape", id, "count", len(instances))
		if err := r.validate(ctx, id, instances); err != nil {
			return r.report, err
		}
	}

	r.report.Elapsed = time.Since(start)
	return r.report, nil
}

// focusNodes returns the instances a shape is validated for at top level.
func (r *run) focusNodes(ctx context.Context, id string, primary bool) ([]string, error) {
	s, _ := r.network.Shape(id)

	query, variable := "", "x"
	switch {
	case primary && r.query != "":
		query, variable = r.query, r.targetVar
	case s.TargetQuery != "":
		query = s.TargetQuery
	case s.TargetClass != "":
		query = fmt.Sprintf("SELECT DISTINCT ?x WHERE { ?x a %s }", pathIRI(s.TargetClass, s.Prefixes))
		query = prefixBlock(s.Prefixes) + query
	default:
		return nil, nil
	}

	var out []string
	seen := make(map[string]bool)
	r.report.Queries++
	_, _, err := r.client.Select(ctx, query, -1, func(b sparql.Binding) error {
		t, ok := b[variable]
		if !ok || t.Kind != sparql.KindIRI || seen[t.Value] {
			return nil
		}
		seen[t.Value] = true
		out = append(out, t.Value)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to collect focus nodes of shape %s", id)
	}
	return out, nil
}

// validate decides every instance of shape id that has no verdict yet and
// transmits the new verdicts.
func (r *run) validate(ctx context.Context, id string, instances []string) error {
	s, ok := r.network.Shape(id)
	if !ok {
		return errors.Newf("shape %s is not part of the network", id)
	}
	memo := r.memo[id]
	if memo == nil {
		memo = make(map[string]*verdict)
		r.memo[id] = memo
	}

	var todo []string
	for _, inst := range instances {
		if _, done := memo[inst]; !done {
			memo[inst] = &verdict{valid: true, pending: true}
			todo = append(todo, inst)
		}
	}
	if len(todo) == 0 {
		return nil
	}

	for lo := 0; lo < len(todo); lo += r.batchSize {
		hi := lo + r.batchSize
		if hi > len(todo) {
			hi = len(todo)
		}
		if err := r.evaluate(ctx, s, todo[lo:hi]); err != nil {
			return err
		}
	}

	for _, inst := range todo {
		res := memo[inst]
		res.pending = false
		r.report.Instances++
		if res.valid {
			r.report.Valid++
		} else {
			r.report.Invalid++
		}
		if r.tx != nil {
			r.tx.Send(inst, id, res.valid, res.reason)
		}
	}
	return nil
}

// evaluate checks every constraint of s for batch and records the first
// violation per instance.
func (r *run) evaluate(ctx context.Context, s *Shape, batch []string) error {
	memo := r.memo[s.ID]
	fail := func(inst, reason string) {
		if v := memo[inst]; v.valid {
			v.valid = false
			v.reason = reason
		}
	}

	for _, c := range s.Constraints {
		var counts map[string]int
		var err error
		if c.Shape == "" {
			counts, err = r.countValues(ctx, s, c, batch)
		} else {
			counts, err = r.countConforming(ctx, s, c, batch)
		}
		if err != nil {
			return errors.Wrapf(err, "failed to evaluate %s on shape %s", c, s.ID)
		}
		for _, inst := range batch {
			if n := counts[inst]; !c.Satisfied(n) {
				fail(inst, fmt.Sprintf("%s: %d values", c, n))
			}
		}
	}
	return nil
}

func (r *run) countValues(ctx context.Context, s *Shape, c Constraint, batch []string) (map[string]int, error) {
	query := prefixBlock(s.Prefixes) + fmt.Sprintf(
		"SELECT ?x (COUNT(DISTINCT ?o) AS ?c) WHERE { VALUES ?x { %s } ?x %s ?o } GROUP BY ?x",
		valuesBlock(batch), pathIRI(c.Path, s.Prefixes))

	counts := make(map[string]int, len(batch))
	r.report.Queries++
	_, _, err := r.client.Select(ctx, query, -1, func(b sparql.Binding) error {
		n, err := strconv.Atoi(b["c"].Value)
		if err != nil {
			return errors.Wrapf(err, "bad count for %s", b["x"].Value)
		}
		counts[b["x"].Value] = n
		return nil
	})
	return counts, err
}

func (r *run) countConforming(ctx context.Context, s *Shape, c Constraint, batch []string) (map[string]int, error) {
	query := prefixBlock(s.Prefixes) + fmt.Sprintf(
		"SELECT DISTINCT ?x ?o WHERE { VALUES ?x { %s } ?x %s ?o }",
		valuesBlock(batch), pathIRI(c.Path, s.Prefixes))

	values := make(map[string][]sparql.Term)
	r.report.Queries++
	_, _, err := r.client.Select(ctx, query, -1, func(b sparql.Binding) error {
		x := b["x"].Value
		values[x] = append(values[x], b["o"])
		return nil
	})
	if err != nil {
		return nil, err
	}

	var refs []string
	seen := make(map[string]bool)
	for _, inst := range batch {
		for _, t := range values[inst] {
			if t.Kind == sparql.KindIRI && !seen[t.Value] {
				seen[t.Value] = true
				refs = append(refs, t.Value)
			}
		}
	}
	if err := r.validate(ctx, c.Shape, refs); err != nil {
		return nil, err
	}

	ref, _ := r.network.Shape(c.Shape)
	refMemo := r.memo[c.Shape]
	counts := make(map[string]int, len(batch))
	for _, inst := range batch {
		for _, t := range values[inst] {
			if t.Kind != sparql.KindIRI {
				// non-IRI values conform only to a shape without constraints
				if len(ref.Constraints) == 0 {
					counts[inst]++
				}
				continue
			}
			if v := refMemo[t.Value]; v != nil && v.valid {
				counts[inst]++
			}
		}
	}
	return counts, nil
}

func valuesBlock(instances []string) string {
	parts := make([]string, len(instances))
	for i, inst := range instances {
		parts[i] = "<" + inst + ">"
	}
	return strings.Join(parts, " ")
}

func prefixBlock(prefixes map[string]string) string {
	if len(prefixes) == 0 {
		return ""
	}
	names := make([]string, 0, len(prefixes))
	for p := range prefixes {
		names = append(names, p)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, p := range names {
		fmt.Fprintf(&b, "PREFIX %s: <%s>\n", p, prefixes[p])
	}
	return b.String()
}
