package shape

import (
	"sort"

	"github.com/teranos/valstream/errors"
	"github.com/teranos/valstream/sparql"
)

// ReduceOptions controls how a shape network is cut down for one query.
type ReduceOptions struct {
	Targets []string // target shape ids, the first is the primary target
	// Query, when RemoveConstraints is set, decides which constraints of the
	// target shapes survive: only those whose predicate the query mentions.
	Query             string
	Prune             bool // keep only shapes reachable from the targets
	RemoveConstraints bool
}

// Edges is the dependency structure of a reduced network.
type Edges struct {
	Dependencies        map[string][]string `json:"dependencies"`
	ReverseDependencies map[string][]string `json:"reverse_dependencies"`
}

// Network is a reduced shape schema for one query.
type Network struct {
	shapes  map[string]*Shape
	targets []string
	removed map[string][]Constraint
	edges   Edges
}

// Reduce builds the network for opts from all. Constraint removal runs
// first, then edges are computed on what remains, then pruning drops every
// shape the targets cannot reach over those edges.
func Reduce(all []*Shape, opts ReduceOptions) (*Network, error) {
	if len(opts.Targets) == 0 {
		return nil, errors.NewInvalidRequestError("at least one target shape is required")
	}

	shapes := make(map[string]*Shape, len(all))
	for _, s := range all {
		if _, dup := shapes[s.ID]; dup {
			return nil, errors.NewInvalidRequestError("duplicate shape %s", s.ID)
		}
		shapes[s.ID] = s.clone()
	}

	isTarget := make(map[string]bool, len(opts.Targets))
	for _, id := range opts.Targets {
		if _, ok := shapes[id]; !ok {
			return nil, errors.NewInvalidRequestError("unknown target shape %s", id)
		}
		isTarget[id] = true
	}

	n := &Network{
		shapes:  shapes,
		targets: append([]string(nil), opts.Targets...),
		removed: make(map[string][]Constraint),
	}

	if opts.RemoveConstraints {
		mentions := sparql.ScanMentions(opts.Query)
		for id, s := range shapes {
			kept := s.Constraints[:0]
			for _, c := range s.Constraints {
				targetRelated := isTarget[id] || (c.Shape != "" && isTarget[c.Shape])
				if targetRelated && !mentions.Contains(c.Path, s.Prefixes) {
					n.removed[id] = append(n.removed[id], c)
					continue
				}
				kept = append(kept, c)
			}
			s.Constraints = kept
		}
	}

	for id, s := range shapes {
		for _, ref := range s.References() {
			if _, ok := shapes[ref]; !ok {
				return nil, errors.NewInvalidRequestError("shape %s references unknown shape %s", id, ref)
			}
		}
	}

	n.edges = computeEdges(shapes, isTarget, opts.RemoveConstraints)

	if opts.Prune {
		reachable := n.reachable(n.targets)
		for id := range shapes {
			if !reachable[id] {
				delete(shapes, id)
				delete(n.removed, id)
			}
		}
		n.edges = computeEdges(shapes, isTarget, opts.RemoveConstraints)
	}
	return n, nil
}

// computeEdges records every reference as a dependency. A reverse edge is
// added only when constraints are being removed and the reference points at
// a target shape.
func computeEdges(shapes map[string]*Shape, isTarget map[string]bool, removeConstraints bool) Edges {
	e := Edges{
		Dependencies:        make(map[string][]string),
		ReverseDependencies: make(map[string][]string),
	}
	for _, id := range sortedIDs(shapes) {
		refs := shapes[id].References()
		e.Dependencies[id] = refs
		if !removeConstraints {
			continue
		}
		for _, ref := range refs {
			if isTarget[ref] {
				e.ReverseDependencies[ref] = append(e.ReverseDependencies[ref], id)
			}
		}
	}
	return e
}

// reachable returns every shape reachable from start over dependencies and
// reverse dependencies.
func (n *Network) reachable(start []string) map[string]bool {
	seen := make(map[string]bool)
	for _, id := range n.bfs(start) {
		seen[id] = true
	}
	return seen
}

func (n *Network) bfs(start []string) []string {
	var order []string
	seen := make(map[string]bool)
	queue := make([]string, 0, len(start))
	for _, id := range start {
		if _, ok := n.shapes[id]; ok && !seen[id] {
			seen[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range n.neighbours(id) {
			if _, ok := n.shapes[next]; ok && !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return order
}

func (n *Network) neighbours(id string) []string {
	out := append([]string(nil), n.edges.Dependencies[id]...)
	return append(out, n.edges.ReverseDependencies[id]...)
}

// ReducedEdges returns the dependency structure. The maps are copies.
func (n *Network) ReducedEdges() Edges {
	cp := func(m map[string][]string) map[string][]string {
		out := make(map[string][]string, len(m))
		for k, v := range m {
			out[k] = append([]string(nil), v...)
		}
		return out
	}
	return Edges{
		Dependencies:        cp(n.edges.Dependencies),
		ReverseDependencies: cp(n.edges.ReverseDependencies),
	}
}

// NodeOrder returns the breadth-first traversal of the network starting at
// start. Without a start, traversal begins at the targets and then continues
// with every shape not yet visited, in id order.
func (n *Network) NodeOrder(start ...string) []string {
	if len(start) > 0 {
		return n.bfs(start)
	}
	order := n.bfs(n.targets)
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		seen[id] = true
	}
	for _, id := range sortedIDs(n.shapes) {
		if !seen[id] {
			rest := n.bfs([]string{id})
			for _, r := range rest {
				if !seen[r] {
					seen[r] = true
					order = append(order, r)
				}
			}
		}
	}
	return order
}

// Shape returns the shape with id.
func (n *Network) Shape(id string) (*Shape, bool) {
	s, ok := n.shapes[id]
	return s, ok
}

// IDs returns the ids of the shapes in the network, sorted.
func (n *Network) IDs() []string { return sortedIDs(n.shapes) }

// Targets returns the target shape ids.
func (n *Network) Targets() []string { return append([]string(nil), n.targets...) }

// IsTarget reports whether id is a target shape.
func (n *Network) IsTarget(id string) bool {
	for _, t := range n.targets {
		if t == id {
			return true
		}
	}
	return false
}

// Removed returns the constraints dropped from shape id during reduction.
func (n *Network) Removed(id string) []Constraint { return n.removed[id] }

func sortedIDs(shapes map[string]*Shape) []string {
	ids := make([]string, 0, len(shapes))
	for id := range shapes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
