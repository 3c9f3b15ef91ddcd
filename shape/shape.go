// Package shape holds the constraint schema used to validate query results:
// shapes, their dependency network and a validator that evaluates them
// against a SPARQL endpoint.
package shape

import (
	"fmt"
	"strings"

	"github.com/teranos/valstream/errors"
)

// Shape is a named set of constraints over the focus nodes it targets.
type Shape struct {
	ID          string            `json:"id" yaml:"id" toml:"id"`
	TargetClass string            `json:"target_class,omitempty" yaml:"target_class,omitempty" toml:"target_class,omitempty"`
	TargetQuery string            `json:"target_query,omitempty" yaml:"target_query,omitempty" toml:"target_query,omitempty"`
	Prefixes    map[string]string `json:"prefixes,omitempty" yaml:"prefixes,omitempty" toml:"prefixes,omitempty"`
	Constraints []Constraint      `json:"constraints" yaml:"constraints" toml:"constraints"`
}

// Constraint bounds the number of values reachable over Path. When Shape is
// set only values conforming to that shape are counted.
type Constraint struct {
	Path  string `json:"path" yaml:"path" toml:"path"` // predicate, '^' prefix for inverse
	Shape string `json:"shape,omitempty" yaml:"shape,omitempty" toml:"shape,omitempty"`
	Min   int    `json:"min,omitempty" yaml:"min,omitempty" toml:"min,omitempty"`
	Max   *int   `json:"max,omitempty" yaml:"max,omitempty" toml:"max,omitempty"` // nil = unbounded
}

// Inverse reports whether the constraint follows Path backwards.
func (c Constraint) Inverse() bool { return strings.HasPrefix(c.Path, "^") }

// Predicate returns Path without the inverse marker.
func (c Constraint) Predicate() string { return strings.TrimPrefix(c.Path, "^") }

// Satisfied reports whether count values meet the bounds.
func (c Constraint) Satisfied(count int) bool {
	if count < c.Min {
		return false
	}
	return c.Max == nil || count <= *c.Max
}

// String describes the constraint for violation reasons.
func (c Constraint) String() string {
	bounds := fmt.Sprintf("min %d", c.Min)
	if c.Max != nil {
		bounds += fmt.Sprintf(", max %d", *c.Max)
	}
	if c.Shape != "" {
		return fmt.Sprintf("%s -> %s (%s)", c.Path, c.Shape, bounds)
	}
	return fmt.Sprintf("%s (%s)", c.Path, bounds)
}

// Validate checks the shape definition itself.
func (s *Shape) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.NewInvalidRequestError("shape id cannot be empty")
	}
	for i, c := range s.Constraints {
		if strings.TrimSpace(c.Predicate()) == "" {
			return errors.NewInvalidRequestError("shape %s: constraint %d has no path", s.ID, i)
		}
		if c.Min < 0 {
			return errors.NewInvalidRequestError("shape %s: constraint %s has negative min", s.ID, c.Path)
		}
		if c.Max != nil && *c.Max < c.Min {
			return errors.NewInvalidRequestError("shape %s: constraint %s has max below min", s.ID, c.Path)
		}
	}
	return nil
}

// References returns the shapes referenced by the constraints, in order,
// without duplicates.
func (s *Shape) References() []string {
	var refs []string
	seen := make(map[string]bool)
	for _, c := range s.Constraints {
		if c.Shape != "" && !seen[c.Shape] {
			seen[c.Shape] = true
			refs = append(refs, c.Shape)
		}
	}
	return refs
}

// clone copies s with its own constraint slice.
func (s *Shape) clone() *Shape {
	out := *s
	out.Constraints = append([]Constraint(nil), s.Constraints...)
	return &out
}

// pathIRI renders a constraint path for use in a query pattern.
func pathIRI(path string, prefixes map[string]string) string {
	inverse := strings.HasPrefix(path, "^")
	p := strings.TrimPrefix(path, "^")
	switch {
	case strings.HasPrefix(p, "<"):
	case strings.Contains(p, "://"):
		p = "<" + p + ">"
	default:
		if i := strings.Index(p, ":"); i >= 0 {
			if ns, ok := prefixes[p[:i]]; ok {
				p = "<" + ns + p[i+1:] + ">"
			}
		}
	}
	if inverse {
		return "^" + p
	}
	return p
}
