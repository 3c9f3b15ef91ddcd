// Package record defines the items that flow between pipeline stages.
package record

import (
	"sort"

	"github.com/teranos/valstream/sparql"
)

// Verdict is the validation result for one (instance, shape) pair.
type Verdict struct {
	Instance string `json:"instance"`
	Shape    string `json:"shape"`
	Valid    bool   `json:"valid"`
	Reason   string `json:"reason,omitempty"`
}

// RawBinding is a query solution exactly as the source returned it.
// Seq is its position in the result stream.
type RawBinding struct {
	Seq     int            `json:"seq"`
	Key     string         `json:"key"`
	Binding sparql.Binding `json:"binding"`
}

// JoinTuple is the join-ready projection of a solution: literal-valued
// variables are removed, Key carries the join attribute.
type JoinTuple struct {
	Seq        int            `json:"seq"`
	Key        string         `json:"key"`
	Projection sparql.Binding `json:"projection"`
}

// Pair is one XJoin result. Verdict is nil for a tuple whose key never matched.
type Pair struct {
	Verdict *Verdict  `json:"verdict,omitempty"`
	Tuple   JoinTuple `json:"tuple"`
}

// Matched reports whether the pair carries a verdict.
func (p Pair) Matched() bool { return p.Verdict != nil }

// Row is a reconstructed result row.
type Row struct {
	Key         string                   `json:"key"`
	Validations []Verdict                `json:"validations"`
	Values      map[string][]sparql.Term `json:"values"`
}

// Valid reports whether the row has at least one verdict and all verdicts hold.
func (r Row) Valid() bool {
	if len(r.Validations) == 0 {
		return false
	}
	for _, v := range r.Validations {
		if !v.Valid {
			return false
		}
	}
	return true
}

// Vars returns the row's variable names in sorted order.
func (r Row) Vars() []string {
	vars := make([]string, 0, len(r.Values))
	for v := range r.Values {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}

// AddValue appends t to var unless the same term is already present.
func (r *Row) AddValue(name string, t sparql.Term) {
	if r.Values == nil {
		r.Values = make(map[string][]sparql.Term)
	}
	for _, existing := range r.Values[name] {
		if existing == t {
			return
		}
	}
	r.Values[name] = append(r.Values[name], t)
}

// VarSet is the set of query variables that are validated against shapes.
type VarSet map[string]string // variable -> shape id

// Has reports whether name is a shape variable.
func (s VarSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the variable names in sorted order.
func (s VarSet) Names() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
