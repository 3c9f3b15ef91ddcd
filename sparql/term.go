// Package sparql models SPARQL 1.1 query results and talks to endpoints
// over the SPARQL protocol with JSON results.
package sparql

import (
	"sort"
	"strconv"
	"strings"
)

// TermKind is the RDF term type as named in SPARQL JSON results.
type TermKind string

const (
	KindIRI     TermKind = "uri"
	KindLiteral TermKind = "literal"
	KindBlank   TermKind = "bnode"
)

// Term is one RDF term bound to a query variable.
type Term struct {
	Kind     TermKind `json:"type"`
	Value    string   `json:"value"`
	Datatype string   `json:"datatype,omitempty"`
	Lang     string   `json:"xml:lang,omitempty"`
}

// IRI builds an IRI term.
func IRI(v string) Term { return Term{Kind: KindIRI, Value: v} }

// Literal builds a plain literal term.
func Literal(v string) Term { return Term{Kind: KindLiteral, Value: v} }

// TypedLiteral builds a literal with a datatype IRI.
func TypedLiteral(v, datatype string) Term {
	return Term{Kind: KindLiteral, Value: v, Datatype: datatype}
}

// IsLiteral reports whether t is a literal.
func (t Term) IsLiteral() bool { return t.Kind == KindLiteral }

// String renders t in N-Triples form.
func (t Term) String() string {
	switch t.Kind {
	case KindIRI:
		return "<" + t.Value + ">"
	case KindBlank:
		return "_:" + t.Value
	default:
		s := strconv.Quote(t.Value)
		if t.Lang != "" {
			return s + "@" + t.Lang
		}
		if t.Datatype != "" {
			return s + "^^<" + t.Datatype + ">"
		}
		return s
	}
}

// Binding maps variable names (without '?') to terms for one solution.
type Binding map[string]Term

// Vars returns the bound variable names in sorted order.
func (b Binding) Vars() []string {
	vars := make([]string, 0, len(b))
	for v := range b {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}

// Without returns a copy of b minus the variables for which drop returns true.
func (b Binding) Without(drop func(name string, t Term) bool) Binding {
	out := make(Binding, len(b))
	for name, t := range b {
		if !drop(name, t) {
			out[name] = t
		}
	}
	return out
}

// Clone returns a shallow copy of b.
func (b Binding) Clone() Binding {
	out := make(Binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// NormalizeVar strips a leading '?' or '$' from a variable name.
func NormalizeVar(name string) string {
	return strings.TrimLeft(name, "?$")
}
