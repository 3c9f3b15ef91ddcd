package sparql

import (
	"regexp"
	"strings"
)

const rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

var (
	prefixDeclRe = regexp.MustCompile(`(?i)PREFIX\s+([A-Za-z][\w.-]*)?:\s*<([^<>\s]*)>`)
	stringRe     = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'`)
	iriRe        = regexp.MustCompile(`<([^<>"{}|\x60\\\s]*)>`)
	pnameRe      = regexp.MustCompile(`(?:^|[\s(){};,/^|!])((?:[A-Za-z][\w.-]*)?:[\w][\w.-]*)`)
	typeRe       = regexp.MustCompile(`\s+a\s+`)
)

// Mentions is the set of IRIs and prefixed names appearing in a query text.
// It is a lexical scan, not a parse: anything that looks like an IRI counts,
// whatever position it occupies.
type Mentions struct {
	iris     map[string]bool
	names    map[string]bool
	prefixes map[string]string
}

// ScanMentions collects the IRIs and prefixed names of query. Prefixed names
// declared with PREFIX are also recorded in expanded form.
func ScanMentions(query string) Mentions {
	m := Mentions{
		iris:     make(map[string]bool),
		names:    make(map[string]bool),
		prefixes: make(map[string]string),
	}
	for _, decl := range prefixDeclRe.FindAllStringSubmatch(query, -1) {
		m.prefixes[decl[1]] = decl[2]
	}

	body := prefixDeclRe.ReplaceAllString(query, " ")
	body = stringRe.ReplaceAllString(body, " ")
	for _, iri := range iriRe.FindAllStringSubmatch(body, -1) {
		m.iris[iri[1]] = true
	}
	body = iriRe.ReplaceAllString(body, " ")

	for _, pn := range pnameRe.FindAllStringSubmatch(body, -1) {
		name := strings.TrimRight(pn[1], ".")
		m.names[name] = true
		if iri, ok := expand(name, m.prefixes); ok {
			m.iris[iri] = true
		}
	}
	if typeRe.MatchString(body) {
		m.iris[rdfType] = true
	}
	return m
}

// Contains reports whether term occurs in the query. term is a predicate IRI,
// with or without angle brackets, or a prefixed name resolved against
// prefixes. A leading '^' (inverse path) is ignored.
func (m Mentions) Contains(term string, prefixes map[string]string) bool {
	term = strings.TrimPrefix(strings.TrimSpace(term), "^")
	if strings.HasPrefix(term, "<") && strings.HasSuffix(term, ">") {
		return m.iris[term[1:len(term)-1]]
	}
	if m.iris[term] || m.names[term] {
		return true
	}
	if iri, ok := expand(term, prefixes); ok && m.iris[iri] {
		return true
	}
	if term == "a" {
		return m.iris[rdfType]
	}
	return false
}

// Len returns the number of distinct IRIs mentioned.
func (m Mentions) Len() int { return len(m.iris) }

func expand(name string, prefixes map[string]string) (string, bool) {
	i := strings.Index(name, ":")
	if i < 0 || strings.Contains(name, "://") {
		return "", false
	}
	ns, ok := prefixes[name[:i]]
	if !ok {
		return "", false
	}
	return ns + name[i+1:], true
}
