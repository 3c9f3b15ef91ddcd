// Package testing provides shared test fixtures.
package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/teranos/valstream/internal/httpclient"
	"github.com/teranos/valstream/sparql"
)

// Responder answers one SPARQL query with variables and solutions. A non-zero
// status makes the endpoint fail the request with that HTTP status.
type Responder func(query string) (vars []string, rows []sparql.Binding, status int)

// SPARQLEndpoint is an in-process SPARQL endpoint backed by httptest.
type SPARQLEndpoint struct {
	*httptest.Server
	requests atomic.Int64

	mu      sync.Mutex
	queries []string
}

// NewSPARQLEndpoint starts a fake endpoint and registers cleanup via t.Cleanup().
func NewSPARQLEndpoint(t *testing.T, respond Responder) *SPARQLEndpoint {
	t.Helper()

	ep := &SPARQLEndpoint{}
	ep.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ep.requests.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		query := r.Form.Get("query")
		ep.mu.Lock()
		ep.queries = append(ep.queries, query)
		ep.mu.Unlock()

		vars, rows, status := respond(query)
		if status != 0 {
			http.Error(w, "fake endpoint failure", status)
			return
		}

		var doc sparql.Results
		doc.Head.Vars = vars
		doc.Results.Bindings = rows
		if doc.Results.Bindings == nil {
			doc.Results.Bindings = []sparql.Binding{}
		}
		w.Header().Set("Content-Type", "application/sparql-results+json")
		json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(ep.Server.Close)
	return ep
}

// StaticResponder answers every query with the same solutions.
func StaticResponder(vars []string, rows []sparql.Binding) Responder {
	return func(string) ([]string, []sparql.Binding, int) { return vars, rows, 0 }
}

// Requests returns how many requests the endpoint served.
func (e *SPARQLEndpoint) Requests() int64 { return e.requests.Load() }

// Queries returns the query texts received so far.
func (e *SPARQLEndpoint) Queries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.queries...)
}

// QueriesContaining counts received queries containing substr.
func (e *SPARQLEndpoint) QueriesContaining(substr string) int {
	n := 0
	for _, q := range e.Queries() {
		if strings.Contains(q, substr) {
			n++
		}
	}
	return n
}

// Client returns a sparql client for the endpoint without address restrictions.
func (e *SPARQLEndpoint) Client(t *testing.T) *sparql.Client {
	t.Helper()
	c, err := sparql.NewClient(e.URL, httpclient.WrapClient(e.Server.Client()), nil)
	if err != nil {
		t.Fatalf("Failed to create SPARQL client: %v", err)
	}
	return c
}
