package output

import (
	"sort"

	"github.com/teranos/valstream/am"
	"github.com/teranos/valstream/record"
	"github.com/teranos/valstream/sparql"
)

// SimpleRow is one result row of the simple document.
type SimpleRow struct {
	Key        string                   `json:"key"`
	Valid      bool                     `json:"valid"`
	Values     map[string][]sparql.Term `json:"values"`
	Validation []record.Verdict         `json:"validation"`
}

// SimpleDocument mirrors the SPARQL results layout with validation attached.
type SimpleDocument struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results []SimpleRow `json:"results"`
}

// SimpleBuilder returns the rows with their validation results.
type SimpleBuilder struct{}

// Format implements Builder.
func (SimpleBuilder) Format() string { return am.FormatSimple }

// Build implements Builder.
func (SimpleBuilder) Build(run *Run) (any, error) {
	var doc SimpleDocument
	vars := make(map[string]bool)
	doc.Results = make([]SimpleRow, 0, len(run.Rows))
	for _, row := range run.Rows {
		for v := range row.Values {
			vars[v] = true
		}
		validation := row.Validations
		if validation == nil {
			validation = []record.Verdict{}
		}
		doc.Results = append(doc.Results, SimpleRow{
			Key:        row.Key,
			Valid:      row.Valid(),
			Values:     row.Values,
			Validation: validation,
		})
	}
	doc.Head.Vars = make([]string, 0, len(vars))
	for v := range vars {
		doc.Head.Vars = append(doc.Head.Vars, v)
	}
	sort.Strings(doc.Head.Vars)
	return doc, nil
}
