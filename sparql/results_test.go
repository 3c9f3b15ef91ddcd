package sparql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsDoc = `{
  "head": {"vars": ["x", "name", "age"]},
  "results": {
    "distinct": false,
    "bindings": [
      {"x": {"type": "uri", "value": "http://ex.org/i1"}, "name": {"type": "literal", "value": "Alice", "xml:lang": "en"}},
      {"x": {"type": "uri", "value": "http://ex.org/i1"}, "age": {"type": "literal", "value": "30", "datatype": "http://www.w3.org/2001/XMLSchema#integer"}},
      {"x": {"type": "bnode", "value": "b0"}}
    ]
  }
}`

func TestDecodeResultsStreamsInOrder(t *testing.T) {
	var rows []Binding
	head, boolean, err := DecodeResults(strings.NewReader(resultsDoc), func(b Binding) error {
		rows = append(rows, b)
		return nil
	})
	require.NoError(t, err)
	assert.Nil(t, boolean)
	assert.Equal(t, []string{"x", "name", "age"}, head.Vars)
	require.Len(t, rows, 3)

	assert.Equal(t, IRI("http://ex.org/i1"), rows[0]["x"])
	assert.Equal(t, "en", rows[0]["name"].Lang)
	assert.Equal(t, "http://www.w3.org/2001/XMLSchema#integer", rows[1]["age"].Datatype)
	assert.Equal(t, KindBlank, rows[2]["x"].Kind)
}

func TestDecodeResultsResultsBeforeHead(t *testing.T) {
	doc := `{"results": {"bindings": [{"s": {"type": "uri", "value": "u"}}]}, "head": {"vars": ["s"]}}`
	n := 0
	head, _, err := DecodeResults(strings.NewReader(doc), func(Binding) error { n++; return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"s"}, head.Vars)
}

func TestDecodeResultsBoolean(t *testing.T) {
	_, boolean, err := DecodeResults(strings.NewReader(`{"head": {}, "boolean": true}`), func(Binding) error { return nil })
	require.NoError(t, err)
	require.NotNil(t, boolean)
	assert.True(t, *boolean)
}

func TestDecodeResultsMalformed(t *testing.T) {
	for _, doc := range []string{
		``,
		`[]`,
		`{"results": {"bindings": [{"x": 5}]}}`,
		`{"results": {"bindings": [`,
	} {
		_, _, err := DecodeResults(strings.NewReader(doc), func(Binding) error { return nil })
		assert.Error(t, err, "document %q", doc)
	}
}

func TestTermString(t *testing.T) {
	assert.Equal(t, "<http://ex.org/a>", IRI("http://ex.org/a").String())
	assert.Equal(t, `"Alice"@en`, Term{Kind: KindLiteral, Value: "Alice", Lang: "en"}.String())
	assert.Equal(t, `"30"^^<http://www.w3.org/2001/XMLSchema#integer>`,
		TypedLiteral("30", "http://www.w3.org/2001/XMLSchema#integer").String())
	assert.Equal(t, "_:b0", Term{Kind: KindBlank, Value: "b0"}.String())
}

func TestBindingHelpers(t *testing.T) {
	b := Binding{"x": IRI("i1"), "name": Literal("Alice"), "knows": IRI("i2")}
	assert.Equal(t, []string{"knows", "name", "x"}, b.Vars())

	noLiterals := b.Without(func(_ string, t Term) bool { return t.IsLiteral() })
	assert.Equal(t, []string{"knows", "x"}, noLiterals.Vars())
	assert.Len(t, b, 3, "Without must not modify the receiver")

	assert.Equal(t, "x", NormalizeVar("?x"))
	assert.Equal(t, "x", NormalizeVar("$x"))
}
