package shape

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

func TestLoadDirReadsAllFormats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "actor.json", `{
  "id": "ActorShape",
  "target_class": "http://ex.org/Actor",
  "constraints": [
    {"path": "http://ex.org/name", "min": 1},
    {"path": "http://ex.org/starring", "shape": "MovieShape", "min": 1}
  ]
}`)
	writeFile(t, dir, "movie.yaml", `
id: MovieShape
prefixes:
  ex: http://ex.org/
constraints:
  - path: ex:title
    min: 1
    max: 1
`)
	writeFile(t, dir, "place.toml", `
target_class = "http://ex.org/Place"

[[constraints]]
path = "^http://ex.org/birthPlace"
min = 0
`)
	writeFile(t, dir, "README.md", "not a shape")

	shapes, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, shapes, 3)

	assert.Equal(t, "ActorShape", shapes[0].ID)
	assert.Equal(t, []string{"MovieShape"}, shapes[0].References())

	movie := shapes[1]
	assert.Equal(t, "MovieShape", movie.ID)
	require.NotNil(t, movie.Constraints[0].Max)
	assert.Equal(t, 1, *movie.Constraints[0].Max)
	assert.Equal(t, "http://ex.org/", movie.Prefixes["ex"])

	place := shapes[2]
	assert.Equal(t, "place", place.ID, "id defaults to the file name")
	assert.True(t, place.Constraints[0].Inverse())
	assert.Equal(t, "http://ex.org/birthPlace", place.Constraints[0].Predicate())
}

func TestLoadDirRejectsDuplicatesAndEmpty(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadDir(dir)
	assert.Error(t, err, "empty directory")

	writeFile(t, dir, "a.json", `{"id": "S", "constraints": []}`)
	writeFile(t, dir, "b.yaml", "id: S\nconstraints: []\n")
	_, err = LoadDir(dir)
	assert.ErrorContains(t, err, "defined in both")
}

func TestLoadFileRejectsInvalidShapes(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"nopath.json":   `{"id": "S", "constraints": [{"min": 1}]}`,
		"negative.json": `{"id": "S", "constraints": [{"path": "p", "min": -1}]}`,
		"bounds.json":   `{"id": "S", "constraints": [{"path": "p", "min": 2, "max": 1}]}`,
		"unknown.json":  `{"id": "S", "constraints": [], "severity": "warning"}`,
	}
	for name, content := range tests {
		writeFile(t, dir, name, content)
		if _, err := LoadFile(filepath.Join(dir, name)); err == nil {
			t.Errorf("LoadFile(%s) expected error", name)
		}
	}
}

func TestConstraintSatisfied(t *testing.T) {
	one := 1
	c := Constraint{Path: "p", Min: 1, Max: &one}
	assert.False(t, c.Satisfied(0))
	assert.True(t, c.Satisfied(1))
	assert.False(t, c.Satisfied(2))
	assert.True(t, Constraint{Path: "p"}.Satisfied(0))
}

func TestPathIRI(t *testing.T) {
	prefixes := map[string]string{"ex": "http://ex.org/"}
	assert.Equal(t, "<http://ex.org/p>", pathIRI("ex:p", prefixes))
	assert.Equal(t, "^<http://ex.org/p>", pathIRI("^ex:p", prefixes))
	assert.Equal(t, "<http://x.org/q>", pathIRI("http://x.org/q", nil))
	assert.Equal(t, "<http://x.org/q>", pathIRI("<http://x.org/q>", nil))
	assert.Equal(t, "foaf:name", pathIRI("foaf:name", prefixes), "unknown prefixes pass through")
}
