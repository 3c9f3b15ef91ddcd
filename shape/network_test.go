package shape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Actor -> Movie -> Studio, Award -> Actor, Orphan stands alone.
func testShapes() []*Shape {
	return []*Shape{
		{ID: "Actor", Constraints: []Constraint{
			{Path: "http://ex.org/name", Min: 1},
			{Path: "http://ex.org/starring", Shape: "Movie", Min: 1},
			{Path: "http://ex.org/height"},
		}},
		{ID: "Movie", Constraints: []Constraint{
			{Path: "http://ex.org/studio", Shape: "Studio"},
		}},
		{ID: "Studio"},
		{ID: "Award", Constraints: []Constraint{
			{Path: "http://ex.org/winner", Shape: "Actor", Min: 1},
		}},
		{ID: "Orphan"},
	}
}

func TestReduceWithoutConstraintRemoval(t *testing.T) {
	n, err := Reduce(testShapes(), ReduceOptions{Targets: []string{"Actor"}, Prune: true})
	require.NoError(t, err)

	// no reverse edges, so Award is unreachable from Actor and pruned
	assert.Equal(t, []string{"Actor", "Movie", "Studio"}, n.IDs())

	edges := n.ReducedEdges()
	assert.Equal(t, []string{"Movie"}, edges.Dependencies["Actor"])
	assert.Empty(t, edges.ReverseDependencies)
	assert.Equal(t, []string{"Actor", "Movie", "Studio"}, n.NodeOrder("Actor"))
}

func TestReduceRemovesConstraintsAndAddsReverseEdgesToTargets(t *testing.T) {
	query := `SELECT ?x ?n WHERE { ?x <http://ex.org/name> ?n . ?x <http://ex.org/starring> ?m . ?a <http://ex.org/winner> ?x }`
	n, err := Reduce(testShapes(), ReduceOptions{
		Targets:           []string{"Actor"},
		Query:             query,
		Prune:             true,
		RemoveConstraints: true,
	})
	require.NoError(t, err)

	actor, ok := n.Shape("Actor")
	require.True(t, ok)
	assert.Len(t, actor.Constraints, 2, "height is not mentioned by the query")
	require.Len(t, n.Removed("Actor"), 1)
	assert.Equal(t, "http://ex.org/height", n.Removed("Actor")[0].Path)

	edges := n.ReducedEdges()
	assert.Equal(t, []string{"Award"}, edges.ReverseDependencies["Actor"])
	assert.NotContains(t, edges.ReverseDependencies, "Studio", "reverse edges only point at targets")

	assert.Equal(t, []string{"Actor", "Award", "Movie", "Studio"}, n.IDs())
	assert.Equal(t, []string{"Actor", "Movie", "Award", "Studio"}, n.NodeOrder("Actor"))
}

func TestReduceDropsReferencesToTargetsNotInQuery(t *testing.T) {
	n, err := Reduce(testShapes(), ReduceOptions{
		Targets:           []string{"Actor"},
		Query:             `SELECT ?x WHERE { ?x <http://ex.org/name> ?n }`,
		Prune:             true,
		RemoveConstraints: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Actor"}, n.IDs())
	assert.Len(t, n.Removed("Actor"), 2)
}

func TestReduceWithoutPruneKeepsEverything(t *testing.T) {
	n, err := Reduce(testShapes(), ReduceOptions{Targets: []string{"Actor"}})
	require.NoError(t, err)
	assert.Len(t, n.IDs(), 5)

	order := n.NodeOrder()
	assert.Equal(t, "Actor", order[0])
	assert.Len(t, order, 5)
	assert.ElementsMatch(t, n.IDs(), order)
}

func TestReduceErrors(t *testing.T) {
	_, err := Reduce(testShapes(), ReduceOptions{})
	assert.Error(t, err)

	_, err = Reduce(testShapes(), ReduceOptions{Targets: []string{"Nope"}})
	assert.ErrorContains(t, err, "unknown target shape")

	broken := []*Shape{{ID: "A", Constraints: []Constraint{{Path: "p", Shape: "Missing"}}}}
	_, err = Reduce(broken, ReduceOptions{Targets: []string{"A"}})
	assert.ErrorContains(t, err, "unknown shape Missing")
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	shapes := testShapes()
	_, err := Reduce(shapes, ReduceOptions{Targets: []string{"Actor"}, RemoveConstraints: true, Query: "SELECT * {}"})
	require.NoError(t, err)
	assert.Len(t, shapes[0].Constraints, 3)
}
