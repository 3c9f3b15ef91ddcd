package source

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/valstream/errors"
	vstesting "github.com/teranos/valstream/internal/testing"
	"github.com/teranos/valstream/pulse/channel"
	"github.com/teranos/valstream/pulse/runner"
	"github.com/teranos/valstream/pulse/stats"
	"github.com/teranos/valstream/record"
	"github.com/teranos/valstream/sparql"
)

func solutions() []sparql.Binding {
	return []sparql.Binding{
		{"x": sparql.IRI("http://ex.org/i1"), "name": sparql.Literal("Alice")},
		{"x": sparql.IRI("http://ex.org/i1"), "age": sparql.TypedLiteral("30", "http://www.w3.org/2001/XMLSchema#integer")},
		{"x": sparql.IRI("http://ex.org/i2"), "movie": sparql.IRI("http://ex.org/m1")},
	}
}

func newTask(t *testing.T, ep *vstesting.SPARQLEndpoint, limit int) (Task, *channel.Endpoint[record.RawBinding], *channel.Endpoint[record.JoinTuple]) {
	t.Helper()
	raw, err := channel.New[record.RawBinding](channel.Queue, 0)
	require.NoError(t, err)
	join, err := channel.New[record.JoinTuple](channel.Pipe, 16)
	require.NoError(t, err)
	return Task{
		Client:    ep.Client(t),
		Query:     "SELECT * WHERE { ?x ?p ?o }",
		TargetVar: "?x",
		Limit:     limit,
		Raw:       raw,
		Join:      join,
	}, raw, join
}

func runTask(t *testing.T, task Task) *stats.Sink {
	t.Helper()
	sink := stats.NewSink(zap.NewNop().Sugar())
	r := runner.New[Task](context.Background(), runner.DefaultConfig(StageName), New(nil).Work, sink, nil)
	require.NoError(t, r.Start())
	t.Cleanup(func() { r.Stop() })
	require.NoError(t, r.Submit("run-1", task, task.Outputs(), true))
	return sink
}

func TestWorkEmitsRawAndJoinTuples(t *testing.T) {
	ep := vstesting.NewSPARQLEndpoint(t, vstesting.StaticResponder([]string{"x", "name", "age", "movie"}, solutions()))
	task, raw, join := newTask(t, ep, -1)
	sink := runTask(t, task)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raws, err := channel.Collect[record.RawBinding](ctx, raw)
	require.NoError(t, err)
	require.Len(t, raws, 3)
	assert.Equal(t, "http://ex.org/i1", raws[0].Key)
	assert.Equal(t, "Alice", raws[0].Binding["name"].Value)
	assert.Equal(t, 2, raws[2].Seq)

	tuples, err := channel.Collect[record.JoinTuple](ctx, join)
	require.NoError(t, err)
	require.Len(t, tuples, 3)
	assert.NotContains(t, tuples[0].Projection, "name", "literals are not part of the join projection")
	assert.Contains(t, tuples[2].Projection, "movie")
	assert.Equal(t, "http://ex.org/i2", tuples[2].Key)

	msg, ok := sink.Get("run-1", stats.TopicContactSource)
	require.True(t, ok)
	assert.Equal(t, 3, msg.Int(stats.FieldRows))
	assert.Equal(t, int64(1), ep.Requests(), "the query is executed once")
}

func TestWorkHonorsLimit(t *testing.T) {
	ep := vstesting.NewSPARQLEndpoint(t, vstesting.StaticResponder([]string{"x"}, solutions()))
	task, raw, _ := newTask(t, ep, 1)
	sink := runTask(t, task)

	raws, err := channel.Collect[record.RawBinding](context.Background(), raw)
	require.NoError(t, err)
	assert.Len(t, raws, 1)

	msg, _ := sink.Get("run-1", stats.TopicContactSource)
	assert.Equal(t, 1, msg.Int(stats.FieldRows))
}

func TestWorkFailureStillTerminatesStreams(t *testing.T) {
	ep := vstesting.NewSPARQLEndpoint(t, func(string) ([]string, []sparql.Binding, int) {
		return nil, nil, http.StatusBadGateway
	})
	task, raw, join := newTask(t, ep, -1)
	sink := runTask(t, task)

	exc, ok := sink.LookForException("run-1")
	require.True(t, ok)
	assert.True(t, errors.Is(exc.Err, errors.ErrSourceFailure))

	ctx := context.Background()
	raws, err := channel.Collect[record.RawBinding](ctx, raw)
	assert.NoError(t, err)
	assert.Empty(t, raws)
	tuples, err := channel.Collect[record.JoinTuple](ctx, join)
	assert.NoError(t, err)
	assert.Empty(t, tuples)
}

func TestKeyAndProject(t *testing.T) {
	b := sparql.Binding{"x": sparql.IRI("http://ex.org/i1"), "n": sparql.Literal("v")}
	assert.Equal(t, "http://ex.org/i1", Key(b, "x"))
	assert.Equal(t, "", Key(b, "y"))
	assert.Equal(t, sparql.Binding{"x": sparql.IRI("http://ex.org/i1")}, Project(b))
}
