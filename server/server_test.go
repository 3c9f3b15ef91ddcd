package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/valstream/am"
	"github.com/teranos/valstream/engine"
	"github.com/teranos/valstream/errors"
	"github.com/teranos/valstream/internal/httpclient"
	vstesting "github.com/teranos/valstream/internal/testing"
	"github.com/teranos/valstream/sparql"
)

const query = "SELECT ?x WHERE { ?x a <http://ex.org/Thing> }"

// every instance is valid: the shape has no constraints
const thingShape = `{"id": "Thing", "target_class": "http://ex.org/Thing", "constraints": []}`

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	ep := vstesting.NewSPARQLEndpoint(t, vstesting.StaticResponder([]string{"x"}, []sparql.Binding{
		{"x": sparql.IRI("http://ex.org/a")},
		{"x": sparql.IRI("http://ex.org/b")},
	}))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "thing.json"), []byte(thingShape), 0644))
	cfg := am.Defaults()
	cfg.Source.Endpoint = ep.URL
	cfg.Validation.SchemaDir = dir
	cfg.Validation.TargetShape = "Thing"
	cfg.Pipeline.RestartSettleMS = 0

	e, err := engine.New(context.Background(), cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	e.WithHTTPClient(httpclient.WrapClient(ep.Server.Client()))
	t.Cleanup(func() { e.Close() })

	s := New(e, zap.NewNop().Sugar())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestHandleRunForm(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.PostForm(ts.URL+"/run", url.Values{"query": {query}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		RunID    string `json:"run_id"`
		Format   string `json:"format"`
		Document struct {
			Results []struct {
				Key   string `json:"key"`
				Valid bool   `json:"valid"`
			} `json:"results"`
		} `json:"document"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.RunID)
	assert.Equal(t, am.FormatSimple, body.Format)
	require.Len(t, body.Document.Results, 2)
	assert.Equal(t, "http://ex.org/a", body.Document.Results[0].Key)
	assert.True(t, body.Document.Results[0].Valid)
}

func TestHandleRunJSON(t *testing.T) {
	_, ts := newTestServer(t)

	payload := `{"query": "` + query + `", "limit": 1}`
	resp, err := http.Post(ts.URL+"/run", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleRunErrors(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name   string
		do     func() (*http.Response, error)
		status int
	}{
		{"wrong method", func() (*http.Response, error) { return http.Get(ts.URL + "/run") }, http.StatusMethodNotAllowed},
		{"empty query", func() (*http.Response, error) {
			return http.PostForm(ts.URL+"/run", url.Values{"query": {""}})
		}, http.StatusBadRequest},
		{"bad limit", func() (*http.Response, error) {
			return http.PostForm(ts.URL+"/run", url.Values{"query": {query}, "limit": {"many"}})
		}, http.StatusBadRequest},
		{"bad shape var", func() (*http.Response, error) {
			return http.PostForm(ts.URL+"/run", url.Values{"query": {query}, "shape_var": {"novalue"}})
		}, http.StatusBadRequest},
		{"bad json", func() (*http.Response, error) {
			return http.Post(ts.URL+"/run", "application/json", strings.NewReader("{"))
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := tt.do()
			require.NoError(t, err)
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestHandleRunWebSocket(t *testing.T) {
	_, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/run"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(engine.Request{Query: query}))

	var rows int
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == frameRow {
			require.NotNil(t, f.Row)
			rows++
			continue
		}
		require.Equal(t, frameDone, f.Type, "unexpected frame: %+v", f)
		assert.NotEmpty(t, f.RunID)
		break
	}
	assert.Equal(t, 2, rows)
}

func TestHandleHealth(t *testing.T) {
	s, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	var body struct {
		Healthy bool            `json:"healthy"`
		Runners map[string]bool `json:"runners"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Healthy)
	assert.Len(t, body.Runners, 4)

	require.NoError(t, s.engine.Close())
	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.PostForm(ts.URL+"/run", url.Values{"query": {query}})
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var sb bytes.Buffer
	_, err = sb.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "valstream_runs_total")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(errors.NewInvalidRequestError("x")))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(errors.Wrap(errors.ErrChannelTimeout, "x")))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(errors.ErrNotAlive))
	assert.Equal(t, http.StatusBadGateway, statusFor(errors.SourceFailure(errors.New("x"))))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("x")))
}
