package sparql

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/valstream/errors"
	"github.com/teranos/valstream/internal/httpclient"
)

const resultsMediaType = "application/sparql-results+json"

// Client executes queries against one SPARQL endpoint.
type Client struct {
	endpoint string
	http     *httpclient.Client
	logger   *zap.SugaredLogger
}

// NewClient creates a client for endpoint. The endpoint address is validated
// against hc's URL policy.
func NewClient(endpoint string, hc *httpclient.Client, logger *zap.SugaredLogger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if _, err := hc.ValidateURL(endpoint); err != nil {
		return nil, errors.Wrapf(err, "invalid SPARQL endpoint %q", endpoint)
	}
	return &Client{endpoint: endpoint, http: hc, logger: logger}, nil
}

// Endpoint returns the endpoint address.
func (c *Client) Endpoint() string { return c.endpoint }

// Select executes query and streams each solution to fn. limit caps the
// number of solutions delivered; -1 means unlimited. It returns the results
// head and the number of solutions delivered.
func (c *Client) Select(ctx context.Context, query string, limit int, fn func(Binding) error) (Head, int, error) {
	start := time.Now()

	form := url.Values{"query": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Head{}, 0, errors.Wrap(err, "failed to build SPARQL request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", resultsMediaType)

	resp, err := c.http.Do(req)
	if err != nil {
		return Head{}, 0, errors.Wrapf(err, "SPARQL request to %s failed", c.endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Head{}, 0, errors.WithDetailf(
			errors.Newf("SPARQL endpoint %s returned %s", c.endpoint, resp.Status),
			"response body: %s", strings.TrimSpace(string(body)))
	}

	n := 0
	head, _, err := DecodeResults(resp.Body, func(b Binding) error {
		if limit >= 0 && n >= limit {
			return errStop
		}
		n++
		return fn(b)
	})
	if err != nil && !errors.Is(err, errStop) {
		return head, n, errors.Wrapf(err, "failed to read results from %s", c.endpoint)
	}

	c.logger.Debugw("SPARQL query executed",
		"endpoint", c.endpoint,
		"count", n,
		"duration_ms", time.Since(start).Milliseconds())
	return head, n, nil
}

// SelectAll executes query and returns every solution.
func (c *Client) SelectAll(ctx context.Context, query string) (Head, []Binding, error) {
	var rows []Binding
	head, _, err := c.Select(ctx, query, -1, func(b Binding) error {
		rows = append(rows, b)
		return nil
	})
	return head, rows, err
}
