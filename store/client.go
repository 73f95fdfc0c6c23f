// Package store adapts generic filter/paginate/CRUD calls onto the
// hosted Supabase REST (PostgREST) data API. Every operation is a
// single HTTP round trip with no local caching or transaction
// semantics; callers treat each call as independently failable.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNoRows marks a representation response that matched no rows.
var ErrNoRows = fmt.Errorf("store: no rows")

// Client talks to the Supabase REST and auth APIs with the service key.
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a store client. baseURL is the project URL without a
// trailing slash, e.g. https://xyz.supabase.co.
func New(baseURL, anonKey, serviceKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		anonKey:    anonKey,
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// QueryOptions controls filtering and pagination for Query and Count.
type QueryOptions struct {
	// Filters maps column name to an exact-match value (PostgREST eq.).
	Filters map[string]string
	// Order is a PostgREST order expression, e.g. "created_at.desc".
	Order  string
	Limit  int
	Offset int
}

func (c *Client) serviceHeaders(req *http.Request) {
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) restURL(table string, opts QueryOptions) string {
	q := url.Values{}
	q.Set("select", "*")
	for col, val := range opts.Filters {
		q.Set(col, "eq."+val)
	}
	if opts.Order != "" {
		q.Set("order", opts.Order)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	return c.baseURL + "/rest/v1/" + table + "?" + q.Encode()
}

// Query returns the raw JSON rows matching opts.
func (c *Client) Query(ctx context.Context, table string, opts QueryOptions) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.restURL(table, opts), nil)
	if err != nil {
		return nil, fmt.Errorf("store: create request: %w", err)
	}
	c.serviceHeaders(req)

	body, _, err := c.do(req, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", table, err)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("store: decode %s rows: %w", table, err)
	}
	c.logger.Debug("store query", slog.String("table", table), slog.Int("rows", len(rows)))
	return rows, nil
}

// Insert creates one row and returns its representation.
func (c *Client) Insert(ctx context.Context, table string, data any) (json.RawMessage, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("store: marshal insert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/v1/"+table, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("store: create request: %w", err)
	}
	c.serviceHeaders(req)
	req.Header.Set("Prefer", "return=representation")

	body, _, err := c.do(req, http.StatusCreated, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("store: insert %s: %w", table, err)
	}
	return firstRow(body)
}

// Update patches rows matching filters and returns the first updated row.
func (c *Client) Update(ctx context.Context, table string, filters map[string]string, data any) (json.RawMessage, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("store: marshal update: %w", err)
	}
	u := c.restURL(table, QueryOptions{Filters: filters})
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("store: create request: %w", err)
	}
	c.serviceHeaders(req)
	req.Header.Set("Prefer", "return=representation")

	body, _, err := c.do(req, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("store: update %s: %w", table, err)
	}
	return firstRow(body)
}

// Delete removes rows matching filters.
func (c *Client) Delete(ctx context.Context, table string, filters map[string]string) error {
	u := c.restURL(table, QueryOptions{Filters: filters})
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("store: create request: %w", err)
	}
	c.serviceHeaders(req)

	if _, _, err := c.do(req, http.StatusNoContent, http.StatusOK); err != nil {
		return fmt.Errorf("store: delete %s: %w", table, err)
	}
	return nil
}

// Count returns the number of rows matching filters, using an exact
// count from the Content-Range header. limit=1 keeps the body to a
// single row; only the header matters here.
func (c *Client) Count(ctx context.Context, table string, filters map[string]string) (int, error) {
	u := c.restURL(table, QueryOptions{Filters: filters, Limit: 1})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("store: create request: %w", err)
	}
	c.serviceHeaders(req)
	req.Header.Set("Prefer", "count=exact")
	req.Header.Set("Range-Unit", "items")

	_, header, err := c.do(req, http.StatusOK, http.StatusPartialContent)
	if err != nil {
		return 0, fmt.Errorf("store: count %s: %w", table, err)
	}
	return parseContentRange(header.Get("Content-Range"))
}

// Ping verifies the REST endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return fmt.Errorf("store: create request: %w", err)
	}
	c.serviceHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("store: ping: status %d", resp.StatusCode)
	}
	return nil
}

// do executes req and checks the status against the accepted set.
func (c *Client) do(req *http.Request, accepted ...int) ([]byte, http.Header, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	for _, code := range accepted {
		if resp.StatusCode == code {
			return body, resp.Header, nil
		}
	}
	return nil, nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256))
}

// firstRow unwraps PostgREST's array representation response.
func firstRow(body []byte) (json.RawMessage, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode representation: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows[0], nil
}

// parseContentRange extracts the total from "0-19/57".
func parseContentRange(v string) (int, error) {
	_, total, ok := strings.Cut(v, "/")
	if !ok {
		return 0, fmt.Errorf("malformed Content-Range %q", v)
	}
	if total == "*" {
		return 0, fmt.Errorf("no exact count in Content-Range %q", v)
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("malformed Content-Range total %q", v)
	}
	return n, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
