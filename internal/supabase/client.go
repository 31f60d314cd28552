package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/five82/pulse/internal/analytics"
)

// Querier runs table queries against the REST layer.
// This interface is implemented by *Client and can be used for testing.
type Querier interface {
	Select(ctx context.Context, table string, query Query) ([]analytics.Record, error)
}

// Ensure Client implements Querier at compile time.
var _ Querier = (*Client)(nil)

// Client talks to a PostgREST endpoint fronted by Supabase.
type Client struct {
	baseURL   *url.URL
	apiKey    string
	schema    string
	http      *http.Client
	userAgent string
}

const (
	defaultSchema    = "public"
	defaultUserAgent = "pulse/0.1"
	requestTimeout   = 10 * time.Second
	restPrefix       = "/rest/v1/"
	maxErrorBody     = 512
)

// NewClient builds a Client for the project at projectURL authenticating with apiKey.
func NewClient(projectURL, apiKey, schema string) (*Client, error) {
	base, err := ParseProjectURL(projectURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(schema) == "" {
		schema = defaultSchema
	}
	return &Client{
		baseURL: base,
		apiKey:  strings.TrimSpace(apiKey),
		schema:  schema,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
	}, nil
}

// Filter restricts rows by column. Op is a PostgREST operator such as eq,
// gt, gte, lt, lte, neq or ilike; empty means eq.
type Filter struct {
	Column string
	Op     string
	Value  string
}

// Query configures a Select.
type Query struct {
	Filters    []Filter
	Order      string
	Descending bool
	Limit      int
}

func (q Query) values() url.Values {
	values := url.Values{}
	values.Set("select", "*")
	for _, f := range q.Filters {
		column := strings.TrimSpace(f.Column)
		if column == "" {
			continue
		}
		op := strings.TrimSpace(f.Op)
		if op == "" {
			op = "eq"
		}
		values.Add(column, op+"."+f.Value)
	}
	if order := strings.TrimSpace(q.Order); order != "" {
		dir := "asc"
		if q.Descending {
			dir = "desc"
		}
		values.Set("order", order+"."+dir)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	return values
}

// Select fetches rows from table.
func (c *Client) Select(ctx context.Context, table string, query Query) ([]analytics.Record, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, fmt.Errorf("table name required")
	}
	rel := &url.URL{Path: restPrefix + table, RawQuery: query.values().Encode()}
	var rows []analytics.Record
	if err := c.doURL(ctx, http.MethodGet, rel, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// APIError reports a non-success HTTP status from the REST layer.
type APIError struct {
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api %s returned status %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("api %s returned status %d: %s", e.Path, e.StatusCode, e.Message)
}

func (c *Client) doURL(ctx context.Context, method string, rel *url.URL, dest any) error {
	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Profile", c.schema)
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Path: rel.Path, StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	if dest == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}

// ParseProjectURL normalizes a project URL to scheme://host with no path.
func ParseProjectURL(projectURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(projectURL)
	if trimmed == "" {
		return nil, fmt.Errorf("project url is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse project url %q: %w", projectURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("project url %q has no host", projectURL)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
