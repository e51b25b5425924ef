// Package peakclient talks to a remote peak concurrency endpoint.
//
// The endpoint keeps a single integer and exposes three operations:
//
//	GET  /api/peak        -> {"peak": n}
//	POST /api/peak        {"candidate": n} -> {"peak": n}
//	POST /api/peak/reset  -> {"peak": 0}
//
// The server is expected to keep the maximum of the stored value and the
// candidate. Client implements peak.Store.
package peakclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	peakPath       = "/api/peak"
	resetPath      = "/api/peak/reset"
	defaultTimeout = 10 * time.Second
	apiKeyHeader   = "X-Api-Key"
)

// Response is the body returned by every peak endpoint.
type Response struct {
	Peak int `json:"peak"`
}

// UpdateRequest is the body of an update-if-greater request.
type UpdateRequest struct {
	Candidate int `json:"candidate"`
}

// Client is an HTTP client for the peak endpoint.
type Client struct {
	Host       string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key in the X-Api-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// New creates a Client for the endpoint served at host.
func New(host string, opts ...Option) (*Client, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("host URL must include scheme: %q", host)
	}

	c := &Client{
		Host:       host,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Current returns the stored peak.
func (c *Client) Current(ctx context.Context) (int, error) {
	return c.do(ctx, http.MethodGet, peakPath, nil)
}

// UpdateIfGreater asks the endpoint to raise the peak to candidate.
func (c *Client) UpdateIfGreater(ctx context.Context, candidate int) (int, error) {
	return c.do(ctx, http.MethodPost, peakPath, UpdateRequest{Candidate: candidate})
}

// Reset asks the endpoint to reset the peak.
func (c *Client) Reset(ctx context.Context) (int, error) {
	return c.do(ctx, http.MethodPost, resetPath, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, error) {
	endpoint, err := url.JoinPath(c.Host, path)
	if err != nil {
		return 0, fmt.Errorf("building URL: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if out.Peak < 0 {
		return 0, fmt.Errorf("endpoint returned negative peak %d", out.Peak)
	}
	return out.Peak, nil
}
