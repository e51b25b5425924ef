// Package feedclient polls the activity feed of the monitored media stack.
//
// The feed returns the activities in progress right now. Each record is
// decoded on its own, so one malformed record never hides the others.
//
// Example usage:
//
//	client, err := feedclient.New("http://uploader:8080", feedclient.WithAPIKey(key))
//	if err != nil {
//	    return err
//	}
//	result, err := client.Fetch(ctx)
package feedclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nomis52/komandorr/tracker"
)

const (
	defaultPath    = "/api/activities"
	defaultTimeout = 10 * time.Second
	apiKeyHeader   = "X-Api-Key"
)

// Client fetches activity snapshots over HTTP.
type Client struct {
	Host       string
	path       string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used by the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithPath overrides the feed path. Defaults to /api/activities.
func WithPath(path string) Option {
	return func(c *Client) {
		c.path = path
	}
}

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

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a Client for the feed served at host. The host must include
// the scheme (e.g. "http://uploader:8080").
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
		path:       defaultPath,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Result is the outcome of one fetch.
type Result struct {
	// Snapshots are the records that decoded cleanly.
	Snapshots []tracker.Snapshot
	// Errors holds one error per record that could not be decoded.
	Errors []error
}

// Fetch retrieves the current activities.
// An error is returned only when the feed as a whole could not be read.
func (c *Client) Fetch(ctx context.Context) (Result, error) {
	endpoint, err := url.JoinPath(c.Host, c.path)
	if err != nil {
		return Result{}, fmt.Errorf("building feed URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetching activities: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	result, err := Decode(body)
	if err != nil {
		return Result{}, err
	}

	c.logger.Debug("fetched activities",
		"url", endpoint,
		"count", len(result.Snapshots),
		"malformed", len(result.Errors),
	)
	return result, nil
}
