// Package client talks to a running lbsim server.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lbsim/internal/loadgen"
	"lbsim/internal/server"
	"lbsim/internal/stats"
)

const (
	helloPath = "/api/v1/hello"
	statsPath = "/api/v1/worker/stats"

	// maxBodySize limits how much of a response body is read.
	maxBodySize = 10 * 1024 * 1024
)

// Client fires requests at a remote pool and reads its statistics.
type Client struct {
	base string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}
	c := &Client{
		base: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fire sends one hello request. A 500 is a simulated failure; any other
// non-200 status or a transport problem is reported in Result.Err.
func (c *Client) Fire(ctx context.Context, requestID string) loadgen.Result {
	start := time.Now()
	res := loadgen.Result{RequestID: requestID}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+helloPath, nil)
	if err != nil {
		res.Err = err
		return res
	}
	req.Header.Set(server.HeaderRequestID, requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		res.Latency = time.Since(start)
		res.Err = err
		return res
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	resp.Body.Close()
	res.Latency = time.Since(start)
	res.Worker = resp.Header.Get(server.HeaderWorker)

	switch resp.StatusCode {
	case http.StatusOK:
		res.Success = true
	case http.StatusInternalServerError:
	default:
		res.Err = fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return res
}

// FetchStats reads the server's current statistics.
func (c *Client) FetchStats(ctx context.Context) (stats.Snapshot, error) {
	body, err := c.StatsBody(ctx)
	if err != nil {
		return stats.Snapshot{}, err
	}
	return stats.ParseSnapshot(body)
}

// StatsBody returns the raw stats payload.
func (c *Client) StatsBody(ctx context.Context) ([]byte, error) {
	return c.get(ctx, statsPath)
}

// Health returns nil when the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.get(ctx, "/health")
	return err
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return body, nil
}
