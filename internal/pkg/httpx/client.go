// Package httpx is the outbound HTTP client shared by provider adapters.
package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const maxBodyBytes = 8 << 20

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.Code, e.URL)
}

// Option configures a Client.
type Option func(*Client)

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRateLimit caps outgoing requests at perSecond with the given burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client wraps *http.Client with JSON decoding, an optional rate limit and
// a fixed User-Agent.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// New returns a Client. timeout bounds a whole request when ctx has no deadline.
func New(timeout time.Duration, opts ...Option) *Client {
	c := &Client{http: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON issues GET base?query and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, base string, query url.Values, out any) error {
	u := base
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", base, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return &StatusError{Code: resp.StatusCode, URL: base, Body: snippet}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", base, err)
	}
	return nil
}
