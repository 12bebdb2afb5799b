// Package quote relays a third-party price feed.
package quote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUpstream wraps every transport or remote failure of the price source.
var ErrUpstream = errors.New("quote upstream failure")

const maxBodyBytes = 1 << 20

// Config points the client at the upstream endpoint.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Quote is the upstream response relayed verbatim.
type Quote struct {
	Body        []byte
	ContentType string
}

// Client performs single, uncached reads against the configured source.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Fetch issues one GET and returns the body unchanged. Non-2xx statuses and
// bodies over maxBodyBytes are upstream failures.
func (c *Client) Fetch(ctx context.Context) (*Quote, error) {
	if c.cfg.URL == "" {
		return nil, fmt.Errorf("%w: quote url not configured", ErrUpstream)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrUpstream, maxBodyBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	return &Quote{Body: body, ContentType: contentType}, nil
}
