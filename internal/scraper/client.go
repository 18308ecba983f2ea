// internal/scraper/client.go
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/valpere/extractstudio/internal/errors"
)

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes = 20 << 20

// HTTPClient performs the single GET each fetch task is allowed.
type HTTPClient struct {
	httpClient   *http.Client
	userAgent    string
	headers      map[string]string
	maxBodyBytes int64
}

// ClientConfig defines configuration options for the HTTP client
type ClientConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UserAgent    string
	Headers      map[string]string
	MaxBodyBytes int64
	// Transport overrides the default transport, mainly for tests.
	Transport http.RoundTripper
}

// Response is a fully read HTTP response.
type Response struct {
	// FinalURL is the URL after redirects.
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
}

// NewHTTPClient creates a new HTTP client with the specified configuration
func NewHTTPClient(config ClientConfig) *HTTPClient {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRedirects <= 0 {
		config.MaxRedirects = 10
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}

	transport := config.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	maxRedirects := config.MaxRedirects
	httpClient := &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &HTTPClient{
		httpClient:   httpClient,
		userAgent:    config.UserAgent,
		headers:      config.Headers,
		maxBodyBytes: config.MaxBodyBytes,
	}
}

// Get fetches targetURL once. Non-2xx statuses, timeouts and transport
// errors are returned as FETCH_ERROR.
func (c *HTTPClient) Get(ctx context.Context, targetURL, userAgent string) (*Response, error) {
	if _, err := url.ParseRequestURI(targetURL); err != nil {
		return nil, errors.Fetch(targetURL, 0, fmt.Errorf("invalid URL: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, errors.Fetch(targetURL, 0, fmt.Errorf("failed to create request: %w", err))
	}
	c.setRequestHeaders(req, userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Fetch(targetURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused.
		io.CopyN(io.Discard, resp.Body, 4096)
		return nil, errors.Fetch(targetURL, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return nil, errors.Fetch(targetURL, resp.StatusCode, fmt.Errorf("failed to read body: %w", err))
	}

	return &Response{
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// setRequestHeaders applies the user agent and configured headers
func (c *HTTPClient) setRequestHeaders(req *http.Request, userAgent string) {
	if userAgent == "" {
		userAgent = c.userAgent
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf;q=0.8,*/*;q=0.7")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
}

// CloseIdleConnections releases pooled connections.
func (c *HTTPClient) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}
