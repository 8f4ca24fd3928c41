// Package httpfetch is the HTTP collaborator of the pipeline: GET and POST
// with a bounded number of retries and exponential backoff, provided by
// go-retryablehttp. Callers never retry on their own.
package httpfetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// StatusError reports a non-2xx response that was not retried away.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpfetch: %s: unexpected status %d", e.URL, e.StatusCode)
}

// Config tunes the client. Zero values take defaults.
type Config struct {
	Timeout    time.Duration // per attempt. Default: 30s.
	Retries    int           // extra attempts after the first.
	BackoffMin time.Duration // Default: 500ms.
	BackoffMax time.Duration // Default: 8s.
	MaxBytes   int64         // response body cap. Default: 32MB.
	UserAgent  string
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = 500 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 8 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 32 << 20
	}
	if c.UserAgent == "" {
		c.UserAgent = "feature-monitor/1.0"
	}
}

// Response is a fully-read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Client wraps a retrying HTTP client.
type Client struct {
	rc  *retryablehttp.Client
	cfg Config
}

// New builds a client. log receives retry attempts; nil discards them.
func New(cfg Config, log *slog.Logger) *Client {
	cfg.defaults()
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.RetryMax = cfg.Retries
	rc.RetryWaitMin = cfg.BackoffMin
	rc.RetryWaitMax = cfg.BackoffMax
	rc.Backoff = retryablehttp.DefaultBackoff
	rc.Logger = retryablehttp.LeveledLogger(log.With("component", "httpfetch"))
	return &Client{rc: rc, cfg: cfg}
}

// Get fetches url with optional extra headers. Non-2xx statuses are
// returned in the Response, not as an error, unless retries were exhausted.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: new request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

// FetchText returns the body of a successful GET as a string.
func (c *Client) FetchText(ctx context.Context, url string) (string, error) {
	resp, err := c.Get(ctx, url, nil)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return string(resp.Body), nil
}

// GetJSON decodes the body of a successful GET into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	resp, err := c.Get(ctx, url, map[string]string{"Accept": "application/json"})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("httpfetch: decode %s: %w", url, err)
	}
	return nil
}

// PostJSON sends payload as a JSON body. Non-2xx is reported as *StatusError.
func (c *Client) PostJSON(ctx context.Context, url string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: encode payload: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httpfetch: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return resp, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (c *Client) do(req *retryablehttp.Request) (*Response, error) {
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	resp, err := c.rc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: %s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("httpfetch: read body: %w", err)
	}
	if int64(len(body)) > c.cfg.MaxBytes {
		return nil, fmt.Errorf("httpfetch: %s: %w", req.URL, ErrTooLarge)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// ErrTooLarge is returned when a body exceeds Config.MaxBytes.
var ErrTooLarge = errors.New("response body too large")
