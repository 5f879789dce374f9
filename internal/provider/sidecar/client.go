// Package sidecar is the JSON-over-HTTP client shared by the model services
// that run next to the pipeline (face embeddings, pose estimation).
package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	ErrUnavailable     = errors.New("sidecar unavailable")
	ErrInvalidResponse = errors.New("invalid response from sidecar")
)

// StatusError is returned when the service answers with a 4xx or 5xx.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// IsClientError reports whether err is a 4xx response.
func IsClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}

type Config struct {
	// Service names the remote in errors.
	Service     string
	BaseURL     string
	Timeout     time.Duration
	RetryCount  int
	BaseBackoff time.Duration
	// Unavailable wraps the final error once retries are exhausted.
	Unavailable error
}

type Client struct {
	httpClient *http.Client
	config     Config
}

func New(config Config) *Client {
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = time.Second
	}
	if config.Unavailable == nil {
		config.Unavailable = ErrUnavailable
	}
	if config.Service == "" {
		config.Service = "sidecar"
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}
}

func (c *Client) BaseURL() string { return c.config.BaseURL }

const maxBackoff = 30 * time.Second

// backoff returns base, 2·base, 4·base, ... capped at maxBackoff.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.config.BaseBackoff
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// PostJSON sends body to path and decodes the answer into result. Server
// errors are retried; client errors and context errors are not.
func (c *Client) PostJSON(ctx context.Context, path string, body, result interface{}) error {
	return c.doRequestWithRetry(ctx, http.MethodPost, path, body, result)
}

// Get issues a GET and decodes the answer into result when it is non-nil.
func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) doRequestWithRetry(ctx context.Context, method, path string, body, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff(attempt)):
			}
		}

		lastErr = c.doRequest(ctx, method, path, body, result)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if IsClientError(lastErr) || errors.Is(lastErr, ErrInvalidResponse) {
			return lastErr
		}
	}

	return fmt.Errorf("%w: %v", c.config.Unavailable, lastErr)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &StatusError{Service: c.config.Service, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}

	return nil
}
