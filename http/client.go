package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Client posts JSON to HTTP endpoints with the retry policy applied.
// The GitLab client uses go-gitlab for its transport; Client serves the
// outbound integrations (webhooks).
type Client struct {
	client      *http.Client
	serviceName string
	retry       RetryPolicy
	headers     map[string]string
}

// ClientConfig holds configuration for Client.
type ClientConfig struct {
	Client      *http.Client
	ServiceName string
	Retry       RetryPolicy
	Headers     map[string]string
}

// NewClient creates a new Client with the given configuration.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		client:      cfg.Client,
		serviceName: cfg.ServiceName,
		retry:       cfg.Retry,
		headers:     cfg.Headers,
	}

	if c.client == nil {
		c.client = &http.Client{Timeout: DefaultTimeout}
	}
	if c.serviceName == "" {
		c.serviceName = "http"
	}

	return c
}

// PostJSON marshals body and POSTs it to url, retrying transient failures.
func (c *Client) PostJSON(ctx context.Context, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	return c.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return &NetworkError{Service: c.serviceName, Endpoint: url, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return c.parseError(resp, url)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	})
}

// parseError parses an error response into an APIError.
func (c *Client) parseError(resp *http.Response, endpoint string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return NewAPIError(c.serviceName, endpoint, resp, body)
}

// NewAPIError builds an APIError from a response and its (already read) body.
// The message is taken from a JSON "message" or "error" field when present.
func NewAPIError(service, endpoint string, resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		Service:    service,
		StatusCode: resp.StatusCode,
		Endpoint:   endpoint,
		RequestID:  resp.Header.Get("X-Request-Id"),
		RetryAfter: RetryAfter(resp.Header),
	}

	var errResp struct {
		Message any    `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		switch msg := errResp.Message.(type) {
		case string:
			apiErr.Message = msg
		case nil:
		default:
			// GitLab sometimes returns structured messages
			if b, err := json.Marshal(msg); err == nil {
				apiErr.Message = string(b)
			}
		}
		if apiErr.Message == "" && errResp.Error != "" {
			apiErr.Message = errResp.Error
		}
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return apiErr
}

// RetryAfter parses a Retry-After header given in seconds. Zero means absent.
func RetryAfter(h http.Header) time.Duration {
	if retryAfter := h.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}
