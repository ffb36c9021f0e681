package scoresim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Headers understood by the server.
const (
	requestIDHeader    = "X-Request-ID"
	inboundTokenHeader = "X-Inbound-Token"
)

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, strings.TrimSpace(e.Body))
}

// Client wraps http.Client with the base URL and JSON handling.
type Client struct {
	client *http.Client
	base   string
}

// NewClient creates a client for base with the given request timeout.
func NewClient(base string, timeout time.Duration) *Client {
	return &Client{
		client: &http.Client{Timeout: timeout},
		base:   strings.TrimRight(base, "/"),
	}
}

// Do sends body as JSON with an optional bearer token and decodes the
// response into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path, token string, body, out any) error {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return c.do(ctx, method, path, header, body, out)
}

// Relay posts a device update to the inbound endpoint.
func (c *Client) Relay(ctx context.Context, inboundToken string, body, out any) error {
	header := http.Header{}
	header.Set(inboundTokenHeader, inboundToken)
	return c.do(ctx, http.MethodPost, "/api/v1/mirror/inbound", header, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, header http.Header, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
	}
	return nil
}
