// Package notionstore implements store.TaskStore against the
// Notion-compatible record API the task database lives in. Records are
// database pages; task fields map to select, rich_text, number, and
// date properties, and long-form results are appended as paragraph
// blocks.
package notionstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/phrazzld/drudge/internal/store"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
	maxPageSize    = 100
)

// Client talks to the record API for one task database.
type Client struct {
	apiKey     string
	databaseID string
	baseURL    string
	httpClient *http.Client
}

// Compile-time interface check.
var _ store.TaskStore = (*Client)(nil)

// New builds a Client for the given integration token and database.
func New(apiKey, databaseID string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		databaseID: databaseID,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at an alternate endpoint, mainly for
// tests against httptest servers.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// request performs one API call and decodes the response into out when
// out is non-nil. Transport failures are wrapped as ErrStoreUnavailable
// so callers can classify them as fatal.
func (c *Client) request(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return store.ErrTaskNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &store.StoreError{
			Operation: method + " " + path,
			Err:       fmt.Errorf("HTTP %d: %s", resp.StatusCode, detail),
		}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
