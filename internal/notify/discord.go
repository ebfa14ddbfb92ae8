package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/phrazzld/drudge/internal/domain"
)

// Discord message content limit.
const maxMessageLen = 2000

const defaultBaseURL = "https://discord.com/api/v10"

// DiscordNotifier posts messages to a single Discord channel using a
// bot token.
type DiscordNotifier struct {
	token     string
	channelID string
	baseURL   string
	client    *http.Client
}

// NewDiscordNotifier builds a notifier for the given bot token and
// channel. Options override the endpoint and HTTP client, mainly for
// tests.
func NewDiscordNotifier(token, channelID string, opts ...DiscordOption) *DiscordNotifier {
	n := &DiscordNotifier{
		token:     token,
		channelID: channelID,
		baseURL:   defaultBaseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// DiscordOption customizes a DiscordNotifier.
type DiscordOption func(*DiscordNotifier)

// WithBaseURL points the notifier at an alternate API endpoint.
func WithBaseURL(url string) DiscordOption {
	return func(n *DiscordNotifier) { n.baseURL = url }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) DiscordOption {
	return func(n *DiscordNotifier) { n.client = c }
}

// Send posts text as a channel message, truncated to the channel's size
// limit. The limit counts characters, so truncation never splits a rune.
func (n *DiscordNotifier) Send(ctx context.Context, text string) error {
	text = domain.TruncateText(text, maxMessageLen)
	body, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages", n.baseURL, n.channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+n.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("alert channel returned HTTP %d: %s", resp.StatusCode, detail)
	}
	return nil
}
