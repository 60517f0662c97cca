package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kjstillabower/aeris-dashboard-service/internal/observability"
)

const (
	DefaultBaseURL = "https://api.telegram.org"
	endpoint       = "telegram"
)

var (
	ErrNotConfigured = errors.New("telegram bot token not configured")
	ErrSendFailed    = errors.New("telegram send failed")
)

// Client sends messages through the Telegram Bot API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient builds a Bot API client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// Configured reports whether a bot token is present.
func (c *Client) Configured() bool {
	return c.token != ""
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage delivers text to chatID. A response with ok=false is an error even on HTTP 200.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bot"+c.token+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		// The request URL embeds the token; never surface it.
		return fmt.Errorf("%w: request failed: %s", ErrSendFailed, redact(err.Error(), c.token))
	}
	defer resp.Body.Close()

	status := "success"
	if resp.StatusCode >= 300 {
		status = "error"
	}
	observability.UpstreamCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.UpstreamDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrSendFailed, err)
	}
	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("%w: HTTP %d", ErrSendFailed, resp.StatusCode)
	}
	if !out.OK {
		return fmt.Errorf("%w: HTTP %d: %s", ErrSendFailed, resp.StatusCode, out.Description)
	}
	return nil
}

func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "<redacted>")
}
