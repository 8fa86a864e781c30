package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"pony-chat-admin/backend/internal/models"
	"pony-chat-admin/backend/pkg/config"
	"pony-chat-admin/backend/pkg/logger"
)

// Client talks to the backend relay: the service that actually delivers
// messages to each chat platform and computes authoritative unread counts.
// The relay is an opaque HTTP dependency; every call carries a context and a
// client-level timeout and nothing is retried here.
type Client struct {
	client  *http.Client
	baseURL string
	log     *logger.Logger
}

// New creates a relay client from application configuration.
func New(log *logger.Logger) *Client {
	cfg := config.Get()
	return NewWithBaseURL(cfg.Relay.BaseURL, log)
}

// NewWithBaseURL creates a relay client against an explicit base URL.
func NewWithBaseURL(baseURL string, log *logger.Logger) *Client {
	cfg := config.Get()
	return &Client{
		client:  &http.Client{Timeout: cfg.Relay.Timeout},
		baseURL: baseURL,
		log:     log,
	}
}

type unreadCountResponse struct {
	Counts map[string]int `json:"counts"`
}

// UnreadCounts fetches the relay's unread-count map for one platform. A
// response without a counts object decodes to an empty map, not an error.
func (c *Client) UnreadCounts(ctx context.Context, platform models.Platform) (map[string]int, error) {
	url := fmt.Sprintf("%s/%s/unread-count", c.baseURL, platform)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unread-count returned status %d", resp.StatusCode)
	}

	var body unreadCountResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding unread-count response: %w", err)
	}
	if body.Counts == nil {
		body.Counts = map[string]int{}
	}
	return body.Counts, nil
}

type markReadRequest struct {
	Sender string `json:"sender"`
}

// MarkRead tells the relay the operator has opened a conversation so its
// messages count as read. Acknowledgment only; the badge changes on the next
// unread poll.
func (c *Client) MarkRead(ctx context.Context, platform models.Platform, key string) error {
	url := fmt.Sprintf("%s/%s/mark-read", c.baseURL, platform)
	return c.post(ctx, url, markReadRequest{Sender: key})
}

type sendRequest struct {
	Recipient   string `json:"recipient"`
	Message     string `json:"message"`
	MessageType string `json:"message_type"`
	AdminEmail  string `json:"adminEmail,omitempty"`
}

// Send submits an operator reply through the platform-specific send endpoint.
// Non-2xx means the relay could not deliver.
func (c *Client) Send(ctx context.Context, platform models.Platform, key, text, adminEmail string) error {
	url := fmt.Sprintf("%s/%s/send", c.baseURL, platform)
	return c.post(ctx, url, sendRequest{
		Recipient:   key,
		Message:     text,
		MessageType: "text",
		AdminEmail:  adminEmail,
	})
}

type sendAnyRequest struct {
	Recipient string          `json:"recipient"`
	Message   string          `json:"message"`
	Platform  models.Platform `json:"platform"`
}

// SendPlatform submits a reply through the platform-agnostic /send endpoint.
func (c *Client) SendPlatform(ctx context.Context, platform models.Platform, key, text string) error {
	url := c.baseURL + "/send"
	return c.post(ctx, url, sendAnyRequest{
		Recipient: key,
		Message:   text,
		Platform:  platform,
	})
}

func (c *Client) post(ctx context.Context, url string, payload any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.log.Warn("Relay call failed",
			"url", url,
			"status", resp.StatusCode,
			"body", string(body),
		)
		return fmt.Errorf("relay returned status %d", resp.StatusCode)
	}
	return nil
}
