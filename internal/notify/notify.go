// Package notify delivers rendered reports to a chat webhook. The client is
// constructor-injected wherever delivery happens; there is no package-global
// instance.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/lbrossard/keeptouch/internal/config"
)

// Notifier accepts a (channel, text) pair for delivery.
type Notifier interface {
	Send(ctx context.Context, channel, text string) error
}

// WebhookClient posts messages to an incoming-webhook endpoint.
type WebhookClient struct {
	URL    string
	Client *http.Client
}

// NewWebhookClient validates the webhook URL and returns a client with the
// standard timeout.
func NewWebhookClient(webhookURL string) (*WebhookClient, error) {
	if webhookURL == "" {
		return nil, errors.New(config.ErrWebhookURLEmpty)
	}
	u, err := url.Parse(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrInvalidURL, err)
	}
	if u.Scheme != config.SchemeHTTP && u.Scheme != config.SchemeHTTPS {
		return nil, fmt.Errorf("%s: %s", config.ErrProtocol, u.Scheme)
	}

	return &WebhookClient{
		URL:    webhookURL,
		Client: &http.Client{Timeout: config.HTTPTimeout},
	}, nil
}

type webhookPayload struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

// Send posts the text to the webhook. The webhook URL itself is never logged:
// it embeds a token.
func (c *WebhookClient) Send(ctx context.Context, channel, text string) error {
	body, err := json.Marshal(webhookPayload{Channel: channel, Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(config.HeaderContentType, config.MimeApplicationJSON)
	req.Header.Set(config.HeaderUserAgent, config.UserAgent)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("network error during delivery: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%s: %d %s", config.ErrWebhookStatus, resp.StatusCode, resp.Status)
	}

	slog.Info(config.MsgReportSent,
		config.LogKeyComponent, config.CompNotify,
		config.LogKeyChannel, channel,
		config.LogKeySizeBytes, len(text),
	)
	return nil
}
