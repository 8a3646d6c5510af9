package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrBadEndpoint is returned when a channel endpoint is malformed; the
// dispatcher records it as a failed outcome without retrying transport.
var ErrBadEndpoint = errors.New("notify: malformed endpoint")

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// DiscordAdapter posts embed messages to a Discord webhook. One call is one
// delivery attempt; retry belongs to the dispatcher.
type DiscordAdapter struct {
	client *http.Client
}

// NewDiscordAdapter creates the adapter with a bounded-timeout client.
func NewDiscordAdapter(client *http.Client) *DiscordAdapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &DiscordAdapter{client: client}
}

// Send performs a single webhook delivery attempt.
func (a *DiscordAdapter) Send(ctx context.Context, webhookURL, title, body string, color int) error {
	if err := validateWebhookURL(webhookURL); err != nil {
		return err
	}

	payload, err := json.Marshal(discordPayload{
		Embeds: []discordEmbed{{Title: title, Description: body, Color: color}},
	})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	return postJSON(ctx, a.client, "discord", webhookURL, payload)
}

// validateWebhookURL rejects endpoints that cannot possibly be delivered to.
func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadEndpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrBadEndpoint, raw)
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, channel, endpoint string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", channel, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", channel, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: non-2xx response %d", channel, resp.StatusCode)
	}
	return nil
}
