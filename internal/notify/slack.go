package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color string `json:"color"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// SlackAdapter posts attachment messages to a Slack incoming webhook.
type SlackAdapter struct {
	client *http.Client
}

// NewSlackAdapter creates the adapter with a bounded-timeout client.
func NewSlackAdapter(client *http.Client) *SlackAdapter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SlackAdapter{client: client}
}

// Send performs a single webhook delivery attempt.
func (a *SlackAdapter) Send(ctx context.Context, webhookURL, title, body string, color int) error {
	if err := validateWebhookURL(webhookURL); err != nil {
		return err
	}

	payload, err := json.Marshal(slackPayload{
		Attachments: []slackAttachment{{
			Color: fmt.Sprintf("#%06x", color),
			Title: title,
			Text:  body,
		}},
	})
	if err != nil {
		return fmt.Errorf("slack: marshal payload: %w", err)
	}

	return postJSON(ctx, a.client, "slack", webhookURL, payload)
}
