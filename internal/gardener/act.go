package gardener

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Alert is the JSON body posted to the webhook.
type Alert struct {
	RunID     string     `json:"run_id"`
	Name      string     `json:"name"`
	Health    *RunHealth `json:"health"`
	Rationale string     `json:"rationale"`
	At        string     `json:"at"`
}

// Actor delivers alerts to a webhook.
type Actor struct {
	WebhookURL string
	HTTPClient *http.Client
}

// NewActor creates an Actor posting to webhookURL.
func NewActor(webhookURL string) *Actor {
	return &Actor{
		WebhookURL: webhookURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Act posts the alert. Any 2xx response counts as delivered.
func (a *Actor) Act(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("alert rejected (%d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}
