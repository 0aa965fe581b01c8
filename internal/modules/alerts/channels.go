package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Channel delivers an alert event to an external sink. Delivery failures
// must never corrupt monitoring state; the event is already persisted before
// any channel sees it.
type Channel interface {
	Name() string
	Send(ctx context.Context, e *Event) error
}

// LogChannel writes alerts to the structured log. It is always configured,
// so every alert is visible even with no webhook set up.
type LogChannel struct {
	log zerolog.Logger
}

// NewLogChannel creates a new log channel
func NewLogChannel(log zerolog.Logger) *LogChannel {
	return &LogChannel{log: log.With().Str("channel", "log").Logger()}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(_ context.Context, e *Event) error {
	event := c.log.Warn()
	if e.Severity == SeverityCritical {
		event = c.log.Error()
	}
	event.
		Str("alert_id", e.ID).
		Str("type", string(e.Type)).
		Str("severity", string(e.Severity)).
		Fields(map[string]interface{}{"metadata": e.Metadata}).
		Msg(e.Message)
	return nil
}

// WebhookChannel POSTs alerts as JSON to a configured endpoint.
type WebhookChannel struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewWebhookChannel creates a new webhook channel
func NewWebhookChannel(url string, log zerolog.Logger) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With().Str("channel", "webhook").Logger(),
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, e *Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
