// Package webhook pushes signed batch notifications to an operator-owned
// endpoint, so long unattended runs can report completion without anyone
// watching the terminal.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/johnlukespeight/Coemeta-Webscraper/batch"
)

// EventBatchCompleted is emitted once per finished batch run.
const EventBatchCompleted = "batch.completed"

// SignatureHeader carries the HMAC-SHA256 of the request body, hex encoded
// with a "sha256=" prefix, when the client is configured with a secret.
const SignatureHeader = "X-Coemeta-Signature"

// Event is the JSON body delivered to the endpoint.
type Event struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Client delivers events to one endpoint. The zero value (empty URL) is a
// usable no-op, so callers can wire it unconditionally. It satisfies
// batch.Notifier.
type Client struct {
	URL    string
	Secret string

	// HTTP overrides the transport; nil uses a 10s-timeout default.
	HTTP *http.Client

	// Backoff is the wait before each retry after the first attempt.
	// Nil means 1s, 5s, 30s.
	Backoff []time.Duration
}

var defaultBackoff = []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}

// Send delivers one event synchronously, signing the body when a secret is
// configured. A non-2xx response is an error.
func (c *Client) Send(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Coemeta-Webhook/1.0")
	if c.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+c.sign(body))
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// NotifyBatchCompleted emits a batch.completed event in the background,
// retrying per the backoff schedule. Returns immediately.
func (c *Client) NotifyBatchCompleted(ctx context.Context, summary batch.Summary) {
	if c == nil || c.URL == "" {
		return
	}
	event := &Event{
		Type:      EventBatchCompleted,
		SessionID: summary.SessionID,
		Timestamp: time.Now().Unix(),
		Data:      summary,
	}
	go func() {
		if err := c.sendWithRetry(ctx, event); err != nil {
			slog.Error("webhook delivery abandoned",
				"url", c.URL, "event", event.Type, "error", err)
		}
	}()
}

// sendWithRetry attempts delivery once plus one retry per backoff step.
// Waits are cut short by context cancellation.
func (c *Client) sendWithRetry(ctx context.Context, event *Event) error {
	backoff := c.Backoff
	if backoff == nil {
		backoff = defaultBackoff
	}

	var err error
	for attempt := 0; attempt <= len(backoff); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff[attempt-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err = c.Send(ctx, event); err == nil {
			slog.Info("webhook delivered",
				"url", c.URL,
				"event", event.Type,
				"session_id", event.SessionID,
				"attempt", attempt+1,
			)
			return nil
		}
		slog.Warn("webhook delivery failed",
			"url", c.URL,
			"event", event.Type,
			"session_id", event.SessionID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return err
}

func (c *Client) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.Secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
