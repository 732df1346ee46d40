// Package alert delivers operator notifications through an outbound webhook.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Alert event names.
const (
	// EventThresholdExceeded fires once when consecutive renewal failures
	// reach the configured threshold.
	EventThresholdExceeded = "failure_threshold_exceeded"
	// EventUnexpectedFailure fires on any non-categorized renewal failure.
	EventUnexpectedFailure = "unexpected_failure"
)

// serviceName identifies this service in outbound alerts.
const serviceName = "tokensync"

// Alert is one notification payload.
type Alert struct {
	Event               string    `json:"event"`
	Service             string    `json:"service"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// Notifier delivers alerts somewhere an operator will see them.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// WebhookNotifier posts alerts as JSON to a configured webhook. With no URL
// configured every alert is dropped with a debug log, so callers never need
// to special-case an unconfigured notifier.
type WebhookNotifier struct {
	url    string
	apiKey string
	client *http.Client
}

func NewWebhookNotifier(url, apiKey string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, a Alert) error {
	if n.url == "" {
		log.Debug().Str("event", a.Event).Msg("No alert webhook configured, dropping alert")
		return nil
	}

	if a.Service == "" {
		a.Service = serviceName
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(a)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.apiKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("event", a.Event).Msg("Alert webhook delivery failed")
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		log.Info().
			Str("event", a.Event).
			Int("consecutive_failures", a.ConsecutiveFailures).
			Msg("Alert delivered")
		return nil
	default:
		err := fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
		log.Error().Err(err).Str("event", a.Event).Msg("Alert webhook rejected the alert")
		return err
	}
}
