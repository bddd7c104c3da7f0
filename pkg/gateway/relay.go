// Copyright 2024-2026 Aiku AI

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// InboundEnvelope is the stable payload shape posted to the webhook for
// every relayed inbound message.
type InboundEnvelope struct {
	MessageID string `json:"messageId"`
	From      string `json:"from"`
	Sender    string `json:"sender,omitempty"`
	FromMe    bool   `json:"fromMe"`
	PushName  string `json:"pushName,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
}

// Relay forwards inbound message events to the configured webhook endpoint.
// Delivery is best-effort, at most once: a failed POST is logged and the
// envelope is dropped, a successful POST likewise ends with the envelope
// discarded. Nothing is ever queued or persisted.
type Relay struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewRelay creates a relay for the given webhook URL. An empty URL disables
// forwarding entirely.
func NewRelay(url string, log zerolog.Logger) *Relay {
	return &Relay{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log.With().Str("component", "relay").Logger(),
	}
}

// Forward performs the single delivery attempt for an inbound message.
// Self-originated messages and messages arriving with no webhook configured
// are skipped. Errors are logged, never returned: forwarding failures are
// request-scoped and must not affect event processing.
func (r *Relay) Forward(ctx context.Context, evt MessageEvent) {
	if evt.FromMe {
		return
	}
	if r.url == "" {
		return
	}

	env := InboundEnvelope{
		MessageID: evt.ID,
		From:      evt.Chat,
		Sender:    evt.Sender,
		FromMe:    evt.FromMe,
		PushName:  evt.PushName,
		Timestamp: evt.Timestamp.Unix(),
		Type:      evt.Kind,
		Text:      evt.Text,
	}

	if err := r.post(ctx, env); err != nil {
		r.log.Warn().Err(err).
			Str("message_id", env.MessageID).
			Str("from", env.From).
			Msg("Webhook delivery failed, event dropped")
		return
	}
	r.log.Debug().
		Str("message_id", env.MessageID).
		Str("from", env.From).
		Msg("Event forwarded to webhook")
}

// post sends one HTTP POST with the JSON envelope using the shared client.
func (r *Relay) post(ctx context.Context, env InboundEnvelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
