package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kuitang/sitesmoke/internal/logutil"
	"github.com/kuitang/sitesmoke/internal/obs"
)

// State is a step of a notification attempt.
type State string

const (
	StateIdle           State = "idle"
	StateBuilding       State = "building"
	StateSkipped        State = "skipped"
	StateSending        State = "sending"
	StateDelivered      State = "delivered"
	StateDeliveryFailed State = "delivery_failed"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateSkipped || s == StateDelivered || s == StateDeliveryFailed
}

const maxLoggedResponseBytes = 2048

// Sender posts cards to a webhook. It makes exactly one attempt per call.
type Sender struct {
	client *http.Client
	logger *slog.Logger
}

// NewSender returns a Sender using client. A nil client gets a 15s timeout; a
// nil logger discards diagnostics.
func NewSender(client *http.Client, logger *slog.Logger) *Sender {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = obs.Discard()
	}
	return &Sender{client: client, logger: logger}
}

// Deliver POSTs payload as JSON to webhookURL and returns the terminal state.
// An empty URL skips delivery. Failures are logged, never returned.
func (s *Sender) Deliver(ctx context.Context, webhookURL string, payload any) State {
	if webhookURL == "" {
		s.logger.Info("webhook not configured; skipping notification")
		return StateSkipped
	}
	target := logutil.RedactURL(webhookURL)

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("encode notification payload", "error", err)
		return StateDeliveryFailed
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("build webhook request", "webhook", target, "error", err)
		return StateDeliveryFailed
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("webhook request failed",
			"webhook", target,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return StateDeliveryFailed
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedResponseBytes+1))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Error("webhook rejected notification",
			"webhook", target,
			"status", resp.StatusCode,
			"response_body", logutil.FormatBodyForLog(resp.Header.Get("Content-Type"), respBody, maxLoggedResponseBytes),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return StateDeliveryFailed
	}

	s.logger.Info("notification delivered",
		"webhook", target,
		"status", resp.StatusCode,
		"payload_bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return StateDelivered
}
