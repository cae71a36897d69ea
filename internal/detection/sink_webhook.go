// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package detection

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// WebhookSink posts reports to a generic webhook endpoint.
type WebhookSink struct {
	webhookURL string
	headers    map[string]string
	client     *http.Client

	// Rate limiting
	mu        sync.Mutex
	lastSent  time.Time
	rateLimit time.Duration
}

// WebhookConfig configures the webhook sink.
type WebhookConfig struct {
	URL       string
	Headers   map[string]string // Custom headers (e.g., auth)
	RateLimit time.Duration
	Timeout   time.Duration
}

// WebhookPayload is the JSON payload sent to the webhook endpoint.
type WebhookPayload struct {
	Report    *Report   `json:"report"`
	Text      string    `json:"text"`
	EventType string    `json:"event_type"` // sentinel_report
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // sentinel
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(cfg WebhookConfig) *WebhookSink {
	rateLimit := cfg.RateLimit
	if rateLimit == 0 {
		rateLimit = 500 * time.Millisecond // Default 500ms rate limit
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return &WebhookSink{
		webhookURL: cfg.URL,
		headers:    headers,
		rateLimit:  rateLimit,
		client:     &http.Client{Timeout: timeout},
	}
}

// Name implements Sink.
func (s *WebhookSink) Name() string {
	return "webhook"
}

// Send implements Sink.
func (s *WebhookSink) Send(ctx context.Context, r *Report) error {
	if err := s.wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(WebhookPayload{
		Report:    r,
		Text:      r.Line(),
		EventType: "sentinel_report",
		Timestamp: time.Now().UTC(),
		Source:    "sentinel",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	s.mu.Lock()
	s.lastSent = time.Now()
	s.mu.Unlock()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// wait blocks until the rate limit allows the next request.
func (s *WebhookSink) wait(ctx context.Context) error {
	s.mu.Lock()
	lastSent := s.lastSent
	s.mu.Unlock()

	if s.rateLimit <= 0 || lastSent.IsZero() {
		return nil
	}
	waitTime := s.rateLimit - time.Since(lastSent)
	if waitTime <= 0 {
		return nil
	}

	timer := time.NewTimer(waitTime)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
