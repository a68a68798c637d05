// Package notify sends filtered signal events to the notification
// webhook: HTTP POST, JSON body, 5s timeout, no retries. Alerting
// failures are logged but never fatal, per the error-handling design.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// Body is the JSON payload posted to the webhook: a markdown-like text
// field plus structured fields for consumers that parse them.
type Body struct {
	Text   string         `json:"text"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Sink posts Body values to a single configured webhook URL.
type Sink struct {
	log    *slog.Logger
	client *resty.Client
	url    string
}

// New builds a Sink. An empty url makes every Send a no-op, so the
// notification sink can be omitted in development without branching
// at every call site.
func New(url string, timeout time.Duration, log *slog.Logger) *Sink {
	client := resty.New().SetTimeout(timeout)
	return &Sink{log: log, client: client, url: url}
}

// Send posts body to the webhook. Failures are logged, never returned
// as fatal: the rule is that alerting never blocks the signal pipeline
// that produced the event.
func (s *Sink) Send(ctx context.Context, body Body) {
	if s.url == "" {
		return
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(s.url)
	if err != nil {
		s.log.Warn("notify: webhook post failed", "error", err)
		return
	}
	if resp.IsError() {
		s.log.Warn("notify: webhook rejected payload", "status", resp.StatusCode())
	}
}
