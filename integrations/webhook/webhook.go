package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"treeguardian/core"
)

// Sink posts domain events to configured HTTP endpoints.
// It is synchronous; subscribe it on an async bus when endpoints are slow.
type Sink struct {
	client    *http.Client
	endpoints []string
	types     map[core.EventType]bool
	logger    *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTimeout replaces the default client with one using timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.client = &http.Client{Timeout: d}
		}
	}
}

// WithLogger reports delivery failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEventTypes limits delivery to the given types. No types means all.
func WithEventTypes(types ...core.EventType) Option {
	return func(s *Sink) {
		if len(types) == 0 {
			s.types = nil
			return
		}
		s.types = make(map[core.EventType]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// OnEvent posts the event JSON to every endpoint. Failures are logged and
// never surface to the publisher.
func (s *Sink) OnEvent(ctx context.Context, e core.Event) {
	if len(s.endpoints) == 0 {
		return
	}
	if s.types != nil && !s.types[e.Type] {
		return
	}
	body, err := json.Marshal(e)
	if err != nil {
		s.logger.Warn("webhook encode failed", "event", e.Type, "error", err)
		return
	}
	for _, ep := range s.endpoints {
		req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, ep, bytes.NewReader(body))
		if err != nil {
			s.logger.Warn("webhook request invalid", "endpoint", ep, "error", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Guardian-Event", string(e.Type))
		resp, err := s.client.Do(req)
		if err != nil {
			s.logger.Warn("webhook delivery failed", "endpoint", ep, "event", e.Type, "error", err)
			continue
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 300 {
			s.logger.Warn("webhook rejected", "endpoint", ep, "event", e.Type, "status", resp.StatusCode)
		}
	}
}
