/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package webhooks forwards sequence events to external HTTP endpoints,
// typically a CRM that mirrors prospect state.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/events"
	"github.com/friendsincode/cadence/internal/telemetry"
)

// Header names set on every delivery.
const (
	HeaderEvent     = "X-Cadence-Event"
	HeaderTimestamp = "X-Cadence-Timestamp"
	HeaderSignature = "X-Cadence-Signature"
)

// DefaultEvents are forwarded when Config.Events is empty.
var DefaultEvents = []events.EventType{
	events.EventEmailSent,
	events.EventReplyAnalyzed,
	events.EventMeetingScheduled,
	events.EventStateChanged,
	events.EventNeedsAttention,
}

// Config selects targets and events.
type Config struct {
	URLs    []string
	Secret  string
	Events  []events.EventType
	Timeout time.Duration
}

// Payload is the JSON body posted to each target.
type Payload struct {
	Event     events.EventType `json:"event"`
	EventID   string           `json:"event_id,omitempty"`
	UserID    string           `json:"user_id"`
	Timestamp time.Time        `json:"timestamp"`
	Data      events.Payload   `json:"data"`
}

// Service handles webhook delivery.
type Service struct {
	cfg    Config
	bus    events.Broker
	logger zerolog.Logger
	client *http.Client
	now    func() time.Time

	wg sync.WaitGroup
}

// NewService creates a new webhook service.
func NewService(cfg Config, bus events.Broker, logger zerolog.Logger) *Service {
	if len(cfg.Events) == 0 {
		cfg.Events = DefaultEvents
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Service{
		cfg:    cfg,
		bus:    bus,
		logger: logger.With().Str("component", "webhooks").Logger(),
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

// Start subscribes to the configured events and delivers them until ctx is
// done. In-flight deliveries finish before Start returns.
func (s *Service) Start(ctx context.Context) {
	if len(s.cfg.URLs) == 0 {
		return
	}
	s.logger.Info().Int("targets", len(s.cfg.URLs)).Msg("webhook service starting")

	merged := make(chan Payload, 64)
	var subWG sync.WaitGroup
	for _, et := range s.cfg.Events {
		sub := s.bus.Subscribe(et)
		defer s.bus.Unsubscribe(et, sub)

		subWG.Add(1)
		go func(et events.EventType, sub events.Subscriber) {
			defer subWG.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case p, ok := <-sub:
					if !ok {
						return
					}
					select {
					case merged <- s.envelope(et, p):
					case <-ctx.Done():
						return
					}
				}
			}
		}(et, sub)
	}

	for {
		select {
		case <-ctx.Done():
			subWG.Wait()
			s.wg.Wait()
			s.logger.Info().Msg("webhook service stopping")
			return
		case p := <-merged:
			s.Fire(context.WithoutCancel(ctx), p)
		}
	}
}

func (s *Service) envelope(et events.EventType, p events.Payload) Payload {
	id, _ := p["event_id"].(string)
	return Payload{
		Event:     et,
		EventID:   id,
		UserID:    p.UserID(),
		Timestamp: s.now().UTC(),
		Data:      p,
	}
}

// Fire posts payload to every target concurrently.
func (s *Service) Fire(ctx context.Context, payload Payload) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", string(payload.Event)).Msg("failed to marshal webhook payload")
		return
	}
	for _, url := range s.cfg.URLs {
		s.wg.Add(1)
		go func(url string) {
			defer s.wg.Done()
			if err := s.send(ctx, url, payload.Event, body); err != nil {
				telemetry.WebhookDeliveriesTotal.WithLabelValues(string(payload.Event), "failed").Inc()
				s.logger.Warn().Err(err).Str("url", url).Str("event", string(payload.Event)).Msg("webhook delivery failed")
				return
			}
			telemetry.WebhookDeliveriesTotal.WithLabelValues(string(payload.Event), "delivered").Inc()
		}(url)
	}
}

// Wait blocks until every started delivery has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) send(ctx context.Context, url string, event events.EventType, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	ts := strconv.FormatInt(s.now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Cadence-Webhook/1.0")
	req.Header.Set(HeaderEvent, string(event))
	req.Header.Set(HeaderTimestamp, ts)

	// Add HMAC signature if secret is configured
	if s.cfg.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(s.cfg.Secret, ts, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	s.logger.Debug().Str("url", url).Str("event", string(event)).Int("status", resp.StatusCode).Msg("webhook delivered")
	return nil
}

// Sign returns the signature header value for a delivery. The timestamp is
// part of the signed content so receivers can reject replays.
func Sign(secret, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timestamp))
	h.Write([]byte("."))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// Verify checks a signature produced by Sign.
func Verify(secret, timestamp string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}
