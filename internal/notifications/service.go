/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package notifications turns runner events into stored in-app
// notifications.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/events"
	"github.com/friendsincode/cadence/internal/models"
	"github.com/friendsincode/cadence/internal/store"
)

// Store is the persistence the service needs.
type Store interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Service handles notification creation from bus events.
type Service struct {
	store  Store
	bus    events.Broker
	logger zerolog.Logger

	mu      sync.RWMutex
	running bool
}

// NewService creates a new notification service.
func NewService(st Store, bus events.Broker, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		bus:    bus,
		logger: logger.With().Str("component", "notifications").Logger(),
	}
}

var watched = []events.EventType{
	events.EventMeetingScheduled,
	events.EventNeedsAttention,
	events.EventRunFailed,
	events.EventReplyAnalyzed,
}

// Start consumes events until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	type sub struct {
		eventType events.EventType
		ch        events.Subscriber
	}
	subs := make([]sub, 0, len(watched))
	for _, et := range watched {
		subs = append(subs, sub{et, s.bus.Subscribe(et)})
	}
	defer func() {
		for _, sb := range subs {
			s.bus.Unsubscribe(sb.eventType, sb.ch)
		}
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	meetings, attention, failures, replies := subs[0].ch, subs[1].ch, subs[2].ch, subs[3].ch

	s.logger.Info().Msg("notification service started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("notification service stopping")
			return
		case p, ok := <-meetings:
			if ok {
				s.Handle(ctx, events.EventMeetingScheduled, p)
			}
		case p, ok := <-attention:
			if ok {
				s.Handle(ctx, events.EventNeedsAttention, p)
			}
		case p, ok := <-failures:
			if ok {
				s.Handle(ctx, events.EventRunFailed, p)
			}
		case p, ok := <-replies:
			if ok {
				s.Handle(ctx, events.EventReplyAnalyzed, p)
			}
		}
	}
}

// Running reports whether Start is consuming events.
func (s *Service) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Handle stores the notification for one event. Events carrying an
// event_id produce at most one notification even when several instances
// receive the same event.
func (s *Service) Handle(ctx context.Context, eventType events.EventType, p events.Payload) {
	n := Build(eventType, p)
	if n == nil {
		return
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return
		}
		s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("store notification")
	}
}

func str(p events.Payload, key string) string {
	v, _ := p[key].(string)
	return v
}

func who(p events.Payload) string {
	if name := str(p, "name"); name != "" {
		return name
	}
	return str(p, "email")
}

// Build maps an event to a notification, or nil for events that do not
// notify.
func Build(eventType events.EventType, p events.Payload) *models.Notification {
	userID := p.UserID()
	if userID == "" {
		return nil
	}
	n := &models.Notification{
		ID:         str(p, "event_id"),
		UserID:     userID,
		ProspectID: str(p, "prospect_id"),
	}

	switch eventType {
	case events.EventMeetingScheduled:
		n.NotificationType = models.NotificationTypeMeetingScheduled
		n.Subject = "Meeting booked with " + who(p)
		n.Body = fmt.Sprintf("%s accepted a meeting", who(p))
		if at, err := time.Parse(time.RFC3339, str(p, "meeting_time")); err == nil {
			n.Body += " on " + at.UTC().Format("Mon Jan 2 15:04 MST")
		}
		if link := str(p, "meeting_link"); link != "" {
			n.Body += ". Link: " + link
		}
	case events.EventNeedsAttention:
		n.NotificationType = models.NotificationTypeNeedsAttention
		n.Subject = who(p) + " needs a reply"
		n.Body = fmt.Sprintf("%s replied and automation stopped (%s). Answer them from your inbox.", who(p), str(p, "reason"))
	case events.EventRunFailed:
		n.NotificationType = models.NotificationTypeRunFailed
		n.Subject = "Sequence run failed"
		n.Body = str(p, "error")
		if n.Body == "" {
			n.Body = "The last sequence run did not complete."
		}
	case events.EventReplyAnalyzed:
		n.NotificationType = models.NotificationTypeReplyReceived
		n.Subject = "Reply from " + who(p)
		n.Body = fmt.Sprintf("%s replied: %s", who(p), str(p, "category"))
	default:
		return nil
	}
	return n
}
