/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventRunStarted       EventType = "run.started"
	EventRunCompleted     EventType = "run.completed"
	EventRunFailed        EventType = "run.failed"
	EventEmailSent        EventType = "prospect.email_sent"
	EventReplyAnalyzed    EventType = "prospect.reply_analyzed"
	EventMeetingScheduled EventType = "prospect.meeting_scheduled"
	EventStateChanged     EventType = "prospect.state_changed"
	EventNeedsAttention   EventType = "prospect.needs_attention"
	EventProspectError    EventType = "prospect.error"
	EventProspectCreated  EventType = "prospect.created"
)

// All lists every event type, for subscribers that fan out to clients.
var All = []EventType{
	EventRunStarted,
	EventRunCompleted,
	EventRunFailed,
	EventEmailSent,
	EventReplyAnalyzed,
	EventMeetingScheduled,
	EventStateChanged,
	EventNeedsAttention,
	EventProspectError,
	EventProspectCreated,
}

// Payload generic event payload. Every payload published by the runner
// carries "user_id".
type Payload map[string]any

// UserID returns the owning user of the payload, if any.
func (p Payload) UserID() string {
	id, _ := p["user_id"].(string)
	return id
}

// Subscriber receives event payloads.
type Subscriber chan Payload

// Publisher is what producers need.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
}

// Broker is implemented by the in-process bus and the distributed buses.
type Broker interface {
	Publisher
	Subscribe(eventType EventType) Subscriber
	Unsubscribe(eventType EventType, sub Subscriber)
}

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 16)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers drop events.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	// Sends never block, so holding the read lock keeps Unsubscribe from
	// closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes it.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Count returns the number of subscribers for eventType.
func (b *Bus) Count(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}
