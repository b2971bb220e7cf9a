/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/events"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	data, err := encodeEnvelope(events.EventEmailSent, events.Payload{"user_id": "u1"}, "node-a")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := decodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.EventType != events.EventEmailSent || env.NodeID != "node-a" || env.Payload.UserID() != "u1" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.MessageID == "" {
		t.Fatal("expected message id")
	}

	if _, err := decodeEnvelope([]byte("{")); err == nil {
		t.Fatal("expected error for malformed envelope")
	}
}

func TestNodeID(t *testing.T) {
	if got := NodeID("cadence-1"); got != "cadence-1" {
		t.Fatalf("NodeID = %q", got)
	}
	a, b := NodeID(""), NodeID("")
	if a == b || !strings.Contains(a, "-") {
		t.Fatalf("generated ids %q %q", a, b)
	}
}

func TestRedisBusFallsBackLocally(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	bus := newRedisBus(client, 1, "node-a", zerolog.Nop())
	defer bus.Close()

	if !bus.fallback() {
		t.Fatal("expected fallback with unreachable redis")
	}

	sub := bus.Subscribe(events.EventMeetingScheduled)
	bus.Publish(events.EventMeetingScheduled, events.Payload{"user_id": "u1"})

	select {
	case got := <-sub:
		if got.UserID() != "u1" {
			t.Fatalf("payload = %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("local subscriber did not receive event")
	}
	bus.Unsubscribe(events.EventMeetingScheduled, sub)
}
