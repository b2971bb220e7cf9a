/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "testing"

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventEmailSent)
	other := bus.Subscribe(EventRunCompleted)

	bus.Publish(EventEmailSent, Payload{"user_id": "u1", "prospect_id": "p1"})

	select {
	case got := <-sub:
		if got.UserID() != "u1" {
			t.Fatalf("user_id = %q", got.UserID())
		}
	default:
		t.Fatal("expected an event")
	}
	select {
	case <-other:
		t.Fatal("unexpected event on another type")
	default:
	}

	bus.Unsubscribe(EventEmailSent, sub)
	if _, ok := <-sub; ok {
		t.Fatal("expected closed channel")
	}
	if n := bus.Count(EventEmailSent); n != 0 {
		t.Fatalf("count = %d", n)
	}
	// Unsubscribing twice must not panic on a closed channel.
	bus.Unsubscribe(EventEmailSent, sub)
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventRunStarted)
	for i := 0; i < cap(sub)+5; i++ {
		bus.Publish(EventRunStarted, Payload{"n": i})
	}
	if len(sub) != cap(sub) {
		t.Fatalf("buffered = %d, want %d", len(sub), cap(sub))
	}
}
