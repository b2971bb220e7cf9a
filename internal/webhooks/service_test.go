/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/events"
)

type capture struct {
	mu       sync.Mutex
	requests []captured
}

type captured struct {
	header http.Header
	body   []byte
}

func (c *capture) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.requests = append(c.requests, captured{header: r.Header.Clone(), body: body})
		c.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (c *capture) get(i int) captured {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[i]
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func TestFireSignsPayload(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler(http.StatusNoContent))
	defer srv.Close()

	svc := NewService(Config{URLs: []string{srv.URL}, Secret: "shh"}, events.NewBus(), zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC) }

	svc.Fire(context.Background(), Payload{
		Event:  events.EventMeetingScheduled,
		UserID: "u1",
		Data:   events.Payload{"user_id": "u1", "prospect_id": "p1"},
	})
	svc.Wait()

	if c.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", c.count())
	}
	got := c.get(0)
	if got.header.Get(HeaderEvent) != string(events.EventMeetingScheduled) {
		t.Fatalf("event header = %q", got.header.Get(HeaderEvent))
	}
	ts := got.header.Get(HeaderTimestamp)
	if ts != "1791972000" {
		t.Fatalf("timestamp header = %q", ts)
	}
	if !Verify("shh", ts, got.body, got.header.Get(HeaderSignature)) {
		t.Fatal("signature did not verify")
	}
	if Verify("other", ts, got.body, got.header.Get(HeaderSignature)) {
		t.Fatal("signature verified with the wrong secret")
	}

	var p Payload
	if err := json.Unmarshal(got.body, &p); err != nil {
		t.Fatal(err)
	}
	if p.UserID != "u1" || p.Data["prospect_id"] != "p1" {
		t.Fatalf("payload = %+v", p)
	}
}

func TestFireWithoutSecretOmitsSignature(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler(http.StatusInternalServerError))
	defer srv.Close()

	svc := NewService(Config{URLs: []string{srv.URL}}, events.NewBus(), zerolog.Nop())
	svc.Fire(context.Background(), Payload{Event: events.EventEmailSent, UserID: "u1"})
	svc.Wait()

	if c.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", c.count())
	}
	if sig := c.get(0).header.Get(HeaderSignature); sig != "" {
		t.Fatalf("unexpected signature %q", sig)
	}
}

func TestStartForwardsSubscribedEvents(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler(http.StatusOK))
	defer srv.Close()

	bus := events.NewBus()
	svc := NewService(Config{
		URLs:   []string{srv.URL},
		Events: []events.EventType{events.EventMeetingScheduled},
	}, bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for bus.Count(events.EventMeetingScheduled) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("service never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.Publish(events.EventEmailSent, events.Payload{"user_id": "u1"})
	bus.Publish(events.EventMeetingScheduled, events.Payload{"user_id": "u1", "event_id": "e1"})

	for c.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no delivery")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if c.count() != 1 {
		t.Fatalf("deliveries = %d, want only the subscribed event", c.count())
	}
	var p Payload
	_ = json.Unmarshal(c.get(0).body, &p)
	if p.Event != events.EventMeetingScheduled || p.EventID != "e1" {
		t.Fatalf("payload = %+v", p)
	}
	if bus.Count(events.EventMeetingScheduled) != 0 {
		t.Fatal("subscription leaked after stop")
	}
}
