/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/cadence/internal/auth"
	"github.com/friendsincode/cadence/internal/events"
	"github.com/friendsincode/cadence/internal/telemetry"
)

type wsEvent struct {
	Type    events.EventType `json:"type"`
	Payload events.Payload   `json:"payload"`
}

// handleEvents streams the caller's bus events over a websocket. Events of
// other users are dropped.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if a.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "events_unavailable")
		return
	}
	userID := auth.UserID(r.Context())

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	// Clients only listen; CloseRead cancels ctx when they hang up.
	ctx := conn.CloseRead(r.Context())

	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = events.All
	}

	out := make(chan wsEvent, 32)
	subscribers := make([]events.Subscriber, 0, len(eventTypes))
	for _, eventType := range eventTypes {
		sub := a.bus.Subscribe(eventType)
		subscribers = append(subscribers, sub)
		go forward(ctx, eventType, sub, userID, out)
	}
	defer func() {
		for i, eventType := range eventTypes {
			a.bus.Unsubscribe(eventType, subscribers[i])
		}
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case ev := <-out:
			if err := writeEvent(ctx, conn, ev); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

func forward(ctx context.Context, eventType events.EventType, sub events.Subscriber, userID string, out chan<- wsEvent) {
	for payload := range sub {
		if payload.UserID() != userID {
			continue
		}
		select {
		case out <- wsEvent{Type: eventType, Payload: payload}:
		case <-ctx.Done():
			return
		}
	}
}

func writeEvent(ctx context.Context, conn *ws.Conn, ev wsEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, ws.MessageText, data)
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, events.EventType(part))
	}
	return out
}
