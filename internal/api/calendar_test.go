/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/calendar"
	"github.com/friendsincode/cadence/internal/models"
)

func TestCalendarBusyBlocks(t *testing.T) {
	h := newHarness(t)
	const window = "?from=2026-10-12T00:00:00Z&to=2026-10-19T00:00:00Z"

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"valid", map[string]any{"title": "Focus", "starts_at": "2026-10-15T14:00:00Z", "ends_at": "2026-10-15T15:00:00Z"}, http.StatusCreated},
		{"recurring", map[string]any{"title": "Standup", "starts_at": "2026-10-12T13:00:00Z", "ends_at": "2026-10-12T13:15:00Z", "timezone": "America/New_York", "rrule": "FREQ=DAILY"}, http.StatusCreated},
		{"inverted", map[string]any{"title": "Oops", "starts_at": "2026-10-15T15:00:00Z", "ends_at": "2026-10-15T14:00:00Z"}, http.StatusUnprocessableEntity},
		{"bad rrule", map[string]any{"title": "Oops", "starts_at": "2026-10-15T14:00:00Z", "ends_at": "2026-10-15T15:00:00Z", "rrule": "FREQ=SOMETIMES"}, http.StatusUnprocessableEntity},
		{"bad timezone", map[string]any{"title": "Oops", "starts_at": "2026-10-15T14:00:00Z", "ends_at": "2026-10-15T15:00:00Z", "timezone": "Mars/Olympus"}, http.StatusUnprocessableEntity},
		{"missing title", map[string]any{"starts_at": "2026-10-15T14:00:00Z", "ends_at": "2026-10-15T15:00:00Z"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := h.do(t, http.MethodPost, "/api/v1/calendar/busy", tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.want, rr.Body)
			}
		})
	}

	rr := h.do(t, http.MethodGet, "/api/v1/calendar/events"+window, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	list := decode[struct {
		Events []models.CalendarEvent `json:"events"`
	}](t, rr)
	if len(list.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(list.Events))
	}
	if list.Events[0].Title != "Standup" {
		t.Errorf("events not ordered by start: %q first", list.Events[0].Title)
	}

	if rr := h.do(t, http.MethodGet, "/api/v1/calendar/events?from=yesterday", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad from status = %d", rr.Code)
	}
	if rr := h.do(t, http.MethodGet, "/api/v1/calendar/events?from=2026-10-19T00:00:00Z&to=2026-10-12T00:00:00Z", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("inverted range status = %d", rr.Code)
	}

	meeting, err := calendar.New(h.store.DB(), h.user.ID, "", "", zerolog.Nop()).CreateEvent(context.Background(), calendar.EventRequest{
		Attendee: "lead@acme.com",
		Title:    "Intro",
		Start:    time.Date(2026, 10, 16, 15, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 10, 16, 15, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	focus := list.Events[1].ID
	deletes := []struct {
		name string
		id   string
		want int
	}{
		{"busy block", focus, http.StatusNoContent},
		{"gone", focus, http.StatusNotFound},
		{"meeting", meeting.EventID, http.StatusConflict},
	}
	for _, tt := range deletes {
		t.Run("delete "+tt.name, func(t *testing.T) {
			if rr := h.do(t, http.MethodDelete, "/api/v1/calendar/events/"+tt.id, nil); rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestCalendarExportAndImport(t *testing.T) {
	h := newHarness(t)

	seq := validSequence()
	seq["timezone"] = "Europe/Berlin"
	if rr := h.do(t, http.MethodPut, "/api/v1/sequence/", seq); rr.Code != http.StatusOK {
		t.Fatalf("save sequence: %d %s", rr.Code, rr.Body)
	}

	ics := "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nUID:offsite-1\r\nDTSTART:20261020T090000\r\nDTEND:20261020T170000\r\nSUMMARY:Offsite\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"
	rr := h.do(t, http.MethodPost, "/api/v1/calendar/import", ics)
	if rr.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", rr.Code, rr.Body)
	}
	res := decode[calendar.ImportResult](t, rr)
	if res.Imported != 1 {
		t.Fatalf("import result = %+v", res)
	}

	rr = h.do(t, http.MethodGet, "/api/v1/calendar/events?from=2026-10-20T00:00:00Z&to=2026-10-21T00:00:00Z", nil)
	list := decode[struct {
		Events []models.CalendarEvent `json:"events"`
	}](t, rr)
	if len(list.Events) != 1 {
		t.Fatalf("got %d events", len(list.Events))
	}
	// Floating times are read in the sequence timezone (CEST, UTC+2).
	if want := time.Date(2026, 10, 20, 7, 0, 0, 0, time.UTC); !list.Events[0].StartsAt.Equal(want) {
		t.Errorf("start = %s, want %s", list.Events[0].StartsAt, want)
	}

	rr = h.do(t, http.MethodGet, "/api/v1/calendar/export.ics?from=2026-10-20T00:00:00Z&to=2026-10-21T00:00:00Z", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != calendar.ContentType {
		t.Errorf("content type = %q", ct)
	}
	body := rr.Body.String()
	for _, want := range []string{"UID:offsite-1\r\n", "DTSTART:20261020T070000Z\r\n", "SUMMARY:Offsite\r\n"} {
		if !strings.Contains(body, want) {
			t.Errorf("export missing %q:\n%s", want, body)
		}
	}
}
