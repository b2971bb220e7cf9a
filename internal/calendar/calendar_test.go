/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package calendar

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/cadence/internal/models"
)

func newTestCalendar(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.CalendarEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db, "user-1", "https://app.example.com/", "https://meet.example.com", zerolog.Nop()), db
}

func TestExpand_RecurringAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone not available: %v", err)
	}

	ev := models.CalendarEvent{
		ID:       "standup",
		StartsAt: time.Date(2026, 1, 5, 9, 0, 0, 0, ny).UTC(),
		EndsAt:   time.Date(2026, 1, 5, 10, 0, 0, 0, ny).UTC(),
		Timezone: "America/New_York",
		RRule:    "FREQ=WEEKLY;BYDAY=MO",
	}
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, ny)
	end := time.Date(2026, 3, 17, 0, 0, 0, 0, ny)

	got, err := Expand(ev, start, end)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d occurrences, want 3: %v", len(got), got)
	}
	for _, iv := range got {
		local := iv.Start.In(ny)
		if local.Hour() != 9 || local.Weekday() != time.Monday {
			t.Errorf("occurrence drifted: %v", local)
		}
		if iv.End.Sub(iv.Start) != time.Hour {
			t.Errorf("duration = %v", iv.End.Sub(iv.Start))
		}
	}
	if got[0].Start.UTC().Hour() != 14 || got[1].Start.UTC().Hour() != 13 {
		t.Errorf("expected UTC offset change after DST, got %v and %v", got[0].Start.UTC(), got[1].Start.UTC())
	}
}

func TestExpand_SingleAndInvalid(t *testing.T) {
	base := time.Date(2026, 10, 20, 15, 0, 0, 0, time.UTC)
	single := models.CalendarEvent{ID: "x", StartsAt: base, EndsAt: base.Add(time.Hour)}

	if got, _ := Expand(single, base.Add(30*time.Minute), base.Add(2*time.Hour)); len(got) != 1 {
		t.Errorf("expected overlap, got %v", got)
	}
	if got, _ := Expand(single, base.Add(time.Hour), base.Add(2*time.Hour)); len(got) != 0 {
		t.Errorf("touching interval should not overlap, got %v", got)
	}

	backwards := models.CalendarEvent{ID: "y", StartsAt: base, EndsAt: base}
	if _, err := Expand(backwards, base, base.Add(time.Hour)); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent, got %v", err)
	}

	badRule := single
	badRule.RRule = "NOT;A;RULE"
	if _, err := Expand(badRule, base, base.Add(time.Hour)); err == nil {
		t.Errorf("expected rrule parse error")
	}
}

func TestService_BusyIntervalsAndCreateEvent(t *testing.T) {
	cal, db := newTestCalendar(t)
	ctx := context.Background()
	day := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)

	if _, err := cal.AddBusy(ctx, "lunch", day.Add(12*time.Hour), day.Add(13*time.Hour), "UTC", "FREQ=DAILY"); err != nil {
		t.Fatalf("AddBusy: %v", err)
	}
	if _, err := cal.AddBusy(ctx, "dentist", day.Add(15*time.Hour), day.Add(16*time.Hour), "UTC", ""); err != nil {
		t.Fatalf("AddBusy: %v", err)
	}
	if _, err := cal.AddBusy(ctx, "bad", day, day, "UTC", ""); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}

	other := New(db, "user-2", "", "", zerolog.Nop())
	if _, err := other.AddBusy(ctx, "not mine", day.Add(9*time.Hour), day.Add(10*time.Hour), "UTC", ""); err != nil {
		t.Fatalf("AddBusy: %v", err)
	}

	res, err := cal.CreateEvent(ctx, EventRequest{
		Attendee: "lead@acme.com",
		Title:    "Intro call",
		Start:    day.Add(24*time.Hour + 10*time.Hour),
		End:      day.Add(24*time.Hour + 10*time.Hour + 30*time.Minute),
		Timezone: "UTC",
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if !strings.HasPrefix(res.MeetLink, "https://meet.example.com/") || res.HTMLLink != "https://app.example.com/calendar/"+res.EventID {
		t.Fatalf("unexpected links %+v", res)
	}

	busy, err := cal.BusyIntervals(ctx, day, day.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("BusyIntervals: %v", err)
	}
	// lunch x2, dentist, booked meeting
	if len(busy) != 4 {
		t.Fatalf("got %d intervals, want 4: %v", len(busy), busy)
	}
	for i := 1; i < len(busy); i++ {
		if busy[i].Start.Before(busy[i-1].Start) {
			t.Fatalf("intervals not sorted: %v", busy)
		}
	}

	if _, err := cal.CreateEvent(ctx, EventRequest{Start: day, End: day}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}
