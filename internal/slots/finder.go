/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package slots computes free meeting slots and picks one against a
// prospect's stated preferences.
package slots

import (
	"sort"
	"time"

	"github.com/friendsincode/cadence/internal/workhours"
)

// Defaults applied by FindFreeSlots when a Query leaves them zero.
const (
	DefaultLeadTime    = 24 * time.Hour
	DefaultGranularity = 30 * time.Minute
	DefaultDuration    = 30 * time.Minute
)

// Interval is a half-open [Start, End) span of busy time.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [start, end) intersects the interval.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && end.After(i.Start)
}

// Slot is a candidate meeting. Start is an absolute instant.
type Slot struct {
	Start time.Time
	End   time.Time
}

// In returns the slot start projected into loc.
func (s Slot) In(loc *time.Location) time.Time {
	return s.Start.In(loc)
}

// Query describes a free-slot search.
type Query struct {
	RangeStart time.Time
	RangeEnd   time.Time
	Now        time.Time

	Window   workhours.Window
	Location *time.Location
	Days     workhours.Days
	Busy     []Interval

	LeadTime    time.Duration
	Granularity time.Duration
	Duration    time.Duration
}

// FindFreeSlots enumerates free slots in chronological order.
//
// Candidates are built from local wall-clock times with time.Date in the
// query's location, so each date gets its own UTC offset. Wall times that do
// not exist on a date (the spring-forward gap) are skipped.
func FindFreeSlots(q Query) []Slot {
	if q.Location == nil || !q.RangeStart.Before(q.RangeEnd) {
		return nil
	}
	lead := q.LeadTime
	if lead == 0 {
		lead = DefaultLeadTime
	}
	step := q.Granularity
	if step <= 0 {
		step = DefaultGranularity
	}
	dur := q.Duration
	if dur <= 0 {
		dur = DefaultDuration
	}
	earliest := q.Now.Add(lead)
	stepMin := int(step / time.Minute)
	durMin := int(dur / time.Minute)

	busy := append([]Interval(nil), q.Busy...)
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })

	first := q.RangeStart.In(q.Location)
	var out []Slot
	for i := 0; ; i++ {
		day := time.Date(first.Year(), first.Month(), first.Day()+i, 0, 0, 0, 0, q.Location)
		if !day.Before(q.RangeEnd) {
			break
		}
		if !q.Days.Has(day.Weekday()) {
			continue
		}
		for m := int(q.Window.Start); m+durMin <= int(q.Window.End); m += stepMin {
			start := time.Date(day.Year(), day.Month(), day.Day(), m/60, m%60, 0, 0, q.Location)
			if workhours.ClockOf(start) != workhours.Clock(m) || start.Day() != day.Day() {
				continue
			}
			if start.Before(q.RangeStart) || !start.Before(q.RangeEnd) {
				continue
			}
			if start.Before(earliest) {
				continue
			}
			end := start.Add(dur)
			if overlapsAny(busy, start, end) {
				continue
			}
			out = append(out, Slot{Start: start, End: end})
		}
	}
	return out
}

func overlapsAny(busy []Interval, start, end time.Time) bool {
	for _, b := range busy {
		if !b.Start.Before(end) {
			// sorted by start; nothing later can overlap
			return false
		}
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
