/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package slots

import (
	"strings"
	"time"

	"github.com/friendsincode/cadence/internal/workhours"
)

// Preferences are a prospect's stated scheduling wishes. All fields are
// optional and advisory.
type Preferences struct {
	Days     workhours.Days
	Time     *workhours.Clock
	Location *time.Location
}

// IsZero reports whether no preference was stated.
func (p Preferences) IsZero() bool {
	return p.Days.Empty() && p.Time == nil
}

// ParsePreferences builds Preferences from persisted prospect fields.
// Unparseable values are dropped instead of failing the match.
func ParsePreferences(days []string, clock, timezone string) Preferences {
	var p Preferences
	for _, name := range days {
		if wd, err := workhours.ParseWeekday(name); err == nil {
			p.Days |= workhours.NewDays(wd)
		}
	}
	if c, err := workhours.ParseClock(clock); err == nil {
		p.Time = &c
	}
	if strings.TrimSpace(timezone) != "" {
		if loc, err := time.LoadLocation(strings.TrimSpace(timezone)); err == nil {
			p.Location = loc
		}
	}
	return p
}

// SelectSlot picks exactly one slot from free, which must be in chronological
// order. It returns false only when free is empty.
//
// Day and time comparisons use wall-clock values in home. Preferences never
// block a booking: when nothing matches, the earliest slot wins.
func SelectSlot(free []Slot, prefs Preferences, home *time.Location) (Slot, bool) {
	if len(free) == 0 {
		return Slot{}, false
	}
	if home == nil {
		home = time.UTC
	}

	if prefs.Time == nil {
		if prefs.Days.Empty() {
			return free[0], true
		}
		for _, s := range free {
			if prefs.Days.Has(s.In(home).Weekday()) {
				return s, true
			}
		}
		return free[0], true
	}

	days := prefs.Days
	target := *prefs.Time
	if prefs.Location != nil && prefs.Location.String() != home.String() {
		var shift int
		target, shift = convertClock(*prefs.Time, prefs.Location, home, free[0].Start)
		days = days.Shift(shift)
	}

	candidates := free
	if !days.Empty() {
		var onDays []Slot
		for _, s := range free {
			if days.Has(s.In(home).Weekday()) {
				onDays = append(onDays, s)
			}
		}
		if len(onDays) > 0 {
			candidates = onDays
		}
	}

	for _, s := range candidates {
		if workhours.ClockOf(s.In(home)) >= target {
			return s, true
		}
	}
	return candidates[0], true
}

// convertClock converts a wall-clock time stated in from into home, on the
// date ref falls on in from. It returns the home clock and the calendar-day
// difference between the two dates (-1, 0 or +1).
func convertClock(c workhours.Clock, from, home *time.Location, ref time.Time) (workhours.Clock, int) {
	r := ref.In(from)
	stated := time.Date(r.Year(), r.Month(), r.Day(), c.Hour(), c.Minute(), 0, 0, from)
	local := stated.In(home)

	statedDate := time.Date(stated.Year(), stated.Month(), stated.Day(), 0, 0, 0, 0, time.UTC)
	localDate := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	shift := int(localDate.Sub(statedDate).Hours() / 24)

	return workhours.ClockOf(local), shift
}
