/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package workhours decides whether an instant falls inside a user's
// outbound working window.
package workhours

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidClock is returned for wall-clock strings that are not HH:MM.
	ErrInvalidClock = errors.New("invalid clock time")

	// ErrInvalidWindow is returned when a window does not start before it ends.
	ErrInvalidWindow = errors.New("window start must be before end")

	// ErrInvalidWeekday is returned for unknown weekday names.
	ErrInvalidWeekday = errors.New("invalid weekday")
)

// Clock is a wall-clock time of day expressed as minutes since midnight.
type Clock int

// NewClock builds a Clock from an hour and minute.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock parses an "HH:MM" string.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return NewClock(hour, minute), nil
}

// ClockOf returns the wall-clock time of day of t in its own location.
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute())
}

// Hour returns the hour component.
func (c Clock) Hour() int { return int(c) / 60 }

// Minute returns the minute component.
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// Window is a daily [Start, End] wall-clock range.
type Window struct {
	Start Clock
	End   Clock
}

// NewWindow parses and validates a window from two HH:MM strings.
func NewWindow(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("window start: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("window end: %w", err)
	}
	if s >= e {
		return Window{}, fmt.Errorf("%w: %s-%s", ErrInvalidWindow, s, e)
	}
	return Window{Start: s, End: e}, nil
}

// Contains reports whether c lies in the window. The end minute is included.
func (w Window) Contains(c Clock) bool {
	return w.Start <= c && c <= w.End
}

// Days is a set of allowed weekdays.
type Days uint8

// NewDays builds a set from weekdays.
func NewDays(days ...time.Weekday) Days {
	var d Days
	for _, wd := range days {
		d |= 1 << uint(wd)
	}
	return d
}

// Weekdays is Monday through Friday.
var Weekdays = NewDays(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)

// Has reports whether wd is in the set.
func (d Days) Has(wd time.Weekday) bool {
	return d&(1<<uint(wd)) != 0
}

// Empty reports whether no day is allowed.
func (d Days) Empty() bool { return d == 0 }

// List returns the members in Sunday-first order.
func (d Days) List() []time.Weekday {
	var out []time.Weekday
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if d.Has(wd) {
			out = append(out, wd)
		}
	}
	return out
}

// Shift moves every member by n days, wrapping around the week.
func (d Days) Shift(n int) Days {
	var out Days
	for _, wd := range d.List() {
		out |= NewDays(time.Weekday(((int(wd)+n)%7 + 7) % 7))
	}
	return out
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday parses a full or abbreviated weekday name, case-insensitively.
func ParseWeekday(name string) (time.Weekday, error) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, name)
	}
	return wd, nil
}

// ParseDays parses a list of weekday names into a set.
func ParseDays(names []string) (Days, error) {
	var d Days
	for _, name := range names {
		wd, err := ParseWeekday(name)
		if err != nil {
			return 0, err
		}
		d |= NewDays(wd)
	}
	return d, nil
}

// LoadLocation resolves an IANA zone name. Empty names are rejected rather
// than silently mapped to UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("timezone is required")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// IsEligibleNow reports whether now, projected into loc, falls on an allowed
// weekday and inside the window.
func IsEligibleNow(window Window, loc *time.Location, days Days, now time.Time) bool {
	local := now.In(loc)
	if !days.Has(local.Weekday()) {
		return false
	}
	return window.Contains(ClockOf(local))
}

// Policy bundles the inputs of IsEligibleNow for a single user.
type Policy struct {
	Window   Window
	Location *time.Location
	Days     Days
}

// NewPolicy parses a policy from its persisted string form.
func NewPolicy(start, end string, days []string, timezone string) (Policy, error) {
	window, err := NewWindow(start, end)
	if err != nil {
		return Policy{}, err
	}
	set, err := ParseDays(days)
	if err != nil {
		return Policy{}, err
	}
	if set.Empty() {
		return Policy{}, errors.New("at least one working day is required")
	}
	loc, err := LoadLocation(timezone)
	if err != nil {
		return Policy{}, err
	}
	return Policy{Window: window, Location: loc, Days: set}, nil
}

// Allows reports whether outbound action is permitted at now.
func (p Policy) Allows(now time.Time) bool {
	return IsEligibleNow(p.Window, p.Location, p.Days, now)
}
