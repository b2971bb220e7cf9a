/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package calendar stores a user's busy time and booked meetings and
// expands recurring blocks into concrete intervals.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"
	"gorm.io/gorm"

	"github.com/friendsincode/cadence/internal/models"
	"github.com/friendsincode/cadence/internal/slots"
)

// ErrInvalidEvent is returned for events with a non-positive duration.
var ErrInvalidEvent = errors.New("invalid calendar event")

// EventRequest describes a meeting to book.
type EventRequest struct {
	Attendee    string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
}

// EventResult links to a booked meeting.
type EventResult struct {
	EventID  string
	HTMLLink string
	MeetLink string
}

// Service is a gorm-backed calendar for one user.
type Service struct {
	db       *gorm.DB
	userID   string
	baseURL  string
	meetBase string
	logger   zerolog.Logger
}

// New returns the calendar of userID. baseURL builds the event page link and
// meetBase, when set, builds a per-meeting conferencing link.
func New(db *gorm.DB, userID, baseURL, meetBase string, logger zerolog.Logger) *Service {
	return &Service{
		db:       db,
		userID:   userID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		meetBase: strings.TrimRight(meetBase, "/"),
		logger:   logger.With().Str("component", "calendar").Str("user_id", userID).Logger(),
	}
}

// BusyIntervals returns every busy span overlapping [start, end), with
// recurring blocks expanded, sorted by start.
func (s *Service) BusyIntervals(ctx context.Context, start, end time.Time) ([]slots.Interval, error) {
	var events []models.CalendarEvent
	err := s.db.WithContext(ctx).
		Where("user_id = ?", s.userID).
		Where("((COALESCE(rrule, '') = '' AND starts_at < ? AND ends_at > ?) OR (COALESCE(rrule, '') <> '' AND starts_at < ?))",
			end.UTC(), start.UTC(), end.UTC()).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("load calendar events: %w", err)
	}

	var out []slots.Interval
	for _, ev := range events {
		occ, err := Expand(ev, start, end)
		if err != nil {
			s.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("skipping event with invalid recurrence")
			continue
		}
		out = append(out, occ...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// Expand returns the occurrences of ev that overlap [start, end).
func Expand(ev models.CalendarEvent, start, end time.Time) ([]slots.Interval, error) {
	duration := ev.EndsAt.Sub(ev.StartsAt)
	if duration <= 0 {
		return nil, fmt.Errorf("%w: %s ends before it starts", ErrInvalidEvent, ev.ID)
	}

	if ev.RRule == "" {
		iv := slots.Interval{Start: ev.StartsAt, End: ev.EndsAt}
		if iv.Overlaps(start, end) {
			return []slots.Interval{iv}, nil
		}
		return nil, nil
	}

	rr, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		return nil, fmt.Errorf("parse rrule: %w", err)
	}

	// Occurrences repeat in the event's own zone so a weekly 09:00 block
	// stays at 09:00 local across DST changes.
	dtstart := ev.StartsAt
	if ev.Timezone != "" {
		if loc, err := time.LoadLocation(ev.Timezone); err == nil {
			dtstart = dtstart.In(loc)
		}
	}
	rr.DTStart(dtstart)

	var out []slots.Interval
	for _, occ := range rr.Between(start.Add(-duration), end, true) {
		iv := slots.Interval{Start: occ, End: occ.Add(duration)}
		if iv.Overlaps(start, end) {
			out = append(out, iv)
		}
	}
	return out, nil
}

// CreateEvent books a meeting, which also blocks the time for later searches.
func (s *Service) CreateEvent(ctx context.Context, req EventRequest) (EventResult, error) {
	if !req.End.After(req.Start) {
		return EventResult{}, fmt.Errorf("%w: end must be after start", ErrInvalidEvent)
	}

	id := uuid.NewString()
	ev := models.CalendarEvent{
		ID:          id,
		UserID:      s.userID,
		Kind:        models.CalendarEventMeeting,
		Title:       req.Title,
		Description: req.Description,
		Attendee:    req.Attendee,
		StartsAt:    req.Start.UTC(),
		EndsAt:      req.End.UTC(),
		Timezone:    req.Timezone,
	}
	if s.meetBase != "" {
		ev.MeetLink = s.meetBase + "/" + id
	}

	if err := s.db.WithContext(ctx).Create(&ev).Error; err != nil {
		return EventResult{}, fmt.Errorf("create calendar event: %w", err)
	}

	s.logger.Info().Str("event_id", id).Str("attendee", req.Attendee).Time("starts_at", ev.StartsAt).Msg("meeting booked")

	res := EventResult{EventID: id, MeetLink: ev.MeetLink}
	if s.baseURL != "" {
		res.HTMLLink = s.baseURL + "/calendar/" + id
	}
	return res, nil
}

// AddBusy stores a busy block, optionally recurring.
func (s *Service) AddBusy(ctx context.Context, title string, start, end time.Time, timezone, recurrence string) (*models.CalendarEvent, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end must be after start", ErrInvalidEvent)
	}
	if recurrence != "" {
		if _, err := rrule.StrToRRule(recurrence); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
	}
	ev := &models.CalendarEvent{
		ID:       uuid.NewString(),
		UserID:   s.userID,
		Kind:     models.CalendarEventBusy,
		Title:    title,
		StartsAt: start.UTC(),
		EndsAt:   end.UTC(),
		Timezone: timezone,
		RRule:    recurrence,
	}
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, fmt.Errorf("create busy block: %w", err)
	}
	return ev, nil
}
