/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package calendar

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
	"gorm.io/gorm"

	"github.com/friendsincode/cadence/internal/models"
)

// ContentType is the media type of ExportICal output.
const ContentType = "text/calendar; charset=utf-8"

// ListEvents returns stored events overlapping [start, end). Recurring
// events are returned once, unexpanded.
func (s *Service) ListEvents(ctx context.Context, start, end time.Time) ([]models.CalendarEvent, error) {
	var events []models.CalendarEvent
	err := s.db.WithContext(ctx).
		Where("user_id = ?", s.userID).
		Where("((COALESCE(rrule, '') = '' AND starts_at < ? AND ends_at > ?) OR (COALESCE(rrule, '') <> '' AND starts_at < ?))",
			end.UTC(), start.UTC(), end.UTC()).
		Order("starts_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	return events, nil
}

var (
	// ErrEventNotFound is returned when no event of the user has the id.
	ErrEventNotFound = errors.New("calendar event not found")
	// ErrMeetingLocked is returned when a booked meeting is deleted as busy time.
	ErrMeetingLocked = errors.New("booked meetings cannot be deleted")
)

// DeleteBusy removes a busy block. Booked meetings are not deletable here.
func (s *Service) DeleteBusy(ctx context.Context, id string) error {
	var ev models.CalendarEvent
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, s.userID).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("load calendar event: %w", err)
	}
	if ev.Kind == models.CalendarEventMeeting {
		return ErrMeetingLocked
	}
	if err := s.db.WithContext(ctx).Delete(&ev).Error; err != nil {
		return fmt.Errorf("delete busy block: %w", err)
	}
	return nil
}

// ExportICal renders the events overlapping [start, end) as an RFC 5545
// calendar. Recurring blocks keep their RRULE.
func (s *Service) ExportICal(ctx context.Context, start, end time.Time) ([]byte, error) {
	events, err := s.ListEvents(ctx, start, end)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Cadence//Meetings Export//EN\r\n")
	buf.WriteString("X-WR-CALNAME:Cadence meetings\r\n")
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	now := time.Now()
	for _, ev := range events {
		buf.WriteString("BEGIN:VEVENT\r\n")
		uid := ev.ExternalUID
		if uid == "" {
			uid = ev.ID + "@cadence"
		}
		fmt.Fprintf(&buf, "UID:%s\r\n", uid)
		fmt.Fprintf(&buf, "DTSTAMP:%s\r\n", formatICalTime(now))
		writeICalTimes(&buf, ev)
		fmt.Fprintf(&buf, "SUMMARY:%s\r\n", escapeICalText(ev.Title))
		if ev.Description != "" {
			fmt.Fprintf(&buf, "DESCRIPTION:%s\r\n", escapeICalText(ev.Description))
		}
		if ev.RRule != "" {
			fmt.Fprintf(&buf, "RRULE:%s\r\n", strings.TrimPrefix(ev.RRule, "RRULE:"))
		}
		if ev.Kind == models.CalendarEventMeeting {
			buf.WriteString("CATEGORIES:MEETING\r\n")
			if ev.Attendee != "" {
				fmt.Fprintf(&buf, "ATTENDEE:mailto:%s\r\n", ev.Attendee)
			}
			if ev.MeetLink != "" {
				fmt.Fprintf(&buf, "URL:%s\r\n", ev.MeetLink)
			}
		} else {
			buf.WriteString("CATEGORIES:BUSY\r\n")
		}
		buf.WriteString("TRANSP:OPAQUE\r\n")
		buf.WriteString("END:VEVENT\r\n")
	}

	buf.WriteString("END:VCALENDAR\r\n")
	return buf.Bytes(), nil
}

// Recurring events are written in their own zone so the RRULE expands in
// local time for the reader too.
func writeICalTimes(buf *bytes.Buffer, ev models.CalendarEvent) {
	if ev.RRule != "" && ev.Timezone != "" {
		if loc, err := time.LoadLocation(ev.Timezone); err == nil {
			fmt.Fprintf(buf, "DTSTART;TZID=%s:%s\r\n", ev.Timezone, ev.StartsAt.In(loc).Format(icalLocalLayout))
			fmt.Fprintf(buf, "DTEND;TZID=%s:%s\r\n", ev.Timezone, ev.EndsAt.In(loc).Format(icalLocalLayout))
			return
		}
	}
	fmt.Fprintf(buf, "DTSTART:%s\r\n", formatICalTime(ev.StartsAt))
	fmt.Fprintf(buf, "DTEND:%s\r\n", formatICalTime(ev.EndsAt))
}

// ImportResult reports what ImportICal did.
type ImportResult struct {
	Imported int      `json:"imported"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportICal stores the VEVENTs of an iCalendar feed as busy blocks. Events
// are matched on UID, so importing the same feed again updates in place.
// Free (TRANSPARENT) and cancelled events are skipped. Floating times and
// all-day dates are read in loc.
func (s *Service) ImportICal(ctx context.Context, r io.Reader, loc *time.Location) (*ImportResult, error) {
	if loc == nil {
		loc = time.UTC
	}
	parsed, err := parseICal(r, loc)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for _, ev := range parsed {
		if ev.transparent || ev.cancelled {
			result.Skipped++
			continue
		}
		if ev.Start.IsZero() || !ev.End.After(ev.Start) {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: missing or inverted times", ev.label()))
			continue
		}
		if ev.RRule != "" {
			if _, err := rrule.StrToRRule(ev.RRule); err != nil {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", ev.label(), err))
				continue
			}
		}

		updated, err := s.upsertImported(ctx, ev)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", ev.label(), err))
			continue
		}
		if updated {
			result.Updated++
		} else {
			result.Imported++
		}
	}

	s.logger.Info().
		Int("imported", result.Imported).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Msg("iCal import completed")
	return result, nil
}

func (s *Service) upsertImported(ctx context.Context, ev ICalEvent) (bool, error) {
	row := models.CalendarEvent{
		UserID:      s.userID,
		Kind:        models.CalendarEventBusy,
		Title:       ev.Summary,
		Description: ev.Description,
		StartsAt:    ev.Start.UTC(),
		EndsAt:      ev.End.UTC(),
		Timezone:    ev.Timezone,
		RRule:       ev.RRule,
		ExternalUID: ev.UID,
	}

	if ev.UID != "" {
		var existing models.CalendarEvent
		err := s.db.WithContext(ctx).
			Where("user_id = ? AND external_uid = ?", s.userID, ev.UID).
			First(&existing).Error
		switch {
		case err == nil:
			row.ID = existing.ID
			row.CreatedAt = existing.CreatedAt
			if existing.Kind == models.CalendarEventMeeting {
				return false, errors.New("uid belongs to a booked meeting")
			}
			return true, s.db.WithContext(ctx).Save(&row).Error
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return false, err
		}
	}

	row.ID = uuid.NewString()
	return false, s.db.WithContext(ctx).Create(&row).Error
}

// ICalEvent is a parsed VEVENT.
type ICalEvent struct {
	UID         string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
	RRule       string

	duration    time.Duration
	transparent bool
	cancelled   bool
}

func (e ICalEvent) label() string {
	if e.Summary != "" {
		return e.Summary
	}
	if e.UID != "" {
		return e.UID
	}
	return "event"
}

const (
	icalUTCLayout   = "20060102T150405Z"
	icalLocalLayout = "20060102T150405"
	icalDateLayout  = "20060102"
)

// parseICal reads VEVENTs, unfolding continuation lines first.
func parseICal(r io.Reader, loc *time.Location) ([]ICalEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read iCal data: %w", err)
	}

	var events []ICalEvent
	var cur *ICalEvent
	depth := 0 // nested components such as VALARM
	for _, line := range lines {
		name, params, value := splitICalLine(line)
		switch {
		case name == "BEGIN" && value == "VEVENT":
			cur = &ICalEvent{}
			depth = 0
			continue
		case name == "END" && value == "VEVENT" && cur != nil:
			if cur.End.IsZero() && cur.duration > 0 {
				cur.End = cur.Start.Add(cur.duration)
			}
			events = append(events, *cur)
			cur = nil
			continue
		case cur == nil:
			continue
		case name == "BEGIN":
			depth++
			continue
		case name == "END":
			depth--
			continue
		case depth > 0:
			continue
		}

		switch name {
		case "UID":
			cur.UID = value
		case "SUMMARY":
			cur.Summary = unescapeICalText(value)
		case "DESCRIPTION":
			cur.Description = unescapeICalText(value)
		case "DTSTART":
			cur.Start, cur.Timezone = parseICalTime(value, params, loc)
		case "DTEND":
			cur.End, _ = parseICalTime(value, params, loc)
		case "DURATION":
			cur.duration = parseICalDuration(value)
		case "RRULE":
			cur.RRule = value
		case "TRANSP":
			cur.transparent = strings.EqualFold(value, "TRANSPARENT")
		case "STATUS":
			cur.cancelled = strings.EqualFold(value, "CANCELLED")
		}
	}
	return events, nil
}

// splitICalLine splits "NAME;P1=a;P2=b:value".
func splitICalLine(line string) (string, map[string]string, string) {
	head, value, ok := strings.Cut(line, ":")
	if !ok {
		return strings.ToUpper(line), nil, ""
	}
	parts := strings.Split(head, ";")
	var params map[string]string
	for _, p := range parts[1:] {
		if k, v, ok := strings.Cut(p, "="); ok {
			if params == nil {
				params = make(map[string]string)
			}
			params[strings.ToUpper(k)] = strings.Trim(v, `"`)
		}
	}
	return strings.ToUpper(parts[0]), params, value
}

// parseICalTime returns the instant and, for zoned times, the zone name.
func parseICalTime(value string, params map[string]string, loc *time.Location) (time.Time, string) {
	if t, err := time.Parse(icalUTCLayout, value); err == nil {
		return t, ""
	}
	zone := loc
	zoneName := ""
	if tzid := params["TZID"]; tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			zone, zoneName = l, tzid
		}
	}
	if t, err := time.ParseInLocation(icalLocalLayout, value, zone); err == nil {
		return t, zoneName
	}
	if t, err := time.ParseInLocation(icalDateLayout, value, zone); err == nil {
		return t, zoneName
	}
	return time.Time{}, ""
}

var icalDurationRe = regexp.MustCompile(`^P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// parseICalDuration handles the RFC 5545 dur-value forms, e.g. PT1H30M, P1D.
func parseICalDuration(v string) time.Duration {
	m := icalDurationRe.FindStringSubmatch(strings.TrimPrefix(v, "+"))
	if m == nil {
		return 0
	}
	units := []time.Duration{7 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		d += time.Duration(n) * unit
	}
	return d
}

func formatICalTime(t time.Time) string {
	return t.UTC().Format(icalUTCLayout)
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func unescapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\n", "\n")
	s = strings.ReplaceAll(s, "\\N", "\n")
	s = strings.ReplaceAll(s, "\\,", ",")
	s = strings.ReplaceAll(s, "\\;", ";")
	s = strings.ReplaceAll(s, "\\\\", "\\")
	return s
}
