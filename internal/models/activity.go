/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// ActivityKind categorizes activity log entries.
type ActivityKind string

const (
	ActivityRun              ActivityKind = "run"
	ActivityEmailSent        ActivityKind = "email_sent"
	ActivityReplyAnalyzed    ActivityKind = "reply_analyzed"
	ActivityMeetingScheduled ActivityKind = "meeting_scheduled"
	ActivityStateChanged     ActivityKind = "state_changed"
	ActivityError            ActivityKind = "error"
	ActivityManualAction     ActivityKind = "manual_action"
)

// ActivityLog is an append-only record of what automation did for a user.
type ActivityLog struct {
	ID         string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string         `gorm:"type:uuid;index:idx_activity_user_time;not null" json:"user_id"`
	ProspectID *string        `gorm:"type:uuid;index" json:"prospect_id,omitempty"`
	Kind       ActivityKind   `gorm:"type:varchar(32);not null;index" json:"kind"`
	Message    string         `gorm:"type:text" json:"message"`
	Details    map[string]any `gorm:"type:jsonb;serializer:json" json:"details,omitempty"`
	CreatedAt  time.Time      `gorm:"index:idx_activity_user_time" json:"created_at"`
}

// TableName returns the table name for GORM.
func (ActivityLog) TableName() string {
	return "activity_logs"
}

// CalendarEventKind distinguishes user-blocked time from booked meetings.
type CalendarEventKind string

const (
	CalendarEventBusy    CalendarEventKind = "busy"
	CalendarEventMeeting CalendarEventKind = "meeting"
)

// CalendarEvent is a span of busy time owned by a user. RRule, when set, is
// an RFC 5545 recurrence applied to StartsAt with the event's duration.
type CalendarEvent struct {
	ID          string            `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string            `gorm:"type:uuid;index:idx_calendar_user_start;not null" json:"user_id"`
	Kind        CalendarEventKind `gorm:"type:varchar(16);not null;default:'busy'" json:"kind"`
	Title       string            `json:"title"`
	Description string            `gorm:"type:text" json:"description,omitempty"`
	Attendee    string            `json:"attendee,omitempty"`
	StartsAt    time.Time         `gorm:"index:idx_calendar_user_start;not null" json:"starts_at"`
	EndsAt      time.Time         `gorm:"not null" json:"ends_at"`
	Timezone    string            `gorm:"type:varchar(64)" json:"timezone"`
	RRule       string            `gorm:"column:rrule;type:text" json:"rrule,omitempty"`
	MeetLink    string            `json:"meet_link,omitempty"`
	// ExternalUID is the iCalendar UID of an imported block.
	ExternalUID string            `gorm:"type:varchar(255);index" json:"external_uid,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (CalendarEvent) TableName() string {
	return "calendar_events"
}
