/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// SequenceConfig holds a user's sequencing and scheduling settings.
type SequenceConfig struct {
	ID     string `gorm:"type:uuid;primaryKey" json:"id"`
	UserID string `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`

	DaysBetweenFollowups int        `gorm:"not null;default:3" json:"days_between_followups" validate:"min=1"`
	NumberOfTouchpoints  int        `gorm:"not null;default:3" json:"number_of_touchpoints" validate:"min=1,max=20"`
	SearchStartTime      string     `gorm:"type:varchar(5);not null;default:'09:00'" json:"search_start_time" validate:"required,clock"`
	SearchEndTime        string     `gorm:"type:varchar(5);not null;default:'17:00'" json:"search_end_time" validate:"required,clock"`
	WorkingDays          []string   `gorm:"type:jsonb;serializer:json" json:"working_days" validate:"required,min=1,dive,weekday"`
	Timezone             string     `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone" validate:"required,timezone"`
	AgentFrequencyHours  float64    `gorm:"not null;default:1" json:"agent_frequency_hours" validate:"gt=0"`
	LastAgentRun         *time.Time `json:"last_agent_run,omitempty"`

	MeetingDurationMinutes int    `gorm:"not null;default:30" json:"meeting_duration_minutes" validate:"min=15,max=240"`
	MeetingTitle           string `json:"meeting_title"`
	SearchDays             int    `gorm:"not null;default:14" json:"search_days" validate:"min=1,max=60"`
	Paused                 bool   `gorm:"not null;default:false" json:"paused"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (SequenceConfig) TableName() string {
	return "sequence_configs"
}

// Template is the subject and body of one touchpoint. TouchpointIndex is
// 1-based; index 1 is the initial message.
type Template struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id" yaml:"-"`
	SequenceID      string    `gorm:"type:uuid;uniqueIndex:idx_template_touch;not null" json:"sequence_id" yaml:"-"`
	TouchpointIndex int       `gorm:"uniqueIndex:idx_template_touch;not null" json:"touchpoint_index" yaml:"touchpoint" validate:"min=1"`
	Subject         string    `gorm:"not null" json:"subject" yaml:"subject" validate:"required"`
	Body            string    `gorm:"type:text;not null" json:"body" yaml:"body" validate:"required"`
	CreatedAt       time.Time `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"-"`
}

// TableName returns the table name for GORM.
func (Template) TableName() string {
	return "sequence_templates"
}
