/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProspectState is the lifecycle position of a prospect. It is a closed set;
// logic switches on it and never on DisplayLabel.
type ProspectState string

const (
	ProspectStateNew              ProspectState = "new"
	ProspectStateInSequence       ProspectState = "in_sequence"
	ProspectStateExhausted        ProspectState = "exhausted"
	ProspectStateAwaitingHuman    ProspectState = "awaiting_human"
	ProspectStateSchedulingFailed ProspectState = "scheduling_failed"
	ProspectStateTerminal         ProspectState = "terminal"
)

// Valid reports whether s is a known state.
func (s ProspectState) Valid() bool {
	switch s {
	case ProspectStateNew, ProspectStateInSequence, ProspectStateExhausted,
		ProspectStateAwaitingHuman, ProspectStateSchedulingFailed, ProspectStateTerminal:
		return true
	}
	return false
}

// IsTerminal reports whether no further automated work happens in s.
func (s ProspectState) IsTerminal() bool {
	return s == ProspectStateTerminal
}

// ProspectReason qualifies terminal and semi-terminal states.
type ProspectReason string

const (
	ReasonNone             ProspectReason = ""
	ReasonNotInterested    ProspectReason = "not_interested"
	ReasonBounced          ProspectReason = "bounced"
	ReasonWrongEmail       ProspectReason = "wrong_email"
	ReasonReferral         ProspectReason = "referral"
	ReasonOutOfOffice      ProspectReason = "out_of_office"
	ReasonMeetingScheduled ProspectReason = "meeting_scheduled"
	ReasonManualReply      ProspectReason = "manual_reply"
	ReasonCompanyEngaged   ProspectReason = "company_engaged"
	ReasonPaused           ProspectReason = "paused"
	ReasonGeneralQuestion  ProspectReason = "general_question"
	ReasonReviewAnswer     ProspectReason = "review_answer"
	ReasonNoSlot           ProspectReason = "no_slot"
)

// Prospect is a contact being pursued by a sequence.
type Prospect struct {
	ID         string `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string `gorm:"type:uuid;index:idx_prospects_user;not null" json:"user_id"`
	SequenceID string `gorm:"type:uuid;index" json:"sequence_id"`

	Email   string `gorm:"not null" json:"email"`
	Name    string `json:"name"`
	Company string `gorm:"index" json:"company"`

	TouchpointsSent int        `gorm:"not null;default:0" json:"touchpoints_sent"`
	LastContactDate *time.Time `json:"last_contact_date,omitempty"`
	ThreadID        string     `gorm:"index" json:"thread_id,omitempty"`

	State              ProspectState  `gorm:"type:varchar(32);not null;default:'new';index" json:"state"`
	Reason             ProspectReason `gorm:"type:varchar(32)" json:"reason,omitempty"`
	DisplayLabel       string         `json:"display_label"`
	SendSequenceActive bool           `gorm:"not null" json:"send_sequence_active"`

	RepliedAt   *time.Time `json:"replied_at,omitempty"`
	MeetingTime *time.Time `json:"meeting_time,omitempty"`
	MeetingLink string     `json:"meeting_link,omitempty"`

	PreferredDays     []string `gorm:"type:jsonb;serializer:json" json:"preferred_days,omitempty"`
	PreferredTime     string   `gorm:"type:varchar(5)" json:"preferred_time,omitempty"`
	PreferredTimezone string   `gorm:"type:varchar(64)" json:"preferred_timezone,omitempty"`

	LastProcessedMessageID string   `json:"-"`
	SentMessageIDs         []string `gorm:"type:jsonb;serializer:json" json:"-"`
	ReferredEmail          string   `json:"referred_email,omitempty"`
	LastError              string   `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Prospect) TableName() string {
	return "prospects"
}

// HasThread reports whether a conversation was started.
func (p *Prospect) HasThread() bool {
	return p.ThreadID != ""
}

// CompanyKey normalizes the company name for same-organization matching.
func (p *Prospect) CompanyKey() string {
	return strings.ToLower(strings.TrimSpace(p.Company))
}

// FirstName returns the first word of Name.
func (p *Prospect) FirstName() string {
	name := strings.TrimSpace(p.Name)
	if first, _, ok := strings.Cut(name, " "); ok {
		return first
	}
	return name
}

// NewProspect returns an armed prospect at the start of its sequence.
func NewProspect(userID, sequenceID, email, name, company string) *Prospect {
	return &Prospect{
		ID:                 uuid.NewString(),
		UserID:             userID,
		SequenceID:         sequenceID,
		Email:              strings.ToLower(strings.TrimSpace(email)),
		Name:               strings.TrimSpace(name),
		Company:            strings.TrimSpace(company),
		State:              ProspectStateNew,
		DisplayLabel:       "New",
		SendSequenceActive: true,
	}
}
