/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// NotificationType defines the type of notification.
type NotificationType string

const (
	NotificationTypeMeetingScheduled NotificationType = "meeting_scheduled"
	NotificationTypeReplyReceived    NotificationType = "reply_received"
	NotificationTypeNeedsAttention   NotificationType = "needs_attention"
	NotificationTypeRunFailed        NotificationType = "run_failed"
)

// Notification is an in-app message for a user.
type Notification struct {
	ID               string           `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           string           `gorm:"type:uuid;index:idx_notifications_user;not null" json:"user_id"`
	NotificationType NotificationType `gorm:"type:varchar(64);index:idx_notifications_type;not null" json:"notification_type"`
	Subject          string           `gorm:"type:varchar(255)" json:"subject,omitempty"`
	Body             string           `gorm:"type:text;not null" json:"body"`
	ReadAt           *time.Time       `json:"read_at,omitempty"`

	// Reference to the related prospect, if any
	ProspectID string `gorm:"type:uuid;index" json:"prospect_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (Notification) TableName() string {
	return "notifications"
}
