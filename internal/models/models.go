/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"
)

// User owns sequences, prospects and a mail account.
type User struct {
	ID           string `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName returns the table name for GORM.
func (User) TableName() string {
	return "users"
}

// MailAccount holds the SMTP and IMAP credentials a user connected.
type MailAccount struct {
	ID        string `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	FromName  string `json:"from_name"`
	FromEmail string `gorm:"not null" json:"from_email"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"`

	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"-"`
	IMAPTLS      bool   `json:"imap_tls"`
	Inbox        string `gorm:"default:'INBOX'" json:"inbox"`
	SentMailbox  string `gorm:"default:'Sent'" json:"sent_mailbox"`

	Connected bool `gorm:"not null;default:false" json:"connected"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM.
func (MailAccount) TableName() string {
	return "mail_accounts"
}
