/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mail

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/models"
)

// Account sends over SMTP and reads threads over IMAP for one connected
// mail account.
type Account struct {
	Owner  string
	sender *SMTPSender
	reader *IMAPReader
}

// NewAccount wires a sender and reader from stored credentials.
func NewAccount(acc *models.MailAccount, logger zerolog.Logger) *Account {
	logger = logger.With().Str("mail_account", acc.ID).Logger()

	username := acc.IMAPUsername
	if username == "" {
		username = acc.SMTPUsername
	}
	password := acc.IMAPPassword
	if password == "" {
		password = acc.SMTPPassword
	}

	mailboxes := []string{acc.Inbox}
	if mailboxes[0] == "" {
		mailboxes[0] = "INBOX"
	}
	if acc.SentMailbox != "" {
		mailboxes = append(mailboxes, acc.SentMailbox)
	}

	return &Account{
		Owner: acc.FromEmail,
		sender: NewSMTPSender(SMTPConfig{
			Host:      acc.SMTPHost,
			Port:      acc.SMTPPort,
			Username:  acc.SMTPUsername,
			Password:  acc.SMTPPassword,
			FromName:  acc.FromName,
			FromEmail: acc.FromEmail,
		}, logger),
		reader: NewIMAPReader(IMAPConfig{
			Host:      acc.IMAPHost,
			Port:      acc.IMAPPort,
			Username:  username,
			Password:  password,
			TLS:       acc.IMAPTLS,
			Mailboxes: mailboxes,
		}, logger),
	}
}

// Send delivers out.
func (a *Account) Send(ctx context.Context, out Outgoing) (Sent, error) {
	return a.sender.Send(ctx, out)
}

// ThreadMessages lists the thread oldest first.
func (a *Account) ThreadMessages(ctx context.Context, threadID string) ([]Message, error) {
	return a.reader.ThreadMessages(ctx, threadID)
}

// BodyOf returns the reply text of m without quoted history.
func (a *Account) BodyOf(m Message) string {
	return BodyOf(m)
}
