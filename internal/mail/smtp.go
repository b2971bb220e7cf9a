/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// SMTPConfig describes an outbound relay and the sending identity.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string

	// MaxAttempts bounds delivery retries on temporary failures.
	MaxAttempts int
}

// SMTPSender delivers touchpoints through gomail.
type SMTPSender struct {
	cfg     SMTPConfig
	send    func(m ...*gomail.Message) error
	backoff func(attempt int) time.Duration
	logger  zerolog.Logger
}

// NewSMTPSender builds a sender for cfg.
func NewSMTPSender(cfg SMTPConfig, logger zerolog.Logger) *SMTPSender {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}

	return &SMTPSender{
		cfg:  cfg,
		send: d.DialAndSend,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
		logger: logger.With().Str("component", "smtp").Logger(),
	}
}

// Send delivers out. A message without a ThreadID starts a new thread whose
// id is the generated Message-ID; otherwise it replies within ThreadID.
func (s *SMTPSender) Send(ctx context.Context, out Outgoing) (Sent, error) {
	if out.To == "" {
		return Sent{}, errors.New("recipient required")
	}

	messageID := NewMessageID(s.cfg.FromEmail)
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.FromEmail, s.cfg.FromName)
	if out.ToName != "" {
		m.SetAddressHeader("To", out.To, out.ToName)
	} else {
		m.SetHeader("To", out.To)
	}
	m.SetHeader("Subject", out.Subject)
	m.SetHeader("Message-ID", "<"+messageID+">")
	m.SetDateHeader("Date", time.Now())

	threadID := messageID
	if out.ThreadID != "" {
		threadID = normalizeID(out.ThreadID)
		m.SetHeader("In-Reply-To", "<"+threadID+">")
		m.SetHeader("References", "<"+threadID+">")
	}
	m.SetBody("text/html", out.HTMLBody)

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return Sent{}, ctx.Err()
			case <-time.After(s.backoff(attempt)):
			}
		}

		lastErr = s.send(m)
		if lastErr == nil {
			return Sent{ThreadID: threadID, MessageID: messageID}, nil
		}
		if !IsTemporary(lastErr) {
			break
		}
		s.logger.Debug().Err(lastErr).Int("attempt", attempt).Str("to", out.To).Msg("temporary smtp failure")
	}
	return Sent{}, fmt.Errorf("smtp send to %s: %w", out.To, lastErr)
}

// NewMessageID returns a bare RFC 5322 message id in the sender's domain.
func NewMessageID(fromEmail string) string {
	domain := "localhost"
	if at := strings.LastIndex(fromEmail, "@"); at >= 0 && at < len(fromEmail)-1 {
		domain = strings.ToLower(fromEmail[at+1:])
	}
	return uuid.NewString() + "@" + domain
}

// IsTemporary reports whether an SMTP or network error is worth retrying.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code >= 400 && protoErr.Code < 500
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"try again", "temporar", "421", "450", "451", "452"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
