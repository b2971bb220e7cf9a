/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package mail sends touchpoints over SMTP and reads conversation threads
// back over IMAP.
package mail

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	gomessage "github.com/emersion/go-message/mail"
)

// Message is one message of a conversation thread.
type Message struct {
	ID         string
	From       string // bare lowercase address
	To         []string
	Subject    string
	Date       time.Time
	InReplyTo  string
	References []string
	Text       string
	HTML       string
}

// Outgoing is a touchpoint to deliver. ThreadID, when set, makes the
// message a reply within that thread.
type Outgoing struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
	ThreadID string
}

// Sent identifies a delivered message.
type Sent struct {
	ThreadID  string
	MessageID string
}

// BodyOf returns the readable text of m, preferring the plain-text part.
func BodyOf(m Message) string {
	if strings.TrimSpace(m.Text) != "" {
		return StripQuoted(m.Text)
	}
	return StripQuoted(htmlToText(m.HTML))
}

var (
	tagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
	brPattern     = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>`)
	spacePattern  = regexp.MustCompile(`[ \t]+`)
	onWrotePrefix = regexp.MustCompile(`(?i)^on .+wrote:\s*$`)
)

func htmlToText(h string) string {
	h = brPattern.ReplaceAllString(h, "\n")
	h = tagPattern.ReplaceAllString(h, "")
	replacer := strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&#39;", "'", "&quot;", `"`)
	h = replacer.Replace(h)
	return spacePattern.ReplaceAllString(h, " ")
}

// StripQuoted drops the quoted history a mail client appends to a reply.
func StripQuoted(body string) string {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		if onWrotePrefix.MatchString(trimmed) || trimmed == "-----Original Message-----" {
			break
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// Parse reads an RFC 5322 message into a Message.
func Parse(r io.Reader) (Message, error) {
	mr, err := gomessage.CreateReader(r)
	if err != nil {
		return Message{}, fmt.Errorf("create message reader: %w", err)
	}
	defer mr.Close()

	var msg Message
	h := mr.Header
	if id, err := h.MessageID(); err == nil {
		msg.ID = normalizeID(id)
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = strings.ToLower(from[0].Address)
	}
	if to, err := h.AddressList("To"); err == nil {
		for _, a := range to {
			msg.To = append(msg.To, strings.ToLower(a.Address))
		}
	}
	if subject, err := h.Subject(); err == nil {
		msg.Subject = subject
	}
	if date, err := h.Date(); err == nil {
		msg.Date = date
	}
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		msg.InReplyTo = normalizeID(ids[0])
	}
	if ids, err := h.MsgIDList("References"); err == nil {
		for _, id := range ids {
			msg.References = append(msg.References, normalizeID(id))
		}
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return msg, fmt.Errorf("read next part: %w", err)
		}

		switch ph := p.Header.(type) {
		case *gomessage.InlineHeader:
			contentType, _, _ := ph.ContentType()
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return msg, fmt.Errorf("read body: %w", err)
			}
			switch {
			case strings.Contains(contentType, "text/html") && msg.HTML == "":
				msg.HTML = string(b)
			case strings.Contains(contentType, "text/plain") && msg.Text == "":
				msg.Text = string(b)
			}
		case *gomessage.AttachmentHeader:
			// attachments are irrelevant to classification
		}
	}
	return msg, nil
}

// BelongsTo reports whether m is part of the thread rooted at threadID.
func (m Message) BelongsTo(threadID string) bool {
	threadID = normalizeID(threadID)
	if threadID == "" {
		return false
	}
	if m.ID == threadID || m.InReplyTo == threadID {
		return true
	}
	for _, ref := range m.References {
		if ref == threadID {
			return true
		}
	}
	return false
}

func normalizeID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}
