/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/textproto"
	"sort"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/rs/zerolog"
)

// IMAPConfig describes the mailbox threads are read back from.
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool

	// Mailboxes searched for thread members, typically the inbox and the
	// sent folder so the owner's manual replies are visible.
	Mailboxes []string
}

// session is the subset of *client.Client the reader uses.
type session interface {
	Login(username, password string) error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Logout() error
}

// IMAPReader reconstructs threads from one or more mailboxes.
type IMAPReader struct {
	cfg    IMAPConfig
	dial   func() (session, error)
	logger zerolog.Logger
}

// NewIMAPReader builds a reader for cfg.
func NewIMAPReader(cfg IMAPConfig, logger zerolog.Logger) *IMAPReader {
	if len(cfg.Mailboxes) == 0 {
		cfg.Mailboxes = []string{"INBOX"}
	}
	r := &IMAPReader{
		cfg:    cfg,
		logger: logger.With().Str("component", "imap").Logger(),
	}
	r.dial = r.connect
	return r
}

func (r *IMAPReader) connect() (session, error) {
	addr := fmt.Sprintf("%s:%d", r.cfg.Host, r.cfg.Port)
	var (
		c   *client.Client
		err error
	)
	if r.cfg.TLS {
		c, err = client.DialTLS(addr, &tls.Config{ServerName: r.cfg.Host})
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to imap server: %w", err)
	}
	return c, nil
}

// ThreadMessages returns every message of the thread rooted at threadID,
// oldest first, deduplicated by Message-ID across mailboxes.
func (r *IMAPReader) ThreadMessages(ctx context.Context, threadID string) ([]Message, error) {
	threadID = normalizeID(threadID)
	if threadID == "" {
		return nil, nil
	}

	c, err := r.dial()
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Logout() }()

	if err := c.Login(r.cfg.Username, r.cfg.Password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}

	seen := make(map[string]struct{})
	var out []Message
	for _, mailbox := range r.cfg.Mailboxes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgs, err := r.fetchMailbox(c, mailbox, threadID)
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			if !m.BelongsTo(threadID) {
				continue
			}
			if m.ID != "" {
				if _, dup := seen[m.ID]; dup {
					continue
				}
				seen[m.ID] = struct{}{}
			}
			out = append(out, m)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *IMAPReader) fetchMailbox(c session, mailbox, threadID string) ([]Message, error) {
	if _, err := c.Select(mailbox, true); err != nil {
		return nil, fmt.Errorf("select mailbox %s: %w", mailbox, err)
	}

	uids := make(map[uint32]struct{})
	for _, field := range []string{"Message-ID", "In-Reply-To", "References"} {
		criteria := imap.NewSearchCriteria()
		criteria.Header = textproto.MIMEHeader{}
		criteria.Header.Add(field, threadID)
		found, err := c.UidSearch(criteria)
		if err != nil {
			return nil, fmt.Errorf("search %s in %s: %w", field, mailbox, err)
		}
		for _, uid := range found {
			uids[uid] = struct{}{}
		}
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	for uid := range uids {
		seqset.AddNum(uid)
	}

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}, messages)
	}()

	var out []Message
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		m, err := Parse(body)
		if err != nil {
			r.logger.Warn().Err(err).Str("mailbox", mailbox).Uint32("uid", msg.Uid).Msg("skipping unparsable message")
			continue
		}
		if m.Date.IsZero() && msg.Envelope != nil {
			m.Date = msg.Envelope.Date
		}
		out = append(out, m)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", mailbox, err)
	}
	return out, nil
}
