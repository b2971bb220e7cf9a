/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

func newTestSender(fn gomail.SendFunc) *SMTPSender {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, FromName: "Rep", FromEmail: "rep@example.com"}, zerolog.Nop())
	s.send = func(m ...*gomail.Message) error { return gomail.Send(fn, m...) }
	s.backoff = func(int) time.Duration { return 0 }
	return s
}

func TestSMTPSender_NewThread(t *testing.T) {
	var raw bytes.Buffer
	s := newTestSender(func(from string, to []string, msg io.WriterTo) error {
		if from != "rep@example.com" || len(to) != 1 || to[0] != "lead@acme.com" {
			t.Errorf("envelope from=%s to=%v", from, to)
		}
		_, err := msg.WriteTo(&raw)
		return err
	})

	sent, err := s.Send(context.Background(), Outgoing{To: "lead@acme.com", ToName: "Dana", Subject: "Hello", HTMLBody: "<p>Hi Dana</p>"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent.ThreadID == "" || sent.ThreadID != sent.MessageID {
		t.Fatalf("new thread should be rooted at its own message: %+v", sent)
	}
	if !strings.HasSuffix(sent.MessageID, "@example.com") {
		t.Errorf("MessageID = %s", sent.MessageID)
	}

	m, err := Parse(&raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.ID != sent.MessageID || m.InReplyTo != "" {
		t.Errorf("unexpected headers: id=%s in-reply-to=%s", m.ID, m.InReplyTo)
	}
	if !strings.Contains(m.HTML, "Hi Dana") {
		t.Errorf("HTML = %q", m.HTML)
	}
}

func TestSMTPSender_Reply(t *testing.T) {
	var raw bytes.Buffer
	s := newTestSender(func(_ string, _ []string, msg io.WriterTo) error {
		_, err := msg.WriteTo(&raw)
		return err
	})

	sent, err := s.Send(context.Background(), Outgoing{To: "lead@acme.com", Subject: "Re: Hello", HTMLBody: "<p>Following up</p>", ThreadID: "<root-1@example.com>"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent.ThreadID != "root-1@example.com" || sent.MessageID == sent.ThreadID {
		t.Fatalf("unexpected result %+v", sent)
	}

	m, err := Parse(&raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !m.BelongsTo("root-1@example.com") {
		t.Fatalf("reply not threaded: %+v", m)
	}
}

func TestSMTPSender_Retry(t *testing.T) {
	tests := []struct {
		name      string
		failures  []error
		wantCalls int
		wantErr   bool
	}{
		{"temporary then success", []error{&textproto.Error{Code: 451, Msg: "try later"}}, 2, false},
		{"permanent failure", []error{&textproto.Error{Code: 550, Msg: "no such user"}}, 1, true},
		{"gives up", []error{errors.New("421 busy"), errors.New("421 busy"), errors.New("421 busy")}, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			s := newTestSender(func(string, []string, io.WriterTo) error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})
			_, err := s.Send(context.Background(), Outgoing{To: "lead@acme.com", Subject: "x", HTMLBody: "y"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestSMTPSender_RequiresRecipient(t *testing.T) {
	s := newTestSender(func(string, []string, io.WriterTo) error { return nil })
	if _, err := s.Send(context.Background(), Outgoing{Subject: "x"}); err == nil {
		t.Fatal("expected error without recipient")
	}
}

func TestNewMessageID(t *testing.T) {
	if id := NewMessageID("Rep@Example.COM"); !strings.HasSuffix(id, "@example.com") {
		t.Errorf("id = %s", id)
	}
	if id := NewMessageID("broken"); !strings.HasSuffix(id, "@localhost") {
		t.Errorf("id = %s", id)
	}
}
