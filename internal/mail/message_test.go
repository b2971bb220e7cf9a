/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mail

import (
	"strings"
	"testing"
)

const plainReply = "From: Dana Lead <Dana@Acme.com>\r\n" +
	"To: rep@example.com\r\n" +
	"Subject: Re: Quick question\r\n" +
	"Date: Tue, 13 Oct 2026 09:12:00 +0000\r\n" +
	"Message-ID: <reply-1@acme.com>\r\n" +
	"In-Reply-To: <root-1@example.com>\r\n" +
	"References: <root-1@example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Sounds good, Friday afternoon works.\r\n" +
	"\r\n" +
	"On Mon, Oct 12, 2026 at 9:00 AM Rep <rep@example.com> wrote:\r\n" +
	"> Would you be open to a quick call?\r\n"

func TestParse(t *testing.T) {
	m, err := Parse(strings.NewReader(plainReply))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.ID != "reply-1@acme.com" {
		t.Errorf("ID = %q", m.ID)
	}
	if m.From != "dana@acme.com" {
		t.Errorf("From = %q", m.From)
	}
	if m.InReplyTo != "root-1@example.com" {
		t.Errorf("InReplyTo = %q", m.InReplyTo)
	}
	if len(m.References) != 1 || m.References[0] != "root-1@example.com" {
		t.Errorf("References = %v", m.References)
	}
	if m.Subject != "Re: Quick question" {
		t.Errorf("Subject = %q", m.Subject)
	}
	if m.Date.IsZero() {
		t.Errorf("Date not parsed")
	}
	if got := BodyOf(m); got != "Sounds good, Friday afternoon works." {
		t.Errorf("BodyOf = %q", got)
	}
}

func TestParse_Multipart(t *testing.T) {
	raw := "From: lead@acme.com\r\n" +
		"Message-ID: <mp-1@acme.com>\r\n" +
		"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
		"\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>Not right now&nbsp;thanks</p>\r\n" +
		"--XYZ--\r\n"

	m, err := Parse(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Text != "" {
		t.Errorf("unexpected text part %q", m.Text)
	}
	if got := BodyOf(m); got != "Not right now thanks" {
		t.Errorf("BodyOf = %q", got)
	}
}

func TestStripQuoted(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no quote", "Yes please.", "Yes please."},
		{"quoted lines", "Yes.\n> earlier\n> more", "Yes."},
		{"outlook marker", "Call me.\n-----Original Message-----\nFrom: rep", "Call me."},
		{"on wrote", "Thanks\r\nOn Tue, Rep wrote:\r\nold text", "Thanks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripQuoted(tt.in); got != tt.want {
				t.Fatalf("StripQuoted = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBelongsTo(t *testing.T) {
	m := Message{ID: "b", InReplyTo: "x", References: []string{"root", "x"}}
	for _, id := range []string{"<root>", "root", "b", "x"} {
		if !m.BelongsTo(id) {
			t.Errorf("expected membership for %q", id)
		}
	}
	if m.BelongsTo("other") || m.BelongsTo("") {
		t.Errorf("unexpected membership")
	}
}
