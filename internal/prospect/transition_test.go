/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package prospect

import (
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/cadence/internal/classifier"
	"github.com/friendsincode/cadence/internal/mail"
	"github.com/friendsincode/cadence/internal/models"
)

func TestApplySend(t *testing.T) {
	p := models.Prospect{ID: "p1", State: models.ProspectStateNew, SendSequenceActive: true, LastError: "old"}

	c := ApplySend(&p, "thread-1", "m1", now)
	if p.TouchpointsSent != 1 || p.ThreadID != "thread-1" || p.LastContactDate == nil {
		t.Fatalf("unexpected prospect after first send: %+v", p)
	}
	if c.From != models.ProspectStateNew || c.To != models.ProspectStateInSequence {
		t.Fatalf("unexpected change: %+v", c)
	}
	if p.LastError != "" || p.DisplayLabel != "In sequence" {
		t.Fatalf("expected cleared error and label, got %q / %q", p.LastError, p.DisplayLabel)
	}

	ApplySend(&p, "thread-2", "m2", now.Add(time.Hour))
	if p.ThreadID != "thread-1" {
		t.Errorf("thread must not change on follow-up, got %s", p.ThreadID)
	}
	if len(p.SentMessageIDs) != 2 {
		t.Errorf("expected both message ids recorded, got %v", p.SentMessageIDs)
	}
}

func TestApplyClassification(t *testing.T) {
	tests := []struct {
		category   classifier.Category
		wantState  models.ProspectState
		wantReason models.ProspectReason
		wantArmed  bool
		wantMeet   bool
	}{
		{classifier.NotInterested, models.ProspectStateTerminal, models.ReasonNotInterested, false, false},
		{classifier.Referral, models.ProspectStateTerminal, models.ReasonReferral, false, false},
		{classifier.WrongEmail, models.ProspectStateTerminal, models.ReasonWrongEmail, false, false},
		{classifier.OutOfOffice, models.ProspectStateTerminal, models.ReasonOutOfOffice, false, false},
		{classifier.Bounce, models.ProspectStateTerminal, models.ReasonBounced, false, false},
		{classifier.GeneralQuestion, models.ProspectStateAwaitingHuman, models.ReasonGeneralQuestion, false, false},
		{classifier.ReviewAnswer, models.ProspectStateAwaitingHuman, models.ReasonReviewAnswer, false, false},
		{classifier.Interested, models.ProspectStateInSequence, models.ReasonNone, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			p := models.Prospect{ID: "p1", State: models.ProspectStateInSequence, SendSequenceActive: true, ThreadID: "t"}
			_, meet, err := ApplyClassification(&p, classifier.Result{Category: tt.category}, "m9", now)
			if err != nil {
				t.Fatalf("ApplyClassification: %v", err)
			}
			if meet != tt.wantMeet {
				t.Errorf("meeting = %v, want %v", meet, tt.wantMeet)
			}
			if p.State != tt.wantState || p.Reason != tt.wantReason {
				t.Errorf("state = %s/%s, want %s/%s", p.State, p.Reason, tt.wantState, tt.wantReason)
			}
			if p.SendSequenceActive != tt.wantArmed {
				t.Errorf("armed = %v, want %v", p.SendSequenceActive, tt.wantArmed)
			}
			if p.LastProcessedMessageID != "m9" || p.RepliedAt == nil {
				t.Errorf("reply bookkeeping missing: %+v", p)
			}
		})
	}
}

func TestApplyClassification_MergesSuggestions(t *testing.T) {
	p := models.Prospect{ID: "p1", State: models.ProspectStateInSequence, PreferredTime: "09:00"}
	_, meet, err := ApplyClassification(&p, classifier.Result{
		Category:          classifier.Interested,
		SuggestedDays:     []string{"friday"},
		SuggestedTimezone: "Europe/London",
	}, "m1", now)
	if err != nil || !meet {
		t.Fatalf("expected meeting request, got meet=%v err=%v", meet, err)
	}
	if len(p.PreferredDays) != 1 || p.PreferredDays[0] != "friday" {
		t.Errorf("days not merged: %v", p.PreferredDays)
	}
	if p.PreferredTime != "09:00" {
		t.Errorf("existing time should survive, got %q", p.PreferredTime)
	}
	if p.PreferredTimezone != "Europe/London" {
		t.Errorf("timezone not merged: %q", p.PreferredTimezone)
	}
}

func TestApplyClassification_UnknownCategory(t *testing.T) {
	p := models.Prospect{ID: "p1", State: models.ProspectStateInSequence}
	_, _, err := ApplyClassification(&p, classifier.Result{Category: "MAYBE"}, "m1", now)
	if !errors.Is(err, classifier.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if p.LastProcessedMessageID != "" {
		t.Errorf("failed classification must not mark the message processed")
	}
}

func TestApplyMeetingAndFailure(t *testing.T) {
	p := models.Prospect{ID: "p1", State: models.ProspectStateInSequence, SendSequenceActive: true}

	ApplyScheduleFailure(&p, errors.New("no available meeting slot"))
	if p.State != models.ProspectStateSchedulingFailed || !p.SendSequenceActive {
		t.Fatalf("failure should keep prospect armed, got %+v", p)
	}
	if p.LastError == "" {
		t.Fatalf("expected error recorded")
	}

	start := now.Add(48 * time.Hour)
	ApplyMeeting(&p, start, "https://meet.example/abc")
	if p.State != models.ProspectStateTerminal || p.Reason != models.ReasonMeetingScheduled {
		t.Fatalf("unexpected state %s/%s", p.State, p.Reason)
	}
	if p.SendSequenceActive || p.LastError != "" || !p.MeetingTime.Equal(start) {
		t.Fatalf("unexpected booked prospect: %+v", p)
	}
}

func TestApplyManual(t *testing.T) {
	p := models.Prospect{ID: "p1", State: models.ProspectStateInSequence, SendSequenceActive: true, TouchpointsSent: 2}

	if _, err := ApplyManual(&p, ManualPause, nil); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if p.State != models.ProspectStateTerminal || p.Reason != models.ReasonPaused || p.SendSequenceActive {
		t.Fatalf("pause did not disarm: %+v", p)
	}
	if _, err := ApplyManual(&p, ManualPause, nil); !errors.Is(err, ErrInvalidManualAction) {
		t.Fatalf("second pause should fail, got %v", err)
	}

	if _, err := ApplyManual(&p, ManualResume, nil); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if p.State != models.ProspectStateInSequence || !p.SendSequenceActive || p.Reason != models.ReasonNone {
		t.Fatalf("resume did not re-arm: %+v", p)
	}

	if _, err := ApplyManual(&p, ManualMarkMeeting, nil); !errors.Is(err, ErrInvalidManualAction) {
		t.Fatalf("mark_meeting without time should fail, got %v", err)
	}
	at := now.Add(72 * time.Hour)
	if _, err := ApplyManual(&p, ManualMarkMeeting, &at); err != nil {
		t.Fatalf("mark_meeting: %v", err)
	}
	if _, err := ApplyManual(&p, ManualResume, nil); !errors.Is(err, ErrInvalidManualAction) {
		t.Fatalf("resume after booking should fail, got %v", err)
	}
	if _, err := ApplyManual(&p, ManualReset, nil); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if p.State != models.ProspectStateNew || p.TouchpointsSent != 0 || p.ThreadID != "" || !p.SendSequenceActive || p.MeetingTime != nil {
		t.Fatalf("reset did not restart the sequence: %+v", p)
	}
	if _, err := ApplyManual(&p, "archive", nil); !errors.Is(err, ErrInvalidManualAction) {
		t.Fatalf("unknown action should fail, got %v", err)
	}
}

func TestEvaluateThread(t *testing.T) {
	owner := "Rep@Example.com"
	base := models.Prospect{SentMessageIDs: []string{"out-1", "out-2"}}

	tests := []struct {
		name          string
		lastProcessed string
		msgs          []mail.Message
		want          ThreadOutcomeKind
		wantID        string
	}{
		{
			name: "only our own sends",
			msgs: []mail.Message{{ID: "out-1", From: "rep@example.com"}, {ID: "out-2", From: "rep@example.com"}},
			want: ThreadQuiet,
		},
		{
			name:   "prospect replied",
			msgs:   []mail.Message{{ID: "out-1", From: "rep@example.com"}, {ID: "in-1", From: "lead@acme.com"}},
			want:   ThreadInbound,
			wantID: "in-1",
		},
		{
			name:   "reply hidden behind a later automated follow-up",
			msgs:   []mail.Message{{ID: "out-1", From: "rep@example.com"}, {ID: "in-1", From: "lead@acme.com"}, {ID: "out-2", From: "rep@example.com"}},
			want:   ThreadInbound,
			wantID: "in-1",
		},
		{
			name:          "reply already processed",
			lastProcessed: "in-1",
			msgs:          []mail.Message{{ID: "out-1", From: "rep@example.com"}, {ID: "in-1", From: "lead@acme.com"}},
			want:          ThreadQuiet,
		},
		{
			name:   "owner answered by hand",
			msgs:   []mail.Message{{ID: "out-1", From: "rep@example.com"}, {ID: "in-1", From: "lead@acme.com"}, {ID: "hand-1", From: "rep@example.com"}},
			want:   ThreadManual,
			wantID: "hand-1",
		},
		{
			name:          "new reply after processed one",
			lastProcessed: "in-1",
			msgs:          []mail.Message{{ID: "in-1", From: "lead@acme.com"}, {ID: "in-2", From: "lead@acme.com"}},
			want:          ThreadInbound,
			wantID:        "in-2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			p.LastProcessedMessageID = tt.lastProcessed
			got := EvaluateThread(&p, tt.msgs, owner)
			if got.Kind != tt.want {
				t.Fatalf("kind = %s, want %s", got.Kind, tt.want)
			}
			if got.Message.ID != tt.wantID {
				t.Fatalf("message = %q, want %q", got.Message.ID, tt.wantID)
			}
		})
	}
}

func TestLabel(t *testing.T) {
	if got := Label(models.ProspectStateTerminal, models.ReasonCompanyEngaged); got != "Company already engaged" {
		t.Errorf("Label = %q", got)
	}
	if got := Label(models.ProspectStateExhausted, models.ReasonNone); got != "Sequence complete" {
		t.Errorf("Label = %q", got)
	}
}
