/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package prospect

import (
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/cadence/internal/classifier"
	"github.com/friendsincode/cadence/internal/models"
)

// Change records one state transition for logging and notification.
type Change struct {
	ProspectID string
	From       models.ProspectState
	To         models.ProspectState
	Reason     models.ProspectReason
}

// Changed reports whether the transition moved the prospect.
func (c Change) Changed() bool {
	return c.From != c.To
}

var labels = map[models.ProspectReason]string{
	models.ReasonNotInterested:    "Not interested",
	models.ReasonBounced:          "Bounced",
	models.ReasonWrongEmail:       "Wrong contact",
	models.ReasonReferral:         "Referred elsewhere",
	models.ReasonOutOfOffice:      "Out of office",
	models.ReasonMeetingScheduled: "Meeting scheduled",
	models.ReasonManualReply:      "Replied manually",
	models.ReasonCompanyEngaged:   "Company already engaged",
	models.ReasonPaused:           "Paused",
	models.ReasonGeneralQuestion:  "Question asked",
	models.ReasonReviewAnswer:     "Awaiting review",
	models.ReasonNoSlot:           "Interested, no slot found",
}

// Label returns the default display label for a state and reason.
func Label(state models.ProspectState, reason models.ProspectReason) string {
	if l, ok := labels[reason]; ok {
		return l
	}
	switch state {
	case models.ProspectStateNew:
		return "New"
	case models.ProspectStateInSequence:
		return "In sequence"
	case models.ProspectStateExhausted:
		return "Sequence complete"
	}
	return string(state)
}

func transition(p *models.Prospect, to models.ProspectState, reason models.ProspectReason) Change {
	c := Change{ProspectID: p.ID, From: p.State, To: to, Reason: reason}
	p.State = to
	p.Reason = reason
	p.DisplayLabel = Label(to, reason)
	if to == models.ProspectStateTerminal || to == models.ProspectStateExhausted || to == models.ProspectStateAwaitingHuman {
		p.SendSequenceActive = false
	}
	return c
}

// ApplySend records a delivered touchpoint.
func ApplySend(p *models.Prospect, threadID, messageID string, now time.Time) Change {
	p.TouchpointsSent++
	t := now
	p.LastContactDate = &t
	if p.ThreadID == "" {
		p.ThreadID = threadID
	}
	if messageID != "" {
		p.SentMessageIDs = append(p.SentMessageIDs, messageID)
	}
	p.LastError = ""
	return transition(p, models.ProspectStateInSequence, models.ReasonNone)
}

// ApplyManualReply records that the owner answered the thread by hand.
func ApplyManualReply(p *models.Prospect, messageID string, now time.Time) Change {
	t := now
	p.RepliedAt = &t
	p.LastProcessedMessageID = messageID
	return transition(p, models.ProspectStateTerminal, models.ReasonManualReply)
}

// ApplyExhausted ends a sequence whose touchpoints are spent.
func ApplyExhausted(p *models.Prospect) Change {
	return transition(p, models.ProspectStateExhausted, models.ReasonNone)
}

var categoryOutcomes = map[classifier.Category]struct {
	state  models.ProspectState
	reason models.ProspectReason
}{
	classifier.NotInterested:   {models.ProspectStateTerminal, models.ReasonNotInterested},
	classifier.Referral:        {models.ProspectStateTerminal, models.ReasonReferral},
	classifier.WrongEmail:      {models.ProspectStateTerminal, models.ReasonWrongEmail},
	classifier.OutOfOffice:     {models.ProspectStateTerminal, models.ReasonOutOfOffice},
	classifier.Bounce:          {models.ProspectStateTerminal, models.ReasonBounced},
	classifier.GeneralQuestion: {models.ProspectStateAwaitingHuman, models.ReasonGeneralQuestion},
	classifier.ReviewAnswer:    {models.ProspectStateAwaitingHuman, models.ReasonReviewAnswer},
}

// ApplyClassification consumes a classified inbound reply. It reports whether
// the prospect is interested and a meeting should be scheduled; in that case
// the state is left for ApplyMeeting or ApplyScheduleFailure.
func ApplyClassification(p *models.Prospect, res classifier.Result, messageID string, now time.Time) (Change, bool, error) {
	if !res.Category.Valid() {
		return Change{}, false, fmt.Errorf("%w: %q", classifier.ErrUnknownCategory, res.Category)
	}

	t := now
	p.RepliedAt = &t
	p.LastProcessedMessageID = messageID

	if res.Category == classifier.Interested {
		mergeSuggestions(p, res)
		return Change{ProspectID: p.ID, From: p.State, To: p.State}, true, nil
	}

	if res.Category == classifier.Referral && res.ReferredEmail != "" {
		p.ReferredEmail = res.ReferredEmail
	}
	out := categoryOutcomes[res.Category]
	return transition(p, out.state, out.reason), false, nil
}

// mergeSuggestions overlays scheduling hints from the reply onto the
// prospect's stored preferences.
func mergeSuggestions(p *models.Prospect, res classifier.Result) {
	if len(res.SuggestedDays) > 0 {
		p.PreferredDays = append([]string(nil), res.SuggestedDays...)
	}
	if res.SuggestedTime != "" {
		p.PreferredTime = res.SuggestedTime
	}
	if res.SuggestedTimezone != "" {
		p.PreferredTimezone = res.SuggestedTimezone
	}
}

// ApplyMeeting books the prospect.
func ApplyMeeting(p *models.Prospect, start time.Time, link string) Change {
	t := start
	p.MeetingTime = &t
	p.MeetingLink = link
	p.LastError = ""
	return transition(p, models.ProspectStateTerminal, models.ReasonMeetingScheduled)
}

// ApplyScheduleFailure leaves an interested prospect armed with the error
// recorded so a human can step in.
func ApplyScheduleFailure(p *models.Prospect, cause error) Change {
	if cause != nil {
		p.LastError = cause.Error()
	}
	return transition(p, models.ProspectStateSchedulingFailed, models.ReasonNoSlot)
}

// ManualAction is a human override from the dashboard.
type ManualAction string

const (
	ManualPause       ManualAction = "pause"
	ManualResume      ManualAction = "resume"
	ManualMarkMeeting ManualAction = "mark_meeting"
	ManualReset       ManualAction = "reset"
)

// ErrInvalidManualAction is returned for unknown or inapplicable actions.
var ErrInvalidManualAction = errors.New("invalid manual action")

// ApplyManual applies a human override. meetingAt is required for
// ManualMarkMeeting and ignored otherwise.
func ApplyManual(p *models.Prospect, action ManualAction, meetingAt *time.Time) (Change, error) {
	switch action {
	case ManualPause:
		if p.State == models.ProspectStateTerminal {
			return Change{}, fmt.Errorf("%w: prospect already %s", ErrInvalidManualAction, p.Reason)
		}
		return transition(p, models.ProspectStateTerminal, models.ReasonPaused), nil

	case ManualResume:
		if p.State == models.ProspectStateTerminal && p.Reason == models.ReasonMeetingScheduled {
			return Change{}, fmt.Errorf("%w: meeting already scheduled", ErrInvalidManualAction)
		}
		next := models.ProspectStateInSequence
		if p.TouchpointsSent == 0 {
			next = models.ProspectStateNew
		}
		p.LastError = ""
		c := transition(p, next, models.ReasonNone)
		p.SendSequenceActive = true
		return c, nil

	case ManualMarkMeeting:
		if meetingAt == nil {
			return Change{}, fmt.Errorf("%w: meeting time required", ErrInvalidManualAction)
		}
		return ApplyMeeting(p, *meetingAt, p.MeetingLink), nil

	case ManualReset:
		// Restart the sequence from the first touchpoint on a fresh thread.
		p.TouchpointsSent = 0
		p.LastContactDate = nil
		p.ThreadID = ""
		p.SentMessageIDs = nil
		p.LastProcessedMessageID = ""
		p.RepliedAt = nil
		p.MeetingTime = nil
		p.MeetingLink = ""
		p.LastError = ""
		c := transition(p, models.ProspectStateNew, models.ReasonNone)
		p.SendSequenceActive = true
		return c, nil
	}
	return Change{}, fmt.Errorf("%w: %q", ErrInvalidManualAction, action)
}
