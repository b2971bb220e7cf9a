/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/cadence/internal/calendar"
	"github.com/friendsincode/cadence/internal/classifier"
	"github.com/friendsincode/cadence/internal/events"
	"github.com/friendsincode/cadence/internal/mail"
	"github.com/friendsincode/cadence/internal/models"
	"github.com/friendsincode/cadence/internal/prospect"
	"github.com/friendsincode/cadence/internal/slots"
	"github.com/friendsincode/cadence/internal/store"
	"github.com/friendsincode/cadence/internal/telemetry"
	"github.com/friendsincode/cadence/internal/templates"
)

// stageError tags a failure with the step that produced it.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func staged(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &stageError{stage: stage, err: err}
}

func stageOf(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return "unknown"
}

// process runs one prospect through decide, act and persist. Failures are
// recorded on the prospect and in the summary, never returned.
func (r *Runner) process(ctx context.Context, rc *run, p *models.Prospect) {
	snapshot := *p
	rc.summary.Processed++

	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = staged("panic", fmt.Errorf("%w: %v", ErrPanic, rec))
			}
		}()
		err = r.act(ctx, rc, p)
	}()
	if err != nil {
		r.fail(ctx, rc, &snapshot, p, err)
	}
}

func (r *Runner) act(ctx context.Context, rc *run, p *models.Prospect) error {
	action := prospect.Decide(p, rc.decide, rc.now)
	switch action.Kind {
	case prospect.SendInitial, prospect.SendFollowUp:
		return r.sendTouchpoint(ctx, rc, p, action.Touchpoint)
	case prospect.CheckReply:
		return r.checkReply(ctx, rc, p, action.ExhaustIfQuiet)
	case prospect.Exhaust:
		change := prospect.ApplyExhausted(p)
		if err := r.store.SaveProspect(ctx, p); err != nil {
			return staged("persist", err)
		}
		r.recordChange(ctx, rc, p, change)
	}
	return nil
}

// fail restores the prospect to its state before the attempt so work is
// retried on the next run, then records the error. A missing slot and a
// booked meeting are the exceptions: their state is kept.
func (r *Runner) fail(ctx context.Context, rc *run, snapshot, p *models.Prospect, err error) {
	if !errors.Is(err, ErrNoSlot) && !errors.Is(err, ErrBookingNotSaved) {
		*p = *snapshot
	}
	p.LastError = err.Error()
	if saveErr := r.store.SaveProspect(ctx, p); saveErr != nil {
		rc.logger.Error().Err(saveErr).Str("prospect", p.ID).Msg("persist prospect error")
	}

	stage := stageOf(err)
	rc.summary.Errors = append(rc.summary.Errors, ProspectError{
		ProspectID: p.ID,
		Email:      p.Email,
		Stage:      stage,
		Error:      err.Error(),
	})
	telemetry.ProspectErrorsTotal.WithLabelValues(stage).Inc()
	telemetry.ReportError(err, map[string]string{"stage": stage, "user_id": rc.userID}, map[string]any{"prospect_id": p.ID})

	rc.logger.Warn().Err(err).Str("prospect", p.ID).Str("stage", stage).Msg("prospect failed")
	r.activity(ctx, rc.userID, p, models.ActivityError, err.Error(), map[string]any{"stage": stage})
	r.publish(events.EventProspectError, r.payload(rc, p, events.Payload{"stage": stage, "error": err.Error()}))
}

func (r *Runner) payload(rc *run, p *models.Prospect, extra events.Payload) events.Payload {
	out := events.Payload{
		"user_id":     rc.userID,
		"prospect_id": p.ID,
		"email":       p.Email,
		"name":        p.Name,
		"state":       string(p.State),
		"reason":      string(p.Reason),
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (r *Runner) recordChange(ctx context.Context, rc *run, p *models.Prospect, change prospect.Change) {
	if !change.Changed() {
		return
	}
	rc.summary.StateChanges++
	msg := fmt.Sprintf("%s -> %s", change.From, change.To)
	if change.Reason != models.ReasonNone {
		msg += " (" + string(change.Reason) + ")"
	}
	r.activity(ctx, rc.userID, p, models.ActivityStateChanged, msg, map[string]any{
		"from":   string(change.From),
		"to":     string(change.To),
		"reason": string(change.Reason),
	})
	r.publish(events.EventStateChanged, r.payload(rc, p, events.Payload{"from": string(change.From)}))
	if change.To == models.ProspectStateAwaitingHuman || change.To == models.ProspectStateSchedulingFailed {
		r.publish(events.EventNeedsAttention, r.payload(rc, p, nil))
	}
}

func (r *Runner) sendTouchpoint(ctx context.Context, rc *run, p *models.Prospect, touchpoint int) error {
	if err := r.validateEmail(p.Email); err != nil {
		return staged("validate", fmt.Errorf("%w %q: %v", ErrInvalidEmail, p.Email, err))
	}

	sequenceID := p.SequenceID
	if sequenceID == "" {
		sequenceID = rc.cfg.ID
	}
	tpl, err := r.store.GetTemplate(ctx, sequenceID, touchpoint)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return staged("template", fmt.Errorf("%w: touchpoint %d", ErrMissingTemplate, touchpoint))
		}
		return staged("template", err)
	}
	rendered, err := templates.Render(tpl, templates.DataFor(p, rc.account.FromName))
	if err != nil {
		return staged("template", err)
	}

	subject := rendered.Subject
	if p.HasThread() {
		subject = templates.ReplySubject(subject)
	}
	sent, err := rc.mailer.Send(ctx, mail.Outgoing{
		To:       p.Email,
		ToName:   p.Name,
		Subject:  subject,
		HTMLBody: rendered.HTMLBody,
		ThreadID: p.ThreadID,
	})
	if err != nil {
		return staged("send", fmt.Errorf("send touchpoint %d: %w", touchpoint, err))
	}

	change := prospect.ApplySend(p, sent.ThreadID, sent.MessageID, rc.now)
	if err := r.store.SaveProspect(ctx, p); err != nil {
		return staged("persist", err)
	}

	kind := "follow_up"
	if touchpoint == 1 {
		kind = "initial"
	}
	rc.summary.EmailsSent++
	telemetry.EmailsSentTotal.WithLabelValues(kind).Inc()
	r.activity(ctx, rc.userID, p, models.ActivityEmailSent,
		fmt.Sprintf("Sent touchpoint %d to %s", touchpoint, p.Email),
		map[string]any{"touchpoint": touchpoint, "subject": subject, "message_id": sent.MessageID})
	r.publish(events.EventEmailSent, r.payload(rc, p, events.Payload{"touchpoint": touchpoint}))
	r.recordChange(ctx, rc, p, change)
	return nil
}

func (r *Runner) checkReply(ctx context.Context, rc *run, p *models.Prospect, exhaustIfQuiet bool) error {
	msgs, err := rc.mailer.ThreadMessages(ctx, p.ThreadID)
	if err != nil {
		return staged("fetch_thread", fmt.Errorf("fetch thread: %w", err))
	}

	outcome := prospect.EvaluateThread(p, msgs, rc.account.FromEmail)
	switch outcome.Kind {
	case prospect.ThreadQuiet:
		if !exhaustIfQuiet {
			return nil
		}
		change := prospect.ApplyExhausted(p)
		if err := r.store.SaveProspect(ctx, p); err != nil {
			return staged("persist", err)
		}
		r.recordChange(ctx, rc, p, change)
		return nil

	case prospect.ThreadManual:
		change := prospect.ApplyManualReply(p, outcome.Message.ID, rc.now)
		if err := r.store.SaveProspect(ctx, p); err != nil {
			return staged("persist", err)
		}
		r.recordChange(ctx, rc, p, change)
		return nil
	}

	msg := outcome.Message
	res, err := r.classifier.Classify(ctx, rc.mailer.BodyOf(msg))
	if err != nil {
		return staged("classify", fmt.Errorf("classify reply: %w", err))
	}
	change, interested, err := prospect.ApplyClassification(p, res, msg.ID, rc.now)
	if err != nil {
		return staged("classify", err)
	}

	rc.summary.RepliesAnalyzed++
	telemetry.RepliesAnalyzedTotal.WithLabelValues(string(res.Category)).Inc()
	r.activity(ctx, rc.userID, p, models.ActivityReplyAnalyzed,
		fmt.Sprintf("Reply from %s classified as %s", msg.From, res.Category),
		map[string]any{"category": string(res.Category), "message_id": msg.ID})
	r.publish(events.EventReplyAnalyzed, r.payload(rc, p, events.Payload{"category": string(res.Category)}))

	if interested {
		return r.scheduleMeeting(ctx, rc, p, msg)
	}
	if err := r.store.SaveProspect(ctx, p); err != nil {
		return staged("persist", err)
	}
	r.recordChange(ctx, rc, p, change)
	if res.Category == classifier.Referral {
		r.addReferral(ctx, rc, p)
	}
	return nil
}

// scheduleMeeting books the first acceptable slot, replies in the thread
// and stops colleagues at the same company.
func (r *Runner) scheduleMeeting(ctx context.Context, rc *run, p *models.Prospect, reply mail.Message) error {
	home := rc.policy.Location
	start := rc.now
	end := start.AddDate(0, 0, rc.horizon)

	busy, err := rc.calendar.BusyIntervals(ctx, start, end)
	if err != nil {
		return staged("calendar", fmt.Errorf("load busy intervals: %w", err))
	}
	free := slots.FindFreeSlots(slots.Query{
		RangeStart: start,
		RangeEnd:   end,
		Now:        rc.now,
		Window:     rc.policy.Window,
		Location:   home,
		Days:       rc.policy.Days,
		Busy:       busy,
		Duration:   rc.duration,
	})
	prefs := slots.ParsePreferences(p.PreferredDays, p.PreferredTime, p.PreferredTimezone)
	slot, ok := slots.SelectSlot(free, prefs, home)
	if !ok {
		cause := fmt.Errorf("%w in the next %d days", ErrNoSlot, rc.horizon)
		change := prospect.ApplyScheduleFailure(p, cause)
		if err := r.store.SaveProspect(ctx, p); err != nil {
			return staged("persist", err)
		}
		r.recordChange(ctx, rc, p, change)
		return staged("schedule", cause)
	}

	title := rc.cfg.MeetingTitle
	if title == "" {
		title = "Intro call"
	}
	if p.Company != "" {
		title += " with " + p.Company
	}
	booking, err := rc.calendar.CreateEvent(ctx, calendar.EventRequest{
		Attendee:    p.Email,
		Title:       title,
		Description: fmt.Sprintf("Booked automatically after %s replied.", p.Email),
		Start:       slot.Start,
		End:         slot.End,
		Timezone:    rc.cfg.Timezone,
	})
	if err != nil {
		return staged("calendar", fmt.Errorf("create event: %w", err))
	}
	link := booking.MeetLink
	if link == "" {
		link = booking.HTMLLink
	}

	change := prospect.ApplyMeeting(p, slot.Start, link)
	r.sendConfirmation(ctx, rc, p, reply, slot, prefs.Location, link)
	if err := r.store.SaveProspect(ctx, p); err != nil {
		// The event exists and the confirmation went out, so the booked
		// state must survive; fail keeps it and saves again.
		r.stopCompany(ctx, rc, p)
		return staged("persist", fmt.Errorf("%w: %w", ErrBookingNotSaved, err))
	}

	rc.summary.MeetingsScheduled++
	telemetry.MeetingsScheduledTotal.Inc()
	r.activity(ctx, rc.userID, p, models.ActivityMeetingScheduled,
		fmt.Sprintf("Meeting with %s at %s", p.Email, slot.Start.In(home).Format(time.RFC1123)),
		map[string]any{"start": slot.Start.UTC().Format(time.RFC3339), "link": link, "event_id": booking.EventID})
	r.publish(events.EventMeetingScheduled, r.payload(rc, p, events.Payload{
		"meeting_time": slot.Start.UTC().Format(time.RFC3339),
		"meeting_link": link,
	}))
	r.recordChange(ctx, rc, p, change)

	r.stopCompany(ctx, rc, p)
	return nil
}

// sendConfirmation replies in the thread. A failed confirmation is logged;
// the meeting stands.
func (r *Runner) sendConfirmation(ctx context.Context, rc *run, p *models.Prospect, reply mail.Message, slot slots.Slot, prefLoc *time.Location, link string) {
	loc := prefLoc
	if loc == nil {
		loc = rc.policy.Location
	}
	body, err := templates.Confirmation(templates.DataFor(p, rc.account.FromName), slot.Start, loc, link)
	if err == nil {
		subject := reply.Subject
		if strings.TrimSpace(subject) == "" {
			subject = "Our meeting"
		}
		var sent mail.Sent
		sent, err = rc.mailer.Send(ctx, mail.Outgoing{
			To:       p.Email,
			ToName:   p.Name,
			Subject:  templates.ReplySubject(subject),
			HTMLBody: body,
			ThreadID: p.ThreadID,
		})
		if err == nil {
			if sent.MessageID != "" {
				p.SentMessageIDs = append(p.SentMessageIDs, sent.MessageID)
			}
			telemetry.EmailsSentTotal.WithLabelValues("confirmation").Inc()
			return
		}
	}
	rc.logger.Warn().Err(err).Str("prospect", p.ID).Msg("meeting confirmation not sent")
	r.activity(ctx, rc.userID, p, models.ActivityError, "Meeting booked but confirmation failed: "+err.Error(),
		map[string]any{"stage": "confirmation"})
}

// stopCompany applies the same-company rule after a booking.
func (r *Runner) stopCompany(ctx context.Context, rc *run, booked *models.Prospect) {
	if booked.CompanyKey() == "" {
		return
	}
	candidates, err := r.store.ListCompanyProspects(ctx, rc.userID, booked.Company)
	if err != nil {
		rc.logger.Warn().Err(err).Str("prospect", booked.ID).Msg("load company prospects")
		return
	}
	for _, a := range prospect.OnMeetingScheduled(booked, candidates) {
		affected := a.Prospect
		if err := r.store.SaveProspect(ctx, &affected); err != nil {
			rc.logger.Warn().Err(err).Str("prospect", affected.ID).Msg("stop company prospect")
			continue
		}
		rc.engaged[affected.ID] = true
		r.recordChange(ctx, rc, &affected, a.Change)
	}
}

// addReferral starts a sequence for the colleague a reply pointed to.
func (r *Runner) addReferral(ctx context.Context, rc *run, p *models.Prospect) {
	email := strings.ToLower(strings.TrimSpace(p.ReferredEmail))
	if email == "" || email == strings.ToLower(p.Email) {
		return
	}
	if err := r.validateEmail(email); err != nil {
		rc.logger.Debug().Str("referred", email).Msg("ignoring invalid referral address")
		return
	}
	if _, err := r.store.FindProspectByEmail(ctx, rc.userID, email); err == nil {
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		rc.logger.Warn().Err(err).Msg("look up referral")
		return
	}

	sequenceID := p.SequenceID
	if sequenceID == "" {
		sequenceID = rc.cfg.ID
	}
	referred := models.NewProspect(rc.userID, sequenceID, email, "", p.Company)
	if err := r.store.CreateProspect(ctx, referred); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			rc.logger.Warn().Err(err).Str("referred", email).Msg("create referral prospect")
		}
		return
	}
	r.activity(ctx, rc.userID, referred, models.ActivityStateChanged,
		fmt.Sprintf("Added %s, referred by %s", email, p.Email),
		map[string]any{"referred_by": p.ID})
	r.publish(events.EventProspectCreated, r.payload(rc, referred, events.Payload{"referred_by": p.ID}))
}
