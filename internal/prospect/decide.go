/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package prospect is the per-prospect state machine: it decides the next
// automated action and applies the resulting transitions.
package prospect

import (
	"time"

	"github.com/friendsincode/cadence/internal/models"
)

// ActionKind enumerates what automation should do next for a prospect.
type ActionKind string

const (
	NoAction     ActionKind = "none"
	SendInitial  ActionKind = "send_initial"
	SendFollowUp ActionKind = "send_follow_up"
	CheckReply   ActionKind = "check_reply"
	Exhaust      ActionKind = "exhaust"
)

// Action is the outcome of Decide.
type Action struct {
	Kind ActionKind `json:"kind"`

	// Touchpoint is the 1-based template index for send actions.
	Touchpoint int `json:"touchpoint,omitempty"`

	// ExhaustIfQuiet marks a reply check on a prospect whose touchpoints are
	// spent; when the thread has nothing new the sequence is exhausted.
	ExhaustIfQuiet bool `json:"exhaust_if_quiet,omitempty"`
}

// Config is the subset of sequence settings Decide depends on.
type Config struct {
	NumberOfTouchpoints  int
	DaysBetweenFollowups int
}

// ConfigFrom extracts decision settings from a stored sequence config.
func ConfigFrom(cfg *models.SequenceConfig) Config {
	return Config{
		NumberOfTouchpoints:  cfg.NumberOfTouchpoints,
		DaysBetweenFollowups: cfg.DaysBetweenFollowups,
	}
}

// Decide returns the next action for p. It reads only persisted fields and
// now, so repeated calls on the same state return the same action.
func Decide(p *models.Prospect, cfg Config, now time.Time) Action {
	sendable := p.SendSequenceActive &&
		(p.State == models.ProspectStateNew || p.State == models.ProspectStateInSequence)

	if p.TouchpointsSent == 0 && sendable {
		return Action{Kind: SendInitial, Touchpoint: 1}
	}

	if sendable && p.TouchpointsSent < cfg.NumberOfTouchpoints &&
		DaysSince(p.LastContactDate, now) >= cfg.DaysBetweenFollowups {
		return Action{Kind: SendFollowUp, Touchpoint: p.TouchpointsSent + 1}
	}

	spent := p.TouchpointsSent >= cfg.NumberOfTouchpoints && p.State == models.ProspectStateInSequence

	if p.HasThread() && !p.State.IsTerminal() {
		return Action{Kind: CheckReply, ExhaustIfQuiet: spent}
	}

	if spent {
		return Action{Kind: Exhaust}
	}

	return Action{Kind: NoAction}
}

// DaysSince counts whole days elapsed from last to now. A missing timestamp
// counts as infinitely long ago.
func DaysSince(last *time.Time, now time.Time) int {
	if last == nil {
		return int(^uint(0) >> 1)
	}
	elapsed := now.Sub(*last)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / (24 * time.Hour))
}

// IsActive reports whether the runner should look at p at all: it is armed
// or holds an open thread, and is not already booked.
func IsActive(p *models.Prospect) bool {
	if p.State == models.ProspectStateTerminal && p.Reason == models.ReasonMeetingScheduled {
		return false
	}
	return p.SendSequenceActive || p.HasThread()
}
