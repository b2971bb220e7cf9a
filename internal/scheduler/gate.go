/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"time"

	"github.com/friendsincode/cadence/internal/workhours"
)

// Reason explains a gate decision.
type Reason string

const (
	ReasonDue          Reason = "due"
	ReasonNotDue       Reason = "not_due"
	ReasonOutsideHours Reason = "outside_hours"
	ReasonPaused       Reason = "paused"
)

// Gate is the outcome of ShouldRun.
type Gate struct {
	Run    bool
	Reason Reason
	// NextDue is when the frequency condition is next met. Zero when the
	// user never ran.
	NextDue time.Time
}

// ShouldRun decides whether a user's sequence is due at now. A user that
// never ran is due as soon as policy allows it; otherwise at least
// frequencyHours must have elapsed since lastRun.
func ShouldRun(now time.Time, lastRun *time.Time, frequencyHours float64, policy workhours.Policy) Gate {
	var next time.Time
	if lastRun != nil {
		next = lastRun.Add(time.Duration(frequencyHours * float64(time.Hour)))
		if now.Before(next) {
			return Gate{Reason: ReasonNotDue, NextDue: next}
		}
	}
	if !policy.Allows(now) {
		return Gate{Reason: ReasonOutsideHours, NextDue: next}
	}
	return Gate{Run: true, Reason: ReasonDue, NextDue: next}
}
