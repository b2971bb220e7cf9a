/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sequence

import (
	"context"
	"fmt"

	"github.com/friendsincode/cadence/internal/prospect"
	"github.com/friendsincode/cadence/internal/slots"
)

// PreviewSlots returns the free slots a booking made now would choose from.
func (r *Runner) PreviewSlots(ctx context.Context, userID string) ([]slots.Slot, error) {
	acc, set, err := r.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	_, cal, err := r.connector.Connect(ctx, acc)
	if err != nil {
		return nil, fmt.Errorf("connect mail account: %w", err)
	}

	now := r.now()
	end := now.AddDate(0, 0, set.horizon)
	busy, err := cal.BusyIntervals(ctx, now, end)
	if err != nil {
		return nil, fmt.Errorf("load busy intervals: %w", err)
	}
	return slots.FindFreeSlots(slots.Query{
		RangeStart: now,
		RangeEnd:   end,
		Now:        now,
		Window:     set.policy.Window,
		Location:   set.policy.Location,
		Days:       set.policy.Days,
		Busy:       busy,
		Duration:   set.duration,
	}), nil
}

// Decision is what the next run would do for a prospect.
type Decision struct {
	Action         prospect.Action `json:"action"`
	WithinHours    bool            `json:"within_working_hours"`
	Active         bool            `json:"active"`
	DaysSinceTouch *int            `json:"days_since_last_touch,omitempty"`
}

// PreviewDecision evaluates Decide for one prospect without acting.
func (r *Runner) PreviewDecision(ctx context.Context, userID, prospectID string) (Decision, error) {
	_, set, err := r.load(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	p, err := r.store.GetProspect(ctx, userID, prospectID)
	if err != nil {
		return Decision{}, err
	}

	now := r.now()
	d := Decision{
		Action:      prospect.Decide(p, set.decide, now),
		WithinHours: set.policy.Allows(now),
		Active:      prospect.IsActive(p),
	}
	if p.LastContactDate != nil {
		days := prospect.DaysSince(p.LastContactDate, now)
		d.DaysSinceTouch = &days
	}
	return d, nil
}
