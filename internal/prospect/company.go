/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package prospect

import "github.com/friendsincode/cadence/internal/models"

// Affected is a prospect changed as a consequence of another's booking.
type Affected struct {
	Prospect models.Prospect
	Change   Change
}

// OnMeetingScheduled returns the prospects that must stop because booked's
// company is now engaged: same owner, same normalized non-empty company,
// still armed or not yet terminal. Inputs are not modified; the caller
// persists the returned copies.
func OnMeetingScheduled(booked *models.Prospect, candidates []models.Prospect) []Affected {
	key := booked.CompanyKey()
	if key == "" {
		return nil
	}

	var out []Affected
	for _, c := range candidates {
		if c.ID == booked.ID || c.UserID != booked.UserID || c.CompanyKey() != key {
			continue
		}
		if !c.SendSequenceActive && c.State.IsTerminal() {
			continue
		}
		updated := c
		updated.PreferredDays = append([]string(nil), c.PreferredDays...)
		updated.SentMessageIDs = append([]string(nil), c.SentMessageIDs...)
		change := transition(&updated, models.ProspectStateTerminal, models.ReasonCompanyEngaged)
		out = append(out, Affected{Prospect: updated, Change: change})
	}
	return out
}
