/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sequence

// Run outcomes, as reported by Summary.Outcome.
const (
	OutcomeOutsideWorkingHours = "outside_working_hours"
	OutcomeNoActivity          = "no_activity"
	OutcomeErrors              = "errors"
	OutcomeActivity            = "activity"
)

// ProspectError is one per-prospect failure of a run.
type ProspectError struct {
	ProspectID string `json:"prospect_id"`
	Email      string `json:"email"`
	Stage      string `json:"stage"`
	Error      string `json:"error"`
}

// Summary counts what a run did.
type Summary struct {
	Processed           int             `json:"processed"`
	EmailsSent          int             `json:"emails_sent"`
	RepliesAnalyzed     int             `json:"replies_analyzed"`
	MeetingsScheduled   int             `json:"meetings_scheduled"`
	StateChanges        int             `json:"state_changes"`
	Errors              []ProspectError `json:"errors,omitempty"`
	OutsideWorkingHours bool            `json:"outside_working_hours,omitempty"`
}

// Outcome folds the summary into a single label.
func (s Summary) Outcome() string {
	switch {
	case s.OutsideWorkingHours:
		return OutcomeOutsideWorkingHours
	case len(s.Errors) > 0:
		return OutcomeErrors
	case s.EmailsSent+s.RepliesAnalyzed+s.MeetingsScheduled+s.StateChanges == 0:
		return OutcomeNoActivity
	}
	return OutcomeActivity
}

// Details renders the summary for the run activity entry.
func (s Summary) Details() map[string]any {
	d := map[string]any{
		"outcome":            s.Outcome(),
		"processed":          s.Processed,
		"emails_sent":        s.EmailsSent,
		"replies_analyzed":   s.RepliesAnalyzed,
		"meetings_scheduled": s.MeetingsScheduled,
		"state_changes":      s.StateChanges,
	}
	if len(s.Errors) > 0 {
		errs := make([]map[string]any, 0, len(s.Errors))
		for _, e := range s.Errors {
			errs = append(errs, map[string]any{"prospect_id": e.ProspectID, "stage": e.Stage, "error": e.Error})
		}
		d["errors"] = errs
	}
	return d
}
