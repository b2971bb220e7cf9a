/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"time"

	"github.com/friendsincode/cadence/internal/auth"
	"github.com/friendsincode/cadence/internal/sequence"
)

type runResponse struct {
	Outcome string `json:"outcome"`
	sequence.Summary
}

// handleRunsCreate runs the caller's sequence now, bypassing the frequency
// gate. Working hours still apply.
func (a *API) handleRunsCreate(w http.ResponseWriter, r *http.Request) {
	summary, err := a.runs.RunNow(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		a.writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Outcome: summary.Outcome(), Summary: summary})
}

func (a *API) handleRunsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": a.runs.Recent(auth.UserID(r.Context()))})
}

type slotResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (a *API) handleSlots(w http.ResponseWriter, r *http.Request) {
	free, err := a.preview.PreviewSlots(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		a.writeRunError(w, err)
		return
	}
	limit := queryInt(r, "limit", 20, 500)
	if len(free) > limit {
		free = free[:limit]
	}
	out := make([]slotResponse, 0, len(free))
	for _, s := range free {
		out = append(out, slotResponse{Start: s.Start.UTC(), End: s.End.UTC()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": out})
}

func (a *API) handleActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := a.store.ListActivity(r.Context(), auth.UserID(r.Context()), r.URL.Query().Get("prospect_id"), queryInt(r, "limit", 100, 500))
	if err != nil {
		a.writeStoreError(w, err, "activity")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": entries})
}
