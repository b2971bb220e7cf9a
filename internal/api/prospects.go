/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/cadence/internal/auth"
	"github.com/friendsincode/cadence/internal/events"
	"github.com/friendsincode/cadence/internal/models"
	"github.com/friendsincode/cadence/internal/prospect"
	"github.com/friendsincode/cadence/internal/store"
)

type prospectCreateRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Name    string `json:"name" validate:"max=200"`
	Company string `json:"company" validate:"max=200"`
}

type prospectActionRequest struct {
	Action      prospect.ManualAction `json:"action" validate:"required,oneof=pause resume mark_meeting reset"`
	MeetingTime *time.Time            `json:"meeting_time"`
}

func (a *API) handleProspectsList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ProspectFilter{
		State:  models.ProspectState(q.Get("state")),
		Search: strings.TrimSpace(q.Get("q")),
		Limit:  queryInt(r, "limit", 50, 200),
		Offset: queryInt(r, "offset", 0, 0),
	}
	if filter.State != "" && !filter.State.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_state")
		return
	}

	list, total, err := a.store.ListProspects(r.Context(), auth.UserID(r.Context()), filter)
	if err != nil {
		a.writeStoreError(w, err, "prospect")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"prospects": list,
		"total":     total,
		"limit":     filter.Limit,
		"offset":    filter.Offset,
	})
}

func (a *API) handleProspectsCreate(w http.ResponseWriter, r *http.Request) {
	var req prospectCreateRequest
	if !decodeValid(w, r, &req) {
		return
	}
	userID := auth.UserID(r.Context())

	var sequenceID string
	cfg, err := a.store.GetSequenceConfig(r.Context(), userID)
	switch {
	case err == nil:
		sequenceID = cfg.ID
	case !errors.Is(err, store.ErrNotFound):
		a.writeStoreError(w, err, "sequence")
		return
	}

	p := models.NewProspect(userID, sequenceID, req.Email, req.Name, req.Company)
	if err := a.store.CreateProspect(r.Context(), p); err != nil {
		a.writeStoreError(w, err, "prospect")
		return
	}
	a.activity(r, userID, p, "Added prospect "+p.Email, nil)
	a.publish(events.EventProspectCreated, events.Payload{
		"user_id":     userID,
		"prospect_id": p.ID,
		"email":       p.Email,
	})
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleProspectsGet(w http.ResponseWriter, r *http.Request) {
	p, err := a.store.GetProspect(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "prospectID"))
	if err != nil {
		a.writeStoreError(w, err, "prospect")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleProspectDecision(w http.ResponseWriter, r *http.Request) {
	d, err := a.preview.PreviewDecision(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "prospectID"))
	if err != nil {
		a.writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) handleProspectActivity(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id := chi.URLParam(r, "prospectID")
	if _, err := a.store.GetProspect(r.Context(), userID, id); err != nil {
		a.writeStoreError(w, err, "prospect")
		return
	}
	entries, err := a.store.ListActivity(r.Context(), userID, id, queryInt(r, "limit", 100, 500))
	if err != nil {
		a.writeStoreError(w, err, "activity")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": entries})
}

// handleProspectAction applies a human override.
func (a *API) handleProspectAction(w http.ResponseWriter, r *http.Request) {
	var req prospectActionRequest
	if !decodeValid(w, r, &req) {
		return
	}
	userID := auth.UserID(r.Context())
	p, err := a.store.GetProspect(r.Context(), userID, chi.URLParam(r, "prospectID"))
	if err != nil {
		a.writeStoreError(w, err, "prospect")
		return
	}

	change, err := prospect.ApplyManual(p, req.Action, req.MeetingTime)
	if err != nil {
		if errors.Is(err, prospect.ErrInvalidManualAction) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid_action", "detail": err.Error()})
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if err := a.store.SaveProspect(r.Context(), p); err != nil {
		a.writeStoreError(w, err, "prospect")
		return
	}

	a.activity(r, userID, p, fmt.Sprintf("Manual %s: %s -> %s", req.Action, change.From, change.To), map[string]any{
		"action": string(req.Action),
		"from":   string(change.From),
		"to":     string(change.To),
	})
	if change.Changed() {
		a.publish(events.EventStateChanged, events.Payload{
			"user_id":     userID,
			"prospect_id": p.ID,
			"email":       p.Email,
			"from":        string(change.From),
			"state":       string(p.State),
			"reason":      string(p.Reason),
		})
	}
	writeJSON(w, http.StatusOK, p)
}
