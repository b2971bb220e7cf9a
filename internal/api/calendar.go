/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/cadence/internal/auth"
	"github.com/friendsincode/cadence/internal/calendar"
	"github.com/friendsincode/cadence/internal/store"
)

const defaultCalendarWindow = 30 * 24 * time.Hour

type busyRequest struct {
	Title    string    `json:"title" validate:"required,max=200"`
	StartsAt time.Time `json:"starts_at" validate:"required"`
	EndsAt   time.Time `json:"ends_at" validate:"required"`
	Timezone string    `json:"timezone" validate:"omitempty,timezone"`
	RRule    string    `json:"rrule"`
}

func (a *API) calendarFor(r *http.Request) *calendar.Service {
	return calendar.New(a.store.DB(), auth.UserID(r.Context()), "", "", a.logger)
}

// calendarRange reads from/to (RFC 3339), defaulting to the next 30 days.
func (a *API) calendarRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	from := a.now()
	to := from.Add(defaultCalendarWindow)
	q := r.URL.Query()
	for key, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_"+key)
			return time.Time{}, time.Time{}, false
		}
		*dst = t
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "invalid_range")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (a *API) handleCalendarEvents(w http.ResponseWriter, r *http.Request) {
	from, to, ok := a.calendarRange(w, r)
	if !ok {
		return
	}
	evs, err := a.calendarFor(r).ListEvents(r.Context(), from, to)
	if err != nil {
		a.logger.Error().Err(err).Msg("list calendar events failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

func (a *API) handleCalendarBusyCreate(w http.ResponseWriter, r *http.Request) {
	var req busyRequest
	if !decodeValid(w, r, &req) {
		return
	}
	ev, err := a.calendarFor(r).AddBusy(r.Context(), req.Title, req.StartsAt, req.EndsAt, req.Timezone, req.RRule)
	if errors.Is(err, calendar.ErrInvalidEvent) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid_event", "detail": err.Error()})
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("create busy block failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (a *API) handleCalendarEventDelete(w http.ResponseWriter, r *http.Request) {
	err := a.calendarFor(r).DeleteBusy(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, calendar.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "event_not_found")
	case errors.Is(err, calendar.ErrMeetingLocked):
		writeError(w, http.StatusConflict, "meeting_locked")
	default:
		a.logger.Error().Err(err).Msg("delete calendar event failed")
		writeError(w, http.StatusInternalServerError, "db_error")
	}
}

func (a *API) handleCalendarExport(w http.ResponseWriter, r *http.Request) {
	from, to, ok := a.calendarRange(w, r)
	if !ok {
		return
	}
	data, err := a.calendarFor(r).ExportICal(r.Context(), from, to)
	if err != nil {
		a.logger.Error().Err(err).Msg("calendar export failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	w.Header().Set("Content-Type", calendar.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="cadence.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleCalendarImport reads an .ics body as busy time. Floating times use
// the sequence timezone when one is configured.
func (a *API) handleCalendarImport(w http.ResponseWriter, r *http.Request) {
	loc := time.UTC
	cfg, err := a.store.GetSequenceConfig(r.Context(), auth.UserID(r.Context()))
	switch {
	case err == nil:
		if l, lerr := time.LoadLocation(cfg.Timezone); lerr == nil {
			loc = l
		}
	case !errors.Is(err, store.ErrNotFound):
		a.writeStoreError(w, err, "sequence")
		return
	}

	res, err := a.calendarFor(r).ImportICal(r.Context(), http.MaxBytesReader(w, r.Body, 5<<20), loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_ical", "detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}
