/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/friendsincode/cadence/internal/auth"
	"github.com/friendsincode/cadence/internal/models"
	"github.com/friendsincode/cadence/internal/store"
	"github.com/friendsincode/cadence/internal/templates"
	"github.com/friendsincode/cadence/internal/validation"
	"github.com/friendsincode/cadence/internal/workhours"
)

func (a *API) handleSequenceGet(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.store.GetSequenceConfig(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		a.writeStoreError(w, err, "sequence")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) handleSequencePut(w http.ResponseWriter, r *http.Request) {
	var cfg models.SequenceConfig
	cfg.MeetingDurationMinutes = 30
	cfg.SearchDays = 14
	if !decodeValid(w, r, &cfg) {
		return
	}
	// The window must be well ordered; field tags only check the format.
	if _, err := workhours.NewPolicy(cfg.SearchStartTime, cfg.SearchEndTime, cfg.WorkingDays, cfg.Timezone); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "validation_failed", "detail": err.Error()})
		return
	}

	// Identity and run bookkeeping are never taken from the body.
	cfg.ID = ""
	cfg.UserID = auth.UserID(r.Context())
	cfg.LastAgentRun = nil
	cfg.CreatedAt, cfg.UpdatedAt = time.Time{}, time.Time{}
	if err := a.store.SaveSequenceConfig(r.Context(), &cfg); err != nil {
		a.writeStoreError(w, err, "sequence")
		return
	}
	a.activity(r, cfg.UserID, nil, "Updated sequence settings", map[string]any{
		"touchpoints": cfg.NumberOfTouchpoints,
		"paused":      cfg.Paused,
	})
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) handleTemplatesList(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.store.GetSequenceConfig(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		a.writeStoreError(w, err, "sequence")
		return
	}
	tpls, err := a.store.ListTemplates(r.Context(), cfg.ID)
	if err != nil {
		a.writeStoreError(w, err, "template")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": tpls})
}

// handleTemplatesImport replaces touchpoint templates from a YAML body.
func (a *API) handleTemplatesImport(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	cfg, err := a.store.GetSequenceConfig(r.Context(), userID)
	if err != nil {
		a.writeStoreError(w, err, "sequence")
		return
	}

	tpls, err := templates.Import(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		if errors.Is(err, templates.ErrInvalidTemplate) || errors.Is(err, validation.ErrInvalid) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid_templates", "detail": err.Error()})
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_yaml")
		return
	}
	if err := a.store.UpsertTemplates(r.Context(), cfg.ID, tpls); err != nil {
		a.writeStoreError(w, err, "template")
		return
	}

	stored, err := a.store.ListTemplates(r.Context(), cfg.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		a.writeStoreError(w, err, "template")
		return
	}
	a.activity(r, userID, nil, "Imported sequence templates", map[string]any{"count": len(tpls)})
	writeJSON(w, http.StatusOK, map[string]any{"templates": stored})
}
