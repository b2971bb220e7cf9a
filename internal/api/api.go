/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/auth"
	"github.com/friendsincode/cadence/internal/events"
	"github.com/friendsincode/cadence/internal/models"
	"github.com/friendsincode/cadence/internal/scheduler"
	"github.com/friendsincode/cadence/internal/scheduler/state"
	"github.com/friendsincode/cadence/internal/sequence"
	"github.com/friendsincode/cadence/internal/slots"
	"github.com/friendsincode/cadence/internal/store"
	"github.com/friendsincode/cadence/internal/validation"
)

// Previewer answers what-if questions without acting.
type Previewer interface {
	PreviewSlots(ctx context.Context, userID string) ([]slots.Slot, error)
	PreviewDecision(ctx context.Context, userID, prospectID string) (sequence.Decision, error)
}

// RunTrigger starts runs on demand and reports recent ones.
type RunTrigger interface {
	RunNow(ctx context.Context, userID string) (sequence.Summary, error)
	Recent(userID string) []state.RecentRun
}

// API exposes HTTP handlers.
type API struct {
	store     *store.Store
	preview   Previewer
	runs      RunTrigger
	bus       events.Broker
	jwtSecret []byte
	jwtTTL    time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates the API router wrapper.
func New(st *store.Store, preview Previewer, runs RunTrigger, bus events.Broker, jwtSecret []byte, jwtTTL time.Duration, logger zerolog.Logger) *API {
	if jwtTTL <= 0 {
		jwtTTL = 24 * time.Hour
	}
	return &API{
		store:     st,
		preview:   preview,
		runs:      runs,
		bus:       bus,
		jwtSecret: jwtSecret,
		jwtTTL:    jwtTTL,
		logger:    logger.With().Str("component", "api").Logger(),
		now:       time.Now,
	}
}

// Routes mounts every endpoint under /api/v1.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Get("/me", a.handleMe)

			pr.Route("/sequence", func(r chi.Router) {
				r.Get("/", a.handleSequenceGet)
				r.Put("/", a.handleSequencePut)
				r.Get("/templates", a.handleTemplatesList)
				r.Put("/templates", a.handleTemplatesImport)
			})

			pr.Route("/mail-account", func(r chi.Router) {
				r.Get("/", a.handleMailAccountGet)
				r.Put("/", a.handleMailAccountPut)
			})

			pr.Route("/prospects", func(r chi.Router) {
				r.Get("/", a.handleProspectsList)
				r.Post("/", a.handleProspectsCreate)
				r.Route("/{prospectID}", func(r chi.Router) {
					r.Get("/", a.handleProspectsGet)
					r.Get("/decision", a.handleProspectDecision)
					r.Get("/activity", a.handleProspectActivity)
					r.Post("/actions", a.handleProspectAction)
				})
			})

			pr.Route("/runs", func(r chi.Router) {
				r.Get("/", a.handleRunsList)
				r.Post("/", a.handleRunsCreate)
			})

			pr.Route("/calendar", func(r chi.Router) {
				r.Get("/events", a.handleCalendarEvents)
				r.Post("/busy", a.handleCalendarBusyCreate)
				r.Delete("/events/{id}", a.handleCalendarEventDelete)
				r.Get("/export.ics", a.handleCalendarExport)
				r.Post("/import", a.handleCalendarImport)
			})

			pr.Get("/slots", a.handleSlots)
			pr.Get("/activity", a.handleActivity)

			pr.Route("/notifications", func(r chi.Router) {
				r.Get("/", a.handleNotificationsList)
				r.Get("/unread-count", a.handleNotificationsUnread)
				r.Post("/mark-all-read", a.handleNotificationsReadAll)
				r.Post("/{id}/read", a.handleNotificationRead)
			})

			pr.Get("/events", a.handleEvents)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := a.store.GetUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		a.writeStoreError(w, err, "user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// writeRunError maps runner and scheduler sentinels to status codes.
func (a *API) writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sequence.ErrNoMailAccount):
		writeError(w, http.StatusConflict, "no_mail_account")
	case errors.Is(err, sequence.ErrNoSequenceConfig):
		writeError(w, http.StatusConflict, "no_sequence_config")
	case errors.Is(err, sequence.ErrInvalidConfig):
		writeError(w, http.StatusUnprocessableEntity, "invalid_sequence_config")
	case errors.Is(err, scheduler.ErrRunInProgress):
		writeError(w, http.StatusConflict, "run_in_progress")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "cancelled")
	default:
		a.logger.Error().Err(err).Msg("run request failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func (a *API) writeStoreError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, what+"_not_found")
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, what+"_exists")
	default:
		a.logger.Error().Err(err).Str("entity", what).Msg("store operation failed")
		writeError(w, http.StatusInternalServerError, "db_error")
	}
}

// publish stamps an event id so stored notifications stay deduplicated.
func (a *API) publish(eventType events.EventType, payload events.Payload) {
	if a.bus == nil {
		return
	}
	if _, ok := payload["event_id"]; !ok {
		payload["event_id"] = uuid.NewString()
	}
	a.bus.Publish(eventType, payload)
}

func (a *API) activity(r *http.Request, userID string, p *models.Prospect, msg string, details map[string]any) {
	entry := &models.ActivityLog{
		UserID:  userID,
		Kind:    models.ActivityManualAction,
		Message: msg,
		Details: details,
	}
	if p != nil {
		id := p.ID
		entry.ProspectID = &id
	}
	if err := a.store.AppendActivity(r.Context(), entry); err != nil {
		a.logger.Warn().Err(err).Msg("append activity failed")
	}
}

// decodeValid decodes a JSON body into v and validates its tags.
func decodeValid(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	if err := validation.Struct(v); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "validation_failed", "detail": err.Error()})
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
