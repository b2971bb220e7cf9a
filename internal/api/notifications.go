/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/cadence/internal/auth"
)

// handleNotificationsList returns the user's notifications.
func (a *API) handleNotificationsList(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread_only") == "true"
	limit := queryInt(r, "limit", 50, 100)

	list, err := a.store.ListNotifications(r.Context(), auth.UserID(r.Context()), unreadOnly, limit)
	if err != nil {
		a.writeStoreError(w, err, "notification")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": list,
		"limit":         limit,
	})
}

// handleNotificationsUnread returns the count of unread notifications.
func (a *API) handleNotificationsUnread(w http.ResponseWriter, r *http.Request) {
	count, err := a.store.CountUnreadNotifications(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		a.writeStoreError(w, err, "notification")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unread_count": count})
}

func (a *API) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := a.store.MarkNotificationRead(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"), a.now()); err != nil {
		a.writeStoreError(w, err, "notification")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleNotificationsReadAll(w http.ResponseWriter, r *http.Request) {
	n, err := a.store.MarkAllNotificationsRead(r.Context(), auth.UserID(r.Context()), a.now())
	if err != nil {
		a.writeStoreError(w, err, "notification")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}
