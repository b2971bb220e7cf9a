/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/friendsincode/cadence/internal/auth"
	"github.com/friendsincode/cadence/internal/models"
	"github.com/friendsincode/cadence/internal/store"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeValid(w, r, &req) {
		return
	}

	user, err := a.store.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		a.writeStoreError(w, err, "user")
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	token, err := auth.Issue(a.jwtSecret, auth.Claims{UserID: user.ID, Email: user.Email}, a.jwtTTL)
	if err != nil {
		a.logger.Error().Err(err).Msg("issue token failed")
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(a.jwtTTL.Seconds()),
		"user":       user,
	})
}

type mailAccountRequest struct {
	FromName     string `json:"from_name"`
	FromEmail    string `json:"from_email" validate:"required,email"`
	SMTPHost     string `json:"smtp_host" validate:"required,hostname|ip"`
	SMTPPort     int    `json:"smtp_port" validate:"min=1,max=65535"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"smtp_password"`
	IMAPHost     string `json:"imap_host" validate:"required,hostname|ip"`
	IMAPPort     int    `json:"imap_port" validate:"min=1,max=65535"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"imap_password"`
	IMAPTLS      bool   `json:"imap_tls"`
	Inbox        string `json:"inbox"`
	SentMailbox  string `json:"sent_mailbox"`
}

func (a *API) handleMailAccountGet(w http.ResponseWriter, r *http.Request) {
	acc, err := a.store.GetMailAccount(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		a.writeStoreError(w, err, "mail_account")
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (a *API) handleMailAccountPut(w http.ResponseWriter, r *http.Request) {
	var req mailAccountRequest
	if !decodeValid(w, r, &req) {
		return
	}
	acc := &models.MailAccount{
		UserID:       auth.UserID(r.Context()),
		FromName:     strings.TrimSpace(req.FromName),
		FromEmail:    strings.ToLower(strings.TrimSpace(req.FromEmail)),
		SMTPHost:     req.SMTPHost,
		SMTPPort:     req.SMTPPort,
		SMTPUsername: req.SMTPUsername,
		SMTPPassword: req.SMTPPassword,
		IMAPHost:     req.IMAPHost,
		IMAPPort:     req.IMAPPort,
		IMAPUsername: req.IMAPUsername,
		IMAPPassword: req.IMAPPassword,
		IMAPTLS:      req.IMAPTLS,
		Inbox:        req.Inbox,
		SentMailbox:  req.SentMailbox,
		Connected:    true,
	}
	if acc.Inbox == "" {
		acc.Inbox = "INBOX"
	}
	if acc.SentMailbox == "" {
		acc.SentMailbox = "Sent"
	}
	if err := a.store.SaveMailAccount(r.Context(), acc); err != nil {
		a.writeStoreError(w, err, "mail_account")
		return
	}
	a.activity(r, acc.UserID, nil, "Connected mail account "+acc.FromEmail, nil)
	writeJSON(w, http.StatusOK, acc)
}
