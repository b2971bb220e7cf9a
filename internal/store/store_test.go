/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/cadence/internal/db"
	"github.com/friendsincode/cadence/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(database)
}

func TestListActiveProspects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	armed := models.NewProspect("u1", "seq", "armed@acme.com", "Armed", "Acme")
	threaded := models.NewProspect("u1", "seq", "thread@acme.com", "Thread", "Acme")
	threaded.SendSequenceActive = false
	threaded.ThreadID = "t1@mail"
	booked := models.NewProspect("u1", "seq", "booked@acme.com", "Booked", "Acme")
	booked.ThreadID = "t2@mail"
	booked.State = models.ProspectStateTerminal
	booked.Reason = models.ReasonMeetingScheduled
	idle := models.NewProspect("u1", "seq", "idle@acme.com", "Idle", "Acme")
	idle.SendSequenceActive = false
	other := models.NewProspect("u2", "seq", "armed@acme.com", "Other", "Acme")

	for _, p := range []*models.Prospect{armed, threaded, booked, idle, other} {
		if err := s.CreateProspect(ctx, p); err != nil {
			t.Fatalf("create %s: %v", p.Email, err)
		}
	}

	got, err := s.ListActiveProspects(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	ids := map[string]bool{}
	for _, p := range got {
		ids[p.ID] = true
	}
	if len(got) != 2 || !ids[armed.ID] || !ids[threaded.ID] {
		t.Fatalf("active = %v, want armed and threaded only", ids)
	}
}

func TestCreateProspectDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateProspect(ctx, models.NewProspect("u1", "seq", "a@b.com", "", "")); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.CreateProspect(ctx, models.NewProspect("u1", "seq", " A@B.com ", "", ""))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("got %v, want ErrDuplicate", err)
	}

	found, err := s.FindProspectByEmail(ctx, "u1", "A@b.com")
	if err != nil || found.Email != "a@b.com" {
		t.Fatalf("find by email: %v %v", found, err)
	}
	if _, err := s.FindProspectByEmail(ctx, "u2", "a@b.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestListCompanyProspectsNormalizes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, company := range []string{"Acme Corp", " acme corp ", "ACME CORP", "Globex"} {
		p := models.NewProspect("u1", "seq", string(rune('a'+i))+"@x.com", "", "")
		p.Company = company
		if err := s.CreateProspect(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := s.ListCompanyProspects(ctx, "u1", "Acme Corp")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d prospects, want 3", len(got))
	}
	if none, _ := s.ListCompanyProspects(ctx, "u1", "  "); len(none) != 0 {
		t.Fatalf("blank company matched %d prospects", len(none))
	}
}

func TestSaveProspectKeepsFalseFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := models.NewProspect("u1", "seq", "lead@acme.com", "Lead", "Acme")
	if err := s.CreateProspect(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	p.SendSequenceActive = false
	p.SentMessageIDs = []string{"m1@acme"}
	if err := s.SaveProspect(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetProspect(ctx, "u1", p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SendSequenceActive {
		t.Fatal("expected disarmed prospect")
	}
	if len(got.SentMessageIDs) != 1 || got.SentMessageIDs[0] != "m1@acme" {
		t.Fatalf("sent ids = %v", got.SentMessageIDs)
	}
	if _, err := s.GetProspect(ctx, "u2", p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other user's lookup: %v", err)
	}
}

func TestSequenceConfigLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSequenceConfig(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	cfg := &models.SequenceConfig{
		UserID:               "u1",
		DaysBetweenFollowups: 3,
		NumberOfTouchpoints:  3,
		SearchStartTime:      "09:00",
		SearchEndTime:        "17:00",
		WorkingDays:          []string{"Monday", "Tuesday"},
		Timezone:             "Europe/Berlin",
		AgentFrequencyHours:  1,
		SearchDays:           14,
	}
	if err := s.SaveSequenceConfig(ctx, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	ran := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	if err := s.UpdateLastRun(ctx, "u1", ran); err != nil {
		t.Fatalf("update last run: %v", err)
	}

	// Replacing the config keeps its identity and last run.
	replacement := *cfg
	replacement.ID = ""
	replacement.LastAgentRun = nil
	replacement.Timezone = "UTC"
	if err := s.SaveSequenceConfig(ctx, &replacement); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := s.GetSequenceConfig(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != cfg.ID || got.Timezone != "UTC" {
		t.Fatalf("unexpected config %+v", got)
	}
	if got.LastAgentRun == nil || !got.LastAgentRun.Equal(ran) {
		t.Fatalf("last run = %v, want %v", got.LastAgentRun, ran)
	}

	all, err := s.ListSequenceConfigs(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("list configs: %d %v", len(all), err)
	}
	if err := s.UpdateLastRun(ctx, "missing", ran); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestMailAccountMustBeConnected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acc := &models.MailAccount{UserID: "u1", FromEmail: "me@acme.com"}
	if err := s.SaveMailAccount(ctx, acc); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.GetMailAccount(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("disconnected account returned: %v", err)
	}

	acc.Connected = true
	if err := s.SaveMailAccount(ctx, acc); err != nil {
		t.Fatalf("save connected: %v", err)
	}
	got, err := s.GetMailAccount(ctx, "u1")
	if err != nil || got.FromEmail != "me@acme.com" {
		t.Fatalf("get: %v %v", got, err)
	}
}

func TestTemplatesUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tpls := []models.Template{
		{TouchpointIndex: 2, Subject: "Following up", Body: "b2"},
		{TouchpointIndex: 1, Subject: "Hello", Body: "b1"},
	}
	if err := s.UpsertTemplates(ctx, "seq", tpls); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertTemplates(ctx, "seq", []models.Template{{TouchpointIndex: 1, Subject: "Hi again", Body: "b1"}}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	list, err := s.ListTemplates(ctx, "seq")
	if err != nil || len(list) != 2 {
		t.Fatalf("list: %d %v", len(list), err)
	}
	if list[0].TouchpointIndex != 1 || list[0].Subject != "Hi again" {
		t.Fatalf("unexpected first template %+v", list[0])
	}
	if _, err := s.GetTemplate(ctx, "seq", 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestActivityAndNotifications(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pid := "p1"
	for i, kind := range []models.ActivityKind{models.ActivityRun, models.ActivityEmailSent} {
		entry := &models.ActivityLog{UserID: "u1", Kind: kind, Message: "m", CreatedAt: time.Date(2026, 10, 14, 9, i, 0, 0, time.UTC)}
		if kind == models.ActivityEmailSent {
			entry.ProspectID = &pid
		}
		if err := s.AppendActivity(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	all, err := s.ListActivity(ctx, "u1", "", 0)
	if err != nil || len(all) != 2 || all[0].Kind != models.ActivityEmailSent {
		t.Fatalf("activity = %+v, %v", all, err)
	}
	scoped, _ := s.ListActivity(ctx, "u1", pid, 10)
	if len(scoped) != 1 {
		t.Fatalf("scoped activity = %d entries", len(scoped))
	}

	n := &models.Notification{UserID: "u1", NotificationType: models.NotificationTypeMeetingScheduled, Body: "Booked"}
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatalf("create notification: %v", err)
	}
	if err := s.MarkNotificationRead(ctx, "u2", n.ID, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign mark read: %v", err)
	}
	if err := s.MarkNotificationRead(ctx, "u1", n.ID, time.Now()); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	unread, _ := s.ListNotifications(ctx, "u1", true, 0)
	if len(unread) != 0 {
		t.Fatalf("unread = %d", len(unread))
	}
}
