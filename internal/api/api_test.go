/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/cadence/internal/auth"
	"github.com/friendsincode/cadence/internal/db"
	"github.com/friendsincode/cadence/internal/events"
	"github.com/friendsincode/cadence/internal/models"
	"github.com/friendsincode/cadence/internal/prospect"
	"github.com/friendsincode/cadence/internal/scheduler/state"
	"github.com/friendsincode/cadence/internal/sequence"
	"github.com/friendsincode/cadence/internal/slots"
	"github.com/friendsincode/cadence/internal/store"
)

var secret = []byte("test-secret")

type fakePreview struct {
	slots []slots.Slot
	err   error
}

func (f *fakePreview) PreviewSlots(context.Context, string) ([]slots.Slot, error) {
	return f.slots, f.err
}

func (f *fakePreview) PreviewDecision(_ context.Context, _ string, prospectID string) (sequence.Decision, error) {
	if f.err != nil {
		return sequence.Decision{}, f.err
	}
	return sequence.Decision{Action: prospect.Action{Kind: prospect.SendInitial, Touchpoint: 1}, WithinHours: true, Active: true}, nil
}

type fakeRuns struct {
	summary sequence.Summary
	err     error
	calls   []string
}

func (f *fakeRuns) RunNow(_ context.Context, userID string) (sequence.Summary, error) {
	f.calls = append(f.calls, userID)
	return f.summary, f.err
}

func (f *fakeRuns) Recent(userID string) []state.RecentRun {
	return []state.RecentRun{{UserID: userID, Outcome: sequence.OutcomeActivity}}
}

type harness struct {
	store   *store.Store
	preview *fakePreview
	runs    *fakeRuns
	bus     *events.Bus
	router  http.Handler
	user    *models.User
	token   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st := store.New(database)

	hash, err := auth.HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	user := &models.User{Email: "Sam@Seller.com", Name: "Sam", PasswordHash: hash}
	if err := st.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := auth.Issue(secret, auth.Claims{UserID: user.ID, Email: user.Email}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		store:   st,
		preview: &fakePreview{},
		runs:    &fakeRuns{},
		bus:     events.NewBus(),
		user:    user,
		token:   token,
	}
	r := chi.NewRouter()
	New(st, h.preview, h.runs, h.bus, secret, time.Hour, zerolog.Nop()).Routes(r)
	h.router = r
	return h
}

func (h *harness) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Authorization", "Bearer "+h.token)
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func validSequence() map[string]any {
	return map[string]any{
		"days_between_followups": 3,
		"number_of_touchpoints":  3,
		"search_start_time":      "09:00",
		"search_end_time":        "17:00",
		"working_days":           []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
		"timezone":               "America/New_York",
		"agent_frequency_hours":  1,
	}
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name     string
		body     map[string]string
		wantCode int
	}{
		{"valid", map[string]string{"email": "sam@seller.com", "password": "correct horse"}, http.StatusOK},
		{"wrong password", map[string]string{"email": "sam@seller.com", "password": "nope nope"}, http.StatusUnauthorized},
		{"unknown user", map[string]string{"email": "who@seller.com", "password": "correct horse"}, http.StatusUnauthorized},
		{"missing email", map[string]string{"password": "correct horse"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := h.do(t, http.MethodPost, "/api/v1/auth/login", tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d body=%s", rr.Code, tt.wantCode, rr.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			resp := decode[map[string]any](t, rr)
			token, _ := resp["token"].(string)
			claims, err := auth.Parse(secret, token)
			if err != nil || claims.UserID != h.user.ID {
				t.Fatalf("issued token invalid: %v", err)
			}
		})
	}
}

func TestRequiresAuth(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/prospects", nil)
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestSequenceSettings(t *testing.T) {
	h := newHarness(t)

	if rr := h.do(t, http.MethodGet, "/api/v1/sequence", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("missing sequence status = %d", rr.Code)
	}

	bad := validSequence()
	bad["search_start_time"] = "17:00"
	bad["search_end_time"] = "09:00"
	if rr := h.do(t, http.MethodPut, "/api/v1/sequence", bad); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("inverted window status = %d", rr.Code)
	}

	badTZ := validSequence()
	badTZ["timezone"] = "Mars/Olympus"
	if rr := h.do(t, http.MethodPut, "/api/v1/sequence", badTZ); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad timezone status = %d", rr.Code)
	}

	body := validSequence()
	body["id"] = "someone-elses-id"
	rr := h.do(t, http.MethodPut, "/api/v1/sequence", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("put status = %d body=%s", rr.Code, rr.Body.String())
	}
	saved := decode[models.SequenceConfig](t, rr)
	if saved.ID == "someone-elses-id" || saved.UserID != h.user.ID {
		t.Fatalf("identity taken from body: %+v", saved)
	}
	if saved.MeetingDurationMinutes != 30 || saved.SearchDays != 14 {
		t.Fatalf("defaults not applied: %+v", saved)
	}

	rr = h.do(t, http.MethodGet, "/api/v1/sequence", nil)
	got := decode[models.SequenceConfig](t, rr)
	if got.ID != saved.ID || got.Timezone != "America/New_York" {
		t.Fatalf("get = %+v", got)
	}
}

func TestTemplatesImport(t *testing.T) {
	h := newHarness(t)
	if rr := h.do(t, http.MethodPut, "/api/v1/sequence", validSequence()); rr.Code != http.StatusOK {
		t.Fatalf("put sequence: %d", rr.Code)
	}

	yamlBody := `templates:
  - touchpoint: 1
    subject: "Hello {{.Company}}"
    body: "Hi {{.FirstName}}"
  - touchpoint: 2
    subject: "Following up"
    body: "Any thoughts?"
`
	rr := h.do(t, http.MethodPut, "/api/v1/sequence/templates", yamlBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("import status = %d body=%s", rr.Code, rr.Body.String())
	}
	resp := decode[map[string][]models.Template](t, rr)
	if len(resp["templates"]) != 2 {
		t.Fatalf("templates = %+v", resp)
	}

	gap := "templates:\n  - touchpoint: 2\n    subject: s\n    body: b\n"
	if rr := h.do(t, http.MethodPut, "/api/v1/sequence/templates", gap); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("gap status = %d", rr.Code)
	}
	if rr := h.do(t, http.MethodPut, "/api/v1/sequence/templates", "templates: [oops"); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad yaml status = %d", rr.Code)
	}
}

func TestProspectsLifecycle(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodPost, "/api/v1/prospects", map[string]string{"email": "Dana@Acme.com", "name": "Dana Smith", "company": "Acme"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rr.Code, rr.Body.String())
	}
	created := decode[models.Prospect](t, rr)
	if created.Email != "dana@acme.com" || !created.SendSequenceActive || created.State != models.ProspectStateNew {
		t.Fatalf("created = %+v", created)
	}

	if rr := h.do(t, http.MethodPost, "/api/v1/prospects", map[string]string{"email": "dana@acme.com"}); rr.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d", rr.Code)
	}
	if rr := h.do(t, http.MethodPost, "/api/v1/prospects", map[string]string{"email": "not-an-email"}); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid email status = %d", rr.Code)
	}

	rr = h.do(t, http.MethodGet, "/api/v1/prospects?state=new", nil)
	list := decode[struct {
		Prospects []models.Prospect `json:"prospects"`
		Total     int64             `json:"total"`
	}](t, rr)
	if list.Total != 1 || len(list.Prospects) != 1 {
		t.Fatalf("list = %+v", list)
	}
	if rr := h.do(t, http.MethodGet, "/api/v1/prospects?state=bogus", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad state filter status = %d", rr.Code)
	}

	if rr := h.do(t, http.MethodGet, "/api/v1/prospects/"+created.ID+"/decision", nil); rr.Code != http.StatusOK {
		t.Fatalf("decision status = %d", rr.Code)
	}
	if rr := h.do(t, http.MethodGet, "/api/v1/prospects/missing", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("missing prospect status = %d", rr.Code)
	}

	sub := h.bus.Subscribe(events.EventStateChanged)
	defer h.bus.Unsubscribe(events.EventStateChanged, sub)

	rr = h.do(t, http.MethodPost, "/api/v1/prospects/"+created.ID+"/actions", map[string]string{"action": "pause"})
	if rr.Code != http.StatusOK {
		t.Fatalf("pause status = %d body=%s", rr.Code, rr.Body.String())
	}
	paused := decode[models.Prospect](t, rr)
	if paused.State != models.ProspectStateTerminal || paused.Reason != models.ReasonPaused || paused.SendSequenceActive {
		t.Fatalf("paused = %+v", paused)
	}
	select {
	case payload := <-sub:
		if payload.UserID() != h.user.ID || payload["event_id"] == nil {
			t.Fatalf("payload = %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("expected state changed event")
	}

	if rr := h.do(t, http.MethodPost, "/api/v1/prospects/"+created.ID+"/actions", map[string]string{"action": "pause"}); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("double pause status = %d", rr.Code)
	}
	if rr := h.do(t, http.MethodPost, "/api/v1/prospects/"+created.ID+"/actions", map[string]string{"action": "explode"}); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown action status = %d", rr.Code)
	}
	if rr := h.do(t, http.MethodPost, "/api/v1/prospects/"+created.ID+"/actions", map[string]string{"action": "mark_meeting"}); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("meeting without time status = %d", rr.Code)
	}

	rr = h.do(t, http.MethodPost, "/api/v1/prospects/"+created.ID+"/actions", map[string]string{"action": "resume"})
	resumed := decode[models.Prospect](t, rr)
	if resumed.State != models.ProspectStateNew || !resumed.SendSequenceActive {
		t.Fatalf("resumed = %+v", resumed)
	}

	rr = h.do(t, http.MethodGet, "/api/v1/prospects/"+created.ID+"/activity", nil)
	activity := decode[map[string][]models.ActivityLog](t, rr)
	if len(activity["activity"]) != 3 {
		t.Fatalf("activity entries = %d, want 3", len(activity["activity"]))
	}
}

func TestProspectsAreScopedToOwner(t *testing.T) {
	h := newHarness(t)
	other := models.NewProspect("someone-else", "", "lee@globex.com", "Lee", "Globex")
	if err := h.store.CreateProspect(context.Background(), other); err != nil {
		t.Fatal(err)
	}
	if rr := h.do(t, http.MethodGet, "/api/v1/prospects/"+other.ID, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	if rr := h.do(t, http.MethodPost, "/api/v1/prospects/"+other.ID+"/actions", map[string]string{"action": "pause"}); rr.Code != http.StatusNotFound {
		t.Fatalf("action status = %d, want 404", rr.Code)
	}
}

func TestRunsAndSlots(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"no mail account", fmt.Errorf("load: %w", sequence.ErrNoMailAccount), http.StatusConflict},
		{"no config", sequence.ErrNoSequenceConfig, http.StatusConflict},
		{"invalid config", sequence.ErrInvalidConfig, http.StatusUnprocessableEntity},
		{"ok", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.runs.err = tt.err
			h.runs.summary = sequence.Summary{Processed: 2, EmailsSent: 1}
			rr := h.do(t, http.MethodPost, "/api/v1/runs", nil)
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if tt.err == nil {
				resp := decode[map[string]any](t, rr)
				if resp["outcome"] != sequence.OutcomeActivity || resp["emails_sent"] != float64(1) {
					t.Fatalf("resp = %v", resp)
				}
			}
		})
	}
	if h.runs.calls[0] != h.user.ID {
		t.Fatalf("run triggered for %q", h.runs.calls[0])
	}

	start := time.Date(2026, 10, 15, 13, 0, 0, 0, time.UTC)
	h.preview.slots = []slots.Slot{
		{Start: start, End: start.Add(30 * time.Minute)},
		{Start: start.Add(30 * time.Minute), End: start.Add(time.Hour)},
	}
	rr := h.do(t, http.MethodGet, "/api/v1/slots?limit=1", nil)
	resp := decode[map[string][]slotResponse](t, rr)
	if len(resp["slots"]) != 1 || !resp["slots"][0].Start.Equal(start) {
		t.Fatalf("slots = %+v", resp)
	}
}

func TestNotifications(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	n := &models.Notification{
		ID:               "6f1c2a8e-0000-4000-8000-000000000001",
		UserID:           h.user.ID,
		NotificationType: models.NotificationTypeMeetingScheduled,
		Body:             "Meeting booked",
	}
	if err := h.store.CreateNotification(ctx, n); err != nil {
		t.Fatal(err)
	}

	rr := h.do(t, http.MethodGet, "/api/v1/notifications/unread-count", nil)
	if got := decode[map[string]int64](t, rr)["unread_count"]; got != 1 {
		t.Fatalf("unread = %d", got)
	}
	if rr := h.do(t, http.MethodPost, "/api/v1/notifications/"+n.ID+"/read", nil); rr.Code != http.StatusOK {
		t.Fatalf("read status = %d", rr.Code)
	}
	if rr := h.do(t, http.MethodPost, "/api/v1/notifications/"+n.ID+"/read", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("re-read status = %d, want 404", rr.Code)
	}
	rr = h.do(t, http.MethodGet, "/api/v1/notifications?unread_only=true", nil)
	list := decode[map[string]any](t, rr)
	if items, _ := list["notifications"].([]any); len(items) != 0 {
		t.Fatalf("unread list = %v", items)
	}
}

func TestMailAccount(t *testing.T) {
	h := newHarness(t)
	if rr := h.do(t, http.MethodGet, "/api/v1/mail-account", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("missing account status = %d", rr.Code)
	}
	body := map[string]any{
		"from_name": "Sam", "from_email": "Sam@Seller.com",
		"smtp_host": "smtp.seller.com", "smtp_port": 587, "smtp_password": "s3cret",
		"imap_host": "imap.seller.com", "imap_port": 993, "imap_tls": true,
	}
	rr := h.do(t, http.MethodPut, "/api/v1/mail-account", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("put status = %d body=%s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "s3cret") {
		t.Fatal("password echoed in response")
	}
	acc, err := h.store.GetMailAccount(context.Background(), h.user.ID)
	if err != nil {
		t.Fatalf("account not connected: %v", err)
	}
	if acc.FromEmail != "sam@seller.com" || acc.SMTPPassword != "s3cret" || acc.Inbox != "INBOX" {
		t.Fatalf("account = %+v", acc)
	}
}

func TestEventsStreamOnlyCallersEvents(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + auth.EventsPath + "?types=" + string(events.EventEmailSent) + "&token=" + h.token
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	// The subscription is registered after the upgrade; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for h.bus.Count(events.EventEmailSent) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.bus.Publish(events.EventEmailSent, events.Payload{"user_id": "someone-else", "prospect_id": "p-other"})
	h.bus.Publish(events.EventEmailSent, events.Payload{"user_id": h.user.ID, "prospect_id": "p-mine"})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got wsEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if got.Type != events.EventEmailSent || got.Payload["prospect_id"] != "p-mine" {
		t.Fatalf("event = %+v", got)
	}
}

func TestEventsRejectQueryTokenOutsideUpgrade(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/prospects?token="+h.token, nil)
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}
