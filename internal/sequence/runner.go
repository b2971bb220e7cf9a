/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sequence runs one user's outbound sequence: for every active
// prospect it decides, acts through the collaborators, persists the result
// and reports what happened.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/events"
	"github.com/friendsincode/cadence/internal/models"
	"github.com/friendsincode/cadence/internal/prospect"
	"github.com/friendsincode/cadence/internal/store"
	"github.com/friendsincode/cadence/internal/telemetry"
	"github.com/friendsincode/cadence/internal/validation"
	"github.com/friendsincode/cadence/internal/workhours"
)

// Configuration errors. Run returns them without touching any prospect.
var (
	ErrNoMailAccount    = errors.New("no connected mail account")
	ErrNoSequenceConfig = errors.New("no sequence configuration")
	ErrInvalidConfig    = errors.New("invalid sequence configuration")
)

// Per-prospect errors.
var (
	ErrNoSlot          = errors.New("no free meeting slot")
	ErrMissingTemplate = errors.New("missing template")
	ErrInvalidEmail    = errors.New("invalid prospect email")
	ErrPanic           = errors.New("prospect processing panicked")
	// ErrBookingNotSaved wraps a persist failure after a meeting was booked.
	ErrBookingNotSaved = errors.New("meeting booked but prospect not saved")
)

// Runner executes sequence runs.
type Runner struct {
	store      Store
	connector  Connector
	classifier Classifier
	notifier   Notifier
	logger     zerolog.Logger

	now           func() time.Time
	validateEmail func(string) error
}

// Option customizes a Runner.
type Option func(*Runner)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithNotifier sets the event publisher.
func WithNotifier(n Notifier) Option {
	return func(r *Runner) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithEmailValidator replaces the address format check.
func WithEmailValidator(fn func(string) error) Option {
	return func(r *Runner) { r.validateEmail = fn }
}

// New creates a Runner.
func New(st Store, connector Connector, cls Classifier, logger zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		store:         st,
		connector:     connector,
		classifier:    cls,
		notifier:      nopNotifier{},
		logger:        logger.With().Str("component", "sequence").Logger(),
		now:           time.Now,
		validateEmail: checkmail.ValidateFormat,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// settings is a sequence config parsed into the types the engine uses.
type settings struct {
	cfg      *models.SequenceConfig
	policy   workhours.Policy
	decide   prospect.Config
	duration time.Duration
	horizon  int
}

func parseSettings(cfg *models.SequenceConfig) (settings, error) {
	if err := validation.Struct(cfg); err != nil {
		return settings{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	policy, err := workhours.NewPolicy(cfg.SearchStartTime, cfg.SearchEndTime, cfg.WorkingDays, cfg.Timezone)
	if err != nil {
		return settings{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	duration := time.Duration(cfg.MeetingDurationMinutes) * time.Minute
	if duration <= 0 {
		duration = 30 * time.Minute
	}
	horizon := cfg.SearchDays
	if horizon <= 0 {
		horizon = 14
	}
	return settings{
		cfg:      cfg,
		policy:   policy,
		decide:   prospect.ConfigFrom(cfg),
		duration: duration,
		horizon:  horizon,
	}, nil
}

// load applies the configuration guards shared by Run and the previews.
func (r *Runner) load(ctx context.Context, userID string) (*models.MailAccount, settings, error) {
	acc, err := r.store.GetMailAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, settings{}, ErrNoMailAccount
		}
		return nil, settings{}, err
	}
	cfg, err := r.store.GetSequenceConfig(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, settings{}, ErrNoSequenceConfig
		}
		return nil, settings{}, err
	}
	set, err := parseSettings(cfg)
	if err != nil {
		return nil, settings{}, err
	}
	return acc, set, nil
}

// run is the state shared by every prospect of one run.
type run struct {
	userID  string
	account *models.MailAccount
	settings
	mailer   Mailer
	calendar Calendar
	now      time.Time
	logger   zerolog.Logger

	summary Summary
	// engaged holds prospects stopped mid-run by a colleague's booking; their
	// loaded copies are stale and must be skipped.
	engaged map[string]bool
}

// Run processes every active prospect of userID once. Configuration errors
// are returned; per-prospect failures are reported in the summary.
func (r *Runner) Run(ctx context.Context, userID string) (summary Summary, err error) {
	ctx, span := telemetry.StartRunSpan(ctx, userID)
	defer func() { telemetry.EndSpan(span, err) }()

	start := time.Now()
	logger := r.logger.With().Str("user_id", userID).Logger()

	acc, set, err := r.load(ctx, userID)
	if err != nil {
		telemetry.SequenceRunsTotal.WithLabelValues("config_error").Inc()
		r.publish(events.EventRunFailed, events.Payload{"user_id": userID, "error": err.Error()})
		return Summary{}, err
	}

	now := r.now()
	if !set.policy.Allows(now) {
		logger.Debug().Time("now", now).Msg("outside working hours")
		telemetry.SequenceRunsTotal.WithLabelValues(OutcomeOutsideWorkingHours).Inc()
		return Summary{OutsideWorkingHours: true}, nil
	}

	mailer, cal, err := r.connector.Connect(ctx, acc)
	if err != nil {
		telemetry.SequenceRunsTotal.WithLabelValues("config_error").Inc()
		return Summary{}, fmt.Errorf("connect mail account: %w", err)
	}

	prospects, err := r.store.ListActiveProspects(ctx, userID)
	if err != nil {
		return Summary{}, err
	}

	rc := &run{
		userID:   userID,
		account:  acc,
		settings: set,
		mailer:   mailer,
		calendar: cal,
		now:      now,
		logger:   logger,
		engaged:  make(map[string]bool),
	}
	r.publish(events.EventRunStarted, events.Payload{"user_id": userID, "prospects": len(prospects)})

	for i := range prospects {
		if ctx.Err() != nil {
			break
		}
		p := &prospects[i]
		if rc.engaged[p.ID] {
			continue
		}
		r.process(ctx, rc, p)
	}

	summary = rc.summary
	outcome := summary.Outcome()
	telemetry.SequenceRunsTotal.WithLabelValues(outcome).Inc()
	telemetry.SequenceRunDuration.Observe(time.Since(start).Seconds())

	r.activity(ctx, userID, nil, models.ActivityRun,
		fmt.Sprintf("Processed %d prospects: %d sent, %d replies, %d meetings", summary.Processed, summary.EmailsSent, summary.RepliesAnalyzed, summary.MeetingsScheduled),
		summary.Details())
	r.publish(events.EventRunCompleted, events.Payload{
		"user_id":            userID,
		"outcome":            outcome,
		"processed":          summary.Processed,
		"emails_sent":        summary.EmailsSent,
		"replies_analyzed":   summary.RepliesAnalyzed,
		"meetings_scheduled": summary.MeetingsScheduled,
		"errors":             len(summary.Errors),
	})

	logger.Info().
		Str("outcome", outcome).
		Int("processed", summary.Processed).
		Int("emails_sent", summary.EmailsSent).
		Int("replies", summary.RepliesAnalyzed).
		Int("meetings", summary.MeetingsScheduled).
		Int("errors", len(summary.Errors)).
		Dur("elapsed", time.Since(start)).
		Msg("sequence run complete")

	return summary, ctx.Err()
}

func (r *Runner) publish(t events.EventType, p events.Payload) {
	if _, ok := p["event_id"]; !ok {
		p["event_id"] = uuid.NewString()
	}
	r.notifier.Publish(t, p)
}

func (r *Runner) activity(ctx context.Context, userID string, p *models.Prospect, kind models.ActivityKind, msg string, details map[string]any) {
	entry := &models.ActivityLog{
		UserID:  userID,
		Kind:    kind,
		Message: msg,
		Details: details,
	}
	if p != nil {
		id := p.ID
		entry.ProspectID = &id
	}
	if err := r.store.AppendActivity(ctx, entry); err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Str("kind", string(kind)).Msg("append activity")
	}
}
