/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/friendsincode/cadence/internal/models"
	"github.com/friendsincode/cadence/internal/scheduler/state"
	"github.com/friendsincode/cadence/internal/sequence"
	"github.com/friendsincode/cadence/internal/telemetry"
	"github.com/friendsincode/cadence/internal/workhours"
)

// ErrRunInProgress is returned by RunNow while the user's previous run is
// still going.
var ErrRunInProgress = errors.New("sequence run already in progress")

// Store is the persistence the scheduler needs.
type Store interface {
	ListSequenceConfigs(ctx context.Context) ([]models.SequenceConfig, error)
	UpdateLastRun(ctx context.Context, userID string, at time.Time) error
}

// Runner executes one user's sequence.
type Runner interface {
	Run(ctx context.Context, userID string) (sequence.Summary, error)
}

// Service polls sequence configs and runs the users that are due.
type Service struct {
	store       Store
	runner      Runner
	state       *state.Store
	logger      zerolog.Logger
	tick        time.Duration
	concurrency int
	now         func() time.Time

	mu        sync.Mutex
	lastPrune time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTick sets the poll interval.
func WithTick(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithConcurrency bounds how many users run at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New constructs the scheduler service.
func New(st Store, runner Runner, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:       st,
		runner:      runner,
		state:       state.NewStore(0),
		logger:      logger.With().Str("component", "scheduler").Logger(),
		tick:        time.Minute,
		concurrency: 4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes the scheduler loop until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info().Dur("tick", s.tick).Int("concurrency", s.concurrency).Msg("scheduler loop started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one polling pass and waits for the runs it started.
func (s *Service) Tick(ctx context.Context) {
	telemetry.SchedulerTicksTotal.Inc()

	configs, err := s.store.ListSequenceConfigs(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduler failed to load sequence configs")
		telemetry.SchedulerErrorsTotal.WithLabelValues("load_configs").Inc()
		return
	}

	now := s.now()
	// Runs started by this tick outlive cancellation of the loop.
	runCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range configs {
		cfg := configs[i]
		gate, err := s.gate(cfg, now)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", cfg.UserID).Msg("skipping invalid sequence config")
			telemetry.SchedulerErrorsTotal.WithLabelValues("invalid_config").Inc()
			continue
		}
		telemetry.SchedulerGateTotal.WithLabelValues(string(gate.Reason)).Inc()
		if !gate.Run {
			continue
		}
		g.Go(func() error {
			_, err := s.runUser(runCtx, cfg.UserID, "schedule", now)
			if errors.Is(err, ErrRunInProgress) {
				s.logger.Debug().Str("user_id", cfg.UserID).Msg("previous run still in progress")
			}
			return nil
		})
	}
	_ = g.Wait()

	s.maybePrune(now)
}

func (s *Service) gate(cfg models.SequenceConfig, now time.Time) (Gate, error) {
	if cfg.Paused {
		return Gate{Reason: ReasonPaused}, nil
	}
	policy, err := workhours.NewPolicy(cfg.SearchStartTime, cfg.SearchEndTime, cfg.WorkingDays, cfg.Timezone)
	if err != nil {
		return Gate{}, err
	}
	return ShouldRun(now, cfg.LastAgentRun, cfg.AgentFrequencyHours, policy), nil
}

// RunNow runs userID immediately, ignoring frequency and pause. Working
// hours still apply inside the runner.
func (s *Service) RunNow(ctx context.Context, userID string) (sequence.Summary, error) {
	return s.runUser(ctx, userID, "manual", s.now())
}

// Recent returns the recent runs of userID, newest first.
func (s *Service) Recent(userID string) []state.RecentRun {
	return s.state.Recent(userID)
}

// Running reports whether userID has a run in flight.
func (s *Service) Running(userID string) bool {
	return s.state.Running(userID)
}

// runUser holds the per-user lock for one run and stamps LastAgentRun with
// the tick instant whether or not the run succeeded.
func (s *Service) runUser(ctx context.Context, userID, trigger string, at time.Time) (sequence.Summary, error) {
	if !s.state.TryLock(userID) {
		return sequence.Summary{}, ErrRunInProgress
	}
	defer s.state.Unlock(userID)

	started := s.now()
	summary, err := s.runner.Run(ctx, userID)

	if uerr := s.store.UpdateLastRun(ctx, userID, at); uerr != nil {
		s.logger.Error().Err(uerr).Str("user_id", userID).Msg("failed to record last run")
		telemetry.SchedulerErrorsTotal.WithLabelValues("update_last_run").Inc()
	}

	rec := state.RecentRun{
		UserID:     userID,
		Trigger:    trigger,
		Outcome:    summary.Outcome(),
		StartedAt:  started,
		FinishedAt: s.now(),
	}
	if err != nil {
		rec.Outcome = "failed"
		rec.Error = err.Error()
		s.logger.Warn().Err(err).Str("user_id", userID).Str("trigger", trigger).Msg("sequence run failed")
		telemetry.SchedulerErrorsTotal.WithLabelValues("run").Inc()
	}
	s.state.Add(rec)

	if err != nil {
		return summary, fmt.Errorf("run %s: %w", userID, err)
	}
	return summary, nil
}

// maybePrune drops run history older than a day, at most once an hour.
func (s *Service) maybePrune(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastPrune) < time.Hour {
		return
	}
	s.lastPrune = now
	s.state.Prune(now.Add(-24 * time.Hour))
}
