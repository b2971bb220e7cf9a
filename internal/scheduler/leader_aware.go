/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Elector is the leader election the wrapper follows.
type Elector interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
	LeaderCh() <-chan bool
}

// Loop is a blocking scheduler loop.
type Loop interface {
	Run(ctx context.Context) error
}

// LeaderAwareScheduler wraps a scheduler and only runs it while this
// instance is the leader.
type LeaderAwareScheduler struct {
	scheduler Loop
	election  Elector
	logger    zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewLeaderAware creates a leader-aware scheduler wrapper.
func NewLeaderAware(scheduler Loop, election Elector, logger zerolog.Logger) *LeaderAwareScheduler {
	return &LeaderAwareScheduler{
		scheduler: scheduler,
		election:  election,
		logger:    logger.With().Str("component", "leader_aware_scheduler").Logger(),
	}
}

// Start begins monitoring leadership and manages the scheduler lifecycle.
func (las *LeaderAwareScheduler) Start(ctx context.Context) error {
	las.mu.Lock()
	las.ctx = ctx
	las.mu.Unlock()

	las.logger.Info().Msg("starting leader-aware scheduler")
	if err := las.election.Start(ctx); err != nil {
		return err
	}
	go las.monitorLeadership(ctx)
	return nil
}

// Stop halts the scheduler and releases leadership.
func (las *LeaderAwareScheduler) Stop() error {
	las.logger.Info().Msg("stopping leader-aware scheduler")
	las.stopScheduler()
	return las.election.Stop()
}

func (las *LeaderAwareScheduler) monitorLeadership(ctx context.Context) {
	leaderCh := las.election.LeaderCh()

	if las.election.IsLeader() {
		las.startScheduler()
	}

	for {
		select {
		case <-ctx.Done():
			las.stopScheduler()
			return
		case isLeader, ok := <-leaderCh:
			if !ok {
				las.stopScheduler()
				return
			}
			if isLeader {
				las.logger.Info().Msg("became leader, starting scheduler")
				las.startScheduler()
			} else {
				las.logger.Warn().Msg("lost leadership, stopping scheduler")
				las.stopScheduler()
			}
		}
	}
}

func (las *LeaderAwareScheduler) startScheduler() {
	las.mu.Lock()
	defer las.mu.Unlock()
	if las.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(las.ctx)
	stopped := make(chan struct{})
	las.cancel = cancel
	las.stopped = stopped

	go func() {
		defer close(stopped)
		las.logger.Info().Msg("scheduler started")
		if err := las.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			las.logger.Error().Err(err).Msg("scheduler error")
		}
		las.logger.Info().Msg("scheduler stopped")
	}()
}

// stopScheduler cancels the loop and waits for it to return, including any
// runs the current tick started.
func (las *LeaderAwareScheduler) stopScheduler() {
	las.mu.Lock()
	cancel, stopped := las.cancel, las.stopped
	las.cancel, las.stopped = nil, nil
	las.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

// Active reports whether the wrapped scheduler loop is running here.
func (las *LeaderAwareScheduler) Active() bool {
	las.mu.Lock()
	defer las.mu.Unlock()
	return las.cancel != nil
}

// IsLeader returns whether this instance is the leader.
func (las *LeaderAwareScheduler) IsLeader() bool {
	return las.election.IsLeader()
}
