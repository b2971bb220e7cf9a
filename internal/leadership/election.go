/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects a single scheduler leader across instances
// using a Redis lease.
package leadership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/telemetry"
)

const (
	defaultElectionKey     = "cadence:leader:scheduler"
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalInterval = 5 * time.Second
	defaultRetryInterval   = 2 * time.Second
)

// renewScript extends the lease only while we still own it.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ElectionConfig configures leader election behavior.
type ElectionConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ElectionKey is the Redis key holding the leader's instance id.
	ElectionKey string

	// LeaseDuration is how long a lease survives without renewal.
	LeaseDuration time.Duration

	// RenewalInterval is how often the leader renews.
	RenewalInterval time.Duration

	// RetryInterval is how often followers try to take over.
	RetryInterval time.Duration

	InstanceID string
}

// DefaultConfig returns default election configuration.
func DefaultConfig() ElectionConfig {
	return ElectionConfig{
		RedisAddr:       "localhost:6379",
		ElectionKey:     defaultElectionKey,
		LeaseDuration:   defaultLeaseDuration,
		RenewalInterval: defaultRenewalInterval,
		RetryInterval:   defaultRetryInterval,
		InstanceID:      uuid.NewString(),
	}
}

func (c ElectionConfig) withDefaults() ElectionConfig {
	if c.ElectionKey == "" {
		c.ElectionKey = defaultElectionKey
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = defaultLeaseDuration
	}
	if c.RenewalInterval <= 0 {
		c.RenewalInterval = defaultRenewalInterval
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.NewString()
	}
	return c
}

// Election manages distributed leader election using Redis.
type Election struct {
	client *redis.Client
	logger zerolog.Logger
	config ElectionConfig

	isLeader atomic.Bool
	leaderCh chan bool

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewElection connects to Redis and returns an idle election.
func NewElection(config ElectionConfig, logger zerolog.Logger) (*Election, error) {
	config = config.withDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis for leader election: %w", err)
	}

	return &Election{
		client:   client,
		logger:   logger.With().Str("component", "leader_election").Str("instance_id", config.InstanceID).Logger(),
		config:   config,
		leaderCh: make(chan bool, 1),
		done:     make(chan struct{}),
	}, nil
}

// Start begins campaigning in the background.
func (e *Election) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.logger.Info().Dur("lease", e.config.LeaseDuration).Msg("starting leader election")
	go e.campaignLoop(ctx)
	return nil
}

// Stop ends the campaign, releases a held lease and closes the client.
func (e *Election) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
			<-e.done
		}
		if e.isLeader.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if relErr := releaseScript.Run(ctx, e.client, []string{e.config.ElectionKey}, e.config.InstanceID).Err(); relErr != nil {
				e.logger.Error().Err(relErr).Msg("failed to release leadership")
			}
			e.setLeader(false)
		}
		err = e.client.Close()
	})
	return err
}

// IsLeader returns whether this instance currently holds the lease.
func (e *Election) IsLeader() bool {
	return e.isLeader.Load()
}

// LeaderCh receives leadership transitions.
func (e *Election) LeaderCh() <-chan bool {
	return e.leaderCh
}

// GetLeader returns the current leader's instance id, or "" when vacant.
func (e *Election) GetLeader(ctx context.Context) (string, error) {
	id, err := e.client.Get(ctx, e.config.ElectionKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get leader: %w", err)
	}
	return id, nil
}

func (e *Election) campaignLoop(ctx context.Context) {
	defer close(e.done)

	e.attempt(ctx)
	for {
		interval := e.config.RetryInterval
		if e.isLeader.Load() {
			interval = e.config.RenewalInterval
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			e.attempt(ctx)
		}
	}
}

func (e *Election) attempt(ctx context.Context) {
	held, err := e.acquire(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error().Err(err).Msg("leader election round failed")
		}
		held = false
	}
	e.setLeader(held)
}

// acquire takes the lease when vacant or renews it when ours.
func (e *Election) acquire(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.config.ElectionKey, e.config.InstanceID, e.config.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("set lease: %w", err)
	}
	if ok {
		return true, nil
	}
	renewed, err := renewScript.Run(ctx, e.client, []string{e.config.ElectionKey},
		e.config.InstanceID, e.config.LeaseDuration.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return renewed == 1, nil
}

func (e *Election) setLeader(leader bool) {
	if e.isLeader.Swap(leader) == leader {
		return
	}
	if leader {
		e.logger.Info().Msg("acquired leadership")
		telemetry.LeaderElectionStatus.Set(1)
	} else {
		e.logger.Warn().Msg("lost leadership")
		telemetry.LeaderElectionStatus.Set(0)
	}
	telemetry.LeaderElectionChanges.Inc()

	// Keep only the latest transition.
	select {
	case <-e.leaderCh:
	default:
	}
	select {
	case e.leaderCh <- leader:
	default:
	}
}
