/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/events"
)

const redisChannelPrefix = "cadence:events:"

// RedisBus fans events out across instances through Redis pub/sub. Local
// subscribers always go through an in-process bus, remote messages are
// re-published onto it, and our own messages are skipped on the way back.
type RedisBus struct {
	client *redis.Client
	local  *events.Bus
	logger zerolog.Logger
	nodeID string

	mu       sync.Mutex
	channels map[events.EventType]*redis.PubSub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Circuit breaker state
	failMu      sync.Mutex
	useFallback bool
	failCount   int
	maxFails    int
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxFailures consecutive publish failures switch the bus to local-only.
	MaxFailures int
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxFailures:  5,
	}
}

// NewRedisBus creates a Redis-backed event bus. When Redis is unreachable at
// startup the bus runs on the in-process fallback only.
func NewRedisBus(cfg RedisConfig, nodeID string, logger zerolog.Logger) *RedisBus {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	return newRedisBus(client, cfg.MaxFailures, nodeID, logger)
}

func newRedisBus(client *redis.Client, maxFails int, nodeID string, logger zerolog.Logger) *RedisBus {
	if maxFails <= 0 {
		maxFails = 5
	}
	ctx, cancel := context.WithCancel(context.Background())
	rb := &RedisBus{
		client:   client,
		local:    events.NewBus(),
		logger:   logger.With().Str("component", "eventbus").Str("backend", "redis").Logger(),
		nodeID:   nodeID,
		channels: make(map[events.EventType]*redis.PubSub),
		ctx:      ctx,
		cancel:   cancel,
		maxFails: maxFails,
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		rb.logger.Warn().Err(err).Msg("redis unavailable, using in-memory event bus")
		rb.useFallback = true
	}
	return rb
}

// Subscribe registers a local subscriber and makes sure remote events of
// the type are relayed.
func (rb *RedisBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := rb.local.Subscribe(eventType)
	if rb.fallback() {
		return sub
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if _, ok := rb.channels[eventType]; !ok {
		pubsub := rb.client.Subscribe(rb.ctx, redisChannelPrefix+string(eventType))
		rb.channels[eventType] = pubsub
		rb.wg.Add(1)
		go rb.relay(eventType, pubsub)
	}
	return sub
}

func (rb *RedisBus) relay(eventType events.EventType, pubsub *redis.PubSub) {
	defer rb.wg.Done()
	ch := pubsub.Channel()
	for {
		select {
		case <-rb.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			env, err := decodeEnvelope([]byte(msg.Payload))
			if err != nil {
				rb.logger.Warn().Err(err).Msg("dropping malformed redis event")
				continue
			}
			if env.NodeID == rb.nodeID {
				continue
			}
			rb.local.Publish(eventType, env.Payload)
		}
	}
}

// Publish delivers locally and, unless the breaker is open, to Redis.
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	rb.local.Publish(eventType, payload)
	if rb.fallback() {
		return
	}

	data, err := encodeEnvelope(eventType, payload, rb.nodeID)
	if err != nil {
		rb.logger.Error().Err(err).Msg("encode event")
		return
	}

	ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
	defer cancel()
	if err := rb.client.Publish(ctx, redisChannelPrefix+string(eventType), data).Err(); err != nil {
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("publish to redis failed")
		rb.recordFailure()
		return
	}
	rb.failMu.Lock()
	rb.failCount = 0
	rb.failMu.Unlock()
}

// Unsubscribe removes a local subscriber. The relay stays up when other
// subscribers remain.
func (rb *RedisBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	rb.local.Unsubscribe(eventType, sub)
	if rb.local.Count(eventType) > 0 {
		return
	}
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if pubsub, ok := rb.channels[eventType]; ok {
		_ = pubsub.Close()
		delete(rb.channels, eventType)
	}
}

// Close stops relays and the client.
func (rb *RedisBus) Close() error {
	rb.cancel()
	rb.mu.Lock()
	for eventType, pubsub := range rb.channels {
		_ = pubsub.Close()
		delete(rb.channels, eventType)
	}
	rb.mu.Unlock()
	rb.wg.Wait()
	return rb.client.Close()
}

func (rb *RedisBus) fallback() bool {
	rb.failMu.Lock()
	defer rb.failMu.Unlock()
	return rb.useFallback
}

func (rb *RedisBus) recordFailure() {
	rb.failMu.Lock()
	defer rb.failMu.Unlock()
	rb.failCount++
	if rb.failCount >= rb.maxFails && !rb.useFallback {
		rb.logger.Warn().Int("fail_count", rb.failCount).Msg("redis failure threshold reached, switching to in-memory event bus")
		rb.useFallback = true
	}
}
