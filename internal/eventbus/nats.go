/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/events"
)

const natsSubjectPrefix = "cadence.events."

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Token         string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBus relays events through core NATS subjects, one per event type.
type NATSBus struct {
	conn   *nats.Conn
	local  *events.Bus
	logger zerolog.Logger
	nodeID string

	mu   sync.Mutex
	subs map[events.EventType]*nats.Subscription
}

// NewNATSBus connects to NATS. Unlike Redis there is no silent fallback:
// choosing NATS explicitly makes a failed connection a startup error.
func NewNATSBus(cfg NATSConfig, nodeID string, logger zerolog.Logger) (*NATSBus, error) {
	logger = logger.With().Str("component", "eventbus").Str("backend", "nats").Logger()

	opts := []nats.Option{
		nats.Name("cadence-" + nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	return &NATSBus{
		conn:   conn,
		local:  events.NewBus(),
		logger: logger,
		nodeID: nodeID,
		subs:   make(map[events.EventType]*nats.Subscription),
	}, nil
}

// Subscribe registers a local subscriber and relays remote events.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := nb.local.Subscribe(eventType)

	nb.mu.Lock()
	defer nb.mu.Unlock()
	if _, ok := nb.subs[eventType]; ok {
		return sub
	}
	ns, err := nb.conn.Subscribe(natsSubjectPrefix+string(eventType), func(msg *nats.Msg) {
		env, err := decodeEnvelope(msg.Data)
		if err != nil {
			nb.logger.Warn().Err(err).Msg("dropping malformed nats event")
			return
		}
		if env.NodeID == nb.nodeID {
			return
		}
		nb.local.Publish(eventType, env.Payload)
	})
	if err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("nats subscribe failed")
		return sub
	}
	nb.subs[eventType] = ns
	return sub
}

// Publish delivers locally and to NATS.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)

	data, err := encodeEnvelope(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Msg("encode event")
		return
	}
	if err := nb.conn.Publish(natsSubjectPrefix+string(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("publish to nats failed")
	}
}

// Unsubscribe removes a local subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)
	if nb.local.Count(eventType) > 0 {
		return
	}
	nb.mu.Lock()
	defer nb.mu.Unlock()
	if ns, ok := nb.subs[eventType]; ok {
		_ = ns.Unsubscribe()
		delete(nb.subs, eventType)
	}
}

// Close drains the connection.
func (nb *NATSBus) Close() error {
	return nb.conn.Drain()
}
