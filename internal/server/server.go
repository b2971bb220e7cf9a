/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/cadence/internal/api"
	"github.com/friendsincode/cadence/internal/classifier"
	"github.com/friendsincode/cadence/internal/config"
	"github.com/friendsincode/cadence/internal/db"
	"github.com/friendsincode/cadence/internal/eventbus"
	"github.com/friendsincode/cadence/internal/events"
	"github.com/friendsincode/cadence/internal/leadership"
	"github.com/friendsincode/cadence/internal/notifications"
	"github.com/friendsincode/cadence/internal/scheduler"
	"github.com/friendsincode/cadence/internal/sequence"
	"github.com/friendsincode/cadence/internal/store"
	"github.com/friendsincode/cadence/internal/telemetry"
	"github.com/friendsincode/cadence/internal/webhooks"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db                   *gorm.DB
	store                *store.Store
	bus                  events.Broker
	api                  *api.API
	runner               *sequence.Runner
	scheduler            *scheduler.Service
	leaderAwareScheduler *scheduler.LeaderAwareScheduler
	notificationSvc      *notifications.Service
	webhookSvc           *webhooks.Service

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	if len(cfg.CORSAllowedOrigins) > 0 {
		router.Use(corsMiddleware(cfg.CORSAllowedOrigins))
	}
	router.Use(telemetry.TracingMiddleware("cadence-api"))
	router.Use(telemetry.MetricsMiddleware)
	// The event stream is long lived; every other request gets a deadline.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays 0 for the websocket; the middleware bounds the rest.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// corsMiddleware admits browser dashboards on the listed origins. Tokens
// travel in the Authorization header, so credentials stay off.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}).Handler
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	s.store = store.New(database)

	bus, err := s.newBus()
	if err != nil {
		return err
	}
	s.bus = bus

	s.runner = sequence.New(
		s.store,
		sequence.AccountConnector{
			DB:              database,
			BaseURL:         s.cfg.BaseURL,
			MeetingLinkBase: s.cfg.MeetingLinkBase,
			Logger:          s.logger,
		},
		s.newClassifier(),
		s.logger,
		sequence.WithNotifier(s.bus),
	)

	s.scheduler = scheduler.New(s.store, s.runner, s.logger,
		scheduler.WithTick(s.cfg.SchedulerTick),
		scheduler.WithConcurrency(s.cfg.SchedulerConcurrency),
	)

	if s.cfg.SchedulerEnabled && s.cfg.LeaderElectionEnabled {
		election, err := leadership.NewElection(leadership.ElectionConfig{
			RedisAddr:     s.cfg.RedisAddr,
			RedisPassword: s.cfg.RedisPassword,
			RedisDB:       s.cfg.RedisDB,
			ElectionKey:   "cadence:leader:scheduler",
			InstanceID:    eventbus.NodeID(s.cfg.InstanceID),
		}, s.logger)
		if err != nil {
			return fmt.Errorf("create leader election: %w", err)
		}
		s.leaderAwareScheduler = scheduler.NewLeaderAware(s.scheduler, election, s.logger)
		s.DeferClose(func() error { return s.leaderAwareScheduler.Stop() })

		s.logger.Info().
			Str("instance_id", eventbus.NodeID(s.cfg.InstanceID)).
			Msg("leader election enabled for scheduler")
	}

	s.notificationSvc = notifications.NewService(s.store, s.bus, s.logger)
	if len(s.cfg.WebhookURLs) > 0 {
		s.webhookSvc = webhooks.NewService(webhooks.Config{
			URLs:   s.cfg.WebhookURLs,
			Secret: s.cfg.WebhookSecret,
		}, s.bus, s.logger)
	}

	s.api = api.New(s.store, s.runner, s.scheduler, s.bus, []byte(s.cfg.JWTSigningKey), s.cfg.JWTTTL, s.logger)
	return nil
}

// newBus picks the event fan-out backend. Multi-instance deployments need
// Redis or NATS so the websocket on one node sees runs on another.
func (s *Server) newBus() (events.Broker, error) {
	nodeID := eventbus.NodeID(s.cfg.InstanceID)
	switch s.cfg.EventBus {
	case config.EventBusRedis:
		rc := eventbus.DefaultRedisConfig()
		rc.Addr = s.cfg.RedisAddr
		rc.Password = s.cfg.RedisPassword
		rc.DB = s.cfg.RedisDB
		bus := eventbus.NewRedisBus(rc, nodeID, s.logger)
		s.DeferClose(bus.Close)
		return bus, nil
	case config.EventBusNATS:
		nc := eventbus.DefaultNATSConfig()
		nc.URL = s.cfg.NATSURL
		bus, err := eventbus.NewNATSBus(nc, nodeID, s.logger)
		if err != nil {
			return nil, fmt.Errorf("connect nats event bus: %w", err)
		}
		s.DeferClose(bus.Close)
		return bus, nil
	}
	return events.NewBus(), nil
}

func (s *Server) newClassifier() classifier.Classifier {
	if s.cfg.ClassifierURL == "" {
		s.logger.Warn().Msg("no classifier url configured; using keyword classifier")
		return classifier.KeywordClassifier{}
	}
	return classifier.NewHTTPClassifier(s.cfg.ClassifierURL, s.cfg.ClassifierAPIKey, s.cfg.ClassifierTimeout, s.logger)
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Start scheduler (leader-aware if configured, otherwise direct)
	switch {
	case !s.cfg.SchedulerEnabled:
		s.logger.Info().Msg("scheduler disabled; runs only start on request")
	case s.leaderAwareScheduler != nil:
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.leaderAwareScheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("leader-aware scheduler exited")
			}
		}()
	default:
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("scheduler loop exited")
			}
		}()
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.notificationSvc.Start(ctx)
	}()

	if s.webhookSvc != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.webhookSvc.Start(ctx)
		}()
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", s.handleHealthz)

	if s.cfg.MetricsEnabled {
		s.router.Handle("/metrics", telemetry.Handler())
	}

	s.api.Routes(s.router)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	response := `{"status":"ok"`

	if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(r.Context()) != nil {
		status = http.StatusServiceUnavailable
		response = `{"status":"degraded","database":false`
	}

	// Add leader status if leader election is enabled
	if s.leaderAwareScheduler != nil {
		if s.leaderAwareScheduler.IsLeader() {
			response += `,"leader":true`
		} else {
			response += `,"leader":false`
		}
	}

	response += `}`
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(response))
}
