/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/cadence/internal/classifier"
	"github.com/friendsincode/cadence/internal/config"
	"github.com/friendsincode/cadence/internal/db"
	"github.com/friendsincode/cadence/internal/logging"
	"github.com/friendsincode/cadence/internal/models"
	"github.com/friendsincode/cadence/internal/sequence"
	"github.com/friendsincode/cadence/internal/server"
	"github.com/friendsincode/cadence/internal/store"
	"github.com/friendsincode/cadence/internal/telemetry"
	"github.com/friendsincode/cadence/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "cadence",
	Short:        "Cadence - outbound email sequencing",
	Long:         "Cadence sends follow-up sequences to prospects, reads their replies, and books meetings inside working hours.",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Cadence server",
	Long:  "Start the HTTP API, event stream and sequence scheduler",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("Cadence starting")

	if err := telemetry.InitSentry(cfg.SentryDSN, cfg.Environment, version.Release()); err != nil {
		logger.Warn().Err(err).Msg("sentry disabled")
	}
	defer telemetry.FlushSentry(2 * time.Second)

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "cadence",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := srv.HTTPServer()
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		logger.Error().Err(err).Msg("http server error")
	}

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	// Waits for in-flight runs.
	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Cadence stopped")
	return nil
}

// initDatabase connects and migrates for one-shot commands.
func initDatabase() (*gorm.DB, *store.Store, error) {
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		_ = db.Close(database)
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	return database, store.New(database), nil
}

// newRunner wires a sequence runner the same way the server does, minus the
// event bus.
func newRunner(database *gorm.DB, st *store.Store) *sequence.Runner {
	var cls classifier.Classifier = classifier.KeywordClassifier{}
	if cfg.ClassifierURL != "" {
		cls = classifier.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierAPIKey, cfg.ClassifierTimeout, logger)
	}
	return sequence.New(st, sequence.AccountConnector{
		DB:              database,
		BaseURL:         cfg.BaseURL,
		MeetingLinkBase: cfg.MeetingLinkBase,
		Logger:          logger,
	}, cls, logger)
}

// resolveUser accepts a user id or an email address.
func resolveUser(ctx context.Context, st *store.Store, ref string) (*models.User, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("--user is required")
	}
	if strings.Contains(ref, "@") {
		return st.GetUserByEmail(ctx, strings.ToLower(ref))
	}
	return st.GetUser(ctx, ref)
}
