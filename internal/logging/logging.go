/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process. Development gets a console
// writer at debug level, everything else JSON at info.
func Setup(environment string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if isDevelopment(environment) {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	return SetupWithWriter(environment, out)
}

// SetupWithWriter is Setup with an explicit destination.
func SetupWithWriter(environment string, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if isDevelopment(environment) {
		level = zerolog.DebugLevel
	}
	if v := os.Getenv("CADENCE_LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}

	logger := zerolog.New(w).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}

// Component returns a child logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

func isDevelopment(environment string) bool {
	return environment == "" || strings.EqualFold(environment, "development")
}
