/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/cadence/internal/telemetry"
)

const (
	_startTime = "cadence:start_time"

	// SlowQueryThreshold is the duration above which a statement is logged.
	SlowQueryThreshold = 500 * time.Millisecond
)

// RegisterCallbacks records duration and error metrics for every create,
// query, update and delete statement.
func RegisterCallbacks(db *gorm.DB) error {
	return RegisterCallbacksWithLogger(db, zerolog.Nop())
}

// RegisterCallbacksWithLogger is RegisterCallbacks plus slow statement logging.
func RegisterCallbacksWithLogger(db *gorm.DB, logger zerolog.Logger) error {
	cb := db.Callback()
	return errors.Join(
		cb.Query().Before("gorm:query").Register("telemetry:before_query", markStart),
		cb.Query().After("gorm:query").Register("telemetry:after_query", observe("query", logger)),
		cb.Create().Before("gorm:create").Register("telemetry:before_create", markStart),
		cb.Create().After("gorm:create").Register("telemetry:after_create", observe("create", logger)),
		cb.Update().Before("gorm:update").Register("telemetry:before_update", markStart),
		cb.Update().After("gorm:update").Register("telemetry:after_update", observe("update", logger)),
		cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", markStart),
		cb.Delete().After("gorm:delete").Register("telemetry:after_delete", observe("delete", logger)),
	)
}

func markStart(db *gorm.DB) {
	db.InstanceSet(_startTime, time.Now())
}

func observe(operation string, logger zerolog.Logger) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(_startTime)
		if !ok {
			return
		}
		start, ok := v.(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(start)

		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}
		telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(elapsed.Seconds())

		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, errorKind(db.Error)).Inc()
		}

		if elapsed > SlowQueryThreshold {
			logger.Warn().
				Str("operation", operation).
				Str("table", table).
				Dur("elapsed", elapsed).
				Msg("slow database statement")
		}
	}
}

func errorKind(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(msg, "unique"), strings.Contains(msg, "duplicate"):
		return "constraint"
	case strings.Contains(msg, "deadline"), strings.Contains(msg, "timeout"):
		return "timeout"
	}
	return "query_error"
}

// UpdateConnectionMetrics updates connection pool metrics.
// Should be called periodically (e.g., every 30 seconds).
func UpdateConnectionMetrics(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	stats := sqlDB.Stats()
	telemetry.DatabaseConnectionsActive.Set(float64(stats.OpenConnections))
}
