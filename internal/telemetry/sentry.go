/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

var sentryEnabled atomic.Bool

// InitSentry configures error capture. An empty DSN leaves capture disabled
// and ReportError becomes a no-op.
func InitSentry(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	}); err != nil {
		return err
	}
	sentryEnabled.Store(true)
	return nil
}

// FlushSentry waits for buffered events before shutdown.
func FlushSentry(timeout time.Duration) {
	if sentryEnabled.Load() {
		sentry.Flush(timeout)
	}
}

// ReportError sends err to Sentry with the given tags and extras.
func ReportError(err error, tags map[string]string, extras map[string]any) {
	if err == nil || !sentryEnabled.Load() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		for k, v := range extras {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}
