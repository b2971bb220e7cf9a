/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// EventBusBackend selects how events fan out across instances.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	BaseURL       string // Public base URL used in calendar links
	DBBackend     DatabaseBackend
	DBDSN         string
	JWTSigningKey string
	JWTTTL        time.Duration

	// Scheduler
	SchedulerEnabled     bool
	SchedulerTick        time.Duration
	SchedulerConcurrency int

	// Tracing and metrics
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
	MetricsEnabled    bool
	SentryDSN         string

	// Multi-instance configuration
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string
	EventBus              EventBusBackend
	NATSURL               string

	// Reply classification
	ClassifierURL     string
	ClassifierAPIKey  string
	ClassifierTimeout time.Duration

	// Meetings
	MeetingLinkBase string

	// Outbound webhooks
	WebhookURLs   []string
	WebhookSecret string

	// Browser origins allowed to call the API. Empty disables CORS.
	CORSAllowedOrigins []string

	LegacyEnvWarnings []string
}

// Load reads an optional .env file and environment variables, applies
// defaults, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional

	cfg := &Config{
		Environment:   getEnvAny([]string{"CADENCE_ENV"}, "development"),
		HTTPBind:      getEnvAny([]string{"CADENCE_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:      getEnvIntAny([]string{"CADENCE_HTTP_PORT", "PORT"}, 8080),
		BaseURL:       getEnvAny([]string{"CADENCE_BASE_URL"}, ""),
		DBBackend:     DatabaseBackend(getEnvAny([]string{"CADENCE_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:         getEnvAny([]string{"CADENCE_DB_DSN", "DATABASE_URL"}, ""),
		JWTSigningKey: getEnvAny([]string{"CADENCE_JWT_SIGNING_KEY"}, ""),
		JWTTTL:        getEnvDurationAny([]string{"CADENCE_JWT_TTL"}, 24*time.Hour),

		SchedulerEnabled:     getEnvBoolAny([]string{"CADENCE_SCHEDULER_ENABLED"}, true),
		SchedulerTick:        getEnvDurationAny([]string{"CADENCE_SCHEDULER_TICK"}, time.Minute),
		SchedulerConcurrency: getEnvIntAny([]string{"CADENCE_SCHEDULER_CONCURRENCY"}, 4),

		TracingEnabled:    getEnvBoolAny([]string{"CADENCE_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"CADENCE_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"CADENCE_TRACING_SAMPLE_RATE"}, 1.0),
		MetricsEnabled:    getEnvBoolAny([]string{"CADENCE_METRICS_ENABLED"}, true),
		SentryDSN:         getEnvAny([]string{"CADENCE_SENTRY_DSN", "SENTRY_DSN"}, ""),

		LeaderElectionEnabled: getEnvBoolAny([]string{"CADENCE_LEADER_ELECTION_ENABLED"}, false),
		RedisAddr:             getEnvAny([]string{"CADENCE_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"CADENCE_REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"CADENCE_REDIS_DB"}, 0),
		InstanceID:            getEnvAny([]string{"CADENCE_INSTANCE_ID"}, ""),
		EventBus:              EventBusBackend(strings.ToLower(getEnvAny([]string{"CADENCE_EVENT_BUS"}, string(EventBusMemory)))),
		NATSURL:               getEnvAny([]string{"CADENCE_NATS_URL", "NATS_URL"}, ""),

		ClassifierURL:     getEnvAny([]string{"CADENCE_CLASSIFIER_URL"}, ""),
		ClassifierAPIKey:  getEnvAny([]string{"CADENCE_CLASSIFIER_API_KEY"}, ""),
		ClassifierTimeout: getEnvDurationAny([]string{"CADENCE_CLASSIFIER_TIMEOUT"}, 30*time.Second),

		MeetingLinkBase: getEnvAny([]string{"CADENCE_MEETING_LINK_BASE"}, ""),

		WebhookURLs:   getEnvListAny([]string{"CADENCE_WEBHOOK_URLS"}),
		WebhookSecret: getEnvAny([]string{"CADENCE_WEBHOOK_SECRET"}, ""),

		CORSAllowedOrigins: getEnvListAny([]string{"CADENCE_CORS_ORIGINS"}),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("CADENCE_DB_DSN or DATABASE_URL must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("CADENCE_JWT_SIGNING_KEY must be provided")
	}

	if cfg.SchedulerTick < time.Second {
		return nil, fmt.Errorf("CADENCE_SCHEDULER_TICK must be at least 1s, got %s", cfg.SchedulerTick)
	}

	if cfg.SchedulerConcurrency < 1 {
		return nil, fmt.Errorf("CADENCE_SCHEDULER_CONCURRENCY must be at least 1")
	}

	switch cfg.EventBus {
	case EventBusMemory, EventBusRedis:
	case EventBusNATS:
		if cfg.NATSURL == "" {
			return nil, fmt.Errorf("CADENCE_NATS_URL is required when CADENCE_EVENT_BUS=nats")
		}
	default:
		return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
	}

	for _, raw := range cfg.WebhookURLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("CADENCE_WEBHOOK_URLS entry %q is not an http(s) URL", raw)
		}
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if len(cfg.JWTSigningKey) < 32 {
			return nil, fmt.Errorf("CADENCE_JWT_SIGNING_KEY must be at least 32 bytes in production")
		}
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"JWT_SECRET":        "use CADENCE_JWT_SIGNING_KEY",
		"SMTP_HOST":         "mail credentials are per user; connect a mail account instead",
		"OPENAI_API_KEY":    "use CADENCE_CLASSIFIER_URL and CADENCE_CLASSIFIER_API_KEY",
		"AGENT_FREQUENCY":   "set agent_frequency_hours on the sequence",
		"TRACING_ENABLED":   "use CADENCE_TRACING_ENABLED",
		"OTLP_ENDPOINT":     "use CADENCE_OTLP_ENDPOINT",
		"LEADER_ELECTION":   "use CADENCE_LEADER_ELECTION_ENABLED",
		"SCHEDULER_SECONDS": "use CADENCE_SCHEDULER_TICK (e.g. 60s)",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// IsProduction reports whether the process runs in production mode.
func (c *Config) IsProduction() bool {
	return c != nil && strings.EqualFold(c.Environment, "production")
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvListAny splits the first non-empty value on commas.
func getEnvListAny(keys []string) []string {
	raw := getEnvAny(keys, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go duration strings ("90s", "5m") or a bare
// number of seconds.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			if parsed, err := time.ParseDuration(v); err == nil {
				return parsed
			}
			if secs, err := strconv.Atoi(v); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return def
}
