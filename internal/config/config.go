// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

// Package config loads Fieldcheck configuration from defaults, an optional YAML file
// and environment variables, in that order of precedence (env wins).
//
// The only required setting is the upstream API key (ZUPER_API_KEY). Everything else
// has a working default. See LoadWithKoanf.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the complete application configuration.
type Config struct {
	Upstream UpstreamConfig `koanf:"upstream"`
	Rules    RulesConfig    `koanf:"rules"`
	Database DatabaseConfig `koanf:"database"`
	Sync     SyncConfig     `koanf:"sync"`
	Server   ServerConfig   `koanf:"server"`
	API      APIConfig      `koanf:"api"`
	Security SecurityConfig `koanf:"security"`
	Notify   NotifyConfig   `koanf:"notify"`
	Events   EventsConfig   `koanf:"events"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// UpstreamConfig configures the field-service API client.
type UpstreamConfig struct {
	BaseURL string `koanf:"base_url" validate:"required,httpurl"`
	APIKey  string `koanf:"api_key" validate:"required"`

	// WebURL is the base of the human-facing job links in notifications.
	WebURL string `koanf:"web_url" validate:"required,httpurl"`

	Timeout  time.Duration `koanf:"timeout" validate:"gte=1s"`
	PageSize int           `koanf:"page_size" validate:"min=1,max=500"`

	// MaxRetries applies to 5xx responses and transport failures.
	MaxRetries int `koanf:"max_retries" validate:"min=0,max=10"`
	// RateLimitRetries caps how many 429 responses one call will wait out.
	RateLimitRetries int           `koanf:"rate_limit_retries" validate:"min=0,max=20"`
	RetryBaseDelay   time.Duration `koanf:"retry_base_delay"`
	MaxRetryAfter    time.Duration `koanf:"max_retry_after"`

	// RequestsPerSecond paces outgoing calls. 0 disables pacing.
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gte=0"`
	Burst             int     `koanf:"burst" validate:"min=1"`

	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
}

// CircuitBreakerConfig configures the breaker around the upstream client.
type CircuitBreakerConfig struct {
	Enabled bool `koanf:"enabled"`
	// ConsecutiveFailures opens the circuit.
	ConsecutiveFailures uint32 `koanf:"consecutive_failures" validate:"min=1"`
	// Timeout is how long the circuit stays open before a half-open probe.
	Timeout time.Duration `koanf:"timeout"`
	// Interval clears closed-state counts; 0 never clears.
	Interval    time.Duration `koanf:"interval"`
	MaxRequests uint32        `koanf:"max_requests" validate:"min=1"`
}

// RulesConfig holds the category lists and keyword tables used by extraction and
// validation. All matching is case-insensitive.
type RulesConfig struct {
	// AllowedCategories is matched exactly. Jobs in other categories are not synced.
	AllowedCategories []string `koanf:"allowed_categories" validate:"required,min=1,dive,required"`
	// SkipCategories is matched as a substring. Matching jobs are synced but not validated.
	SkipCategories      []string `koanf:"skip_categories" validate:"dive,required"`
	ConsumableTerms     []string `koanf:"consumable_terms" validate:"dive,required"`
	JobBillingKeywords  []string `koanf:"job_billing_keywords" validate:"required,min=1,dive,required"`
	OrgBillingKeywords  []string `koanf:"org_billing_keywords" validate:"required,min=1,dive,required"`
	PartDescriptionMax  int      `koanf:"part_description_max" validate:"min=1"`
}

// DatabaseConfig configures the DuckDB store.
type DatabaseConfig struct {
	Path         string        `koanf:"path" validate:"required"`
	MaxMemory    string        `koanf:"max_memory"`
	Threads      int           `koanf:"threads" validate:"min=0"`
	QueryTimeout time.Duration `koanf:"query_timeout"`
}

// SyncConfig configures the sync engine and scheduler.
type SyncConfig struct {
	Enabled      bool          `koanf:"enabled"`
	RunOnStartup bool          `koanf:"run_on_startup"`
	Interval     time.Duration `koanf:"interval"`
	FullInterval time.Duration `koanf:"full_interval"`
	// OrgInterval of 0 disables scheduled organization syncs.
	OrgInterval time.Duration `koanf:"org_interval"`

	BatchSize     int           `koanf:"batch_size" validate:"min=1,max=5000"`
	RetryAttempts int           `koanf:"retry_attempts" validate:"min=1,max=20"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
	LockTTL       time.Duration `koanf:"lock_ttl"`

	// MaxErrorMessages caps the error list kept per run.
	MaxErrorMessages int `koanf:"max_error_messages" validate:"min=1"`

	// PruneOutOfScope deletes jobs whose category left the allow-list after every
	// full sync.
	PruneOutOfScope bool `koanf:"prune_out_of_scope"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// APIConfig configures listing defaults and read caching.
type APIConfig struct {
	DefaultPageSize int           `koanf:"default_page_size" validate:"min=1"`
	MaxPageSize     int           `koanf:"max_page_size" validate:"min=1,max=5000"`
	MetricsCacheTTL time.Duration `koanf:"metrics_cache_ttl"`
	FiltersCacheTTL time.Duration `koanf:"filters_cache_ttl"`
}

// SecurityConfig holds the HTTP hardening knobs that remain without authentication.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// NotifyConfig configures webhook notifications for new billing flags.
// Notifications are disabled when WebhookURL is empty.
type NotifyConfig struct {
	WebhookURL string        `koanf:"webhook_url" validate:"omitempty,httpurl"`
	Timeout    time.Duration `koanf:"timeout"`
	// MaxLineItems caps the items listed in one message.
	MaxLineItems int `koanf:"max_line_items" validate:"min=1,max=50"`
}

// Enabled reports whether a webhook is configured.
func (n NotifyConfig) Enabled() bool {
	return n.WebhookURL != ""
}

// EventsConfig configures the domain event bus.
type EventsConfig struct {
	// BufferSize is the in-process channel buffer per subscriber.
	BufferSize int `koanf:"buffer_size" validate:"min=1"`

	RouterRetryCount           int           `koanf:"router_retry_count" validate:"min=0"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`

	NATS NATSConfig `koanf:"nats"`
}

// NATSConfig configures forwarding of domain events to NATS JetStream. Only honoured
// by binaries built with -tags nats.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	// Stream is created if missing, covering SubjectPrefix.>.
	Stream        string `koanf:"stream"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LoggingConfig mirrors logging.Config for the loader.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}
