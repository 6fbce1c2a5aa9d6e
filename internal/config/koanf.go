// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file is loaded.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fieldcheck/config.yaml",
	"/etc/fieldcheck/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// Rule defaults. Category names match the upstream job category names.
var (
	DefaultAllowedCategories = []string{
		"LaserWeeder Service Call",
		"WM Service - In Field",
		"WM Repair - In Shop",
	}
	DefaultSkipCategories     = []string{"field requires parts", "reaper pm", "slayer pm"}
	DefaultConsumableTerms    = []string{"consumable", "consumables", "supplies", "service"}
	DefaultJobBillingKeywords = []string{"netsuite", "sales order", "so id", "salesorder"}
	DefaultOrgBillingKeywords = []string{"netsuite", "customer id", "customer_id", "ns id", "ns customer"}
)

func defaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			BaseURL:           "https://us-east-1.zuperpro.com",
			WebURL:            "https://web.zuperpro.com",
			Timeout:           30 * time.Second,
			PageSize:          100,
			MaxRetries:        3,
			RateLimitRetries:  5,
			RetryBaseDelay:    time.Second,
			MaxRetryAfter:     2 * time.Minute,
			RequestsPerSecond: 5,
			Burst:             5,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:             true,
				ConsecutiveFailures: 5,
				Timeout:             60 * time.Second,
				Interval:            0,
				MaxRequests:         1,
			},
		},
		Rules: RulesConfig{
			AllowedCategories:  append([]string(nil), DefaultAllowedCategories...),
			SkipCategories:     append([]string(nil), DefaultSkipCategories...),
			ConsumableTerms:    append([]string(nil), DefaultConsumableTerms...),
			JobBillingKeywords: append([]string(nil), DefaultJobBillingKeywords...),
			OrgBillingKeywords: append([]string(nil), DefaultOrgBillingKeywords...),
			PartDescriptionMax: 200,
		},
		Database: DatabaseConfig{
			Path:         "/data/fieldcheck.duckdb",
			MaxMemory:    "1GB",
			Threads:      0,
			QueryTimeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			Enabled:          true,
			RunOnStartup:     true,
			Interval:         15 * time.Minute,
			FullInterval:     24 * time.Hour,
			OrgInterval:      6 * time.Hour,
			BatchSize:        150,
			RetryAttempts:    5,
			RetryDelay:       250 * time.Millisecond,
			LockTTL:          2 * time.Hour,
			MaxErrorMessages: 100,
			PruneOutOfScope:  false,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		API: APIConfig{
			DefaultPageSize: 50,
			MaxPageSize:     500,
			MetricsCacheTTL: 60 * time.Second,
			FiltersCacheTTL: 5 * time.Minute,
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
		},
		Notify: NotifyConfig{
			Timeout:      10 * time.Second,
			MaxLineItems: 5,
		},
		Events: EventsConfig{
			BufferSize:                 256,
			RouterRetryCount:           3,
			RouterRetryInitialInterval: 500 * time.Millisecond,
			RouterCloseTimeout:         30 * time.Second,
			NATS: NATSConfig{
				Enabled:       false,
				URL:           "nats://127.0.0.1:4222",
				Stream:        "FIELDCHECK",
				SubjectPrefix: "fieldcheck",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration in three layers:
//  1. built-in defaults
//  2. the YAML file named by CONFIG_PATH, or the first of DefaultConfigPaths that exists
//  3. environment variables listed in envMappings
//
// The result is validated before it is returned.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths are split on commas when they arrive as a single string.
var sliceConfigPaths = []string{
	"rules.allowed_categories",
	"rules.skip_categories",
	"rules.consumable_terms",
	"rules.job_billing_keywords",
	"rules.org_billing_keywords",
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to config paths.
// Unlisted variables are ignored.
var envMappings = map[string]string{
	// Upstream
	"zuper_api_key":                "upstream.api_key",
	"zuper_base_url":               "upstream.base_url",
	"zuper_web_url":                "upstream.web_url",
	"zuper_timeout":                "upstream.timeout",
	"zuper_page_size":              "upstream.page_size",
	"zuper_max_retries":            "upstream.max_retries",
	"zuper_rate_limit_retries":     "upstream.rate_limit_retries",
	"zuper_retry_base_delay":       "upstream.retry_base_delay",
	"zuper_requests_per_second":    "upstream.requests_per_second",
	"zuper_burst":                  "upstream.burst",
	"circuit_breaker_enabled":      "upstream.circuit_breaker.enabled",
	"circuit_breaker_failures":     "upstream.circuit_breaker.consecutive_failures",
	"circuit_breaker_timeout":      "upstream.circuit_breaker.timeout",
	"circuit_breaker_interval":     "upstream.circuit_breaker.interval",
	"circuit_breaker_max_requests": "upstream.circuit_breaker.max_requests",

	// Rules
	"allowed_categories":   "rules.allowed_categories",
	"skip_categories":      "rules.skip_categories",
	"consumable_terms":     "rules.consumable_terms",
	"job_billing_keywords": "rules.job_billing_keywords",
	"org_billing_keywords": "rules.org_billing_keywords",

	// Database
	"duckdb_path":          "database.path",
	"duckdb_max_memory":    "database.max_memory",
	"duckdb_threads":       "database.threads",
	"duckdb_query_timeout": "database.query_timeout",

	// Sync
	"sync_enabled":            "sync.enabled",
	"sync_on_startup":         "sync.run_on_startup",
	"sync_interval":           "sync.interval",
	"sync_full_interval":      "sync.full_interval",
	"sync_org_interval":       "sync.org_interval",
	"sync_batch_size":         "sync.batch_size",
	"sync_retry_attempts":     "sync.retry_attempts",
	"sync_retry_delay":        "sync.retry_delay",
	"sync_lock_ttl":           "sync.lock_ttl",
	"sync_max_errors":         "sync.max_error_messages",
	"sync_prune_out_of_scope": "sync.prune_out_of_scope",

	// Server and API
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"api_default_page_size": "api.default_page_size",
	"api_max_page_size":     "api.max_page_size",
	"api_metrics_cache_ttl": "api.metrics_cache_ttl",
	"api_filters_cache_ttl": "api.filters_cache_ttl",

	// Security
	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	// Notifications
	"slack_webhook_url":     "notify.webhook_url",
	"webhook_url":           "notify.webhook_url",
	"notify_timeout":        "notify.timeout",
	"notify_max_line_items": "notify.max_line_items",

	// Events
	"events_buffer_size":          "events.buffer_size",
	"events_router_retry_count":   "events.router_retry_count",
	"events_router_retry_delay":   "events.router_retry_initial_interval",
	"events_router_close_timeout": "events.router_close_timeout",
	"nats_enabled":                "events.nats.enabled",
	"nats_url":                    "events.nats.url",
	"nats_stream":                 "events.nats.stream",
	"nats_subject_prefix":         "events.nats.subject_prefix",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its config path, or "" to
// skip it.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
