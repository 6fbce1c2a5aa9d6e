// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

// Package metrics holds the Prometheus collectors for Fieldcheck. Collectors are
// registered on the default registry at init and exposed on /metrics.
package metrics

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldcheck_db_query_duration_seconds",
			Help:    "Duration of DuckDB operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcheck_db_query_errors_total",
			Help: "Total number of failed DuckDB operations",
		},
		[]string{"operation", "error_type"},
	)

	DBConflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldcheck_db_conflict_retries_total",
			Help: "Transaction conflicts that were retried",
		},
	)

	// Upstream API
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcheck_upstream_requests_total",
			Help: "Upstream API requests by resource, call and outcome",
		},
		[]string{"resource", "call", "outcome"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldcheck_upstream_request_duration_seconds",
			Help:    "Upstream API call latency including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"resource", "call"},
	)

	UpstreamRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcheck_upstream_rate_limited_total",
			Help: "HTTP 429 responses received from the upstream API",
		},
		[]string{"resource"},
	)

	UpstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcheck_upstream_retries_total",
			Help: "Upstream retries by reason",
		},
		[]string{"reason"}, // "rate_limit", "server_error", "network"
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldcheck_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcheck_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcheck_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Sync
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcheck_sync_runs_total",
			Help: "Sync runs by resource, mode and final status",
		},
		[]string{"resource", "mode", "status"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldcheck_sync_duration_seconds",
			Help:    "Sync run duration",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		},
		[]string{"resource", "mode"},
	)

	SyncRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcheck_sync_records_total",
			Help: "Records handled by sync runs by outcome",
		},
		[]string{"resource", "outcome"}, // "created", "updated", "unchanged", "skipped", "error"
	)

	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldcheck_sync_last_success_timestamp_seconds",
			Help: "Unix time of the last successful sync",
		},
		[]string{"resource"},
	)

	SyncBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldcheck_sync_batch_size",
			Help:    "Jobs committed per batch transaction",
			Buckets: []float64{1, 10, 25, 50, 100, 150, 250, 500},
		},
	)

	SyncInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldcheck_sync_in_progress",
			Help: "1 while a sync run holds the lock",
		},
		[]string{"resource"},
	)

	// Validation flags
	FlagsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcheck_flags_created_total",
			Help: "Validation flags raised",
		},
		[]string{"flag_type"},
	)

	FlagsCleared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldcheck_flags_cleared_total",
			Help: "Flags whose condition stopped firing",
		},
	)

	FlagsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcheck_flags_resolved_total",
			Help: "Flags resolved by who resolved them",
		},
		[]string{"resolved_by"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcheck_api_requests_total",
			Help: "Reporting API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldcheck_api_request_duration_seconds",
			Help:    "Reporting API request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldcheck_api_active_requests",
			Help: "In-flight reporting API requests",
		},
	)

	// Cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcheck_cache_hits_total",
			Help: "Read cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcheck_cache_misses_total",
			Help: "Read cache misses",
		},
		[]string{"cache"},
	)

	// WebSocket
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldcheck_websocket_connections",
			Help: "Connected progress stream clients",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldcheck_websocket_messages_sent_total",
			Help: "Messages written to progress stream clients",
		},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldcheck_websocket_messages_dropped_total",
			Help: "Messages dropped because the hub or a client buffer was full",
		},
	)

	// Events and notifications
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcheck_events_published_total",
			Help: "Domain events published by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldcheck_notifications_total",
			Help: "Webhook notifications by channel and outcome",
		},
		[]string{"channel", "outcome"}, // outcome: "sent", "failed", "duplicate"
	)

	// Build info
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldcheck_info",
			Help: "Build information",
		},
		[]string{"version", "commit"},
	)
)

// RecordDBQuery observes one store operation.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, classifyError(err)).Inc()
	}
}

// classifyError buckets an error into a low-cardinality label.
func classifyError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "conflict"):
		return "conflict"
	case strings.Contains(msg, "constraint"):
		return "constraint"
	default:
		return "other"
	}
}

// RecordUpstreamCall observes one logical upstream call (all its retries).
func RecordUpstreamCall(resource, call string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	UpstreamRequests.WithLabelValues(resource, call, outcome).Inc()
	UpstreamRequestDuration.WithLabelValues(resource, call).Observe(duration.Seconds())
}

// RecordAPIRequest observes one reporting API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// SyncOutcome is the subset of run statistics recorded per sync.
type SyncOutcome struct {
	Resource  string
	Mode      string
	Status    string
	Duration  time.Duration
	Created   int
	Updated   int
	Unchanged int
	Skipped   int
	Errors    int
}

// RecordSyncRun records a finished sync run.
func RecordSyncRun(o SyncOutcome) {
	SyncRuns.WithLabelValues(o.Resource, o.Mode, o.Status).Inc()
	SyncDuration.WithLabelValues(o.Resource, o.Mode).Observe(o.Duration.Seconds())
	add := func(outcome string, n int) {
		if n > 0 {
			SyncRecords.WithLabelValues(o.Resource, outcome).Add(float64(n))
		}
	}
	add("created", o.Created)
	add("updated", o.Updated)
	add("unchanged", o.Unchanged)
	add("skipped", o.Skipped)
	add("error", o.Errors)
	if o.Status == "completed" {
		SyncLastSuccess.WithLabelValues(o.Resource).SetToCurrentTime()
	}
}
