// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

/*
Command server runs Fieldcheck: it mirrors jobs and organizations from the Zuper
field-service API into DuckDB, flags completed jobs that cannot be billed, notifies
a webhook about new billing flags and serves the reporting API.

# Services

Long-lived components run under a suture v4 supervisor tree:

	fieldcheck
	├── data-layer
	│   ├── duckdb-checkpoint
	│   └── cache-metrics, cache-filters
	├── messaging-layer
	│   ├── event-bus          (watermill router: notifier, hub, cache invalidation)
	│   ├── websocket-hub
	│   ├── sync-service       (drains background runs on shutdown)
	│   └── sync-scheduler     (when SYNC_ENABLED=true)
	└── api-layer
	    └── http-server

# Configuration

Defaults, then config.yaml (or CONFIG_PATH), then environment variables:

	ZUPER_API_KEY=...            # required
	ZUPER_BASE_URL=https://us.zuperpro.com/api
	ALLOWED_CATEGORIES="Service,Repair"
	DUCKDB_PATH=/data/fieldcheck.duckdb
	SYNC_ENABLED=true SYNC_INTERVAL=15m
	SLACK_WEBHOOK_URL=https://hooks.slack.com/services/...

# One-shot mode

	server -once -resource jobs -mode full

runs a single sync in the foreground, waits for its notifications to be delivered
and exits non-zero when the run failed.

# Build tags

	go build -tags nats ./cmd/server   # forward domain events to NATS JetStream
*/
package main
