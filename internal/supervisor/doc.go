// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

/*
Package supervisor runs Fieldcheck's long-lived services under a suture v4 tree.

Services are grouped into three layers so that a crash in one restarts only its
siblings:

	fieldcheck
	├── data-layer
	│   ├── duckdb-checkpoint
	│   └── cache-metrics, cache-filters
	├── messaging-layer
	│   ├── event-bus
	│   ├── websocket-hub
	│   ├── sync-service
	│   └── sync-scheduler (when scheduling is enabled)
	└── api-layer
	    └── http-server

Supervisor events (start, failure, backoff) are logged through sutureslog onto the
zerolog logger:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(bus)
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)
*/
package supervisor
