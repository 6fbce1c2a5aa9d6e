// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

/*
Package api serves the read-mostly reporting API over the synced job store.

Every endpoint lives under /api/v1 and answers with the same envelope:

	{
	  "status": "success",
	  "data": {...},
	  "metadata": {"timestamp": "2026-03-02T12:00:00Z", "query_time_ms": 4}
	}

Failures set status to "error" and carry an error object with one of the codes in
errors.go. Request bodies and query parameters are validated with
go-playground/validator through the validation package before any query runs.

Routes:

	GET  /api/v1/health              database ping, sync engine state
	GET  /api/v1/health/live         process liveness
	GET  /api/v1/jobs                filtered, paginated job listing
	GET  /api/v1/jobs/{uid}          job with children and flags
	POST /api/v1/jobs/{uid}/resolve  resolve every open flag of a job
	POST /api/v1/flags/{id}/resolve  resolve one flag
	GET  /api/v1/metrics/summary     dashboard counts (cached)
	GET  /api/v1/filters             distinct filter values (cached)
	GET  /api/v1/assets              assets with job and issue counts
	POST /api/v1/serials/search      bulk serial lookup
	GET  /api/v1/organizations       organizations, optionally missing billing
	GET  /api/v1/sync/status         engine status and recent runs
	POST /api/v1/sync                trigger a background run
	POST /api/v1/maintenance/prune   delete jobs outside the category allow-list
	GET  /api/v1/ws                  sync progress WebSocket
	GET  /metrics                    Prometheus exposition

The metrics summary and filter lists are served from TTL caches that are cleared
whenever a sync run reports changes.
*/
package api
