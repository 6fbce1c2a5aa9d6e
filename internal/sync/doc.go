// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

/*
Package sync pulls jobs and organizations from the upstream API into the local store.

A run walks the upstream list pages in order. For every allow-listed record it
decides whether a detail fetch is needed (always in full mode; only for new or
changed records in differential mode), extracts the record, validates it and queues
it for batch persistence. Batches commit in one transaction; a failed batch is
replayed one record per transaction so a single bad record rolls back alone.

Run lifecycle:

	Idle -> Fetching -> Extracting -> Validating -> Persisting -> Completed
	                ^                                   |
	                +-------------- next page ----------+
	any state -> Failed

Only one run per resource may be active. The in-process lock rejects a second run
immediately; the sync_lock row guards against a second process and expires after
the configured TTL so a crashed run never wedges the pipeline.

Progress is delivered to an optional sink on its own goroutine. A slow or
panicking sink never stalls a run.
*/
package sync
