// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

// Package services adapts components without a Serve(ctx) method to suture.Service:
// the HTTP server (ListenAndServe/Shutdown), the sync service (background runs
// drained on shutdown) and the periodic DuckDB checkpoint.
package services
