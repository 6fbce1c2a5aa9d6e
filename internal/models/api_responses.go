// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package models

import (
	"time"
)

// APIResponse represents a standardized API response wrapper used by all HTTP endpoints.
//
// Status field values:
//   - "success": Request completed successfully, see Data field
//   - "error": Request failed, see Error field for details
//
// Example successful response:
//
//	{
//	  "status": "success",
//	  "data": {"total": 100, "jobs": [...]},
//	  "metadata": {
//	    "timestamp": "2026-03-02T12:00:00Z",
//	    "query_time_ms": 45
//	  }
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
// QueryTimeMS is 0 and Cached is true when the response came from the read cache.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError provides structured error information for failed requests.
//
// Common error codes:
//   - "VALIDATION_ERROR": Invalid request parameters
//   - "NOT_FOUND": Job, flag or organization does not exist
//   - "SYNC_IN_PROGRESS": A sync for the same resource is already running
//   - "DATABASE_ERROR": Query failed
//   - "INTERNAL_ERROR": Unexpected server error
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ResolveResult is returned by the flag resolution endpoints.
type ResolveResult struct {
	Resolved int `json:"resolved"`
}

// SerialSearchRequest is the body of a bulk serial search.
type SerialSearchRequest struct {
	Serials []string `json:"serials" validate:"required,min=1,max=500,dive,max=100"`
}

// SyncTriggerRequest is the body of a manual sync trigger.
type SyncTriggerRequest struct {
	Resource SyncResource `json:"resource" validate:"omitempty,oneof=jobs organizations"`
	Mode     SyncMode     `json:"mode" validate:"omitempty,oneof=full differential"`
}
