// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// SyncMode selects how much upstream data a run re-processes.
type SyncMode string

const (
	// SyncModeFull re-fetches and re-persists every allow-listed record.
	SyncModeFull SyncMode = "full"
	// SyncModeDifferential enriches only records that are new or whose upstream
	// updated timestamp changed.
	SyncModeDifferential SyncMode = "differential"
)

// Valid reports whether m is a known mode.
func (m SyncMode) Valid() bool {
	return m == SyncModeFull || m == SyncModeDifferential
}

// SyncResource names the pipeline a run belongs to.
type SyncResource string

const (
	ResourceJobs          SyncResource = "jobs"
	ResourceOrganizations SyncResource = "organizations"
)

// Valid reports whether r is a known resource.
func (r SyncResource) Valid() bool {
	return r == ResourceJobs || r == ResourceOrganizations
}

// Sync log statuses.
const (
	SyncStatusInProgress = "in_progress"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
	SyncStatusCanceled   = "canceled"
)

// SyncLog is the persisted record of one sync run.
type SyncLog struct {
	ID               int64        `json:"id"`
	Resource         SyncResource `json:"resource"`
	Mode             SyncMode     `json:"mode"`
	StartedAt        time.Time    `json:"sync_started_at"`
	CompletedAt      *time.Time   `json:"sync_completed_at,omitempty"`
	Status           string       `json:"status"`
	RecordsProcessed int          `json:"records_processed"`
	RecordsCreated   int          `json:"records_created"`
	RecordsUpdated   int          `json:"records_updated"`
	RecordsSkipped   int          `json:"records_skipped"`
	FlagsCreated     int          `json:"flags_created"`
	ErrorCount       int          `json:"error_count"`
	Errors           []string     `json:"errors,omitempty"`
	RateLimitEvents  int          `json:"rate_limit_events"`
}

// ErrorsJSON encodes the error list for storage, nil when empty.
func (l *SyncLog) ErrorsJSON() (*string, error) {
	if len(l.Errors) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(l.Errors)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}
