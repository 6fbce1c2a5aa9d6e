// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package models

import "time"

// Event topics on the domain bus.
const (
	TopicSyncCompleted = "sync.completed"
	TopicFlagRaised    = "flag.raised"
)

// SyncCompletedEvent is published when a sync run ends, successfully or not.
type SyncCompletedEvent struct {
	EventID         string       `json:"event_id"`
	Resource        SyncResource `json:"resource"`
	Mode            SyncMode     `json:"mode"`
	Status          string       `json:"status"`
	Processed       int          `json:"processed"`
	Created         int          `json:"created"`
	Updated         int          `json:"updated"`
	Unchanged       int          `json:"unchanged"`
	Skipped         int          `json:"skipped"`
	FlagsCreated    int          `json:"flags_created"`
	FlagsCleared    int          `json:"flags_cleared"`
	Errors          int          `json:"errors"`
	RateLimitEvents int          `json:"rate_limit_events"`
	DurationMS      int64        `json:"duration_ms"`
	Error           string       `json:"error,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
}

// FlagRaisedEvent is published for a newly created billing flag on a completed job.
// It carries everything a notifier needs without reading the store.
type FlagRaisedEvent struct {
	EventID       string            `json:"event_id"`
	FlagID        int64             `json:"flag_id"`
	FlagType      FlagType          `json:"flag_type"`
	JobUID        string            `json:"job_uid"`
	JobNumber     string            `json:"job_number"`
	JobTitle      string            `json:"job_title"`
	Organization  string            `json:"organization"`
	AssetName     string            `json:"asset"`
	ServiceTeam   string            `json:"service_team"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	LineItems     []LineItemSummary `json:"line_items"`
	LineItemCount int               `json:"line_items_count"` // total on the job; LineItems may be truncated
	Timestamp     time.Time         `json:"timestamp"`
}

// LineItemSummary is the part of a line item shown in notifications.
type LineItemSummary struct {
	Name     string  `json:"name"`
	Code     string  `json:"code,omitempty"`
	Serial   string  `json:"serial,omitempty"`
	Quantity float64 `json:"quantity"`
}
