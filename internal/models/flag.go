// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// FlagType enumerates the data-quality rules.
type FlagType string

const (
	FlagMissingBillingReference  FlagType = "missing_billing_reference"
	FlagPartsReplacedNoLineItems FlagType = "parts_replaced_no_line_items"
)

// AllFlagTypes lists every rule in evaluation order.
var AllFlagTypes = []FlagType{FlagMissingBillingReference, FlagPartsReplacedNoLineItems}

// Severity of a validation flag.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Who resolved a flag.
const (
	ResolvedByOperator = "operator"
	ResolvedBySync     = "sync"
)

// ValidationFlag is a detected data-quality issue on a job.
//
// ConditionActive reports whether the rule still fired on the latest sync of the job.
// A resolved flag whose condition is still active suppresses a new flag of the same
// type, so operator resolution is not undone while the condition persists.
type ValidationFlag struct {
	ID              int64           `json:"id"`
	JobUID          string          `json:"job_uid"`
	Type            FlagType        `json:"flag_type"`
	Severity        Severity        `json:"flag_severity"`
	Message         string          `json:"flag_message"`
	Details         json.RawMessage `json:"details,omitempty"`
	IsResolved      bool            `json:"is_resolved"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy      *string         `json:"resolved_by,omitempty"`
	ConditionActive bool            `json:"condition_active"`
	CreatedAt       time.Time       `json:"created_at"`
}

// FlagOutcome summarises flag reconciliation for one job.
type FlagOutcome struct {
	Created []ValidationFlag
	Cleared int
}
