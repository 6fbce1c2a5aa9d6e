// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package models

import "time"

// FlagFilter narrows a job listing by open-flag state.
type FlagFilter string

const (
	FlagFilterAll            FlagFilter = "all"
	FlagFilterMissingBilling FlagFilter = "missing_billing"
	FlagFilterPartsNoItems   FlagFilter = "parts_no_items"
	FlagFilterPassing        FlagFilter = "passing"
)

// JobFilter is the request-scoped filter for job listings. Every field is bound as
// a query parameter; none of it is ever interpolated into SQL text.
type JobFilter struct {
	FlagFilter   FlagFilter `validate:"omitempty,oneof=all missing_billing parts_no_items passing"`
	JobNumber    string     `validate:"max=100"`
	Part         string     `validate:"max=200"`
	Serial       string     `validate:"max=100"`
	Category     string     `validate:"max=200"`
	Organization string     `validate:"max=200"`
	Team         string     `validate:"max=200"`
	Asset        string     `validate:"max=200"`
	Month        string     `validate:"omitempty,datetime=2006-01"`
	StartDate    *time.Time
	EndDate      *time.Time
	Page         int `validate:"min=1"`
	PageSize     int `validate:"min=1,max=500"`
}

// Offset returns the row offset for the filter's page.
func (f *JobFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.PageSize
}

// JobListItem is one row of a job listing: the job plus its open flag summary.
type JobListItem struct {
	Job
	OpenFlagCount int      `json:"open_flag_count"`
	OpenFlagTypes []string `json:"open_flag_types"`
	FlagMessages  []string `json:"flag_messages"`
}

// JobPage is one page of a filtered job listing.
type JobPage struct {
	Jobs     []JobListItem `json:"jobs"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// Metrics are the aggregate counts shown on the dashboard header.
type Metrics struct {
	TotalJobs             int        `json:"total_jobs"`
	MissingBillingCount   int        `json:"missing_billing_count"`
	PartsNoLineItemsCount int        `json:"parts_no_items_count"`
	PassingCount          int        `json:"passing_count"`
	JobsWithLineItems     int        `json:"jobs_with_line_items"`
	JobsWithBillingRef    int        `json:"jobs_with_billing_reference"`
	LastSyncAt            *time.Time `json:"last_sync_at,omitempty"`
}

// FilterOptions lists the distinct values available for listing filters.
type FilterOptions struct {
	Organizations []string `json:"organizations"`
	Teams         []string `json:"teams"`
	Categories    []string `json:"categories"`
}

// AssetCount is an asset with its job and open-issue counts.
type AssetCount struct {
	AssetName      string `json:"asset_name"`
	TotalJobs      int    `json:"total_jobs"`
	JobsWithIssues int    `json:"jobs_with_issues"`
}

// SerialMatch is one job found by a bulk serial search.
type SerialMatch struct {
	SearchedSerial string     `json:"searched_serial"`
	JobUID         string     `json:"job_uid"`
	JobNumber      string     `json:"job_number"`
	JobTitle       string     `json:"job_title"`
	CustomerName   string     `json:"customer"`
	AssetName      string     `json:"asset"`
	ServiceTeam    string     `json:"service_team"`
	Source         string     `json:"source"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}
