// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ParentKind identifies the owner of a custom field row.
type ParentKind string

const (
	ParentJob          ParentKind = "job"
	ParentOrganization ParentKind = "organization"
)

// ChildKind names one of a job's replace-on-sync child collections.
type ChildKind string

const (
	ChildLineItems      ChildKind = "line_items"
	ChildChecklistParts ChildKind = "checklist_parts"
	ChildCustomFields   ChildKind = "custom_fields"
)

// Job is one unit of field-service work as stored locally.
//
// HasLineItems, HasChecklistParts and HasNetsuiteID are derived from the child
// collections on every sync and are never edited by hand.
type Job struct {
	JobUID           string     `json:"job_uid"`
	JobNumber        string     `json:"job_number"`
	JobTitle         string     `json:"job_title"`
	JobStatus        string     `json:"job_status"`
	JobCategory      string     `json:"job_category"`
	CustomerName     string     `json:"customer_name"`
	OrganizationUID  *string    `json:"organization_uid,omitempty"`
	OrganizationName *string    `json:"organization_name,omitempty"`
	ServiceTeam      string     `json:"service_team"`
	AssetName        string     `json:"asset_name"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`

	HasLineItems      bool `json:"has_line_items"`
	HasChecklistParts bool `json:"has_checklist_parts"`
	HasNetsuiteID     bool `json:"has_netsuite_id"`

	// NetsuiteSalesOrderID is the billing reference, nil when none was found.
	NetsuiteSalesOrderID *string `json:"netsuite_sales_order_id,omitempty"`

	JiraLink  *string   `json:"jira_link,omitempty"`
	SlackLink *string   `json:"slack_link,omitempty"`
	SyncedAt  time.Time `json:"synced_at"`
}

// LineItem is a part or product consumed on a job.
type LineItem struct {
	JobUID       string              `json:"job_uid"`
	Position     int                 `json:"position"`
	ItemName     string              `json:"item_name"`
	ItemCode     string              `json:"item_code"`
	ItemSerial   string              `json:"item_serial"`
	Quantity     float64             `json:"quantity"`
	Price        decimal.NullDecimal `json:"price"`
	LineItemType string              `json:"line_item_type"`
}

// ChecklistPart is a serial number found in a job's checklist answers.
type ChecklistPart struct {
	JobUID            string     `json:"job_uid"`
	ChecklistQuestion string     `json:"checklist_question"`
	PartSerial        string     `json:"part_serial"`
	PartDescription   string     `json:"part_description"`
	StatusName        string     `json:"status_name"`
	Position          int        `json:"position"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// CustomField is a label/value pair attached to a job or organization.
// Labels are unique per parent.
type CustomField struct {
	ParentKind ParentKind `json:"parent_kind"`
	ParentUID  string     `json:"parent_uid"`
	Label      string     `json:"field_label"`
	Value      string     `json:"field_value"`
	Type       string     `json:"field_type"`
}

// JobRecord is everything the sync engine persists for one job in one transaction.
type JobRecord struct {
	Job            Job
	LineItems      []LineItem
	ChecklistParts []ChecklistPart
	CustomFields   []CustomField

	// Flags holds the rule results for this pass. A nil slice with SkipValidation
	// unset still means "no rule fired" and clears previously active conditions.
	Flags []ValidationFlag

	// SkipValidation leaves existing flags untouched (skip-listed categories).
	SkipValidation bool
}

// DeriveFlags recomputes the job's derived booleans from its child collections.
func (r *JobRecord) DeriveFlags() {
	r.Job.HasLineItems = len(r.LineItems) > 0
	r.Job.HasChecklistParts = len(r.ChecklistParts) > 0
	r.Job.HasNetsuiteID = r.Job.NetsuiteSalesOrderID != nil && *r.Job.NetsuiteSalesOrderID != ""
}

// JobDetail is a job with its children and flags, as returned by the API.
type JobDetail struct {
	Job            Job              `json:"job"`
	LineItems      []LineItem       `json:"line_items"`
	ChecklistParts []ChecklistPart  `json:"checklist_parts"`
	CustomFields   []CustomField    `json:"custom_fields"`
	Flags          []ValidationFlag `json:"flags"`
}
