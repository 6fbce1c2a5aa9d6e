// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package models

import "time"

// Organization is a customer account. Jobs reference it by OrganizationUID.
type Organization struct {
	OrganizationUID     string     `json:"organization_uid"`
	Name                string     `json:"organization_name"`
	Email               string     `json:"organization_email"`
	Description         string     `json:"organization_description"`
	NoOfCustomers       int        `json:"no_of_customers"`
	IsActive            bool       `json:"is_active"`
	IsPortalEnabled     bool       `json:"is_portal_enabled"`
	IsDeleted           bool       `json:"is_deleted"`
	BillingReference    *string    `json:"billing_reference,omitempty"`
	HasBillingReference bool       `json:"has_billing_reference"`
	CreatedAt           *time.Time `json:"created_at,omitempty"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`
	SyncedAt            time.Time  `json:"synced_at"`
}

// OrganizationRecord bundles an organization with its custom fields.
type OrganizationRecord struct {
	Organization Organization
	CustomFields []CustomField
}

// OrganizationRef is the organization reference embedded in a job.
type OrganizationRef struct {
	UID  string
	Name string
}

// OrganizationFilter selects organizations for the API listing.
type OrganizationFilter struct {
	Name           string `validate:"max=200"`
	MissingBilling bool
	ActiveOnly     bool
	Page           int `validate:"min=1"`
	PageSize       int `validate:"min=1,max=500"`
}

// OrganizationPage is one page of organizations.
type OrganizationPage struct {
	Organizations []Organization `json:"organizations"`
	Total         int            `json:"total"`
	Page          int            `json:"page"`
	PageSize      int            `json:"page_size"`
}
