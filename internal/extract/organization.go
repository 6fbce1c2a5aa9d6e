// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package extract

import (
	"errors"
	"strings"
	"time"

	"github.com/tomtom215/fieldcheck/internal/models"
	"github.com/tomtom215/fieldcheck/internal/upstream"
)

// OrganizationRecord maps a raw organization. The billing reference is found with the
// organization keyword table.
func OrganizationRecord(raw *upstream.RawOrganization, rules *Rules, syncedAt time.Time) (*models.OrganizationRecord, error) {
	uid := strings.TrimSpace(raw.OrganizationUID)
	if uid == "" {
		return nil, &Error{Err: errors.New("missing organization_uid")}
	}

	fields := CustomFields(models.ParentOrganization, uid, raw.CustomFields)
	ref := BillingReference(fields, rules.orgBilling)

	return &models.OrganizationRecord{
		Organization: models.Organization{
			OrganizationUID:     uid,
			Name:                raw.OrganizationName.Trimmed(),
			Email:               raw.OrganizationEmail.Trimmed(),
			Description:         raw.OrganizationDescription.Trimmed(),
			NoOfCustomers:       raw.NoOfCustomers.Int(),
			IsActive:            bool(raw.IsActive),
			IsPortalEnabled:     bool(raw.IsPortalEnabled),
			IsDeleted:           bool(raw.IsDeleted),
			BillingReference:    ref,
			HasBillingReference: ref != nil,
			CreatedAt:           ParseTimestamp(raw.CreatedAt.String()),
			UpdatedAt:           ParseTimestamp(raw.UpdatedAt.String()),
			SyncedAt:            syncedAt.UTC(),
		},
		CustomFields: fields,
	}, nil
}
