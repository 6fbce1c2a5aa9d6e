// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package extract

import (
	"strings"

	"github.com/tomtom215/fieldcheck/internal/models"
	"github.com/tomtom215/fieldcheck/internal/upstream"
)

// Asset returns the first asset's code, else its name, else "".
func Asset(raw *upstream.RawJob) string {
	ref, ok := raw.Assets.First()
	if !ok {
		return ""
	}
	if code := ref.Asset.AssetCode.Trimmed(); code != "" {
		return code
	}
	return ref.Asset.AssetName.Trimmed()
}

// Category returns the first category name.
func Category(raw *upstream.RawJob) string {
	c, ok := raw.JobCategory.First()
	if !ok {
		return ""
	}
	return c.CategoryName.Trimmed()
}

// JobNumber prefers the work order number over the job number.
func JobNumber(raw *upstream.RawJob) string {
	if n := raw.WorkOrderNumber.Trimmed(); n != "" {
		return n
	}
	return raw.JobNumber.Trimmed()
}

// Status returns the name of the first (newest) status entry.
func Status(raw *upstream.RawJob) string {
	if len(raw.JobStatus) == 0 {
		return ""
	}
	return raw.JobStatus[0].StatusName.Trimmed()
}

// OrganizationRef returns the customer's organization reference, if the job has one.
func OrganizationRef(raw *upstream.RawJob) (models.OrganizationRef, bool) {
	if raw.Customer == nil || raw.Customer.CustomerOrganization == nil {
		return models.OrganizationRef{}, false
	}
	org := raw.Customer.CustomerOrganization
	uid := strings.TrimSpace(org.OrganizationUID)
	if uid == "" {
		return models.OrganizationRef{}, false
	}
	return models.OrganizationRef{UID: uid, Name: org.OrganizationName.Trimmed()}, true
}

// CustomFields maps raw custom fields, dropping blank labels. The first occurrence of
// a label wins.
func CustomFields(kind models.ParentKind, parentUID string, raw []upstream.RawCustomField) []models.CustomField {
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]models.CustomField, 0, len(raw))
	for _, f := range raw {
		label := f.Label.Trimmed()
		if label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, models.CustomField{
			ParentKind: kind,
			ParentUID:  parentUID,
			Label:      label,
			Value:      f.Value.String(),
			Type:       f.Type.Trimmed(),
		})
	}
	return out
}

// BillingReference returns the trimmed value of the first custom field whose label
// contains one of keywords (case-insensitive) and whose value is not blank.
func BillingReference(fields []models.CustomField, keywords []string) *string {
	keywords = foldAll(keywords)
	for i := range fields {
		if !containsAny(Fold(fields[i].Label), keywords) {
			continue
		}
		if v := strings.TrimSpace(fields[i].Value); v != "" {
			return &v
		}
	}
	return nil
}

// Link returns the value of the first custom field whose label mentions term
// (e.g. "jira", "slack"), or nil.
func Link(fields []models.CustomField, term string) *string {
	term = Fold(term)
	for i := range fields {
		if !strings.Contains(Fold(fields[i].Label), term) {
			continue
		}
		if v := strings.TrimSpace(fields[i].Value); v != "" {
			return &v
		}
	}
	return nil
}
