// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package database

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/fieldcheck/internal/models"
)

func makeOrg(uid, name string, billing *string) models.OrganizationRecord {
	updated := baseTime.Add(-time.Hour)
	return models.OrganizationRecord{
		Organization: models.Organization{
			OrganizationUID: uid, Name: name, IsActive: true,
			BillingReference: billing, UpdatedAt: &updated, SyncedAt: baseTime,
		},
		CustomFields: []models.CustomField{{
			ParentKind: models.ParentOrganization, ParentUID: uid, Label: "NetSuite Customer ID", Value: "C-1",
		}},
	}
}

func TestOrganizations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	res, err := db.UpsertOrganizationBatch(ctx, []models.OrganizationRecord{
		makeOrg("o1", "Acme Farms", ptr("C-1")),
		makeOrg("o2", "Beta Ag", nil),
	})
	if err != nil || res.Created != 2 {
		t.Fatalf("first upsert = %+v, %v", res, err)
	}
	res, err = db.UpsertOrganizationBatch(ctx, []models.OrganizationRecord{makeOrg("o2", "Beta Agriculture", nil)})
	if err != nil || res.Updated != 1 {
		t.Fatalf("second upsert = %+v, %v", res, err)
	}

	page, err := db.QueryOrganizations(ctx, &models.OrganizationFilter{MissingBilling: true})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Organizations[0].Name != "Beta Agriculture" || page.Organizations[0].HasBillingReference {
		t.Fatalf("missing billing page = %+v", page)
	}

	page, err = db.QueryOrganizations(ctx, &models.OrganizationFilter{Name: "acme"})
	if err != nil || page.Total != 1 || !page.Organizations[0].HasBillingReference {
		t.Fatalf("name filter = %+v, %v", page, err)
	}

	ts, err := db.OrganizationTimestamps(ctx, []string{"o1", "zz"})
	if err != nil || len(ts) != 1 || ts["o1"] == nil {
		t.Fatalf("timestamps = %v, %v", ts, err)
	}

	n, err := db.EnsureOrganizationStubs(ctx, []models.OrganizationRef{
		{UID: "o1", Name: "ignored"}, {UID: "o3", Name: "Gamma"}, {UID: "o3", Name: "Gamma"}, {UID: ""},
	})
	if err != nil || n != 1 {
		t.Fatalf("stubs = %d, %v", n, err)
	}
	page, err = db.QueryOrganizations(ctx, &models.OrganizationFilter{})
	if err != nil || page.Total != 3 || page.Organizations[0].Name != "Acme Farms" {
		t.Fatalf("all = %+v, %v", page, err)
	}
}
