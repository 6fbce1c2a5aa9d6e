// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/fieldcheck/internal/models"
)

const orgColumns = `organization_uid, organization_name, organization_email, organization_description,
	no_of_customers, is_active, is_portal_enabled, is_deleted, billing_reference, has_billing_reference,
	created_at, updated_at, synced_at`

const orgColumnCount = 13

const orgUpsertSuffix = ` ON CONFLICT (organization_uid) DO UPDATE SET
	organization_name = EXCLUDED.organization_name,
	organization_email = EXCLUDED.organization_email,
	organization_description = EXCLUDED.organization_description,
	no_of_customers = EXCLUDED.no_of_customers,
	is_active = EXCLUDED.is_active,
	is_portal_enabled = EXCLUDED.is_portal_enabled,
	is_deleted = EXCLUDED.is_deleted,
	billing_reference = EXCLUDED.billing_reference,
	has_billing_reference = EXCLUDED.has_billing_reference,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at,
	synced_at = EXCLUDED.synced_at`

// UpsertOrganizationBatch writes organizations and replaces their custom fields in
// one transaction. Only Created and Updated of the result are set.
func (db *DB) UpsertOrganizationBatch(ctx context.Context, records []models.OrganizationRecord) (BatchResult, error) {
	index := make(map[string]int, len(records))
	var recs []models.OrganizationRecord
	for i := range records {
		uid := records[i].Organization.OrganizationUID
		if uid == "" {
			continue
		}
		if pos, ok := index[uid]; ok {
			recs[pos] = records[i]
			continue
		}
		index[uid] = len(recs)
		recs = append(recs, records[i])
	}
	if len(recs) == 0 {
		return BatchResult{}, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var res BatchResult
	err := db.withTx(ctx, "UpsertOrganizationBatch", func(tx *sql.Tx) error {
		res = BatchResult{}
		uids := make([]string, len(recs))
		var fields []models.CustomField
		for i := range recs {
			o := &recs[i].Organization
			o.HasBillingReference = o.BillingReference != nil && *o.BillingReference != ""
			uids[i] = o.OrganizationUID
			fields = append(fields, recs[i].CustomFields...)
		}

		existing, err := existingUIDs(ctx, tx, "organizations", "organization_uid", uids)
		if err != nil {
			return fmt.Errorf("read existing organizations: %w", err)
		}
		for _, uid := range uids {
			if existing[uid] {
				res.Updated++
			} else {
				res.Created++
			}
		}

		err = chunk(len(recs), rowsPerInsert, func(start, end int) error {
			args := make([]any, 0, (end-start)*orgColumnCount)
			for i := range recs[start:end] {
				o := &recs[start+i].Organization
				args = append(args, o.OrganizationUID, o.Name, o.Email, o.Description, o.NoOfCustomers,
					o.IsActive, o.IsPortalEnabled, o.IsDeleted, nullString(o.BillingReference),
					o.HasBillingReference, nullTime(o.CreatedAt), nullTime(o.UpdatedAt), o.SyncedAt.UTC())
			}
			query := "INSERT INTO organizations (" + orgColumns + ") VALUES " +
				rowPlaceholders(end-start, orgColumnCount) + orgUpsertSuffix
			_, err := tx.ExecContext(ctx, query, args...)
			return err
		})
		if err != nil {
			return fmt.Errorf("upsert organizations: %w", err)
		}

		placeholders, args := buildInClause(uids)
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM custom_fields WHERE parent_kind = 'organization' AND parent_uid IN ("+placeholders+")",
			args...); err != nil {
			return fmt.Errorf("delete organization fields: %w", err)
		}
		return insertCustomFields(ctx, tx, fields)
	})
	if err != nil {
		return BatchResult{}, err
	}
	return res, nil
}

// OrganizationTimestamps returns the stored updated_at of every uid that exists.
func (db *DB) OrganizationTimestamps(ctx context.Context, uids []string) (map[string]*time.Time, error) {
	out := make(map[string]*time.Time, len(uids))
	if len(uids) == 0 {
		return out, nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	placeholders, args := buildInClause(uids)
	rows, err := db.conn.QueryContext(ctx,
		"SELECT organization_uid, updated_at FROM organizations WHERE organization_uid IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("organization timestamps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var uid string
		var updated sql.NullTime
		if err := rows.Scan(&uid, &updated); err != nil {
			return nil, err
		}
		out[uid] = timePtr(updated)
	}
	return out, rows.Err()
}

// EnsureOrganizationStubs inserts a name-only row for each referenced organization
// that is not stored yet, so jobs never point at an unknown organization. Existing
// rows are left alone. Returns the number inserted.
func (db *DB) EnsureOrganizationStubs(ctx context.Context, refs []models.OrganizationRef) (int, error) {
	seen := make(map[string]bool, len(refs))
	var args []any
	now := db.now().UTC()
	for _, r := range refs {
		if r.UID == "" || seen[r.UID] {
			continue
		}
		seen[r.UID] = true
		args = append(args, r.UID, r.Name, now)
	}
	if len(args) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var inserted int
	err := db.withTx(ctx, "EnsureOrganizationStubs", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO organizations (organization_uid, organization_name, synced_at) VALUES `+
				rowPlaceholders(len(args)/3, 3)+` ON CONFLICT (organization_uid) DO NOTHING`, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		inserted = int(n)
		return err
	})
	return inserted, err
}

// QueryOrganizations returns one page of organizations ordered by name.
func (db *DB) QueryOrganizations(ctx context.Context, filter *models.OrganizationFilter) (*models.OrganizationPage, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	f := *filter
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}

	qb := newQueryBuilder("SELECT " + orgColumns + " FROM organizations WHERE 1=1")
	if s := strings.TrimSpace(f.Name); s != "" {
		qb.addFilter(`organization_name ILIKE ? ESCAPE '\'`, containsPattern(s))
	}
	if f.MissingBilling {
		qb.addFilter("NOT has_billing_reference")
	}
	if f.ActiveOnly {
		qb.addFilter("is_active AND NOT is_deleted")
	}

	clause, countArgs := qb.where()
	var total int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM organizations WHERE 1=1"+clause, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count organizations: %w", err)
	}

	query, args := qb.build("ORDER BY organization_name, organization_uid LIMIT ? OFFSET ?",
		f.PageSize, (f.Page-1)*f.PageSize)
	orgs, err := queryAndScan(ctx, db.conn, query, args, scanOrganization)
	if err != nil {
		return nil, fmt.Errorf("query organizations: %w", err)
	}
	if orgs == nil {
		orgs = []models.Organization{}
	}
	return &models.OrganizationPage{Organizations: orgs, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

func scanOrganization(r rowScanner) (models.Organization, error) {
	var o models.Organization
	var billing sql.NullString
	var created, updated sql.NullTime
	if err := r.Scan(&o.OrganizationUID, &o.Name, &o.Email, &o.Description, &o.NoOfCustomers,
		&o.IsActive, &o.IsPortalEnabled, &o.IsDeleted, &billing, &o.HasBillingReference,
		&created, &updated, &o.SyncedAt); err != nil {
		return o, err
	}
	o.BillingReference = stringPtr(billing)
	o.CreatedAt = timePtr(created)
	o.UpdatedAt = timePtr(updated)
	o.SyncedAt = o.SyncedAt.UTC()
	return o, nil
}
