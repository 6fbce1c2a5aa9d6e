// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/tomtom215/fieldcheck/internal/models"
)

const (
	defaultPageSize = 50

	// jobDateExpr is the date every listing filter and sort uses.
	jobDateExpr = "COALESCE(completed_at, created_at)"
)

func scanJob(r rowScanner, extra ...any) (models.Job, error) {
	var j models.Job
	var orgUID, orgName, netsuite, jira, slack sql.NullString
	var created, updated, completed sql.NullTime
	dest := []any{
		&j.JobUID, &j.JobNumber, &j.JobTitle, &j.JobStatus, &j.JobCategory, &j.CustomerName,
		&orgUID, &orgName, &j.ServiceTeam, &j.AssetName, &created, &updated, &completed,
		&j.HasLineItems, &j.HasChecklistParts, &j.HasNetsuiteID, &netsuite, &jira, &slack, &j.SyncedAt,
	}
	if err := r.Scan(append(dest, extra...)...); err != nil {
		return j, err
	}
	j.OrganizationUID = stringPtr(orgUID)
	j.OrganizationName = stringPtr(orgName)
	j.CreatedAt = timePtr(created)
	j.UpdatedAt = timePtr(updated)
	j.CompletedAt = timePtr(completed)
	j.NetsuiteSalesOrderID = stringPtr(netsuite)
	j.JiraLink = stringPtr(jira)
	j.SlackLink = stringPtr(slack)
	j.SyncedAt = j.SyncedAt.UTC()
	return j, nil
}

// flagExists is the condition "job has an open flag of type ?".
const flagExists = `EXISTS (SELECT 1 FROM validation_flags f
	WHERE f.job_uid = job_summary.job_uid AND NOT f.is_resolved AND f.flag_type = ?)`

// applyJobFilter adds filter's conditions to qb. The flag filter is skipped when
// withFlags is false.
func applyJobFilter(qb *queryBuilder, f *models.JobFilter, withFlags bool) {
	if f == nil {
		return
	}
	if withFlags {
		switch f.FlagFilter {
		case models.FlagFilterMissingBilling:
			qb.addFilter(flagExists, string(models.FlagMissingBillingReference))
		case models.FlagFilterPartsNoItems:
			qb.addFilter(flagExists, string(models.FlagPartsReplacedNoLineItems))
		case models.FlagFilterPassing:
			qb.addFilter("open_flag_count = 0")
		}
	}

	if s := strings.TrimSpace(f.JobNumber); s != "" {
		qb.addFilter(`job_number ILIKE ? ESCAPE '\'`, containsPattern(s))
	}
	if s := strings.TrimSpace(f.Part); s != "" {
		p := containsPattern(s)
		qb.addFilter(`(EXISTS (SELECT 1 FROM job_line_items li WHERE li.job_uid = job_summary.job_uid
				AND (li.item_name ILIKE ? ESCAPE '\' OR li.item_code ILIKE ? ESCAPE '\'))
			OR EXISTS (SELECT 1 FROM job_checklist_parts cp WHERE cp.job_uid = job_summary.job_uid
				AND (cp.checklist_question ILIKE ? ESCAPE '\' OR cp.part_description ILIKE ? ESCAPE '\')))`,
			p, p, p, p)
	}
	if s := strings.TrimSpace(f.Serial); s != "" {
		p := containsPattern(s)
		qb.addFilter(`(EXISTS (SELECT 1 FROM job_line_items li WHERE li.job_uid = job_summary.job_uid
				AND li.item_serial ILIKE ? ESCAPE '\')
			OR EXISTS (SELECT 1 FROM job_checklist_parts cp WHERE cp.job_uid = job_summary.job_uid
				AND cp.part_serial ILIKE ? ESCAPE '\'))`, p, p)
	}

	qb.addEquals("job_category", f.Category)
	qb.addEquals("service_team", f.Team)
	qb.addEquals("asset_name", f.Asset)
	if f.Organization != "" {
		qb.addFilter("(organization_name = ? OR customer_name = ?)", f.Organization, f.Organization)
	}

	start, end := dateRange(f)
	if start != nil {
		qb.addFilter(jobDateExpr+" >= ?", *start)
	}
	if end != nil {
		qb.addFilter(jobDateExpr+" < ?", *end)
	}
}

// dateRange returns the half-open [start, end) window of the filter. Month wins over
// explicit dates; EndDate is inclusive of its whole day.
func dateRange(f *models.JobFilter) (start, end *time.Time) {
	if f.Month != "" {
		if m, err := time.Parse("2006-01", f.Month); err == nil {
			next := m.AddDate(0, 1, 0)
			return &m, &next
		}
	}
	if f.StartDate != nil {
		s := f.StartDate.UTC()
		start = &s
	}
	if f.EndDate != nil {
		e := f.EndDate.UTC().Truncate(24*time.Hour).AddDate(0, 0, 1)
		end = &e
	}
	return start, end
}

// QueryJobs returns one page of jobs matching filter, newest first, with their open
// flag summary.
func (db *DB) QueryJobs(ctx context.Context, filter *models.JobFilter) (*models.JobPage, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if filter == nil {
		filter = &models.JobFilter{}
	}
	f := *filter
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}

	qb := newQueryBuilder("SELECT " + jobColumns + `, open_flag_count, open_flag_types, open_flag_messages
		FROM job_summary WHERE 1=1`)
	applyJobFilter(qb, &f, true)

	clause, countArgs := qb.where()
	var total int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM job_summary WHERE 1=1"+clause, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	query, args := qb.build("ORDER BY "+jobDateExpr+" DESC NULLS LAST, job_uid LIMIT ? OFFSET ?", f.PageSize, f.Offset())
	items, err := queryAndScan(ctx, db.conn, query, args, func(r rowScanner) (models.JobListItem, error) {
		var item models.JobListItem
		var types, messages sql.NullString
		job, err := scanJob(r, &item.OpenFlagCount, &types, &messages)
		if err != nil {
			return item, err
		}
		item.Job = job
		item.OpenFlagTypes = splitList(types, ",")
		item.FlagMessages = splitList(messages, "\n")
		return item, nil
	})
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	if items == nil {
		items = []models.JobListItem{}
	}

	return &models.JobPage{Jobs: items, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// GetJobDetail returns a job with its children and all of its flags.
func (db *DB) GetJobDetail(ctx context.Context, jobUID string) (*models.JobDetail, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	job, err := scanJob(db.conn.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE job_uid = ?", jobUID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	detail := &models.JobDetail{Job: job}
	if detail.LineItems, err = lineItemsFor(ctx, db.conn, jobUID); err != nil {
		return nil, err
	}
	if detail.ChecklistParts, err = checklistPartsFor(ctx, db.conn, jobUID); err != nil {
		return nil, err
	}
	if detail.CustomFields, err = customFieldsFor(ctx, db.conn, models.ParentJob, jobUID); err != nil {
		return nil, err
	}
	if detail.Flags, err = db.flagsForJob(ctx, jobUID); err != nil {
		return nil, err
	}
	return detail, nil
}

func lineItemsFor(ctx context.Context, q queryer, jobUID string) ([]models.LineItem, error) {
	items, err := queryAndScan(ctx, q, `SELECT job_uid, position, item_name, item_code, item_serial, quantity,
			CAST(price AS VARCHAR), line_item_type
		FROM job_line_items WHERE job_uid = ? ORDER BY position`, []any{jobUID},
		func(r rowScanner) (models.LineItem, error) {
			var li models.LineItem
			var price sql.NullString
			if err := r.Scan(&li.JobUID, &li.Position, &li.ItemName, &li.ItemCode, &li.ItemSerial,
				&li.Quantity, &price, &li.LineItemType); err != nil {
				return li, err
			}
			if price.Valid {
				d, err := decimal.NewFromString(price.String)
				if err != nil {
					return li, fmt.Errorf("parse price %q: %w", price.String, err)
				}
				li.Price = decimal.NewNullDecimal(d)
			}
			return li, nil
		})
	if err != nil {
		return nil, fmt.Errorf("line items: %w", err)
	}
	if items == nil {
		items = []models.LineItem{}
	}
	return items, nil
}

func checklistPartsFor(ctx context.Context, q queryer, jobUID string) ([]models.ChecklistPart, error) {
	parts, err := queryAndScan(ctx, q, `SELECT job_uid, checklist_question, part_serial, part_description,
			status_name, position, updated_at
		FROM job_checklist_parts WHERE job_uid = ? ORDER BY position, part_serial`, []any{jobUID},
		func(r rowScanner) (models.ChecklistPart, error) {
			var p models.ChecklistPart
			var updated sql.NullTime
			err := r.Scan(&p.JobUID, &p.ChecklistQuestion, &p.PartSerial, &p.PartDescription,
				&p.StatusName, &p.Position, &updated)
			p.UpdatedAt = timePtr(updated)
			return p, err
		})
	if err != nil {
		return nil, fmt.Errorf("checklist parts: %w", err)
	}
	if parts == nil {
		parts = []models.ChecklistPart{}
	}
	return parts, nil
}

func customFieldsFor(ctx context.Context, q queryer, kind models.ParentKind, uid string) ([]models.CustomField, error) {
	fields, err := queryAndScan(ctx, q, `SELECT parent_kind, parent_uid, field_label, field_value, field_type
		FROM custom_fields WHERE parent_kind = ? AND parent_uid = ? ORDER BY field_label`, []any{string(kind), uid},
		func(r rowScanner) (models.CustomField, error) {
			var f models.CustomField
			var k string
			err := r.Scan(&k, &f.ParentUID, &f.Label, &f.Value, &f.Type)
			f.ParentKind = models.ParentKind(k)
			return f, err
		})
	if err != nil {
		return nil, fmt.Errorf("custom fields: %w", err)
	}
	if fields == nil {
		fields = []models.CustomField{}
	}
	return fields, nil
}

// JobTimestamps returns the stored updated_at of every uid that exists locally. A
// present key with a nil value is a job stored without an upstream timestamp.
func (db *DB) JobTimestamps(ctx context.Context, uids []string) (map[string]*time.Time, error) {
	out := make(map[string]*time.Time, len(uids))
	if len(uids) == 0 {
		return out, nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	placeholders, args := buildInClause(uids)
	rows, err := db.conn.QueryContext(ctx,
		"SELECT job_uid, updated_at FROM jobs WHERE job_uid IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("job timestamps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var uid string
		var updated sql.NullTime
		if err := rows.Scan(&uid, &updated); err != nil {
			return nil, fmt.Errorf("scan job timestamp: %w", err)
		}
		out[uid] = timePtr(updated)
	}
	return out, rows.Err()
}

// QueryMetrics returns dashboard counts over the jobs matching filter (nil for all).
// The flag filter and paging are ignored.
func (db *DB) QueryMetrics(ctx context.Context, filter *models.JobFilter) (*models.Metrics, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	qb := newQueryBuilder(`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE ` + flagExists + `),
			COUNT(*) FILTER (WHERE ` + flagExists + `),
			COUNT(*) FILTER (WHERE open_flag_count = 0),
			COUNT(*) FILTER (WHERE has_line_items),
			COUNT(*) FILTER (WHERE has_netsuite_id)
		FROM job_summary WHERE 1=1`)
	qb.args = append(qb.args, string(models.FlagMissingBillingReference), string(models.FlagPartsReplacedNoLineItems))
	applyJobFilter(qb, filter, false)

	query, args := qb.build("")
	m := &models.Metrics{}
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(
		&m.TotalJobs, &m.MissingBillingCount, &m.PartsNoLineItemsCount,
		&m.PassingCount, &m.JobsWithLineItems, &m.JobsWithBillingRef,
	); err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}

	last, err := db.LastSyncTime(ctx, models.ResourceJobs)
	if err != nil {
		return nil, err
	}
	m.LastSyncAt = last
	return m, nil
}

// FilterOptions lists the distinct organizations, teams and categories present.
func (db *DB) FilterOptions(ctx context.Context) (*models.FilterOptions, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	orgs, err := queryStrings(ctx, db.conn, `SELECT name FROM (
			SELECT organization_name AS name FROM jobs WHERE organization_name IS NOT NULL
			UNION SELECT customer_name FROM jobs
		) WHERE name <> '' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("filter organizations: %w", err)
	}
	teams, err := queryStrings(ctx, db.conn,
		"SELECT DISTINCT service_team FROM jobs WHERE service_team <> '' ORDER BY service_team")
	if err != nil {
		return nil, fmt.Errorf("filter teams: %w", err)
	}
	categories, err := queryStrings(ctx, db.conn,
		"SELECT DISTINCT job_category FROM jobs WHERE job_category <> '' ORDER BY job_category")
	if err != nil {
		return nil, fmt.Errorf("filter categories: %w", err)
	}
	return &models.FilterOptions{Organizations: orgs, Teams: teams, Categories: categories}, nil
}

// AssetsWithCounts lists every asset with its job count and the number of those
// jobs that have open flags.
func (db *DB) AssetsWithCounts(ctx context.Context) ([]models.AssetCount, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	assets, err := queryAndScan(ctx, db.conn, `SELECT asset_name, COUNT(*), COUNT(*) FILTER (WHERE open_flag_count > 0)
		FROM job_summary WHERE asset_name <> '' GROUP BY asset_name ORDER BY asset_name`, nil,
		func(r rowScanner) (models.AssetCount, error) {
			var a models.AssetCount
			err := r.Scan(&a.AssetName, &a.TotalJobs, &a.JobsWithIssues)
			return a, err
		})
	if err != nil {
		return nil, fmt.Errorf("assets: %w", err)
	}
	if assets == nil {
		assets = []models.AssetCount{}
	}
	return assets, nil
}

// SearchSerials finds the jobs whose line item serials contain, or whose checklist
// parts equal, any of serials. Matching is case-insensitive; blank and repeated
// serials are ignored. A job matching one serial through both sources appears once
// per source.
func (db *DB) SearchSerials(ctx context.Context, serials []string) ([]models.SerialMatch, error) {
	seen := make(map[string]bool, len(serials))
	var args []any
	for _, s := range serials {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		args = append(args, s, containsPattern(s))
	}
	if len(args) == 0 {
		return []models.SerialMatch{}, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `WITH wanted(serial, pattern) AS (VALUES ` + rowPlaceholders(len(args)/2, 2) + `)
		SELECT w.serial, j.job_uid, j.job_number, j.job_title, j.customer_name, j.asset_name,
			j.service_team, 'line_item' AS source, j.created_at
		FROM wanted w
		JOIN job_line_items li ON li.item_serial ILIKE w.pattern ESCAPE '\'
		JOIN jobs j ON j.job_uid = li.job_uid
		UNION
		SELECT w.serial, j.job_uid, j.job_number, j.job_title, j.customer_name, j.asset_name,
			j.service_team, 'checklist' AS source, j.created_at
		FROM wanted w
		JOIN job_checklist_parts cp ON upper(cp.part_serial) = w.serial
		JOIN jobs j ON j.job_uid = cp.job_uid
		ORDER BY 1, 9 DESC NULLS LAST, 2, 8`

	matches, err := queryAndScan(ctx, db.conn, query, args, func(r rowScanner) (models.SerialMatch, error) {
		var m models.SerialMatch
		var created sql.NullTime
		err := r.Scan(&m.SearchedSerial, &m.JobUID, &m.JobNumber, &m.JobTitle, &m.CustomerName,
			&m.AssetName, &m.ServiceTeam, &m.Source, &created)
		m.CreatedAt = timePtr(created)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("search serials: %w", err)
	}
	if matches == nil {
		matches = []models.SerialMatch{}
	}
	return matches, nil
}

func scanFlag(r rowScanner) (models.ValidationFlag, error) {
	var f models.ValidationFlag
	var typ, severity string
	var details, resolvedBy sql.NullString
	var resolvedAt sql.NullTime
	if err := r.Scan(&f.ID, &f.JobUID, &typ, &severity, &f.Message, &details,
		&f.IsResolved, &resolvedAt, &resolvedBy, &f.ConditionActive, &f.CreatedAt); err != nil {
		return f, err
	}
	f.Type = models.FlagType(typ)
	f.Severity = models.Severity(severity)
	if details.Valid && details.String != "" {
		f.Details = json.RawMessage(details.String)
	}
	f.ResolvedAt = timePtr(resolvedAt)
	f.ResolvedBy = stringPtr(resolvedBy)
	f.CreatedAt = f.CreatedAt.UTC()
	return f, nil
}
