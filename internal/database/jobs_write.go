// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/fieldcheck/internal/models"
)

// rowsPerInsert bounds the VALUES list of one multi-row statement.
const rowsPerInsert = 100

const jobColumns = `job_uid, job_number, job_title, job_status, job_category, customer_name,
	organization_uid, organization_name, service_team, asset_name, created_at, updated_at,
	completed_at, has_line_items, has_checklist_parts, has_netsuite_id, netsuite_sales_order_id,
	jira_link, slack_link, synced_at`

const jobColumnCount = 20

const jobUpsertSuffix = ` ON CONFLICT (job_uid) DO UPDATE SET
	job_number = EXCLUDED.job_number,
	job_title = EXCLUDED.job_title,
	job_status = EXCLUDED.job_status,
	job_category = EXCLUDED.job_category,
	customer_name = EXCLUDED.customer_name,
	organization_uid = EXCLUDED.organization_uid,
	organization_name = EXCLUDED.organization_name,
	service_team = EXCLUDED.service_team,
	asset_name = EXCLUDED.asset_name,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at,
	completed_at = EXCLUDED.completed_at,
	has_line_items = EXCLUDED.has_line_items,
	has_checklist_parts = EXCLUDED.has_checklist_parts,
	has_netsuite_id = EXCLUDED.has_netsuite_id,
	netsuite_sales_order_id = EXCLUDED.netsuite_sales_order_id,
	jira_link = EXCLUDED.jira_link,
	slack_link = EXCLUDED.slack_link,
	synced_at = EXCLUDED.synced_at`

// BatchResult summarises one committed batch.
type BatchResult struct {
	Created int
	Updated int
	// FlagsCreated holds the newly inserted flags with their ids.
	FlagsCreated []models.ValidationFlag
	// FlagsCleared counts flags whose condition stopped firing.
	FlagsCleared int
}

// PersistJobBatch writes every record in one transaction: the job rows, a full
// replacement of their child collections and flag reconciliation. Records with a
// repeated job_uid keep the last occurrence.
//
// Flag reconciliation per job:
//   - a firing rule inserts a flag unless one of that type still has an active
//     condition (open, or resolved by an operator)
//   - a rule that no longer fires marks its flags inactive and resolves open ones
//     with resolved_by = "sync"
//   - SkipValidation records leave flags alone
//
// Transaction conflicts are retried; what remains is wrapped in ErrStorage.
func (db *DB) PersistJobBatch(ctx context.Context, records []models.JobRecord) (BatchResult, error) {
	records = dedupeRecords(records)
	if len(records) == 0 {
		return BatchResult{}, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var res BatchResult
	err := db.withTx(ctx, "PersistJobBatch", func(tx *sql.Tx) error {
		res = BatchResult{}
		return db.persistRecords(ctx, tx, records, &res)
	})
	if err != nil {
		return BatchResult{}, err
	}
	return res, nil
}

// PersistJob writes a single record in its own transaction.
func (db *DB) PersistJob(ctx context.Context, record *models.JobRecord) (BatchResult, error) {
	return db.PersistJobBatch(ctx, []models.JobRecord{*record})
}

func dedupeRecords(records []models.JobRecord) []models.JobRecord {
	index := make(map[string]int, len(records))
	out := make([]models.JobRecord, 0, len(records))
	for i := range records {
		uid := records[i].Job.JobUID
		if uid == "" {
			continue
		}
		if pos, ok := index[uid]; ok {
			out[pos] = records[i]
			continue
		}
		index[uid] = len(out)
		out = append(out, records[i])
	}
	return out
}

func (db *DB) persistRecords(ctx context.Context, tx *sql.Tx, records []models.JobRecord, res *BatchResult) error {
	uids := make([]string, len(records))
	jobs := make([]*models.Job, len(records))
	for i := range records {
		records[i].DeriveFlags()
		uids[i] = records[i].Job.JobUID
		jobs[i] = &records[i].Job
	}

	existing, err := existingUIDs(ctx, tx, "jobs", "job_uid", uids)
	if err != nil {
		return fmt.Errorf("read existing jobs: %w", err)
	}
	for _, uid := range uids {
		if existing[uid] {
			res.Updated++
		} else {
			res.Created++
		}
	}

	if err := upsertJobs(ctx, tx, jobs); err != nil {
		return err
	}
	if err := deleteChildren(ctx, tx, uids); err != nil {
		return err
	}

	var items []models.LineItem
	var parts []models.ChecklistPart
	var fields []models.CustomField
	for i := range records {
		items = append(items, records[i].LineItems...)
		parts = append(parts, records[i].ChecklistParts...)
		fields = append(fields, records[i].CustomFields...)
	}
	if err := insertLineItems(ctx, tx, items); err != nil {
		return err
	}
	if err := insertChecklistParts(ctx, tx, parts); err != nil {
		return err
	}
	if err := insertCustomFields(ctx, tx, fields); err != nil {
		return err
	}

	return db.reconcileFlags(ctx, tx, records, res)
}

// existingUIDs returns which of uids already have a row in table.
func existingUIDs(ctx context.Context, q queryer, table, column string, uids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(uids))
	err := chunk(len(uids), rowsPerInsert*5, func(start, end int) error {
		placeholders, args := buildInClause(uids[start:end])
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)", column, table, column, placeholders) //nolint:gosec // identifiers are constants
		ids, err := queryStrings(ctx, q, query, args...)
		if err != nil {
			return err
		}
		for _, id := range ids {
			found[id] = true
		}
		return nil
	})
	return found, err
}

func jobArgs(j *models.Job) []any {
	return []any{
		j.JobUID, j.JobNumber, j.JobTitle, j.JobStatus, j.JobCategory, j.CustomerName,
		nullString(j.OrganizationUID), nullString(j.OrganizationName), j.ServiceTeam, j.AssetName,
		nullTime(j.CreatedAt), nullTime(j.UpdatedAt), nullTime(j.CompletedAt),
		j.HasLineItems, j.HasChecklistParts, j.HasNetsuiteID, nullString(j.NetsuiteSalesOrderID),
		nullString(j.JiraLink), nullString(j.SlackLink), j.SyncedAt.UTC(),
	}
}

func upsertJobs(ctx context.Context, q queryer, jobs []*models.Job) error {
	return chunk(len(jobs), rowsPerInsert, func(start, end int) error {
		args := make([]any, 0, (end-start)*jobColumnCount)
		for _, j := range jobs[start:end] {
			args = append(args, jobArgs(j)...)
		}
		query := "INSERT INTO jobs (" + jobColumns + ") VALUES " +
			rowPlaceholders(end-start, jobColumnCount) + jobUpsertSuffix
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert jobs: %w", err)
		}
		return nil
	})
}

func deleteChildren(ctx context.Context, q queryer, uids []string) error {
	placeholders, args := buildInClause(uids)
	stmts := []string{
		"DELETE FROM job_line_items WHERE job_uid IN (" + placeholders + ")",
		"DELETE FROM job_checklist_parts WHERE job_uid IN (" + placeholders + ")",
		"DELETE FROM custom_fields WHERE parent_kind = 'job' AND parent_uid IN (" + placeholders + ")",
	}
	for _, stmt := range stmts {
		if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("delete children: %w", err)
		}
	}
	return nil
}

func insertLineItems(ctx context.Context, q queryer, items []models.LineItem) error {
	const tuple = "(?,?,?,?,?,?,CAST(? AS DECIMAL(18,4)),?)"
	return chunk(len(items), rowsPerInsert, func(start, end int) error {
		args := make([]any, 0, (end-start)*8)
		for i := range items[start:end] {
			li := &items[start+i]
			var price any
			if li.Price.Valid {
				price = li.Price.Decimal.String()
			}
			args = append(args, li.JobUID, li.Position, li.ItemName, li.ItemCode, li.ItemSerial,
				li.Quantity, price, li.LineItemType)
		}
		query := `INSERT INTO job_line_items
			(job_uid, position, item_name, item_code, item_serial, quantity, price, line_item_type)
			VALUES ` + repeatTuple(tuple, end-start)
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert line items: %w", err)
		}
		return nil
	})
}

func insertChecklistParts(ctx context.Context, q queryer, parts []models.ChecklistPart) error {
	return chunk(len(parts), rowsPerInsert, func(start, end int) error {
		args := make([]any, 0, (end-start)*7)
		for i := range parts[start:end] {
			p := &parts[start+i]
			args = append(args, p.JobUID, p.Position, p.ChecklistQuestion, p.PartSerial,
				p.PartDescription, p.StatusName, nullTime(p.UpdatedAt))
		}
		query := `INSERT INTO job_checklist_parts
			(job_uid, position, checklist_question, part_serial, part_description, status_name, updated_at)
			VALUES ` + rowPlaceholders(end-start, 7)
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert checklist parts: %w", err)
		}
		return nil
	})
}

func insertCustomFields(ctx context.Context, q queryer, fields []models.CustomField) error {
	return chunk(len(fields), rowsPerInsert, func(start, end int) error {
		args := make([]any, 0, (end-start)*5)
		for i := range fields[start:end] {
			f := &fields[start+i]
			args = append(args, string(f.ParentKind), f.ParentUID, f.Label, f.Value, f.Type)
		}
		query := `INSERT INTO custom_fields (parent_kind, parent_uid, field_label, field_value, field_type)
			VALUES ` + rowPlaceholders(end-start, 5)
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert custom fields: %w", err)
		}
		return nil
	})
}

type flagKey struct {
	jobUID   string
	flagType models.FlagType
}

// activeFlagTypes returns the (job, type) pairs whose condition is still active.
func activeFlagTypes(ctx context.Context, q queryer, uids []string) (map[flagKey]bool, error) {
	placeholders, args := buildInClause(uids)
	rows, err := q.QueryContext(ctx,
		"SELECT job_uid, flag_type FROM validation_flags WHERE condition_active AND job_uid IN ("+placeholders+")",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	active := make(map[flagKey]bool)
	for rows.Next() {
		var uid, typ string
		if err := rows.Scan(&uid, &typ); err != nil {
			return nil, err
		}
		active[flagKey{uid, models.FlagType(typ)}] = true
	}
	return active, rows.Err()
}

func (db *DB) reconcileFlags(ctx context.Context, tx *sql.Tx, records []models.JobRecord, res *BatchResult) error {
	var uids []string
	for i := range records {
		if !records[i].SkipValidation {
			uids = append(uids, records[i].Job.JobUID)
		}
	}
	if len(uids) == 0 {
		return nil
	}

	active, err := activeFlagTypes(ctx, tx, uids)
	if err != nil {
		return fmt.Errorf("read active flags: %w", err)
	}

	now := db.now().UTC()
	var inserts []models.ValidationFlag
	clears := make(map[models.FlagType][]string)
	for i := range records {
		rec := &records[i]
		if rec.SkipValidation {
			continue
		}
		firing := make(map[models.FlagType]bool, len(rec.Flags))
		for _, f := range rec.Flags {
			firing[f.Type] = true
			key := flagKey{rec.Job.JobUID, f.Type}
			if active[key] {
				continue
			}
			active[key] = true
			f.JobUID = rec.Job.JobUID
			f.ConditionActive = true
			f.IsResolved = false
			f.CreatedAt = now
			inserts = append(inserts, f)
		}
		for _, t := range models.AllFlagTypes {
			if !firing[t] && active[flagKey{rec.Job.JobUID, t}] {
				clears[t] = append(clears[t], rec.Job.JobUID)
			}
		}
	}

	created, err := insertFlags(ctx, tx, inserts)
	if err != nil {
		return err
	}
	res.FlagsCreated = append(res.FlagsCreated, created...)

	for _, t := range models.AllFlagTypes {
		if len(clears[t]) == 0 {
			continue
		}
		n, err := clearFlagCondition(ctx, tx, t, clears[t], now)
		if err != nil {
			return err
		}
		res.FlagsCleared += n
	}
	return nil
}

func insertFlags(ctx context.Context, q queryer, flags []models.ValidationFlag) ([]models.ValidationFlag, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	byKey := make(map[flagKey]int, len(flags))
	for i := range flags {
		byKey[flagKey{flags[i].JobUID, flags[i].Type}] = i
	}

	err := chunk(len(flags), rowsPerInsert, func(start, end int) error {
		args := make([]any, 0, (end-start)*7)
		for i := range flags[start:end] {
			f := &flags[start+i]
			args = append(args, f.JobUID, string(f.Type), string(f.Severity), f.Message,
				detailsArg(f.Details), f.ConditionActive, f.CreatedAt)
		}
		query := `INSERT INTO validation_flags
			(job_uid, flag_type, flag_severity, flag_message, details, condition_active, created_at)
			VALUES ` + rowPlaceholders(end-start, 7) + ` RETURNING id, job_uid, flag_type`
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("insert flags: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var uid, typ string
			if err := rows.Scan(&id, &uid, &typ); err != nil {
				return fmt.Errorf("scan inserted flag: %w", err)
			}
			if i, ok := byKey[flagKey{uid, models.FlagType(typ)}]; ok {
				flags[i].ID = id
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return flags, nil
}

// clearFlagCondition deactivates flagType on jobs where the rule stopped firing,
// resolving flags that were still open.
func clearFlagCondition(ctx context.Context, q queryer, flagType models.FlagType, uids []string, now time.Time) (int, error) {
	placeholders, inArgs := buildInClause(uids)
	args := append([]any{now, models.ResolvedBySync, string(flagType)}, inArgs...)
	result, err := q.ExecContext(ctx, `UPDATE validation_flags SET
			condition_active = false,
			resolved_at = CASE WHEN is_resolved THEN resolved_at ELSE ? END,
			resolved_by = CASE WHEN is_resolved THEN resolved_by ELSE ? END,
			is_resolved = true
		WHERE flag_type = ? AND condition_active AND job_uid IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("clear %s flags: %w", flagType, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, nil //nolint:nilerr // count is informational
	}
	return int(n), nil
}

func detailsArg(d []byte) any {
	if len(d) == 0 {
		return nil
	}
	return string(d)
}

// UpsertJob inserts or updates a single job row without touching its children.
func (db *DB) UpsertJob(ctx context.Context, job *models.Job) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return db.withTx(ctx, "UpsertJob", func(tx *sql.Tx) error {
		return upsertJobs(ctx, tx, []*models.Job{job})
	})
}

// ReplaceChildren replaces one child collection of a job. rows must be
// []models.LineItem, []models.ChecklistPart or []models.CustomField matching kind.
func (db *DB) ReplaceChildren(ctx context.Context, jobUID string, kind models.ChildKind, rows any) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return db.withTx(ctx, "ReplaceChildren", func(tx *sql.Tx) error {
		switch v := rows.(type) {
		case []models.LineItem:
			if kind != models.ChildLineItems {
				return fmt.Errorf("rows do not match child kind %q", kind)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM job_line_items WHERE job_uid = ?", jobUID); err != nil {
				return err
			}
			for i := range v {
				v[i].JobUID = jobUID
			}
			return insertLineItems(ctx, tx, v)
		case []models.ChecklistPart:
			if kind != models.ChildChecklistParts {
				return fmt.Errorf("rows do not match child kind %q", kind)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM job_checklist_parts WHERE job_uid = ?", jobUID); err != nil {
				return err
			}
			for i := range v {
				v[i].JobUID = jobUID
			}
			return insertChecklistParts(ctx, tx, v)
		case []models.CustomField:
			if kind != models.ChildCustomFields {
				return fmt.Errorf("rows do not match child kind %q", kind)
			}
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM custom_fields WHERE parent_kind = 'job' AND parent_uid = ?", jobUID); err != nil {
				return err
			}
			for i := range v {
				v[i].ParentKind = models.ParentJob
				v[i].ParentUID = jobUID
			}
			return insertCustomFields(ctx, tx, v)
		default:
			return fmt.Errorf("unsupported child rows %T", rows)
		}
	})
}

// UpsertFlagIfAbsent inserts flag unless a flag of the same type with an active
// condition already exists for the job, in which case it returns ErrFlagExists.
// On insert flag.ID and flag.CreatedAt are set.
func (db *DB) UpsertFlagIfAbsent(ctx context.Context, flag *models.ValidationFlag) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var exists bool
	err := db.withTx(ctx, "UpsertFlagIfAbsent", func(tx *sql.Tx) error {
		exists = false
		active, err := activeFlagTypes(ctx, tx, []string{flag.JobUID})
		if err != nil {
			return err
		}
		if active[flagKey{flag.JobUID, flag.Type}] {
			exists = true
			return nil
		}
		f := *flag
		f.ConditionActive = true
		f.CreatedAt = db.now().UTC()
		created, err := insertFlags(ctx, tx, []models.ValidationFlag{f})
		if err != nil {
			return err
		}
		*flag = created[0]
		return nil
	})
	if err != nil {
		return err
	}
	if exists {
		return ErrFlagExists
	}
	return nil
}
