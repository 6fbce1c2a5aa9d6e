// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

/*
database_schema.go - Database Schema

Tables:
  - jobs: one row per synced job, keyed by the upstream job_uid
  - job_line_items, job_checklist_parts: replace-on-sync children of a job
  - custom_fields: label/value pairs of jobs and organizations
  - validation_flags: detected data-quality issues with resolution state
  - organizations: customer accounts
  - sync_log, sync_lock: run history and the run-level lock marker
  - notification_log: one row per (job, notification type, channel) sent

Child tables carry no unique constraints so a job's rows can be deleted and
re-inserted inside one transaction. Custom field labels are de-duplicated before
insert.

The job_summary view joins each job with its child counts and open flags.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

var tableCreationQueries = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		job_uid TEXT PRIMARY KEY,
		job_number TEXT NOT NULL DEFAULT '',
		job_title TEXT NOT NULL DEFAULT '',
		job_status TEXT NOT NULL DEFAULT '',
		job_category TEXT NOT NULL DEFAULT '',
		customer_name TEXT NOT NULL DEFAULT '',
		organization_uid TEXT,
		organization_name TEXT,
		service_team TEXT NOT NULL DEFAULT '',
		asset_name TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP,
		updated_at TIMESTAMP,
		completed_at TIMESTAMP,
		has_line_items BOOLEAN NOT NULL DEFAULT false,
		has_checklist_parts BOOLEAN NOT NULL DEFAULT false,
		has_netsuite_id BOOLEAN NOT NULL DEFAULT false,
		netsuite_sales_order_id TEXT,
		jira_link TEXT,
		slack_link TEXT,
		synced_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS job_line_items (
		job_uid TEXT NOT NULL,
		position INTEGER NOT NULL,
		item_name TEXT NOT NULL DEFAULT '',
		item_code TEXT NOT NULL DEFAULT '',
		item_serial TEXT NOT NULL DEFAULT '',
		quantity DOUBLE NOT NULL DEFAULT 1,
		price DECIMAL(18,4),
		line_item_type TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS job_checklist_parts (
		job_uid TEXT NOT NULL,
		position INTEGER NOT NULL,
		checklist_question TEXT NOT NULL DEFAULT '',
		part_serial TEXT NOT NULL,
		part_description TEXT NOT NULL DEFAULT '',
		status_name TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS custom_fields (
		parent_kind TEXT NOT NULL,
		parent_uid TEXT NOT NULL,
		field_label TEXT NOT NULL,
		field_value TEXT NOT NULL DEFAULT '',
		field_type TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE SEQUENCE IF NOT EXISTS validation_flags_id_seq START 1`,

	`CREATE TABLE IF NOT EXISTS validation_flags (
		id BIGINT PRIMARY KEY DEFAULT nextval('validation_flags_id_seq'),
		job_uid TEXT NOT NULL,
		flag_type TEXT NOT NULL,
		flag_severity TEXT NOT NULL,
		flag_message TEXT NOT NULL,
		details TEXT,
		is_resolved BOOLEAN NOT NULL DEFAULT false,
		resolved_at TIMESTAMP,
		resolved_by TEXT,
		condition_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS organizations (
		organization_uid TEXT PRIMARY KEY,
		organization_name TEXT NOT NULL DEFAULT '',
		organization_email TEXT NOT NULL DEFAULT '',
		organization_description TEXT NOT NULL DEFAULT '',
		no_of_customers INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT true,
		is_portal_enabled BOOLEAN NOT NULL DEFAULT false,
		is_deleted BOOLEAN NOT NULL DEFAULT false,
		billing_reference TEXT,
		has_billing_reference BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP,
		updated_at TIMESTAMP,
		synced_at TIMESTAMP NOT NULL
	)`,

	`CREATE SEQUENCE IF NOT EXISTS sync_log_id_seq START 1`,

	`CREATE TABLE IF NOT EXISTS sync_log (
		id BIGINT PRIMARY KEY DEFAULT nextval('sync_log_id_seq'),
		resource TEXT NOT NULL,
		mode TEXT NOT NULL,
		sync_started_at TIMESTAMP NOT NULL,
		sync_completed_at TIMESTAMP,
		status TEXT NOT NULL,
		records_processed INTEGER NOT NULL DEFAULT 0,
		records_created INTEGER NOT NULL DEFAULT 0,
		records_updated INTEGER NOT NULL DEFAULT 0,
		records_skipped INTEGER NOT NULL DEFAULT 0,
		flags_created INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		errors TEXT,
		rate_limit_events INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS sync_lock (
		lock_name TEXT PRIMARY KEY,
		holder TEXT NOT NULL,
		acquired_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS notification_log (
		job_uid TEXT NOT NULL,
		notification_type TEXT NOT NULL,
		channel TEXT NOT NULL,
		sent_at TIMESTAMP NOT NULL,
		success BOOLEAN NOT NULL,
		error_message TEXT,
		PRIMARY KEY (job_uid, notification_type, channel)
	)`,

	`CREATE OR REPLACE VIEW job_summary AS
	SELECT
		j.*,
		(SELECT COUNT(*) FROM job_line_items li WHERE li.job_uid = j.job_uid) AS line_item_count,
		(SELECT COUNT(*) FROM job_checklist_parts cp WHERE cp.job_uid = j.job_uid) AS checklist_part_count,
		(SELECT COUNT(*) FROM validation_flags f WHERE f.job_uid = j.job_uid AND NOT f.is_resolved) AS open_flag_count,
		(SELECT string_agg(f.flag_type, ',' ORDER BY f.flag_type)
			FROM validation_flags f WHERE f.job_uid = j.job_uid AND NOT f.is_resolved) AS open_flag_types,
		(SELECT string_agg(f.flag_message, chr(10) ORDER BY f.flag_type)
			FROM validation_flags f WHERE f.job_uid = j.job_uid AND NOT f.is_resolved) AS open_flag_messages
	FROM jobs j`,
}
