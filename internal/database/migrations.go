// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/fieldcheck/internal/logging"
)

// Migration represents a versioned database migration.
type Migration struct {
	Version     int
	Name        string
	Description string
	SQL         string
	AppliedAt   time.Time
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// migrations are append-only. Never edit or remove one that has shipped.
var migrations = []Migration{
	{Version: 1, Name: "idx_jobs_completed_org", Description: "Dashboard date range + organization filter",
		SQL: `CREATE INDEX IF NOT EXISTS idx_jobs_completed_org ON jobs(completed_at, organization_name)`},
	{Version: 2, Name: "idx_jobs_created_org", Description: "Fallback date range for jobs never completed",
		SQL: `CREATE INDEX IF NOT EXISTS idx_jobs_created_org ON jobs(created_at, organization_name)`},
	{Version: 3, Name: "idx_jobs_org", Description: "Organization selection",
		SQL: `CREATE INDEX IF NOT EXISTS idx_jobs_org ON jobs(organization_name)`},
	{Version: 4, Name: "idx_jobs_completed_team", Description: "Team selection within a date range",
		SQL: `CREATE INDEX IF NOT EXISTS idx_jobs_completed_team ON jobs(completed_at, service_team)`},
	{Version: 5, Name: "idx_jobs_number", Description: "Job number search",
		SQL: `CREATE INDEX IF NOT EXISTS idx_jobs_number ON jobs(job_number)`},
	{Version: 6, Name: "idx_children_job", Description: "Child lookups by job",
		SQL: `CREATE INDEX IF NOT EXISTS idx_line_items_job ON job_line_items(job_uid);
CREATE INDEX IF NOT EXISTS idx_checklist_parts_job ON job_checklist_parts(job_uid);
CREATE INDEX IF NOT EXISTS idx_custom_fields_parent ON custom_fields(parent_kind, parent_uid)`},
	{Version: 7, Name: "idx_flags_job_type", Description: "Flag reconciliation and open-flag filters",
		SQL: `CREATE INDEX IF NOT EXISTS idx_flags_job_type ON validation_flags(job_uid, flag_type)`},
}

// runVersionedMigrations executes only migrations that haven't been applied yet.
func (db *DB) runVersionedMigrations() error {
	ctx, cancel := schemaContext()
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	newMigrations := 0
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if _, err := db.conn.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("failed to execute migration v%d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := db.conn.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, description) VALUES (?, ?, ?)`,
			m.Version, m.Name, m.Description); err != nil {
			return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
		}
		newMigrations++
	}

	if newMigrations > 0 {
		logging.Info().Int("count", newMigrations).Msg("Applied database migrations")
	}
	return nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// GetMigrationHistory returns all applied migrations in order.
func (db *DB) GetMigrationHistory(ctx context.Context) ([]Migration, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return queryAndScan(ctx, db.conn,
		`SELECT version, name, COALESCE(description, ''), applied_at FROM schema_migrations ORDER BY version`, nil,
		func(rows rowScanner) (Migration, error) {
			var m Migration
			err := rows.Scan(&m.Version, &m.Name, &m.Description, &m.AppliedAt)
			return m, err
		})
}
