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

	"github.com/tomtom215/fieldcheck/internal/logging"
)

// PruneOutOfScope deletes jobs whose category is not in allowList (compared
// case-insensitively after trimming) together with their children, custom fields,
// flags and notification history, in one transaction. It returns the number of jobs
// removed. An empty allowList deletes nothing.
func (db *DB) PruneOutOfScope(ctx context.Context, allowList []string) (int, error) {
	var allowed []string
	for _, c := range allowList {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			allowed = append(allowed, c)
		}
	}
	if len(allowed) == 0 {
		return 0, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	placeholders, args := buildInClause(allowed)
	scope := "SELECT job_uid FROM jobs WHERE lower(trim(job_category)) NOT IN (" + placeholders + ")"

	var pruned int
	err := db.withTx(ctx, "PruneOutOfScope", func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DELETE FROM job_line_items WHERE job_uid IN (" + scope + ")",
			"DELETE FROM job_checklist_parts WHERE job_uid IN (" + scope + ")",
			"DELETE FROM custom_fields WHERE parent_kind = 'job' AND parent_uid IN (" + scope + ")",
			"DELETE FROM validation_flags WHERE job_uid IN (" + scope + ")",
			"DELETE FROM notification_log WHERE job_uid IN (" + scope + ")",
		} {
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return fmt.Errorf("prune dependents: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM jobs WHERE lower(trim(job_category)) NOT IN ("+placeholders+")", args...)
		if err != nil {
			return fmt.Errorf("prune jobs: %w", err)
		}
		n, err := res.RowsAffected()
		pruned = int(n)
		return err
	})
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		logging.Ctx(ctx).Info().Int("jobs", pruned).Msg("pruned out-of-scope jobs")
	}
	return pruned, nil
}
