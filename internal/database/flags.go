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

	"github.com/tomtom215/fieldcheck/internal/metrics"
	"github.com/tomtom215/fieldcheck/internal/models"
)

const flagColumns = `id, job_uid, flag_type, flag_severity, flag_message, details,
	is_resolved, resolved_at, resolved_by, condition_active, created_at`

func (db *DB) flagsForJob(ctx context.Context, jobUID string) ([]models.ValidationFlag, error) {
	flags, err := queryAndScan(ctx, db.conn,
		"SELECT "+flagColumns+" FROM validation_flags WHERE job_uid = ? ORDER BY created_at DESC, id DESC",
		[]any{jobUID}, scanFlag)
	if err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	if flags == nil {
		flags = []models.ValidationFlag{}
	}
	return flags, nil
}

// GetFlag returns one flag by id.
func (db *DB) GetFlag(ctx context.Context, id int64) (*models.ValidationFlag, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	f, err := scanFlag(db.conn.QueryRowContext(ctx, "SELECT "+flagColumns+" FROM validation_flags WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flag: %w", err)
	}
	return &f, nil
}

// ResolveFlag marks a flag resolved by an operator. Resolving an already resolved
// flag changes nothing and reports false. An unknown id is ErrNotFound.
func (db *DB) ResolveFlag(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var changed bool
	err := db.withTx(ctx, "ResolveFlag", func(tx *sql.Tx) error {
		var resolved bool
		err := tx.QueryRowContext(ctx, "SELECT is_resolved FROM validation_flags WHERE id = ?", id).Scan(&resolved)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if resolved {
			changed = false
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE validation_flags SET is_resolved = true, resolved_at = ?, resolved_by = ? WHERE id = ?",
			db.now().UTC(), models.ResolvedByOperator, id); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return false, ErrNotFound
	}
	if err == nil && changed {
		metrics.FlagsResolved.WithLabelValues(models.ResolvedByOperator).Inc()
	}
	return changed, err
}

// ResolveJobFlags resolves every open flag of a job and returns how many changed.
// An unknown job is ErrNotFound.
func (db *DB) ResolveJobFlags(ctx context.Context, jobUID string) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int
	err := db.withTx(ctx, "ResolveJobFlags", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM jobs WHERE job_uid = ?", jobUID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			"UPDATE validation_flags SET is_resolved = true, resolved_at = ?, resolved_by = ? WHERE job_uid = ? AND NOT is_resolved",
			db.now().UTC(), models.ResolvedByOperator, jobUID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		n = int(affected)
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return 0, ErrNotFound
	}
	if err == nil {
		metrics.FlagsResolved.WithLabelValues(models.ResolvedByOperator).Add(float64(n))
	}
	return n, err
}
