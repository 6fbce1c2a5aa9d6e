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
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldcheck/internal/models"
)

// AcquireSyncLock takes the named run lock for holder until ttl elapses. It fails
// with ErrLockHeld while another holder's lock is unexpired. An expired lock, or one
// already owned by holder, is taken over.
func (db *DB) AcquireSyncLock(ctx context.Context, name, holder string, ttl time.Duration) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	now := db.now().UTC()
	return db.withTx(ctx, "AcquireSyncLock", func(tx *sql.Tx) error {
		var current string
		var expires time.Time
		err := tx.QueryRowContext(ctx, "SELECT holder, expires_at FROM sync_lock WHERE lock_name = ?", name).
			Scan(&current, &expires)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		case current != holder && expires.After(now):
			return fmt.Errorf("%w: %s held by %s until %s", ErrLockHeld, name, current, expires.Format(time.RFC3339))
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO sync_lock (lock_name, holder, acquired_at, expires_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (lock_name) DO UPDATE SET holder = EXCLUDED.holder,
				acquired_at = EXCLUDED.acquired_at, expires_at = EXCLUDED.expires_at`,
			name, holder, now, now.Add(ttl))
		return err
	})
}

// ReleaseSyncLock drops the named lock if holder still owns it.
func (db *DB) ReleaseSyncLock(ctx context.Context, name, holder string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return db.withTx(ctx, "ReleaseSyncLock", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM sync_lock WHERE lock_name = ? AND holder = ?", name, holder)
		return err
	})
}

// StartSyncLog records the start of a run and returns its id.
func (db *DB) StartSyncLog(ctx context.Context, resource models.SyncResource, mode models.SyncMode, startedAt time.Time) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var id int64
	err := db.withTx(ctx, "StartSyncLog", func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `INSERT INTO sync_log (resource, mode, sync_started_at, status)
			VALUES (?, ?, ?, ?) RETURNING id`,
			string(resource), string(mode), startedAt.UTC(), models.SyncStatusInProgress).Scan(&id)
	})
	return id, err
}

// FinishSyncLog stores the final status and counts of a run.
func (db *DB) FinishSyncLog(ctx context.Context, entry *models.SyncLog) error {
	errs, err := entry.ErrorsJSON()
	if err != nil {
		return fmt.Errorf("encode sync errors: %w", err)
	}
	completed := db.now().UTC()
	if entry.CompletedAt != nil {
		completed = entry.CompletedAt.UTC()
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return db.withTx(ctx, "FinishSyncLog", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE sync_log SET
				sync_completed_at = ?, status = ?, records_processed = ?, records_created = ?,
				records_updated = ?, records_skipped = ?, flags_created = ?, error_count = ?,
				errors = ?, rate_limit_events = ?
			WHERE id = ?`,
			completed, entry.Status, entry.RecordsProcessed, entry.RecordsCreated,
			entry.RecordsUpdated, entry.RecordsSkipped, entry.FlagsCreated, entry.ErrorCount,
			nullString(errs), entry.RateLimitEvents, entry.ID)
		return err
	})
}

// LastSyncTime returns when the last successful run of resource completed, or nil.
func (db *DB) LastSyncTime(ctx context.Context, resource models.SyncResource) (*time.Time, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var last sql.NullTime
	err := db.conn.QueryRowContext(ctx,
		"SELECT MAX(sync_completed_at) FROM sync_log WHERE resource = ? AND status = ?",
		string(resource), models.SyncStatusCompleted).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("last sync time: %w", err)
	}
	return timePtr(last), nil
}

// RecentSyncLogs returns the newest runs first.
func (db *DB) RecentSyncLogs(ctx context.Context, limit int) ([]models.SyncLog, error) {
	if limit <= 0 {
		limit = 10
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	logs, err := queryAndScan(ctx, db.conn, `SELECT id, resource, mode, sync_started_at, sync_completed_at, status,
			records_processed, records_created, records_updated, records_skipped, flags_created,
			error_count, errors, rate_limit_events
		FROM sync_log ORDER BY sync_started_at DESC, id DESC LIMIT ?`, []any{limit},
		func(r rowScanner) (models.SyncLog, error) {
			var l models.SyncLog
			var resource, mode string
			var completed sql.NullTime
			var errs sql.NullString
			if err := r.Scan(&l.ID, &resource, &mode, &l.StartedAt, &completed, &l.Status,
				&l.RecordsProcessed, &l.RecordsCreated, &l.RecordsUpdated, &l.RecordsSkipped,
				&l.FlagsCreated, &l.ErrorCount, &errs, &l.RateLimitEvents); err != nil {
				return l, err
			}
			l.Resource = models.SyncResource(resource)
			l.Mode = models.SyncMode(mode)
			l.StartedAt = l.StartedAt.UTC()
			l.CompletedAt = timePtr(completed)
			if errs.Valid && errs.String != "" {
				if err := json.Unmarshal([]byte(errs.String), &l.Errors); err != nil {
					return l, fmt.Errorf("decode sync errors: %w", err)
				}
			}
			return l, nil
		})
	if err != nil {
		return nil, fmt.Errorf("recent sync logs: %w", err)
	}
	if logs == nil {
		logs = []models.SyncLog{}
	}
	return logs, nil
}
