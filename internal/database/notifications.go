// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package database

import (
	"context"
	"database/sql"
	"fmt"
)

// NotificationSent reports whether a successful notification of this type already
// went to channel for the job.
func (db *DB) NotificationSent(ctx context.Context, jobUID, notificationType, channel string) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notification_log
		WHERE job_uid = ? AND notification_type = ? AND channel = ? AND success`,
		jobUID, notificationType, channel).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("notification lookup: %w", err)
	}
	return n > 0, nil
}

// RecordNotification stores the outcome of a delivery attempt. A failed attempt
// leaves the job eligible for a retry; a later success overwrites it.
func (db *DB) RecordNotification(ctx context.Context, jobUID, notificationType, channel string, sendErr error) error {
	var msg any
	if sendErr != nil {
		msg = sendErr.Error()
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return db.withTx(ctx, "RecordNotification", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO notification_log
				(job_uid, notification_type, channel, sent_at, success, error_message)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (job_uid, notification_type, channel) DO UPDATE SET
				sent_at = EXCLUDED.sent_at, success = EXCLUDED.success, error_message = EXCLUDED.error_message`,
			jobUID, notificationType, channel, db.now().UTC(), sendErr == nil, msg)
		return err
	})
}
