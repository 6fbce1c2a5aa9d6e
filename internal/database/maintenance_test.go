// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package database

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/fieldcheck/internal/models"
)

func TestPruneOutOfScope(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	persist(t, db,
		makeRecord("keep", withMissingBilling),
		makeRecord("drop", withMissingBilling, func(r *models.JobRecord) { r.Job.JobCategory = "Install" }),
	)
	if err := db.RecordNotification(ctx, "drop", "missing_billing_reference", "slack", nil); err != nil {
		t.Fatal(err)
	}

	if n, err := db.PruneOutOfScope(ctx, nil); err != nil || n != 0 {
		t.Fatalf("empty allow-list pruned %d, %v", n, err)
	}

	n, err := db.PruneOutOfScope(ctx, []string{" wm service - in field "})
	if err != nil || n != 1 {
		t.Fatalf("pruned %d, %v", n, err)
	}
	if _, err := db.GetJobDetail(ctx, "drop"); !errors.Is(err, ErrNotFound) {
		t.Errorf("pruned job still readable: %v", err)
	}
	if sent, _ := db.NotificationSent(ctx, "drop", "missing_billing_reference", "slack"); sent {
		t.Error("notification history not pruned")
	}
	if flags := flagsOf(t, db, "keep"); len(flags) != 1 {
		t.Errorf("kept job flags = %d", len(flags))
	}

	var orphans int
	if err := db.conn.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(*) FROM job_line_items WHERE job_uid = 'drop') + (SELECT COUNT(*) FROM validation_flags WHERE job_uid = 'drop')").
		Scan(&orphans); err != nil {
		t.Fatal(err)
	}
	if orphans != 0 {
		t.Errorf("orphan rows = %d", orphans)
	}
}
