// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/fieldcheck/internal/models"
)

func TestSyncLock(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.AcquireSyncLock(ctx, "jobs", "a", time.Minute); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	if err := db.AcquireSyncLock(ctx, "jobs", "b", time.Minute); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("acquire b err = %v, want ErrLockHeld", err)
	}
	if err := db.AcquireSyncLock(ctx, "organizations", "b", time.Minute); err != nil {
		t.Fatalf("other lock name: %v", err)
	}
	if err := db.AcquireSyncLock(ctx, "jobs", "a", time.Minute); err != nil {
		t.Fatalf("re-acquire by holder: %v", err)
	}

	// Release by a non-holder does nothing.
	if err := db.ReleaseSyncLock(ctx, "jobs", "b"); err != nil {
		t.Fatal(err)
	}
	if err := db.AcquireSyncLock(ctx, "jobs", "b", time.Minute); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("lock released by non-holder")
	}

	if err := db.ReleaseSyncLock(ctx, "jobs", "a"); err != nil {
		t.Fatal(err)
	}
	if err := db.AcquireSyncLock(ctx, "jobs", "b", time.Minute); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestSyncLock_ExpiredIsTakenOver(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.AcquireSyncLock(ctx, "jobs", "crashed", time.Minute); err != nil {
		t.Fatal(err)
	}
	later := baseTime.Add(2 * time.Minute)
	db.now = func() time.Time { return later }
	if err := db.AcquireSyncLock(ctx, "jobs", "fresh", time.Minute); err != nil {
		t.Fatalf("expired lock not taken over: %v", err)
	}
}

func TestSyncLog(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	last, err := db.LastSyncTime(ctx, models.ResourceJobs)
	if err != nil || last != nil {
		t.Fatalf("LastSyncTime on empty = %v, %v", last, err)
	}

	id, err := db.StartSyncLog(ctx, models.ResourceJobs, models.SyncModeFull, baseTime)
	if err != nil || id == 0 {
		t.Fatalf("StartSyncLog = %d, %v", id, err)
	}
	done := baseTime.Add(90 * time.Second)
	err = db.FinishSyncLog(ctx, &models.SyncLog{
		ID: id, Status: models.SyncStatusCompleted, CompletedAt: &done,
		RecordsProcessed: 10, RecordsCreated: 4, RecordsUpdated: 5, RecordsSkipped: 1,
		FlagsCreated: 2, ErrorCount: 1, Errors: []string{"job x: boom"}, RateLimitEvents: 1,
	})
	if err != nil {
		t.Fatalf("FinishSyncLog: %v", err)
	}

	failedID, err := db.StartSyncLog(ctx, models.ResourceJobs, models.SyncModeDifferential, baseTime.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.FinishSyncLog(ctx, &models.SyncLog{ID: failedID, Status: models.SyncStatusFailed}); err != nil {
		t.Fatal(err)
	}

	last, err = db.LastSyncTime(ctx, models.ResourceJobs)
	if err != nil || last == nil || !last.Equal(done) {
		t.Fatalf("LastSyncTime = %v, %v; want %v (failed runs ignored)", last, err, done)
	}
	if other, _ := db.LastSyncTime(ctx, models.ResourceOrganizations); other != nil {
		t.Errorf("organizations last sync = %v", other)
	}

	logs, err := db.RecentSyncLogs(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 || logs[0].ID != failedID {
		t.Fatalf("recent logs = %+v", logs)
	}
	l := logs[1]
	if l.Mode != models.SyncModeFull || l.RecordsCreated != 4 || l.RateLimitEvents != 1 ||
		len(l.Errors) != 1 || l.Errors[0] != "job x: boom" {
		t.Errorf("completed log = %+v", l)
	}
}

func TestNotificationLog(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	const typ, ch = "missing_billing_reference", "slack"

	sent, err := db.NotificationSent(ctx, "j1", typ, ch)
	if err != nil || sent {
		t.Fatalf("initial = %v, %v", sent, err)
	}
	if err := db.RecordNotification(ctx, "j1", typ, ch, errors.New("503")); err != nil {
		t.Fatal(err)
	}
	if sent, _ = db.NotificationSent(ctx, "j1", typ, ch); sent {
		t.Fatal("failed delivery counted as sent")
	}
	if err := db.RecordNotification(ctx, "j1", typ, ch, nil); err != nil {
		t.Fatal(err)
	}
	if sent, _ = db.NotificationSent(ctx, "j1", typ, ch); !sent {
		t.Fatal("successful delivery not recorded")
	}
}
