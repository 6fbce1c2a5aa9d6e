// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package database

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/tomtom215/fieldcheck/internal/config"
	"github.com/tomtom215/fieldcheck/internal/models"
)

// testDBSemaphore serializes DuckDB use across tests. Concurrent CGO connections
// from parallel tests are prone to hangs under CI load.
var testDBSemaphore = make(chan struct{}, 1)

var baseTime = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// setupTestDB opens a private in-memory database for one test. The semaphore is
// held until the test completes.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	cfg := &config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 1}

	type result struct {
		db  *DB
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		db, err := New(cfg)
		resultCh <- result{db, err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("failed to create test database: %v", res.err)
		}
		db := res.db
		db.SetConflictRetry(0, time.Millisecond)
		now := baseTime
		db.now = func() time.Time { return now }
		t.Cleanup(func() {
			if err := db.Close(); err != nil {
				t.Errorf("close test database: %v", err)
			}
		})
		return db
	case <-time.After(120 * time.Second):
		t.Fatal("timed out creating test database")
		return nil
	}
}

func ptr[T any](v T) *T { return &v }

// makeRecord returns an allow-listed job with one billable line item and no flags.
func makeRecord(uid string, opts ...func(*models.JobRecord)) models.JobRecord {
	created := baseTime.Add(-48 * time.Hour)
	updated := baseTime.Add(-24 * time.Hour)
	rec := models.JobRecord{
		Job: models.Job{
			JobUID:           uid,
			JobNumber:        "WO-" + uid,
			JobTitle:         "Repair " + uid,
			JobStatus:        "COMPLETED",
			JobCategory:      "WM Service - In Field",
			CustomerName:     "Acme Farms",
			OrganizationUID:  ptr("org-1"),
			OrganizationName: ptr("Acme Farms"),
			ServiceTeam:      "West",
			AssetName:        "LW-100",
			CreatedAt:        &created,
			UpdatedAt:        &updated,
			SyncedAt:         baseTime,
		},
		LineItems: []models.LineItem{{
			JobUID: uid, Position: 1, ItemName: "Laser module", ItemCode: "LM-1",
			ItemSerial: "CR-SM-12345", Quantity: 1,
			Price: decimal.NewNullDecimal(decimal.RequireFromString("12.5")), LineItemType: "PRODUCT",
		}},
		CustomFields: []models.CustomField{{
			ParentKind: models.ParentJob, ParentUID: uid, Label: "Notes", Value: "ok", Type: "TEXT",
		}},
	}
	for _, opt := range opts {
		opt(&rec)
	}
	return rec
}

func withMissingBilling(rec *models.JobRecord) {
	rec.Flags = append(rec.Flags, models.ValidationFlag{
		Type:            models.FlagMissingBillingReference,
		Severity:        models.SeverityError,
		Message:         "Job has 1 non-consumable line item(s) but no billing reference",
		Details:         json.RawMessage(`{"line_items_count":1}`),
		ConditionActive: true,
	})
}

func withParts(rec *models.JobRecord) {
	rec.LineItems = nil
	rec.ChecklistParts = []models.ChecklistPart{{
		JobUID: rec.Job.JobUID, ChecklistQuestion: "Parts replaced?", PartSerial: "WM-123456-001",
		PartDescription: "WM-123456-001 swapped", StatusName: "COMPLETED", Position: 1,
	}}
	rec.Flags = append(rec.Flags, models.ValidationFlag{
		Type:            models.FlagPartsReplacedNoLineItems,
		Severity:        models.SeverityError,
		Message:         "Checklist shows 1 part(s) replaced but no line items added",
		ConditionActive: true,
	})
}

func persist(t *testing.T, db *DB, recs ...models.JobRecord) BatchResult {
	t.Helper()
	res, err := db.PersistJobBatch(context.Background(), recs)
	if err != nil {
		t.Fatalf("PersistJobBatch: %v", err)
	}
	return res
}

func TestNew_AppliesMigrations(t *testing.T) {
	db := setupTestDB(t)

	history, err := db.GetMigrationHistory(context.Background())
	if err != nil {
		t.Fatalf("GetMigrationHistory: %v", err)
	}
	if len(history) != len(migrations) {
		t.Fatalf("applied %d migrations, want %d", len(history), len(migrations))
	}
	for i, m := range history {
		if m.Version != i+1 {
			t.Errorf("history[%d].Version = %d", i, m.Version)
		}
	}

	// Re-running is a no-op.
	if err := db.runVersionedMigrations(); err != nil {
		t.Fatalf("second migration run: %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestContainsPattern(t *testing.T) {
	tests := []struct{ in, want string }{
		{"abc", "%abc%"},
		{"50%", `%50\%%`},
		{"a_b", `%a\_b%`},
		{`c:\x`, `%c:\\x%`},
	}
	for _, tt := range tests {
		if got := containsPattern(tt.in); got != tt.want {
			t.Errorf("containsPattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRowPlaceholders(t *testing.T) {
	if got := rowPlaceholders(2, 3); got != "(?,?,?),(?,?,?)" {
		t.Errorf("rowPlaceholders = %q", got)
	}
}

func TestChunk(t *testing.T) {
	var windows [][2]int
	_ = chunk(5, 2, func(s, e int) error {
		windows = append(windows, [2]int{s, e})
		return nil
	})
	want := [][2]int{{0, 2}, {2, 4}, {4, 5}}
	if len(windows) != len(want) {
		t.Fatalf("windows = %v", windows)
	}
	for i := range want {
		if windows[i] != want[i] {
			t.Errorf("window %d = %v, want %v", i, windows[i], want[i])
		}
	}
}
