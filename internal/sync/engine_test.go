// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/fieldcheck/internal/database"
	"github.com/tomtom215/fieldcheck/internal/models"
	"github.com/tomtom215/fieldcheck/internal/upstream"
)

const stamp1 = "2026-02-03T16:30:00Z"

func standardJobs() []job {
	return []job{
		{uid: "a", category: inField, updatedAt: stamp1, products: []string{"Pump"}, completed: true},
		{uid: "b", category: inField, updatedAt: stamp1, products: []string{"Pump"}, billing: "SO-1", completed: true},
		{uid: "c", category: "Tractor Sales", updatedAt: stamp1},
		{uid: "d", category: reaperPM, updatedAt: stamp1, products: []string{"Blade"}, completed: true},
	}
}

func TestRunSync_Full(t *testing.T) {
	db := setupTestDB(t)
	api := newFakeAPI()
	api.setJobs(2, standardJobs()...)
	pub := &recordingPublisher{}
	e := newTestEngine(api, db, Options{})
	e.SetEventPublisher(pub)

	stats := mustRun(t, e, models.SyncModeFull)

	if stats.Status != models.SyncStatusCompleted {
		t.Errorf("status = %q", stats.Status)
	}
	if stats.Processed != 3 || stats.Created != 3 || stats.Skipped != 1 {
		t.Errorf("processed/created/skipped = %d/%d/%d, want 3/3/1", stats.Processed, stats.Created, stats.Skipped)
	}
	if stats.DetailFetches != 3 {
		t.Errorf("detail fetches = %d, want 3", stats.DetailFetches)
	}
	if stats.FlagsCreated != 1 {
		t.Errorf("flags created = %d, want 1", stats.FlagsCreated)
	}
	if stats.CategoriesSeen["Tractor Sales"] != 1 {
		t.Errorf("categories seen = %v", stats.CategoriesSeen)
	}
	if e.Status().State != StateIdle {
		t.Errorf("state after run = %s, want idle", e.Status().State)
	}

	ctx := context.Background()
	detail, err := db.GetJobDetail(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Flags) != 1 || detail.Flags[0].Type != models.FlagMissingBillingReference {
		t.Errorf("flags on a = %+v", detail.Flags)
	}
	if len(detail.LineItems) != 1 || detail.LineItems[0].ItemName != "Pump" {
		t.Errorf("line items on a = %+v", detail.LineItems)
	}

	skipped, err := db.GetJobDetail(ctx, "d")
	if err != nil {
		t.Fatal(err)
	}
	if len(skipped.Flags) != 0 {
		t.Errorf("skip-listed job got flags: %+v", skipped.Flags)
	}
	if _, err := db.GetJobDetail(ctx, "c"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("out-of-scope job stored, err = %v", err)
	}

	if len(pub.raised) != 1 || pub.raised[0].JobUID != "a" || pub.raised[0].Organization != "Acme Farms" {
		t.Errorf("flag raised events = %+v", pub.raised)
	}
	if len(pub.raised) == 1 && len(pub.raised[0].LineItems) != 1 {
		t.Errorf("event line items = %+v", pub.raised[0].LineItems)
	}
	if len(pub.completed) != 1 || pub.completed[0].Status != models.SyncStatusCompleted || pub.completed[0].Created != 3 {
		t.Errorf("completed events = %+v", pub.completed)
	}

	logs, err := db.RecentSyncLogs(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Status != models.SyncStatusCompleted || logs[0].RecordsCreated != 3 {
		t.Errorf("sync log = %+v", logs)
	}
}

func TestRunSync_FullIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	api := newFakeAPI()
	api.setJobs(2, standardJobs()...)
	e := newTestEngine(api, db, Options{})

	mustRun(t, e, models.SyncModeFull)
	stats := mustRun(t, e, models.SyncModeFull)

	if stats.Created != 0 || stats.Updated != 3 {
		t.Errorf("second run created/updated = %d/%d, want 0/3", stats.Created, stats.Updated)
	}
	if stats.FlagsCreated != 0 || stats.FlagsCleared != 0 {
		t.Errorf("second run flags created/cleared = %d/%d", stats.FlagsCreated, stats.FlagsCleared)
	}
	detail, err := db.GetJobDetail(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Flags) != 1 || len(detail.LineItems) != 1 {
		t.Errorf("after re-sync flags=%d line items=%d, want 1/1", len(detail.Flags), len(detail.LineItems))
	}
}

func TestRunSync_Differential(t *testing.T) {
	db := setupTestDB(t)
	api := newFakeAPI()
	jobs := standardJobs()
	api.setJobs(2, jobs...)
	e := newTestEngine(api, db, Options{})

	mustRun(t, e, models.SyncModeFull)
	before := api.detailCount()

	stats := mustRun(t, e, models.SyncModeDifferential)
	if stats.Unchanged != 3 || stats.DetailFetches != 0 {
		t.Errorf("unchanged/detail fetches = %d/%d, want 3/0", stats.Unchanged, stats.DetailFetches)
	}
	if api.detailCount() != before {
		t.Errorf("differential run fetched details")
	}

	jobs[1].updatedAt = "2026-02-04T09:00:00Z"
	jobs = append(jobs, job{uid: "e", category: inField, updatedAt: stamp1, billing: "SO-9"})
	api.setJobs(2, jobs...)

	stats = mustRun(t, e, models.SyncModeDifferential)
	if stats.DetailFetches != 2 || stats.Created != 1 || stats.Updated != 1 || stats.Unchanged != 2 {
		t.Errorf("fetches/created/updated/unchanged = %d/%d/%d/%d, want 2/1/1/2",
			stats.DetailFetches, stats.Created, stats.Updated, stats.Unchanged)
	}
}

func TestRunSync_ResolvedFlagStaysResolved(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	api := newFakeAPI()
	jobs := standardJobs()
	api.setJobs(10, jobs...)
	e := newTestEngine(api, db, Options{})

	mustRun(t, e, models.SyncModeFull)
	detail, err := db.GetJobDetail(ctx, "a")
	if err != nil || len(detail.Flags) != 1 {
		t.Fatalf("setup: flags=%v err=%v", detail, err)
	}
	if _, err := db.ResolveFlag(ctx, detail.Flags[0].ID); err != nil {
		t.Fatal(err)
	}

	stats := mustRun(t, e, models.SyncModeFull)
	if stats.FlagsCreated != 0 {
		t.Errorf("resolved flag re-raised while condition persists")
	}

	// Fixing the job clears the condition.
	jobs[0].billing = "SO-42"
	api.setJobs(10, jobs...)
	stats = mustRun(t, e, models.SyncModeFull)
	if stats.FlagsCleared != 1 {
		t.Errorf("flags cleared = %d, want 1", stats.FlagsCleared)
	}

	// A recurrence raises a fresh flag.
	jobs[0].billing = ""
	api.setJobs(10, jobs...)
	stats = mustRun(t, e, models.SyncModeFull)
	if stats.FlagsCreated != 1 {
		t.Errorf("recurrence flags created = %d, want 1", stats.FlagsCreated)
	}
	detail, err = db.GetJobDetail(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Flags) != 2 {
		t.Errorf("flag history = %+v, want 2 entries", detail.Flags)
	}
}

func TestRunSync_SyncClearsOpenFlag(t *testing.T) {
	db := setupTestDB(t)
	api := newFakeAPI()
	jobs := standardJobs()
	api.setJobs(10, jobs...)
	e := newTestEngine(api, db, Options{})
	mustRun(t, e, models.SyncModeFull)

	jobs[0].billing = "SO-7"
	api.setJobs(10, jobs...)
	mustRun(t, e, models.SyncModeFull)

	detail, err := db.GetJobDetail(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Flags) != 1 {
		t.Fatalf("flags = %+v", detail.Flags)
	}
	f := detail.Flags[0]
	if !f.IsResolved || f.ConditionActive || f.ResolvedBy == nil || *f.ResolvedBy != models.ResolvedBySync {
		t.Errorf("flag after fix = %+v", f)
	}
}

func TestRunSync_BatchBoundaries(t *testing.T) {
	db := setupTestDB(t)
	api := newFakeAPI()
	var jobs []job
	for _, uid := range []string{"j1", "j2", "j3", "j4", "j5", "j6", "j7"} {
		jobs = append(jobs, job{uid: uid, category: inField, updatedAt: stamp1, billing: "SO-" + uid})
	}
	api.setJobs(3, jobs...)

	var progress []Progress
	done := make(chan struct{})
	sink := func(p Progress) {
		progress = append(progress, p)
		if p.State == StateCompleted {
			close(done)
		}
	}
	e := newTestEngine(api, db, Options{BatchSize: 2})
	stats, err := e.RunSync(context.Background(), models.SyncModeFull, sink)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Created != 7 {
		t.Errorf("created = %d, want 7", stats.Created)
	}
	// The reporter drains before RunSync returns.
	select {
	case <-done:
	default:
		t.Fatal("final progress not delivered")
	}
	last := progress[len(progress)-1]
	if last.Current != 7 || last.Total != 7 || last.TotalPages != 3 {
		t.Errorf("final progress = %+v", last)
	}
}

func TestRunSync_SinkPanicIsRecovered(t *testing.T) {
	db := setupTestDB(t)
	api := newFakeAPI()
	api.setJobs(2, standardJobs()...)
	e := newTestEngine(api, db, Options{})

	stats, err := e.RunSync(context.Background(), models.SyncModeFull, func(Progress) { panic("boom") })
	if err != nil {
		t.Fatal(err)
	}
	if stats.Created != 3 {
		t.Errorf("created = %d", stats.Created)
	}
}

func TestRunSync_PageFailureAborts(t *testing.T) {
	db := setupTestDB(t)
	api := newFakeAPI()
	api.setJobs(1, standardJobs()...)
	api.pageErr[2] = &upstream.RequestError{Kind: upstream.ErrUpstream, StatusCode: 503}
	e := newTestEngine(api, db, Options{BatchSize: 1})

	stats, err := e.RunSync(context.Background(), models.SyncModeFull, nil)
	if !errors.Is(err, upstream.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if stats == nil || stats.Status != models.SyncStatusFailed || stats.Created != 1 {
		t.Errorf("partial stats = %+v", stats)
	}
	if st := e.Status(); st.Running || st.LastError == "" || st.State != StateIdle {
		t.Errorf("status after failure = %+v", st)
	}

	logs, err := db.RecentSyncLogs(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if logs[0].Status != models.SyncStatusFailed {
		t.Errorf("sync log status = %q", logs[0].Status)
	}
}

func TestRunSync_DetailErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantAbort bool
	}{
		{"not found is counted", &upstream.RequestError{Kind: upstream.ErrUpstream, StatusCode: 404}, false},
		{"protocol error is counted", &upstream.RequestError{Kind: upstream.ErrProtocol}, false},
		{"open circuit aborts", upstream.ErrCircuitOpen, true},
		{"rate limit exhaustion aborts", &upstream.RequestError{Kind: upstream.ErrRateLimitExceeded, StatusCode: 429}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			api := newFakeAPI()
			api.setJobs(10, standardJobs()...)
			api.detailErr["a"] = tt.err
			e := newTestEngine(api, db, Options{})

			stats, err := e.RunSync(context.Background(), models.SyncModeFull, nil)
			if tt.wantAbort {
				if err == nil || stats.Status != models.SyncStatusFailed {
					t.Fatalf("err = %v status = %q, want abort", err, stats.Status)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if stats.Errors != 1 || stats.Created != 2 || len(stats.ErrorMessages) != 1 {
				t.Errorf("errors/created = %d/%d messages=%v", stats.Errors, stats.Created, stats.ErrorMessages)
			}
		})
	}
}

func TestRunSync_ErrorMessagesCapped(t *testing.T) {
	db := setupTestDB(t)
	api := newFakeAPI()
	var jobs []job
	for _, uid := range []string{"x1", "x2", "x3", "x4"} {
		jobs = append(jobs, job{uid: uid, category: inField, updatedAt: stamp1})
	}
	api.setJobs(10, jobs...)
	for _, j := range jobs {
		api.detailErr[j.uid] = &upstream.RequestError{Kind: upstream.ErrUpstream, StatusCode: 404}
	}
	e := newTestEngine(api, db, Options{MaxErrorMessages: 2})

	stats := mustRun(t, e, models.SyncModeFull)
	if stats.Errors != 4 || len(stats.ErrorMessages) != 2 {
		t.Errorf("errors = %d messages = %d, want 4/2", stats.Errors, len(stats.ErrorMessages))
	}
}

func TestRunSync_Canceled(t *testing.T) {
	db := setupTestDB(t)
	api := newFakeAPI()
	api.setJobs(1, standardJobs()...)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api.beforePage = func(_ context.Context, page int) {
		if page == 2 {
			cancel()
		}
	}
	e := newTestEngine(api, db, Options{})

	stats, err := e.RunSync(ctx, models.SyncModeFull, nil)
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("err = %v, want ErrCanceled", err)
	}
	if stats.Status != models.SyncStatusCanceled {
		t.Errorf("status = %q", stats.Status)
	}
	// Page 1 was still pending in an unflushed batch.
	if stats.Created != 0 {
		t.Errorf("created = %d, want 0", stats.Created)
	}

	logs, err := db.RecentSyncLogs(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if logs[0].Status != models.SyncStatusCanceled {
		t.Errorf("sync log status = %q", logs[0].Status)
	}

	// The lock is released: a new run proceeds.
	api.beforePage = nil
	mustRun(t, e, models.SyncModeFull)
}

func TestRunSync_AlreadyRunning(t *testing.T) {
	db := setupTestDB(t)
	api := newFakeAPI()
	api.setJobs(10, standardJobs()...)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	api.beforePage = func(_ context.Context, _ int) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	}
	e := newTestEngine(api, db, Options{})

	result := make(chan error, 1)
	go func() {
		_, err := e.RunSync(context.Background(), models.SyncModeFull, nil)
		result <- err
	}()
	<-entered

	if _, err := e.RunSync(context.Background(), models.SyncModeDifferential, nil); !errors.Is(err, ErrSyncAlreadyRunning) {
		t.Errorf("second run err = %v, want ErrSyncAlreadyRunning", err)
	}
	if st := e.Status(); !st.Running || st.State != StateFetching {
		t.Errorf("status during run = %+v", st)
	}

	close(release)
	if err := <-result; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

func TestRunSync_StoreLockHeldElsewhere(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	if err := db.AcquireSyncLock(ctx, string(models.ResourceJobs), "other-host:1:abc", time.Hour); err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(newFakeAPI(), db, Options{})

	if _, err := e.RunSync(ctx, models.SyncModeFull, nil); !errors.Is(err, ErrSyncAlreadyRunning) {
		t.Fatalf("err = %v, want ErrSyncAlreadyRunning", err)
	}
	logs, err := db.RecentSyncLogs(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 0 {
		t.Errorf("rejected run wrote sync logs: %+v", logs)
	}
}

func TestRunSync_InvalidMode(t *testing.T) {
	e := newTestEngine(newFakeAPI(), setupTestDB(t), Options{})
	if _, err := e.RunSync(context.Background(), models.SyncMode("partial"), nil); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestRunSync_PruneAfterFull(t *testing.T) {
	db := setupTestDB(t)
	api := newFakeAPI()
	api.setJobs(10, standardJobs()...)
	e := newTestEngine(api, db, Options{})
	mustRun(t, e, models.SyncModeFull)

	// "d" leaves the allow-list.
	pruning := newTestEngine(api, db, Options{
		PruneOutOfScope:   true,
		AllowedCategories: []string{inField},
	})
	stats := mustRun(t, pruning, models.SyncModeFull)
	if stats.Pruned != 1 {
		t.Errorf("pruned = %d, want 1", stats.Pruned)
	}
	if _, err := db.GetJobDetail(context.Background(), "d"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("pruned job still stored: %v", err)
	}
}

func TestSameInstant(t *testing.T) {
	a := time.Date(2026, 2, 3, 16, 30, 0, 0, time.UTC)
	b := a.In(time.FixedZone("CET", 3600))
	if !sameInstant(&a, &b) {
		t.Error("same instant in different zones should match")
	}
	if sameInstant(&a, nil) || sameInstant(nil, nil) {
		t.Error("a missing timestamp must count as changed")
	}
}
