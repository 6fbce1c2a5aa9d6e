// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/fieldcheck/internal/models"
)

type call struct {
	resource models.SyncResource
	mode     models.SyncMode
}

type runRecorder struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (r *runRecorder) run(_ context.Context, resource models.SyncResource, mode models.SyncMode) (*SyncStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{resource, mode})
	return &SyncStats{}, r.err
}

func (r *runRecorder) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func TestScheduler_RunOnStartup(t *testing.T) {
	rec := &runRecorder{}
	s := &Scheduler{run: rec.run, cfg: ScheduleConfig{RunOnStartup: true, OrgInterval: time.Hour}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	deadline := time.After(10 * time.Second)
	for len(rec.snapshot()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("startup runs = %+v", rec.snapshot())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v", err)
	}

	calls := rec.snapshot()
	want := []call{
		{models.ResourceOrganizations, models.SyncModeDifferential},
		{models.ResourceJobs, models.SyncModeDifferential},
	}
	for i, w := range want {
		if calls[i] != w {
			t.Errorf("call %d = %+v, want %+v", i, calls[i], w)
		}
	}
}

func TestScheduler_Ticks(t *testing.T) {
	rec := &runRecorder{err: ErrSyncAlreadyRunning}
	s := &Scheduler{run: rec.run, cfg: ScheduleConfig{Interval: 10 * time.Millisecond}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	deadline := time.After(10 * time.Second)
	for len(rec.snapshot()) < 3 {
		select {
		case <-deadline:
			t.Fatal("scheduler did not tick")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	for _, c := range rec.snapshot() {
		if c.resource != models.ResourceJobs || c.mode != models.SyncModeDifferential {
			t.Errorf("unexpected run %+v with only the differential schedule enabled", c)
		}
	}
}

func TestScheduler_String(t *testing.T) {
	if got := (&Scheduler{}).String(); got != "sync-scheduler" {
		t.Errorf("String() = %q", got)
	}
}
