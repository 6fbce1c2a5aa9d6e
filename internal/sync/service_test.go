// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/fieldcheck/internal/models"
)

func TestService_Trigger(t *testing.T) {
	db := setupTestDB(t)
	api := newFakeAPI()
	api.setJobs(10, standardJobs()...)

	release := make(chan struct{})
	api.beforePage = func(context.Context, int) { <-release }

	var sunk atomic.Int32
	svc := NewService(newTestEngine(api, db, Options{}), nil, func(Progress) { sunk.Add(1) })
	finished := make(chan *SyncStats, 1)
	svc.OnComplete(func(stats *SyncStats, err error) {
		if err != nil {
			t.Errorf("background run: %v", err)
		}
		finished <- stats
	})

	if err := svc.Trigger(models.ResourceJobs, models.SyncModeFull); err != nil {
		t.Fatal(err)
	}
	// The lock is taken before Trigger returns.
	if err := svc.Trigger(models.ResourceJobs, models.SyncModeDifferential); !errors.Is(err, ErrSyncAlreadyRunning) {
		t.Errorf("second trigger err = %v, want ErrSyncAlreadyRunning", err)
	}
	if !svc.Running() {
		t.Error("Running() = false during a run")
	}
	if err := svc.Trigger(models.ResourceOrganizations, models.SyncModeFull); err == nil {
		t.Error("trigger for an unconfigured resource should fail")
	}

	close(release)
	select {
	case stats := <-finished:
		if stats.Created != 3 {
			t.Errorf("created = %d", stats.Created)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("background run did not finish")
	}
	if sunk.Load() == 0 {
		t.Error("progress sink never called")
	}

	statuses := svc.Status()
	if len(statuses) != 1 || statuses[0].Running || statuses[0].LastStats == nil {
		t.Errorf("status = %+v", statuses)
	}
	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestService_StatusDuringTriggeredRuns(t *testing.T) {
	db := setupTestDB(t)
	api := newFakeAPI()
	api.setJobs(2, standardJobs()...)

	svc := NewService(newTestEngine(api, db, Options{}), nil, func(Progress) {})
	finished := make(chan error, 1)
	svc.OnComplete(func(_ *SyncStats, err error) { finished <- err })

	stop := make(chan struct{})
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, st := range svc.Status() {
				_ = st.Progress
			}
			_ = svc.Running()
		}
	}()

	for i := 0; i < 20; i++ {
		if err := svc.Trigger(models.ResourceJobs, models.SyncModeFull); err != nil {
			t.Fatalf("trigger %d: %v", i, err)
		}
		select {
		case err := <-finished:
			if err != nil {
				t.Fatalf("run %d: %v", i, err)
			}
		case <-time.After(30 * time.Second):
			t.Fatalf("run %d did not finish", i)
		}
	}
	close(stop)
	<-polled

	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestService_ShutdownCancelsRun(t *testing.T) {
	db := setupTestDB(t)
	api := newFakeAPI()
	api.setJobs(1, standardJobs()...)
	api.beforePage = func(ctx context.Context, page int) {
		if page == 2 {
			<-ctx.Done()
		}
	}

	svc := NewService(newTestEngine(api, db, Options{}), nil, nil)
	result := make(chan error, 1)
	svc.OnComplete(func(_ *SyncStats, err error) { result <- err })
	if err := svc.Trigger(models.ResourceJobs, models.SyncModeFull); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if err := <-result; !errors.Is(err, ErrCanceled) {
		t.Errorf("run err = %v, want ErrCanceled", err)
	}
}
