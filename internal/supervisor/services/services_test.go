// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// Compile-time checks that every wrapper is a suture.Service.
var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*SyncService)(nil)
	_ suture.Service = (*CheckpointService)(nil)
)

// fakeHTTPServer blocks in ListenAndServe until Shutdown, unless listenErr is set.
type fakeHTTPServer struct {
	listenErr   error
	shutdownErr error
	started     chan struct{}
	stopped     chan struct{}
	shutdowns   atomic.Int32
}

func newFakeHTTPServer() *fakeHTTPServer {
	return &fakeHTTPServer{started: make(chan struct{}, 1), stopped: make(chan struct{})}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	f.started <- struct{}{}
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stopped
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	close(f.stopped)
	return f.shutdownErr
}

func TestHTTPServerService_GracefulShutdown(t *testing.T) {
	srv := newFakeHTTPServer()
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-srv.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	if srv.shutdowns.Load() != 1 {
		t.Errorf("shutdowns = %d", srv.shutdowns.Load())
	}
}

func TestHTTPServerService_ListenError(t *testing.T) {
	srv := newFakeHTTPServer()
	srv.listenErr = errors.New("address already in use")
	svc := NewHTTPServerService(srv, 0)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, srv.listenErr) {
		t.Errorf("Serve = %v, want wrapped listen error", err)
	}
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("default timeout = %v", svc.shutdownTimeout)
	}
	if svc.String() != "http-server" {
		t.Errorf("String = %q", svc.String())
	}
}

type fakeDrainer struct {
	err     error
	drained atomic.Bool
}

func (f *fakeDrainer) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("drain context has no deadline")
	}
	f.drained.Store(true)
	return f.err
}

func TestSyncService_DrainsOnShutdown(t *testing.T) {
	tests := []struct {
		name     string
		drainErr error
		wantErr  bool
	}{
		{"clean drain", nil, false},
		{"drain timeout", context.DeadlineExceeded, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDrainer{err: tt.drainErr}
			svc := NewSyncService(d, time.Second)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			err := svc.Serve(ctx)

			if !d.drained.Load() {
				t.Error("Shutdown not called")
			}
			if tt.wantErr {
				if !errors.Is(err, tt.drainErr) {
					t.Errorf("Serve = %v, want %v", err, tt.drainErr)
				}
			} else if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve = %v, want context.Canceled", err)
			}
		})
	}
}

type fakeCheckpointer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeCheckpointer) Checkpoint(context.Context) error {
	f.calls.Add(1)
	return f.err
}

func TestCheckpointService_TicksAndFinalCheckpoint(t *testing.T) {
	db := &fakeCheckpointer{err: errors.New("locked")}
	svc := NewCheckpointService(db, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for db.calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("no periodic checkpoints")
		}
		time.Sleep(5 * time.Millisecond)
	}
	before := db.calls.Load()
	cancel()

	// Failures are logged, never returned.
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v", err)
	}
	if db.calls.Load() <= before {
		t.Error("no final checkpoint on shutdown")
	}
}
