// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/fieldcheck/internal/logging"
	"github.com/tomtom215/fieldcheck/internal/models"
)

// engine is what the Service drives. Both engines implement it through runner.
type engine interface {
	begin(ctx context.Context, mode models.SyncMode, sink ProgressSink) (*run, error)
	execute(ctx context.Context, ru *run) (*SyncStats, error)
	Status() Status
}

var (
	_ engine = (*Engine)(nil)
	_ engine = (*OrganizationEngine)(nil)
)

// CompletionHook is called after every run started through the Service.
type CompletionHook func(stats *SyncStats, err error)

// Service starts runs in the background for the API and the scheduler. All runs
// share one progress sink.
type Service struct {
	engines map[models.SyncResource]engine
	sink    ProgressSink

	mu     sync.Mutex
	hooks  []CompletionHook
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService builds a Service over the job engine and, optionally, the
// organization engine.
func NewService(jobs *Engine, orgs *OrganizationEngine, sink ProgressSink) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		engines: map[models.SyncResource]engine{models.ResourceJobs: jobs},
		sink:    sink,
		ctx:     ctx,
		cancel:  cancel,
	}
	if orgs != nil {
		s.engines[models.ResourceOrganizations] = orgs
	}
	return s
}

// OnComplete registers a hook run after each background run.
func (s *Service) OnComplete(h CompletionHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Trigger acquires the run lock for resource and runs the sync in the background.
// It returns ErrSyncAlreadyRunning at once when a run is active.
func (s *Service) Trigger(resource models.SyncResource, mode models.SyncMode) error {
	e, ok := s.engines[resource]
	if !ok {
		return fmt.Errorf("unknown sync resource %q", resource)
	}
	ctx := logging.ContextWithNewCorrelationID(s.ctx)
	ru, err := e.begin(ctx, mode, s.sink)
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		stats, err := e.execute(ctx, ru)
		s.mu.Lock()
		hooks := append([]CompletionHook(nil), s.hooks...)
		s.mu.Unlock()
		for _, h := range hooks {
			h(stats, err)
		}
	}()
	return nil
}

// Run runs a sync in the caller's goroutine through the shared sink.
func (s *Service) Run(ctx context.Context, resource models.SyncResource, mode models.SyncMode) (*SyncStats, error) {
	e, ok := s.engines[resource]
	if !ok {
		return nil, fmt.Errorf("unknown sync resource %q", resource)
	}
	ctx = ensureCorrelation(ctx)
	ru, err := e.begin(ctx, mode, s.sink)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, ru)
}

// Status returns a snapshot per configured resource.
func (s *Service) Status() []Status {
	out := make([]Status, 0, len(s.engines))
	for _, r := range []models.SyncResource{models.ResourceJobs, models.ResourceOrganizations} {
		if e, ok := s.engines[r]; ok {
			out = append(out, e.Status())
		}
	}
	return out
}

// Running reports whether any run is active.
func (s *Service) Running() bool {
	for _, e := range s.engines {
		if e.Status().Running {
			return true
		}
	}
	return false
}

// Shutdown cancels background runs and waits for them or for ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
