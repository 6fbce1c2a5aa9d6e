// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package services

import (
	"context"
	"fmt"
	"time"
)

// Drainer is satisfied by the sync service: it cancels background runs and waits
// for them to record their outcome.
type Drainer interface {
	Shutdown(ctx context.Context) error
}

// SyncService keeps background sync runs tied to the supervisor's lifetime. Runs
// are started by the API and the scheduler; on shutdown they are canceled and each
// gets the chance to write its sync_log row before the database closes.
type SyncService struct {
	drainer      Drainer
	drainTimeout time.Duration
}

// NewSyncService wraps d. A non-positive timeout means 30s.
func NewSyncService(d Drainer, drainTimeout time.Duration) *SyncService {
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}
	return &SyncService{drainer: d, drainTimeout: drainTimeout}
}

// Serve blocks until ctx ends, then drains.
func (s *SyncService) Serve(ctx context.Context) error {
	<-ctx.Done()

	drainCtx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()
	if err := s.drainer.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("sync drain failed: %w", err)
	}
	return ctx.Err()
}

func (s *SyncService) String() string {
	return "sync-service"
}
