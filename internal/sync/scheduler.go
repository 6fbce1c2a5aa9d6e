// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package sync

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/fieldcheck/internal/config"
	"github.com/tomtom215/fieldcheck/internal/logging"
	"github.com/tomtom215/fieldcheck/internal/models"
)

// ScheduleConfig sets the scheduler's periods. A zero period disables that schedule.
type ScheduleConfig struct {
	Interval     time.Duration
	FullInterval time.Duration
	OrgInterval  time.Duration
	RunOnStartup bool
}

// ScheduleFromConfig reads the schedule from the sync configuration.
func ScheduleFromConfig(cfg *config.SyncConfig) ScheduleConfig {
	return ScheduleConfig{
		Interval:     cfg.Interval,
		FullInterval: cfg.FullInterval,
		OrgInterval:  cfg.OrgInterval,
		RunOnStartup: cfg.RunOnStartup,
	}
}

// runFunc is Service.Run.
type runFunc func(ctx context.Context, resource models.SyncResource, mode models.SyncMode) (*SyncStats, error)

// Scheduler runs periodic syncs. It implements suture.Service: Serve blocks until
// ctx is done and a run in progress is canceled with it.
type Scheduler struct {
	run runFunc
	cfg ScheduleConfig
}

// NewScheduler builds a scheduler over svc.
func NewScheduler(svc *Service, cfg ScheduleConfig) *Scheduler {
	return &Scheduler{run: svc.Run, cfg: cfg}
}

// String names the service in supervisor logs.
func (s *Scheduler) String() string { return "sync-scheduler" }

// Serve implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", s.cfg.Interval).
		Dur("full_interval", s.cfg.FullInterval).
		Dur("org_interval", s.cfg.OrgInterval).
		Msg("sync scheduler started")

	if s.cfg.RunOnStartup {
		s.trigger(ctx, models.ResourceOrganizations, models.SyncModeDifferential, s.cfg.OrgInterval > 0)
		s.trigger(ctx, models.ResourceJobs, models.SyncModeDifferential, true)
	}

	diff, stopDiff := ticker(s.cfg.Interval)
	defer stopDiff()
	full, stopFull := ticker(s.cfg.FullInterval)
	defer stopFull()
	orgs, stopOrgs := ticker(s.cfg.OrgInterval)
	defer stopOrgs()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("sync scheduler stopped")
			return ctx.Err()
		case <-full:
			s.trigger(ctx, models.ResourceJobs, models.SyncModeFull, true)
		case <-diff:
			s.trigger(ctx, models.ResourceJobs, models.SyncModeDifferential, true)
		case <-orgs:
			s.trigger(ctx, models.ResourceOrganizations, models.SyncModeDifferential, true)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, resource models.SyncResource, mode models.SyncMode, enabled bool) {
	if !enabled || ctx.Err() != nil {
		return
	}
	_, err := s.run(ctx, resource, mode)
	switch {
	case err == nil, errors.Is(err, ErrCanceled):
	case errors.Is(err, ErrSyncAlreadyRunning):
		logging.Debug().Str("resource", string(resource)).Str("mode", string(mode)).
			Msg("scheduled sync skipped, a run is in progress")
	default:
		logging.Warn().Err(err).Str("resource", string(resource)).Str("mode", string(mode)).
			Msg("scheduled sync failed")
	}
}

// ticker returns a nil channel for a non-positive period, which never fires.
func ticker(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}
