// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/fieldcheck/internal/config"
	"github.com/tomtom215/fieldcheck/internal/database"
	"github.com/tomtom215/fieldcheck/internal/logging"
	"github.com/tomtom215/fieldcheck/internal/metrics"
	"github.com/tomtom215/fieldcheck/internal/models"
	"github.com/tomtom215/fieldcheck/internal/upstream"
)

// Options tune an engine. Zero values fall back to the defaults below.
type Options struct {
	PageSize         int
	BatchSize        int
	LockTTL          time.Duration
	MaxErrorMessages int
	// PruneOutOfScope deletes jobs outside AllowedCategories after a full job sync.
	PruneOutOfScope   bool
	AllowedCategories []string
}

const (
	defaultPageSize         = 100
	defaultBatchSize        = 150
	defaultLockTTL          = 2 * time.Hour
	defaultMaxErrorMessages = 50
)

// OptionsFromConfig reads engine options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PageSize:          cfg.Upstream.PageSize,
		BatchSize:         cfg.Sync.BatchSize,
		LockTTL:           cfg.Sync.LockTTL,
		MaxErrorMessages:  cfg.Sync.MaxErrorMessages,
		PruneOutOfScope:   cfg.Sync.PruneOutOfScope,
		AllowedCategories: cfg.Rules.AllowedCategories,
	}
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.LockTTL <= 0 {
		o.LockTTL = defaultLockTTL
	}
	if o.MaxErrorMessages <= 0 {
		o.MaxErrorMessages = defaultMaxErrorMessages
	}
	return o
}

// Status is a snapshot of one engine for the API.
type Status struct {
	Resource  models.SyncResource `json:"resource"`
	State     State               `json:"state"`
	Running   bool                `json:"running"`
	LastStats *SyncStats          `json:"last_stats,omitempty"`
	LastError string              `json:"last_error,omitempty"`
	Progress  *Progress           `json:"progress,omitempty"`
}

// runner owns the lifecycle shared by the job and organization engines: the run
// lock, the state machine, the sync_log row and the end-of-run reporting.
type runner struct {
	resource models.SyncResource
	store    RunStore
	opts     Options
	holder   string
	now      func() time.Time

	// runMu is held for the whole of a run.
	runMu   sync.Mutex
	machine *machine

	mu        sync.RWMutex
	events    EventPublisher
	active    *run
	lastStats *SyncStats
	lastErr   error
}

func newRunner(resource models.SyncResource, store RunStore, opts Options) *runner {
	return &runner{
		resource: resource,
		store:    store,
		opts:     opts.withDefaults(),
		holder:   lockHolder(),
		now:      time.Now,
		machine:  newMachine(),
	}
}

// lockHolder identifies this process in the sync_lock table.
func lockHolder() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d:%s", host, os.Getpid(), uuid.NewString()[:8])
}

// SetEventPublisher attaches the domain event publisher. nil disables events.
func (r *runner) SetEventPublisher(p EventPublisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = p
}

func (r *runner) publisher() EventPublisher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.events
}

// Status returns the current state, the running run's progress and the outcome of
// the last finished run.
func (r *runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := Status{
		Resource: r.resource,
		State:    r.machine.current(),
		Running:  r.active != nil,
	}
	if r.active != nil {
		st.Progress = r.active.progress.latest()
	}
	if r.lastStats != nil {
		st.LastStats = r.lastStats.clone()
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	return st
}

// run is the mutable state of one sync run.
type run struct {
	r        *runner
	mode     models.SyncMode
	stats    *SyncStats
	calls    *upstream.CallStats
	progress *reporter
	logID    int64
	started  time.Time

	page       int
	totalPages int
	total      int
}

// begin takes the in-process and store locks and opens the sync_log row. It fails
// fast with ErrSyncAlreadyRunning while another run holds either lock. The run is
// fully built, progress sink included, before Status can observe it.
func (r *runner) begin(ctx context.Context, mode models.SyncMode, sink ProgressSink) (*run, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown sync mode %q", mode)
	}
	if !r.runMu.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}

	lockName := string(r.resource)
	if err := r.store.AcquireSyncLock(ctx, lockName, r.holder, r.opts.LockTTL); err != nil {
		r.runMu.Unlock()
		if errors.Is(err, database.ErrLockHeld) {
			return nil, fmt.Errorf("%w: %w", ErrSyncAlreadyRunning, err)
		}
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}

	started := r.now().UTC()
	logID, err := r.store.StartSyncLog(ctx, r.resource, mode, started)
	if err != nil {
		r.releaseLock(ctx)
		r.runMu.Unlock()
		return nil, fmt.Errorf("start sync log: %w", err)
	}

	ru := &run{
		r:     r,
		mode:  mode,
		calls: &upstream.CallStats{},
		stats: &SyncStats{
			Resource:  r.resource,
			Mode:      mode,
			Status:    models.SyncStatusInProgress,
			StartedAt: started,
		},
		logID:    logID,
		started:  started,
		progress: newReporter(sink),
	}

	r.mu.Lock()
	r.active = ru
	r.mu.Unlock()
	metrics.SyncInProgress.WithLabelValues(string(r.resource)).Set(1)
	return ru, nil
}

func (r *runner) releaseLock(ctx context.Context) {
	if err := r.store.ReleaseSyncLock(context.WithoutCancel(ctx), string(r.resource), r.holder); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("resource", string(r.resource)).Msg("failed to release sync lock")
	}
}

// to advances the state machine.
func (ru *run) to(next State) error {
	return ru.r.machine.to(next)
}

// report publishes progress for the current state.
func (ru *run) report() {
	p := Progress{
		Resource:   ru.r.resource,
		Mode:       ru.mode,
		State:      ru.r.machine.current(),
		Current:    ru.stats.Processed + ru.stats.Skipped,
		Total:      ru.total,
		Page:       ru.page,
		TotalPages: ru.totalPages,
	}
	estimate(&p, ru.r.now().Sub(ru.started))
	ru.progress.report(p)
}

func (ru *run) recordError(err error) {
	ru.stats.addError(ru.r.opts.MaxErrorMessages, err.Error())
}

// canceled returns ErrCanceled once ctx is done.
func canceled(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
	}
	return nil
}

// finish closes the run: final state, sync_log row, metrics, the sync.completed
// event and lock release. It returns the stats and the run error unchanged.
func (r *runner) finish(ctx context.Context, ru *run, runErr error) (*SyncStats, error) {
	bg := context.WithoutCancel(ctx)
	stats := ru.stats
	stats.CompletedAt = r.now().UTC()
	stats.RateLimitEvents = int(ru.calls.RateLimitEvents.Load())

	switch {
	case runErr == nil:
		stats.Status = models.SyncStatusCompleted
		if err := ru.to(StateCompleted); err != nil {
			runErr = err
			stats.Status = models.SyncStatusFailed
			r.machine.fail()
		}
	case errors.Is(runErr, ErrCanceled):
		stats.Status = models.SyncStatusCanceled
		r.machine.fail()
	default:
		stats.Status = models.SyncStatusFailed
		r.machine.fail()
	}
	ru.report()
	ru.progress.close()

	log := logging.Ctx(ctx)
	if err := r.store.FinishSyncLog(bg, stats.syncLog(ru.logID)); err != nil {
		log.Error().Err(err).Int64("sync_log_id", ru.logID).Msg("failed to finish sync log")
	}

	metrics.RecordSyncRun(metrics.SyncOutcome{
		Resource:  string(r.resource),
		Mode:      string(ru.mode),
		Status:    stats.Status,
		Duration:  stats.Duration(),
		Created:   stats.Created,
		Updated:   stats.Updated,
		Unchanged: stats.Unchanged,
		Skipped:   stats.Skipped,
		Errors:    stats.Errors,
	})

	if p := r.publisher(); p != nil {
		event := completedEvent(stats, runErr)
		if err := p.PublishSyncCompleted(bg, event); err != nil {
			log.Warn().Err(err).Msg("failed to publish sync completed event")
		}
	}

	logSkippedCategories(ctx, stats)
	ev := log.Info()
	if runErr != nil {
		ev = log.Error().Err(runErr)
	}
	ev.Str("resource", string(r.resource)).
		Str("mode", string(ru.mode)).
		Str("status", stats.Status).
		Int("processed", stats.Processed).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("unchanged", stats.Unchanged).
		Int("skipped", stats.Skipped).
		Int("flags_created", stats.FlagsCreated).
		Int("flags_cleared", stats.FlagsCleared).
		Int("errors", stats.Errors).
		Int("rate_limit_events", stats.RateLimitEvents).
		Dur("duration", stats.Duration()).
		Msg("sync finished")

	r.releaseLock(ctx)
	metrics.SyncInProgress.WithLabelValues(string(r.resource)).Set(0)

	r.mu.Lock()
	r.active = nil
	r.lastStats = stats.clone()
	r.lastErr = runErr
	r.machine.reset()
	r.mu.Unlock()
	r.runMu.Unlock()

	return stats, runErr
}

func completedEvent(stats *SyncStats, runErr error) *models.SyncCompletedEvent {
	e := &models.SyncCompletedEvent{
		EventID:         uuid.NewString(),
		Resource:        stats.Resource,
		Mode:            stats.Mode,
		Status:          stats.Status,
		Processed:       stats.Processed,
		Created:         stats.Created,
		Updated:         stats.Updated,
		Unchanged:       stats.Unchanged,
		Skipped:         stats.Skipped,
		FlagsCreated:    stats.FlagsCreated,
		FlagsCleared:    stats.FlagsCleared,
		Errors:          stats.Errors,
		RateLimitEvents: stats.RateLimitEvents,
		DurationMS:      stats.Duration().Milliseconds(),
		Timestamp:       stats.CompletedAt,
	}
	if runErr != nil {
		e.Error = runErr.Error()
	}
	return e
}

func logSkippedCategories(ctx context.Context, stats *SyncStats) {
	if len(stats.CategoriesSeen) == 0 {
		return
	}
	names := make([]string, 0, len(stats.CategoriesSeen))
	for c := range stats.CategoriesSeen {
		names = append(names, c)
	}
	sort.Strings(names)
	logging.Ctx(ctx).Info().Strs("categories", names).Int("jobs", stats.Skipped).
		Msg("skipped jobs outside the category allow-list")
}
