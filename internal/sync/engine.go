// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/fieldcheck/internal/database"
	"github.com/tomtom215/fieldcheck/internal/extract"
	"github.com/tomtom215/fieldcheck/internal/logging"
	"github.com/tomtom215/fieldcheck/internal/metrics"
	"github.com/tomtom215/fieldcheck/internal/models"
	"github.com/tomtom215/fieldcheck/internal/quality"
	"github.com/tomtom215/fieldcheck/internal/upstream"
)

// maxNotifiedLineItems bounds the line items carried on a flag.raised event.
const maxNotifiedLineItems = 50

// Engine synchronises jobs from the upstream API into the store.
type Engine struct {
	*runner
	api       upstream.API
	store     JobStore
	validator *quality.Validator
	rules     *extract.Rules
}

// NewEngine builds a job engine.
func NewEngine(api upstream.API, store JobStore, validator *quality.Validator, rules *extract.Rules, opts Options) *Engine {
	return &Engine{
		runner:    newRunner(models.ResourceJobs, store, opts),
		api:       api,
		store:     store,
		validator: validator,
		rules:     rules,
	}
}

// RunSync runs one job sync to completion and returns its stats. The stats are
// partial when the run fails. sink may be nil.
//
// It returns ErrSyncAlreadyRunning without touching anything while another job
// sync is active, and an error wrapping ErrCanceled when ctx ends mid-run.
func (e *Engine) RunSync(ctx context.Context, mode models.SyncMode, sink ProgressSink) (*SyncStats, error) {
	ctx = ensureCorrelation(ctx)
	ru, err := e.begin(ctx, mode, sink)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, ru)
}

func (e *Engine) execute(ctx context.Context, ru *run) (*SyncStats, error) {
	logging.Ctx(ctx).Info().Str("resource", string(e.resource)).Str("mode", string(ru.mode)).Msg("sync started")
	err := e.sync(upstream.WithCallStats(ctx, ru.calls), ru)
	return e.finish(ctx, ru, err)
}

func (e *Engine) sync(ctx context.Context, ru *run) error {
	batchSize := e.opts.BatchSize
	var pending []models.JobRecord

	for page := 1; ; page++ {
		if err := canceled(ctx); err != nil {
			return err
		}
		if err := ru.to(StateFetching); err != nil {
			return err
		}
		ru.page = page
		p, err := e.api.FetchPage(ctx, models.ResourceJobs, page, e.opts.PageSize)
		if err != nil {
			if cerr := canceled(ctx); cerr != nil {
				return cerr
			}
			return fmt.Errorf("fetch jobs page %d: %w", page, err)
		}
		ru.totalPages = p.TotalPages
		ru.total = p.TotalRecords
		last := len(p.Records) == 0 || page >= p.TotalPages

		if err := ru.to(StateExtracting); err != nil {
			return err
		}
		records, err := e.extractPage(ctx, ru, p.Records)
		if err != nil {
			return err
		}

		if err := ru.to(StateValidating); err != nil {
			return err
		}
		for i := range records {
			e.validator.Apply(&records[i])
		}

		if err := ru.to(StatePersisting); err != nil {
			return err
		}
		pending = append(pending, records...)
		for len(pending) >= batchSize || (last && len(pending) > 0) {
			if err := canceled(ctx); err != nil {
				return err
			}
			n := min(len(pending), batchSize)
			if err := e.flush(ctx, ru, pending[:n]); err != nil {
				return err
			}
			pending = pending[n:]
			ru.report()
		}
		ru.report()
		logging.Ctx(ctx).Debug().Int("page", page).Int("total_pages", p.TotalPages).
			Int("records", len(p.Records)).Msg("jobs page processed")

		if last {
			break
		}
	}

	if ru.mode == models.SyncModeFull && e.opts.PruneOutOfScope {
		n, err := e.store.PruneOutOfScope(context.WithoutCancel(ctx), e.opts.AllowedCategories)
		if err != nil {
			ru.recordError(fmt.Errorf("prune out-of-scope jobs: %w", err))
		}
		ru.stats.Pruned = n
	}
	return nil
}

type candidate struct {
	uid     string
	updated *time.Time
}

// extractPage filters a list page to in-scope jobs that need work, fetches their
// details and maps them. Per-record failures are counted; upstream failures that
// end the run are returned.
func (e *Engine) extractPage(ctx context.Context, ru *run, raws []json.RawMessage) ([]models.JobRecord, error) {
	stats := ru.stats
	cands := make([]candidate, 0, len(raws))
	for _, raw := range raws {
		listed, err := extract.DecodeJob(raw)
		if err != nil {
			stats.Processed++
			ru.recordError(err)
			continue
		}
		category := extract.Category(listed)
		if !e.validator.InScope(category) {
			stats.Skipped++
			stats.seeCategory(category)
			continue
		}
		stats.Processed++
		uid := strings.TrimSpace(listed.JobUID)
		if uid == "" {
			ru.recordError(&extract.Error{Err: errors.New("list record without job_uid")})
			continue
		}
		cands = append(cands, candidate{uid: uid, updated: extract.ParseTimestamp(listed.UpdatedAt.String())})
	}

	if ru.mode == models.SyncModeDifferential && len(cands) > 0 {
		var err error
		cands, err = e.changed(ctx, ru, cands)
		if err != nil {
			return nil, err
		}
	}

	syncedAt := e.now().UTC()
	out := make([]models.JobRecord, 0, len(cands))
	for _, c := range cands {
		body, err := e.api.FetchDetail(ctx, models.ResourceJobs, c.uid)
		stats.DetailFetches++
		if err != nil {
			if cerr := canceled(ctx); cerr != nil {
				return nil, cerr
			}
			err = fmt.Errorf("fetch job %s: %w", c.uid, err)
			if upstream.Aborts(err) {
				return nil, err
			}
			ru.recordError(err)
			continue
		}
		raw, err := extract.DecodeJob(body)
		if err != nil {
			ru.recordError(err)
			continue
		}
		rec, err := extract.Job(raw, e.rules, syncedAt)
		if err != nil {
			ru.recordError(err)
			continue
		}
		if !e.validator.InScope(rec.Job.JobCategory) {
			stats.Processed--
			stats.Skipped++
			stats.seeCategory(rec.Job.JobCategory)
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

// changed drops candidates whose stored updated_at equals the upstream one.
func (e *Engine) changed(ctx context.Context, ru *run, cands []candidate) ([]candidate, error) {
	uids := make([]string, len(cands))
	for i, c := range cands {
		uids[i] = c.uid
	}
	stored, err := e.store.JobTimestamps(ctx, uids)
	if err != nil {
		if cerr := canceled(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("read stored job timestamps: %w", err)
	}
	out := cands[:0]
	for _, c := range cands {
		if ts, ok := stored[c.uid]; ok && sameInstant(ts, c.updated) {
			ru.stats.Unchanged++
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// sameInstant compares two optional timestamps. A missing side counts as changed.
func sameInstant(a, b *time.Time) bool {
	return a != nil && b != nil && a.Equal(*b)
}

// flush commits one batch. The batch transaction runs on a context that ignores
// cancellation. If it fails for any reason but an exhausted conflict, each job is
// retried in its own transaction and failures are counted per job.
func (e *Engine) flush(ctx context.Context, ru *run, batch []models.JobRecord) error {
	bg := context.WithoutCancel(ctx)
	log := logging.Ctx(ctx)

	if refs := organizationRefs(batch); len(refs) > 0 {
		if _, err := e.store.EnsureOrganizationStubs(bg, refs); err != nil {
			log.Warn().Err(err).Int("organizations", len(refs)).Msg("failed to ensure organization rows")
		}
	}

	res, err := e.store.PersistJobBatch(bg, batch)
	if err == nil {
		metrics.SyncBatchSize.Observe(float64(len(batch)))
		e.apply(ctx, ru, batch, &res)
		return nil
	}
	if database.IsConflict(err) {
		return fmt.Errorf("persist job batch: %w", err)
	}

	log.Warn().Err(err).Int("batch_size", len(batch)).Msg("batch failed, replaying one job per transaction")
	for i := range batch {
		uid := batch[i].Job.JobUID
		res, err := e.store.PersistJob(bg, &batch[i])
		if err != nil {
			if database.IsConflict(err) {
				return fmt.Errorf("persist job %s: %w", uid, err)
			}
			ru.recordError(fmt.Errorf("persist job %s: %w", uid, err))
			continue
		}
		e.apply(ctx, ru, batch[i:i+1], &res)
	}
	return nil
}

// apply folds a committed batch into the run stats and announces new flags.
func (e *Engine) apply(ctx context.Context, ru *run, batch []models.JobRecord, res *database.BatchResult) {
	stats := ru.stats
	stats.Created += res.Created
	stats.Updated += res.Updated
	stats.FlagsCreated += len(res.FlagsCreated)
	stats.FlagsCleared += res.FlagsCleared
	if res.FlagsCleared > 0 {
		metrics.FlagsCleared.Add(float64(res.FlagsCleared))
	}
	if len(res.FlagsCreated) == 0 {
		return
	}

	byUID := make(map[string]*models.JobRecord, len(batch))
	for i := range batch {
		byUID[batch[i].Job.JobUID] = &batch[i]
	}
	p := e.publisher()
	for i := range res.FlagsCreated {
		f := &res.FlagsCreated[i]
		metrics.FlagsCreated.WithLabelValues(string(f.Type)).Inc()

		rec := byUID[f.JobUID]
		if p == nil || rec == nil || f.Type != models.FlagMissingBillingReference || rec.Job.CompletedAt == nil {
			continue
		}
		if err := p.PublishFlagRaised(context.WithoutCancel(ctx), flagRaisedEvent(f, rec, e.now())); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("job_uid", f.JobUID).Msg("failed to publish flag raised event")
		}
	}
}

func flagRaisedEvent(f *models.ValidationFlag, rec *models.JobRecord, now time.Time) *models.FlagRaisedEvent {
	job := &rec.Job
	org := job.CustomerName
	if job.OrganizationName != nil && *job.OrganizationName != "" {
		org = *job.OrganizationName
	}
	items := make([]models.LineItemSummary, 0, min(len(rec.LineItems), maxNotifiedLineItems))
	for i := range rec.LineItems {
		if i == maxNotifiedLineItems {
			break
		}
		li := &rec.LineItems[i]
		items = append(items, models.LineItemSummary{
			Name:     li.ItemName,
			Code:     li.ItemCode,
			Serial:   li.ItemSerial,
			Quantity: li.Quantity,
		})
	}
	return &models.FlagRaisedEvent{
		EventID:       uuid.NewString(),
		FlagID:        f.ID,
		FlagType:      f.Type,
		JobUID:        job.JobUID,
		JobNumber:     job.JobNumber,
		JobTitle:      job.JobTitle,
		Organization:  org,
		AssetName:     job.AssetName,
		ServiceTeam:   job.ServiceTeam,
		CompletedAt:   job.CompletedAt,
		LineItems:     items,
		LineItemCount: len(rec.LineItems),
		Timestamp:     now.UTC(),
	}
}

func organizationRefs(batch []models.JobRecord) []models.OrganizationRef {
	var refs []models.OrganizationRef
	for i := range batch {
		j := &batch[i].Job
		if j.OrganizationUID == nil || *j.OrganizationUID == "" {
			continue
		}
		ref := models.OrganizationRef{UID: *j.OrganizationUID}
		if j.OrganizationName != nil {
			ref.Name = *j.OrganizationName
		}
		refs = append(refs, ref)
	}
	return refs
}

// ensureCorrelation gives a run its own correlation id unless the caller set one.
func ensureCorrelation(ctx context.Context) context.Context {
	if logging.CorrelationIDFromContext(ctx) != "" {
		return ctx
	}
	return logging.ContextWithNewCorrelationID(ctx)
}
