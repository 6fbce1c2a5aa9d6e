// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fieldcheck/internal/database"
	"github.com/tomtom215/fieldcheck/internal/extract"
	"github.com/tomtom215/fieldcheck/internal/logging"
	"github.com/tomtom215/fieldcheck/internal/models"
	"github.com/tomtom215/fieldcheck/internal/upstream"
)

// OrganizationEngine synchronises organizations. It follows the job engine's page
// loop without the category filter or validation.
type OrganizationEngine struct {
	*runner
	api   upstream.API
	store OrganizationStore
	rules *extract.Rules
}

// NewOrganizationEngine builds an organization engine.
func NewOrganizationEngine(api upstream.API, store OrganizationStore, rules *extract.Rules, opts Options) *OrganizationEngine {
	return &OrganizationEngine{
		runner: newRunner(models.ResourceOrganizations, store, opts),
		api:    api,
		store:  store,
		rules:  rules,
	}
}

// RunSync runs one organization sync. See Engine.RunSync.
func (e *OrganizationEngine) RunSync(ctx context.Context, mode models.SyncMode, sink ProgressSink) (*SyncStats, error) {
	ctx = ensureCorrelation(ctx)
	ru, err := e.begin(ctx, mode, sink)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, ru)
}

func (e *OrganizationEngine) execute(ctx context.Context, ru *run) (*SyncStats, error) {
	logging.Ctx(ctx).Info().Str("resource", string(e.resource)).Str("mode", string(ru.mode)).Msg("sync started")
	err := e.sync(upstream.WithCallStats(ctx, ru.calls), ru)
	return e.finish(ctx, ru, err)
}

func (e *OrganizationEngine) sync(ctx context.Context, ru *run) error {
	batchSize := e.opts.BatchSize
	var pending []models.OrganizationRecord

	for page := 1; ; page++ {
		if err := canceled(ctx); err != nil {
			return err
		}
		if err := ru.to(StateFetching); err != nil {
			return err
		}
		ru.page = page
		p, err := e.api.FetchPage(ctx, models.ResourceOrganizations, page, e.opts.PageSize)
		if err != nil {
			if cerr := canceled(ctx); cerr != nil {
				return cerr
			}
			return fmt.Errorf("fetch organizations page %d: %w", page, err)
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
		// Organizations have no rules to apply.
		if err := ru.to(StateValidating); err != nil {
			return err
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

		if last {
			return nil
		}
	}
}

func (e *OrganizationEngine) extractPage(ctx context.Context, ru *run, raws []json.RawMessage) ([]models.OrganizationRecord, error) {
	stats := ru.stats
	cands := make([]candidate, 0, len(raws))
	for _, raw := range raws {
		stats.Processed++
		stamp, err := upstream.DecodeStamp(raw)
		if err != nil || stamp.UID == "" {
			if err == nil {
				err = errors.New("list record without organization_uid")
			}
			ru.recordError(&extract.Error{UID: stamp.UID, Err: err})
			continue
		}
		cands = append(cands, candidate{uid: stamp.UID, updated: extract.ParseTimestamp(stamp.UpdatedAt)})
	}

	if ru.mode == models.SyncModeDifferential && len(cands) > 0 {
		uids := make([]string, len(cands))
		for i, c := range cands {
			uids[i] = c.uid
		}
		stored, err := e.store.OrganizationTimestamps(ctx, uids)
		if err != nil {
			if cerr := canceled(ctx); cerr != nil {
				return nil, cerr
			}
			return nil, fmt.Errorf("read stored organization timestamps: %w", err)
		}
		kept := cands[:0]
		for _, c := range cands {
			if ts, ok := stored[c.uid]; ok && sameInstant(ts, c.updated) {
				stats.Unchanged++
				continue
			}
			kept = append(kept, c)
		}
		cands = kept
	}

	syncedAt := e.now().UTC()
	out := make([]models.OrganizationRecord, 0, len(cands))
	for _, c := range cands {
		body, err := e.api.FetchDetail(ctx, models.ResourceOrganizations, c.uid)
		stats.DetailFetches++
		if err != nil {
			if cerr := canceled(ctx); cerr != nil {
				return nil, cerr
			}
			err = fmt.Errorf("fetch organization %s: %w", c.uid, err)
			if upstream.Aborts(err) {
				return nil, err
			}
			ru.recordError(err)
			continue
		}
		raw, err := extract.DecodeOrganization(body)
		if err != nil {
			ru.recordError(err)
			continue
		}
		rec, err := extract.OrganizationRecord(raw, e.rules, syncedAt)
		if err != nil {
			ru.recordError(err)
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (e *OrganizationEngine) flush(ctx context.Context, ru *run, batch []models.OrganizationRecord) error {
	bg := context.WithoutCancel(ctx)
	res, err := e.store.UpsertOrganizationBatch(bg, batch)
	if err == nil {
		ru.stats.Created += res.Created
		ru.stats.Updated += res.Updated
		return nil
	}
	if database.IsConflict(err) {
		return fmt.Errorf("persist organization batch: %w", err)
	}

	logging.Ctx(ctx).Warn().Err(err).Int("batch_size", len(batch)).
		Msg("organization batch failed, replaying one per transaction")
	for i := range batch {
		uid := batch[i].Organization.OrganizationUID
		res, err := e.store.UpsertOrganizationBatch(bg, batch[i:i+1])
		if err != nil {
			if database.IsConflict(err) {
				return fmt.Errorf("persist organization %s: %w", uid, err)
			}
			ru.recordError(fmt.Errorf("persist organization %s: %w", uid, err))
			continue
		}
		ru.stats.Created += res.Created
		ru.stats.Updated += res.Updated
	}
	return nil
}
