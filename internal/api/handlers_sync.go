// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/fieldcheck/internal/logging"
	"github.com/tomtom215/fieldcheck/internal/models"
	fcsync "github.com/tomtom215/fieldcheck/internal/sync"
)

const recentRunsLimit = 10

// SyncStatusResponse is the body of GET /sync/status.
type SyncStatusResponse struct {
	Engines    []fcsync.Status                    `json:"engines"`
	LastSync   map[models.SyncResource]*time.Time `json:"last_sync"`
	RecentRuns []models.SyncLog                   `json:"recent_runs"`
}

// SyncTriggerResponse is the body of an accepted POST /sync.
type SyncTriggerResponse struct {
	Resource models.SyncResource `json:"resource"`
	Mode     models.SyncMode     `json:"mode"`
	Status   string              `json:"status"`
}

// SyncStatus reports live engine state, the last successful run per resource and the
// most recent sync_log rows.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	resp := SyncStatusResponse{
		Engines:  h.sync.Status(),
		LastSync: make(map[models.SyncResource]*time.Time, 2),
	}
	for _, res := range []models.SyncResource{models.ResourceJobs, models.ResourceOrganizations} {
		last, err := h.store.LastSyncTime(ctx, res)
		if err != nil {
			respondStoreError(w, r, "sync status", err)
			return
		}
		resp.LastSync[res] = last
	}
	limit := getIntParam(r, "limit", recentRunsLimit)
	if limit < 1 || limit > 100 {
		limit = recentRunsLimit
	}
	runs, err := h.store.RecentSyncLogs(ctx, limit)
	if err != nil {
		respondStoreError(w, r, "sync history", err)
		return
	}
	if runs == nil {
		runs = []models.SyncLog{}
	}
	resp.RecentRuns = runs

	respondData(w, http.StatusOK, resp, start, false)
}

// TriggerSync starts a background run. The body is optional and defaults to a
// differential job sync. A run already in progress for the resource is a 409.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req models.SyncTriggerRequest
	if apiErr := decodeBody(w, r, &req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}
	if req.Resource == "" {
		req.Resource = models.ResourceJobs
	}
	if req.Mode == "" {
		req.Mode = models.SyncModeDifferential
	}

	if err := h.sync.Trigger(req.Resource, req.Mode); err != nil {
		if errors.Is(err, fcsync.ErrSyncAlreadyRunning) {
			respondError(w, r, http.StatusConflict, ErrCodeSyncInProgress,
				"A "+string(req.Resource)+" sync is already running", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to start sync", err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("resource", string(req.Resource)).
		Str("mode", string(req.Mode)).
		Msg("sync triggered via API")
	respondData(w, http.StatusAccepted, SyncTriggerResponse{
		Resource: req.Resource,
		Mode:     req.Mode,
		Status:   "started",
	}, start, false)
}

// PruneOutOfScope deletes jobs whose category is no longer allow-listed.
func (h *Handler) PruneOutOfScope(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	n, err := h.store.PruneOutOfScope(r.Context(), h.allowedCategories)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeDatabase, "Prune failed", err)
		return
	}
	if n > 0 {
		h.metricsCache.Clear()
		h.filtersCache.Clear()
	}
	logging.Ctx(r.Context()).Info().Int("deleted", n).Msg("out-of-scope jobs pruned")
	respondData(w, http.StatusOK, map[string]int{"deleted": n}, start, false)
}
