// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/fieldcheck/internal/cache"
	"github.com/tomtom215/fieldcheck/internal/models"
)

// MetricsSummary returns the dashboard counts for the listing filter. Results are
// cached per filter until the next sync that changes data.
func (h *Handler) MetricsSummary(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	filter, apiErr := h.parseJobFilter(r)
	if apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}
	filter.Page, filter.PageSize = 1, 1

	ctx := r.Context()
	summary, cached, err := cache.Load(h.metricsCache, cache.GenerateKey("metrics", filter), func() (*models.Metrics, error) {
		return h.store.QueryMetrics(ctx, filter)
	})
	if err != nil {
		respondStoreError(w, r, "metrics", err)
		return
	}
	respondData(w, http.StatusOK, summary, start, cached)
}

// Filters returns the distinct organizations, teams and categories for the listing
// drop-downs.
func (h *Handler) Filters(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	opts, cached, err := cache.Load(h.filtersCache, "filters", func() (*models.FilterOptions, error) {
		return h.store.FilterOptions(ctx)
	})
	if err != nil {
		respondStoreError(w, r, "filter options", err)
		return
	}
	respondData(w, http.StatusOK, opts, start, cached)
}

// Assets lists every asset with its job and open-issue counts.
func (h *Handler) Assets(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	assets, err := h.store.AssetsWithCounts(r.Context())
	if err != nil {
		respondStoreError(w, r, "assets", err)
		return
	}
	if assets == nil {
		assets = []models.AssetCount{}
	}
	respondData(w, http.StatusOK, assets, start, false)
}

// Organizations lists organizations. missing_billing=true keeps only those without a
// billing reference.
func (h *Handler) Organizations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	filter := &models.OrganizationFilter{
		Name:           strings.TrimSpace(r.URL.Query().Get("name")),
		MissingBilling: getBoolParam(r, "missing_billing"),
		ActiveOnly:     getBoolParam(r, "active_only"),
		Page:           getIntParam(r, "page", 1),
		PageSize:       getIntParam(r, "page_size", h.apiCfg.DefaultPageSize),
	}
	if h.apiCfg.MaxPageSize > 0 && filter.PageSize > h.apiCfg.MaxPageSize {
		filter.PageSize = h.apiCfg.MaxPageSize
	}
	if apiErr := validateRequest(filter); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	page, err := h.store.QueryOrganizations(r.Context(), filter)
	if err != nil {
		respondStoreError(w, r, "organizations", err)
		return
	}
	respondData(w, http.StatusOK, page, start, false)
}
