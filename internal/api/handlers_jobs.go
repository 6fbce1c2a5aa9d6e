// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/fieldcheck/internal/logging"
	"github.com/tomtom215/fieldcheck/internal/models"
)

// parseJobFilter binds the listing query parameters:
//
//	flag_filter=missing_billing&organization=Acme&month=2026-02&page=2&page_size=50
func (h *Handler) parseJobFilter(r *http.Request) (*models.JobFilter, *models.APIError) {
	q := r.URL.Query()
	f := &models.JobFilter{
		FlagFilter:   models.FlagFilter(strings.TrimSpace(q.Get("flag_filter"))),
		JobNumber:    strings.TrimSpace(q.Get("job_number")),
		Part:         strings.TrimSpace(q.Get("part")),
		Serial:       strings.TrimSpace(q.Get("serial")),
		Category:     strings.TrimSpace(q.Get("category")),
		Organization: strings.TrimSpace(q.Get("organization")),
		Team:         strings.TrimSpace(q.Get("team")),
		Asset:        strings.TrimSpace(q.Get("asset")),
		Month:        strings.TrimSpace(q.Get("month")),
		Page:         getIntParam(r, "page", 1),
		PageSize:     getIntParam(r, "page_size", h.apiCfg.DefaultPageSize),
	}
	if f.FlagFilter == models.FlagFilterAll {
		f.FlagFilter = ""
	}
	if h.apiCfg.MaxPageSize > 0 && f.PageSize > h.apiCfg.MaxPageSize {
		f.PageSize = h.apiCfg.MaxPageSize
	}

	var err error
	if f.StartDate, err = getDateParam(r, "start_date"); err != nil {
		return nil, &models.APIError{Code: ErrCodeValidation, Message: err.Error()}
	}
	if f.EndDate, err = getDateParam(r, "end_date"); err != nil {
		return nil, &models.APIError{Code: ErrCodeValidation, Message: err.Error()}
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return nil, &models.APIError{Code: ErrCodeValidation, Message: "end_date must not be before start_date"}
	}

	if apiErr := validateRequest(f); apiErr != nil {
		return nil, apiErr
	}
	return f, nil
}

// Jobs lists jobs matching the query filter.
func (h *Handler) Jobs(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	filter, apiErr := h.parseJobFilter(r)
	if apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	page, err := h.store.QueryJobs(r.Context(), filter)
	if err != nil {
		respondStoreError(w, r, "jobs", err)
		return
	}
	respondData(w, http.StatusOK, page, start, false)
}

// JobDetail returns one job with its line items, checklist parts, custom fields and
// flags.
func (h *Handler) JobDetail(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	uid := chi.URLParam(r, "uid")
	if uid == "" || len(uid) > 100 {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "Invalid job uid", nil)
		return
	}

	detail, err := h.store.GetJobDetail(r.Context(), uid)
	if err != nil {
		respondStoreError(w, r, "job", err)
		return
	}
	respondData(w, http.StatusOK, detail, start, false)
}

// ResolveJob resolves every open flag of a job. Resolving a job with no open flags
// succeeds with a count of zero.
func (h *Handler) ResolveJob(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	uid := chi.URLParam(r, "uid")
	if uid == "" || len(uid) > 100 {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "Invalid job uid", nil)
		return
	}

	n, err := h.store.ResolveJobFlags(r.Context(), uid)
	if err != nil {
		respondStoreError(w, r, "job", err)
		return
	}
	if n > 0 {
		h.metricsCache.Clear()
	}
	logging.Ctx(r.Context()).Info().Str("job_uid", uid).Int("resolved", n).Msg("job flags resolved")
	respondData(w, http.StatusOK, models.ResolveResult{Resolved: n}, start, false)
}

// ResolveFlag resolves one flag. Resolving an already resolved flag reports zero.
func (h *Handler) ResolveFlag(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "Flag id must be a positive integer", nil)
		return
	}

	changed, err := h.store.ResolveFlag(r.Context(), id)
	if err != nil {
		respondStoreError(w, r, "flag", err)
		return
	}
	result := models.ResolveResult{}
	if changed {
		result.Resolved = 1
		h.metricsCache.Clear()
	}
	logging.Ctx(r.Context()).Info().Int64("flag_id", id).Bool("changed", changed).Msg("flag resolved")
	respondData(w, http.StatusOK, result, start, false)
}

// SearchSerials finds the jobs that carry any of the requested serial numbers.
func (h *Handler) SearchSerials(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req models.SerialSearchRequest
	if apiErr := decodeBody(w, r, &req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	serials := make([]string, 0, len(req.Serials))
	seen := make(map[string]bool, len(req.Serials))
	for _, s := range req.Serials {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		serials = append(serials, s)
	}
	req.Serials = serials
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	matches, err := h.store.SearchSerials(r.Context(), req.Serials)
	if err != nil {
		respondStoreError(w, r, "serials", err)
		return
	}
	if matches == nil {
		matches = []models.SerialMatch{}
	}
	respondData(w, http.StatusOK, map[string]any{
		"searched": len(req.Serials),
		"matches":  matches,
	}, start, false)
}
