// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/fieldcheck/internal/config"
	"github.com/tomtom215/fieldcheck/internal/middleware"
	"github.com/tomtom215/fieldcheck/internal/models"
)

const slowRequestThreshold = time.Second

// NewRouter mounts the API on a chi router.
//
// Global middleware runs for every request: request id, real client IP, access
// logging, panic recovery and CORS. The /api/v1 group adds the per-IP rate limit,
// security headers and HTTP metrics. The WebSocket route skips the metrics
// middleware since its duration is the life of the connection.
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	mw := NewChiMiddleware(MiddlewareConfigFromSecurity(&cfg.Security))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(slowRequestThreshold))
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondAPIError(w, http.StatusNotFound, &models.APIError{Code: ErrCodeNotFound, Message: "Route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondAPIError(w, http.StatusMethodNotAllowed, &models.APIError{Code: ErrCodeValidation, Message: "Method not allowed"})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimit())
		r.Use(APISecurityHeaders)

		r.Get("/ws", h.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.PrometheusMetrics)

			r.Get("/health", h.Health)
			r.Get("/health/live", h.HealthLive)

			r.Get("/jobs", h.Jobs)
			r.Get("/jobs/{uid}", h.JobDetail)
			r.Post("/jobs/{uid}/resolve", h.ResolveJob)
			r.Post("/flags/{id}/resolve", h.ResolveFlag)

			r.Get("/metrics/summary", h.MetricsSummary)
			r.Get("/filters", h.Filters)
			r.Get("/assets", h.Assets)
			r.Post("/serials/search", h.SearchSerials)
			r.Get("/organizations", h.Organizations)

			r.Get("/sync/status", h.SyncStatus)
			r.Post("/sync", h.TriggerSync)
			r.Post("/maintenance/prune", h.PruneOutOfScope)
		})
	})

	return r
}
