// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

/*
Package middleware provides the HTTP middleware shared by the reporting API.

  - RequestID: accepts or generates X-Request-ID and seeds the logging context
  - RequestLogger: one zerolog access line per request, warn level for slow or 5xx
  - PrometheusMetrics: request count, latency and in-flight gauge by route pattern

All three are chi-style func(http.Handler) http.Handler:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(time.Second))
	r.Use(middleware.PrometheusMetrics)

Metrics and logs label requests with the chi route pattern (/api/v1/jobs/{uid}), not
the raw path, so job identifiers never become label values.
*/
package middleware
