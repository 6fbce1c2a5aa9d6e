// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fieldcheck/internal/logging"
)

// RequestLogger writes one access log line per request. Requests slower than slow
// (when positive) and server errors log at warn, everything else at debug.
func RequestLogger(slow time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			code := status(ww)

			var ev *zerolog.Event
			log := logging.Ctx(r.Context())
			switch {
			case code >= 500:
				ev = log.Warn()
			case slow > 0 && elapsed > slow:
				ev = log.Warn().Bool("slow", true)
			default:
				ev = log.Debug()
			}
			ev.Str("method", r.Method).
				Str("route", routePattern(r)).
				Int("status", code).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", elapsed).
				Str("remote_ip", r.RemoteAddr).
				Msg("http request")
		})
	}
}
