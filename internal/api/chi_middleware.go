// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/fieldcheck/internal/config"
	"github.com/tomtom215/fieldcheck/internal/models"
)

// ChiMiddlewareConfig holds CORS and rate limit settings.
type ChiMiddlewareConfig struct {
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSExposedHeaders   []string
	CORSAllowCredentials bool
	CORSMaxAge           int

	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
}

// MiddlewareConfigFromSecurity maps the security config onto middleware settings.
func MiddlewareConfigFromSecurity(cfg *config.SecurityConfig) ChiMiddlewareConfig {
	return ChiMiddlewareConfig{
		CORSAllowedOrigins: cfg.CORSOrigins,
		CORSAllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		CORSAllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		CORSExposedHeaders: []string{"X-Request-Id", "ETag"},
		CORSMaxAge:         300,
		RateLimitRequests:  cfg.RateLimitReqs,
		RateLimitWindow:    cfg.RateLimitWindow,
		RateLimitDisabled:  cfg.RateLimitDisabled,
	}
}

// ChiMiddleware bundles the CORS and rate limit handlers built from one config.
type ChiMiddleware struct {
	config      ChiMiddlewareConfig
	corsHandler func(http.Handler) http.Handler
}

// NewChiMiddleware builds the CORS handler once.
func NewChiMiddleware(cfg ChiMiddlewareConfig) *ChiMiddleware {
	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	// Credentials with a wildcard origin are rejected by browsers.
	allowCredentials := cfg.CORSAllowCredentials
	for _, o := range origins {
		if o == "*" {
			allowCredentials = false
		}
	}

	return &ChiMiddleware{
		config: cfg,
		corsHandler: cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   cfg.CORSAllowedMethods,
			AllowedHeaders:   cfg.CORSAllowedHeaders,
			ExposedHeaders:   cfg.CORSExposedHeaders,
			AllowCredentials: allowCredentials,
			MaxAge:           cfg.CORSMaxAge,
		}),
	}
}

// CORS applies the configured cross-origin policy.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.corsHandler
}

// RateLimit limits requests per client IP. Exceeding the limit answers 429 with the
// standard error envelope.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled || m.config.RateLimitRequests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	window := m.config.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(
		m.config.RateLimitRequests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			respondAPIError(w, http.StatusTooManyRequests, &models.APIError{
				Code:    ErrCodeRateLimited,
				Message: "Too many requests",
			})
		}),
	)
}

// APISecurityHeaders sets the response headers every API answer carries.
func APISecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
