// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package api

import (
	"context"
	"net/http"
	"time"

	fcsync "github.com/tomtom215/fieldcheck/internal/sync"
)

const healthPingTimeout = 2 * time.Second

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status           string          `json:"status"`
	Version          string          `json:"version"`
	DatabaseOK       bool            `json:"database_ok"`
	DatabaseError    string          `json:"database_error,omitempty"`
	SyncRunning      bool            `json:"sync_running"`
	Engines          []fcsync.Status `json:"engines"`
	WebSocketClients int             `json:"websocket_clients"`
	UptimeSeconds    float64         `json:"uptime_seconds"`
}

// Health pings the database and reports sync engine state. A failed ping answers
// 503 with the same body so load balancers and operators both get the detail.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	status := HealthStatus{
		Status:        "healthy",
		Version:       h.version,
		DatabaseOK:    true,
		Engines:       h.sync.Status(),
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}
	for _, e := range status.Engines {
		if e.Running {
			status.SyncRunning = true
		}
	}
	if h.hub != nil {
		status.WebSocketClients = h.hub.ClientCount()
	}

	code := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		status.Status = "unhealthy"
		status.DatabaseOK = false
		status.DatabaseError = sanitizeLogValue(err.Error())
		code = http.StatusServiceUnavailable
	}
	respondData(w, code, status, start, false)
}

// HealthLive always answers 200 while the process serves HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "alive"}, time.Now(), false)
}
