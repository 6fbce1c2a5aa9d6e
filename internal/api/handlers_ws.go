// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package api

import (
	"net/http"

	"github.com/tomtom215/fieldcheck/internal/logging"
	ws "github.com/tomtom215/fieldcheck/internal/websocket"
)

// WebSocket upgrades the connection and registers it with the progress hub.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Progress stream unavailable", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Warn().Err(err).Str("origin", sanitizeLogValue(r.Header.Get("Origin"))).
			Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
	logging.Ctx(r.Context()).Debug().Uint64("client_id", client.ID()).Msg("websocket client connected")
}
