// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

/*
Package websocket streams sync progress to dashboard clients.

A Hub owns the set of connected clients and fans messages out to them. Each Client
runs a read pump (answers application pings, detects disconnects) and a write pump
(drains its send buffer, sends protocol pings).

Messages are JSON objects {"type": ..., "data": ...}:

  - sync_progress: a sync.Progress snapshot, sent as pages and batches complete
  - sync_completed: a models.SyncCompletedEvent, sent when a run ends
  - ping / pong: client keepalive

Broadcasting never blocks the caller. A full hub queue drops the message; a client
whose own buffer is full is disconnected. Both are counted in
fieldcheck_websocket_messages_dropped_total.

Wiring:

	hub := websocket.NewHub()
	sup.Add(hub)                                   // Serve(ctx) under suture
	svc := fcsync.NewService(jobs, orgs, hub.BroadcastSyncProgress)
	bus.OnSyncCompleted("websocket", hub.HandleSyncCompleted)
*/
package websocket
