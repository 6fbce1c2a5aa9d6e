// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

// Package events is the in-process domain event bus.
//
// The sync engines publish two kinds of event through a Bus:
//
//	sync.completed  models.SyncCompletedEvent  one per finished run
//	flag.raised     models.FlagRaisedEvent     one per new billing flag on a completed job
//
// Delivery uses a Watermill GoChannel pub/sub and a Watermill router with panic
// recovery and retry middleware. Consumers (the notifier, the websocket hub, the API
// cache) register typed handlers before the router starts:
//
//	bus.OnFlagRaised("slack-notifier", notifier.Handle)
//	bus.OnSyncCompleted("cache-invalidate", func(ctx context.Context, _ *models.SyncCompletedEvent) error {
//		c.Clear()
//		return nil
//	})
//
// Binaries built with -tags nats can also forward every event to NATS JetStream,
// see NewNATSForwarder.
package events
