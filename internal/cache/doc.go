// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

// Package cache is the in-memory TTL cache in front of the reporting queries that
// aggregate the whole job table (metrics summary, filter lists).
//
// Entries are invalidated wholesale when a sync completes:
//
//	c := cache.New("reports", 60*time.Second)
//	bus.OnSyncCompleted("cache-invalidate", c.HandleSyncCompleted)
//
//	summary, err := cache.GetOrLoad(c, cache.GenerateKey("metrics", filter), func() (*models.Metrics, error) {
//		return db.QueryMetrics(ctx, filter)
//	})
//
// Concurrent misses for the same key share one load.
package cache
