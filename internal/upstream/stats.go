// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package upstream

import (
	"context"
	"sync/atomic"
)

// CallStats counts upstream activity for one caller, typically one sync run.
// Attach it with WithCallStats; the client updates it from any goroutine.
type CallStats struct {
	Requests        atomic.Int64
	RateLimitEvents atomic.Int64
	Retries         atomic.Int64
}

type statsKey struct{}

// WithCallStats returns a context that makes the client record into s.
func WithCallStats(ctx context.Context, s *CallStats) context.Context {
	return context.WithValue(ctx, statsKey{}, s)
}

func statsFrom(ctx context.Context) *CallStats {
	s, _ := ctx.Value(statsKey{}).(*CallStats)
	return s
}

func (s *CallStats) addRequest() {
	if s != nil {
		s.Requests.Add(1)
	}
}

func (s *CallStats) addRateLimit() {
	if s != nil {
		s.RateLimitEvents.Add(1)
	}
}

func (s *CallStats) addRetry() {
	if s != nil {
		s.Retries.Add(1)
	}
}
