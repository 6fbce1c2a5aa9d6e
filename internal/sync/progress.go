// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package sync

import (
	"sync"
	"time"

	"github.com/tomtom215/fieldcheck/internal/logging"
	"github.com/tomtom215/fieldcheck/internal/models"
)

// Progress is a point-in-time view of a running sync.
type Progress struct {
	Resource   models.SyncResource `json:"resource"`
	Mode       models.SyncMode     `json:"mode"`
	State      State               `json:"state"`
	Current    int                 `json:"current"`
	Total      int                 `json:"total"`
	Page       int                 `json:"page"`
	TotalPages int                 `json:"total_pages"`
	RatePerSec float64             `json:"rate_per_sec"`
	ETASeconds float64             `json:"eta_seconds"`
	Elapsed    float64             `json:"elapsed_seconds"`
}

// ProgressSink receives progress updates. It is called from a dedicated goroutine;
// updates are dropped while it is busy.
type ProgressSink func(Progress)

// progressQueue is the buffer between a run and its sink.
const progressQueue = 16

// reporter delivers progress to a sink without ever blocking the run.
type reporter struct {
	ch   chan Progress
	done chan struct{}

	mu   sync.Mutex
	last *Progress
}

func newReporter(sink ProgressSink) *reporter {
	r := &reporter{}
	if sink == nil {
		return r
	}
	r.ch = make(chan Progress, progressQueue)
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		for p := range r.ch {
			deliver(sink, p)
		}
	}()
	return r
}

func deliver(sink ProgressSink, p Progress) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error().Interface("panic", rec).Msg("progress sink panicked")
		}
	}()
	sink(p)
}

// report records p as the latest progress and offers it to the sink.
func (r *reporter) report(p Progress) {
	r.mu.Lock()
	r.last = &p
	r.mu.Unlock()

	if r.ch == nil {
		return
	}
	select {
	case r.ch <- p:
	default:
	}
}

// latest returns the last reported progress, or nil.
func (r *reporter) latest() *Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	p := *r.last
	return &p
}

// close stops delivery after queued updates have been handed to the sink.
func (r *reporter) close() {
	if r.ch == nil {
		return
	}
	close(r.ch)
	<-r.done
}

// estimate fills the rate and ETA of p from elapsed time.
func estimate(p *Progress, elapsed time.Duration) {
	p.Elapsed = elapsed.Seconds()
	if elapsed <= 0 || p.Current <= 0 {
		return
	}
	p.RatePerSec = float64(p.Current) / elapsed.Seconds()
	if remaining := p.Total - p.Current; remaining > 0 && p.RatePerSec > 0 {
		p.ETASeconds = float64(remaining) / p.RatePerSec
	}
}
