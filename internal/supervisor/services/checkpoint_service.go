// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package services

import (
	"context"
	"time"

	"github.com/tomtom215/fieldcheck/internal/logging"
)

// Checkpointer flushes the DuckDB write-ahead log into the database file.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// CheckpointService checkpoints periodically and once more on shutdown. A failed
// checkpoint is logged and retried on the next tick; it never restarts the service.
type CheckpointService struct {
	db       Checkpointer
	interval time.Duration
}

// NewCheckpointService checkpoints db every interval. A non-positive interval means
// 15 minutes.
func NewCheckpointService(db Checkpointer, interval time.Duration) *CheckpointService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &CheckpointService{db: db, interval: interval}
}

func (s *CheckpointService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			s.checkpoint(final)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			s.checkpoint(ctx)
		}
	}
}

func (s *CheckpointService) checkpoint(ctx context.Context) {
	start := time.Now()
	if err := s.db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("DuckDB checkpoint failed")
		return
	}
	logging.Debug().Dur("duration", time.Since(start)).Msg("DuckDB checkpoint complete")
}

func (s *CheckpointService) String() string {
	return "duckdb-checkpoint"
}
