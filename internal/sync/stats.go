// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package sync

import (
	"time"

	"github.com/tomtom215/fieldcheck/internal/models"
)

// SyncStats summarises one run. Counts are partial when the run failed.
//
//nolint:revive // sync.SyncStats reads naturally at call sites outside the package
type SyncStats struct {
	Resource        models.SyncResource `json:"resource"`
	Mode            models.SyncMode     `json:"mode"`
	Status          string              `json:"status"`
	Processed       int                 `json:"processed"`
	Created         int                 `json:"created"`
	Updated         int                 `json:"updated"`
	Unchanged       int                 `json:"unchanged"`
	Skipped         int                 `json:"skipped"`
	FlagsCreated    int                 `json:"flags_created"`
	FlagsCleared    int                 `json:"flags_cleared"`
	Errors          int                 `json:"errors"`
	RateLimitEvents int                 `json:"rate_limit_events"`
	DetailFetches   int                 `json:"detail_fetches"`
	ErrorMessages   []string            `json:"error_messages,omitempty"`
	// CategoriesSeen counts the out-of-scope categories met during the run.
	CategoriesSeen map[string]int `json:"categories_seen,omitempty"`
	Pruned         int            `json:"pruned,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    time.Time      `json:"completed_at"`
}

// Duration is the wall time of the run.
func (s *SyncStats) Duration() time.Duration {
	if s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// addError counts a per-record failure, keeping at most limit messages.
func (s *SyncStats) addError(limit int, msg string) {
	s.Errors++
	if len(s.ErrorMessages) < limit {
		s.ErrorMessages = append(s.ErrorMessages, msg)
	}
}

func (s *SyncStats) seeCategory(category string) {
	if s.CategoriesSeen == nil {
		s.CategoriesSeen = make(map[string]int)
	}
	s.CategoriesSeen[category]++
}

func (s *SyncStats) clone() *SyncStats {
	c := *s
	c.ErrorMessages = append([]string(nil), s.ErrorMessages...)
	if s.CategoriesSeen != nil {
		c.CategoriesSeen = make(map[string]int, len(s.CategoriesSeen))
		for k, v := range s.CategoriesSeen {
			c.CategoriesSeen[k] = v
		}
	}
	return &c
}

// syncLog converts the stats into the persisted run record.
func (s *SyncStats) syncLog(id int64) *models.SyncLog {
	completed := s.CompletedAt
	return &models.SyncLog{
		ID:               id,
		Resource:         s.Resource,
		Mode:             s.Mode,
		StartedAt:        s.StartedAt,
		CompletedAt:      &completed,
		Status:           s.Status,
		RecordsProcessed: s.Processed,
		RecordsCreated:   s.Created,
		RecordsUpdated:   s.Updated,
		RecordsSkipped:   s.Skipped,
		FlagsCreated:     s.FlagsCreated,
		ErrorCount:       s.Errors,
		Errors:           s.ErrorMessages,
		RateLimitEvents:  s.RateLimitEvents,
	}
}
