// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package sync

import (
	"context"
	"time"

	"github.com/tomtom215/fieldcheck/internal/database"
	"github.com/tomtom215/fieldcheck/internal/models"
)

// RunStore is the run bookkeeping both engines need. *database.DB implements it.
type RunStore interface {
	AcquireSyncLock(ctx context.Context, name, holder string, ttl time.Duration) error
	ReleaseSyncLock(ctx context.Context, name, holder string) error
	StartSyncLog(ctx context.Context, resource models.SyncResource, mode models.SyncMode, startedAt time.Time) (int64, error)
	FinishSyncLog(ctx context.Context, entry *models.SyncLog) error
}

// JobStore is the storage the job engine writes to.
type JobStore interface {
	RunStore
	JobTimestamps(ctx context.Context, uids []string) (map[string]*time.Time, error)
	PersistJobBatch(ctx context.Context, records []models.JobRecord) (database.BatchResult, error)
	PersistJob(ctx context.Context, record *models.JobRecord) (database.BatchResult, error)
	EnsureOrganizationStubs(ctx context.Context, refs []models.OrganizationRef) (int, error)
	PruneOutOfScope(ctx context.Context, allowList []string) (int, error)
}

// OrganizationStore is the storage the organization engine writes to.
type OrganizationStore interface {
	RunStore
	OrganizationTimestamps(ctx context.Context, uids []string) (map[string]*time.Time, error)
	UpsertOrganizationBatch(ctx context.Context, records []models.OrganizationRecord) (database.BatchResult, error)
}

// EventPublisher receives domain events. Implementations must not block for long;
// publish failures are logged by the caller and never fail a run.
type EventPublisher interface {
	PublishSyncCompleted(ctx context.Context, event *models.SyncCompletedEvent) error
	PublishFlagRaised(ctx context.Context, event *models.FlagRaisedEvent) error
}

var (
	_ JobStore          = (*database.DB)(nil)
	_ OrganizationStore = (*database.DB)(nil)
)
