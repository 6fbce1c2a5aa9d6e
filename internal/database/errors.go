// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package database

import (
	"errors"
	"io"
	"strings"

	"github.com/tomtom215/fieldcheck/internal/logging"
)

var (
	// ErrStorage wraps a write that still failed after conflict retries.
	ErrStorage = errors.New("storage error")
	// ErrFlagExists means a flag of the same type with an active condition is already
	// recorded for the job. Callers treat it as a no-op.
	ErrFlagExists = errors.New("flag already exists")
	// ErrNotFound is returned for a missing job, flag or organization.
	ErrNotFound = errors.New("not found")
	// ErrLockHeld means another holder owns an unexpired sync lock.
	ErrLockHeld = errors.New("sync lock held")
)

// isTransactionConflict checks if an error is a DuckDB transaction conflict.
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Transaction conflict") ||
		strings.Contains(errStr, "Conflict on update") ||
		strings.Contains(errStr, "cannot update a table that has been altered")
}

// isInternalError checks if an error is a DuckDB INTERNAL error.
func isInternalError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "INTERNAL Error")
}

// closeWithLog closes a resource and logs any error.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly closes a resource on an error path where Close errors are not
// actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// IsConflict reports whether err is a write that lost to a concurrent transaction
// and kept losing through every retry.
func IsConflict(err error) bool {
	return isTransactionConflict(err)
}
