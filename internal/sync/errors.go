// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package sync

import "errors"

var (
	// ErrSyncAlreadyRunning is returned when a run for the same resource is active
	// in this process or holds the store lock in another.
	ErrSyncAlreadyRunning = errors.New("sync already running")

	// ErrIllegalTransition is a programming error in the run state machine.
	ErrIllegalTransition = errors.New("illegal sync state transition")

	// ErrCanceled ends a run whose context was canceled.
	ErrCanceled = errors.New("sync canceled")
)
