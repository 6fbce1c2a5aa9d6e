// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package sync

import (
	"fmt"
	"sync"
)

// State is a phase of a sync run.
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateExtracting State = "extracting"
	StateValidating State = "validating"
	StatePersisting State = "persisting"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

var transitions = map[State][]State{
	StateIdle:       {StateFetching, StateFailed},
	StateFetching:   {StateExtracting, StateCompleted, StateFailed},
	StateExtracting: {StateValidating, StateFailed},
	StateValidating: {StatePersisting, StateFailed},
	StatePersisting: {StateFetching, StateCompleted, StateFailed},
	StateCompleted:  {StateIdle},
	StateFailed:     {StateIdle},
}

// machine guards the run state. It is read by Status from other goroutines.
type machine struct {
	mu    sync.RWMutex
	state State
}

func newMachine() *machine {
	return &machine{state: StateIdle}
}

// to moves to next, rejecting transitions the lifecycle does not allow.
func (m *machine) to(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, next)
}

// fail moves to Failed unless the run already finished.
func (m *machine) fail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateCompleted && m.state != StateFailed {
		m.state = StateFailed
	}
}

// reset returns a finished machine to Idle.
func (m *machine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateCompleted || m.state == StateFailed {
		m.state = StateIdle
	}
}

func (m *machine) current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}
