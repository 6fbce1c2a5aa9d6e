// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

//go:build !nats

package events

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/fieldcheck/internal/config"
)

// NATSAvailable reports whether this binary was built with NATS support.
const NATSAvailable = false

// ErrNATSNotCompiled is returned when NATS forwarding is enabled in a binary built
// without -tags nats.
var ErrNATSNotCompiled = errors.New("NATS support not compiled in (build with -tags nats)")

// NewNATSForwarder always fails in builds without the nats tag.
func NewNATSForwarder(_ context.Context, _ *config.NATSConfig) (message.Publisher, error) {
	return nil, ErrNATSNotCompiled
}
