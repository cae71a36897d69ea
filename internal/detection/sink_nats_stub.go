// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

//go:build !nats

package detection

import (
	"context"
	"errors"
)

// ErrNATSNotEnabled is returned when the binary was built without NATS support.
var ErrNATSNotEnabled = errors.New("NATS support not enabled (build with -tags nats)")

// NATSSink is a stub for non-NATS builds.
type NATSSink struct{}

// NewNATSSink always fails in non-NATS builds.
func NewNATSSink(_, _ string) (*NATSSink, error) {
	return nil, ErrNATSNotEnabled
}

// Name implements Sink.
func (s *NATSSink) Name() string {
	return "nats"
}

// Send implements Sink.
func (s *NATSSink) Send(_ context.Context, _ *Report) error {
	return ErrNATSNotEnabled
}

// Close is a no-op stub.
func (s *NATSSink) Close() error {
	return nil
}
