// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/sentinel/internal/logging"
)

// Runner matches *detection.Engine.
type Runner interface {
	Run(ctx context.Context) error
}

// MonitorService runs the change monitor under the supervisor.
//
// The monitor is not restartable: a stalled or ended feed means the process
// should exit so the service manager restarts it with fresh state. Any error
// from Run is therefore wrapped in suture.ErrTerminateSupervisorTree.
//
//	svc := services.NewMonitorService(engine)
//	tree.AddMonitorService(svc)
type MonitorService struct {
	runner Runner
	name   string

	mu  sync.Mutex
	err error
}

// NewMonitorService creates a monitor service wrapper.
func NewMonitorService(runner Runner) *MonitorService {
	return &MonitorService{
		runner: runner,
		name:   "change-monitor",
	}
}

// Serve implements suture.Service.
func (m *MonitorService) Serve(ctx context.Context) error {
	err := m.runner.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		err = errors.New("monitor returned without error")
	}

	logging.Error().Err(err).Str("service", m.name).Msg("Monitor failed, terminating")

	m.mu.Lock()
	m.err = err
	m.mu.Unlock()

	return fmt.Errorf("%w: %w", suture.ErrTerminateSupervisorTree, err)
}

// Err returns the error that terminated the monitor, or nil.
func (m *MonitorService) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// String implements fmt.Stringer for logging.
func (m *MonitorService) String() string {
	return m.name
}
