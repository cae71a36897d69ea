// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// mockService counts starts and fails a configurable number of times
// before running until cancellation.
type mockService struct {
	name       string
	startCount atomic.Int32

	mu        sync.Mutex
	err       error
	failsLeft int
}

func newMockService(name string) *mockService {
	return &mockService{name: name}
}

func (m *mockService) Serve(ctx context.Context) error {
	m.startCount.Add(1)

	m.mu.Lock()
	err := m.err
	if m.failsLeft > 0 {
		m.failsLeft--
		err = errors.New("mock failure")
	}
	m.mu.Unlock()

	if err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockService) String() string { return m.name }

// setError makes every Serve call return err immediately.
func (m *mockService) setError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *mockService) setFailCount(n int) {
	m.mu.Lock()
	m.failsLeft = n
	m.mu.Unlock()
}

func (m *mockService) starts() int {
	return int(m.startCount.Load())
}
