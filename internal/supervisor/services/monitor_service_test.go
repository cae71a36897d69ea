// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

type fakeRunner struct {
	err   error
	block bool
	calls atomic.Int32
}

func (f *fakeRunner) Run(ctx context.Context) error {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func TestMonitorService_Interface(t *testing.T) {
	var _ suture.Service = (*MonitorService)(nil)
}

func TestMonitorService_Serve(t *testing.T) {
	t.Parallel()

	stalled := errors.New("watchdog: no change event received within timeout")

	tests := []struct {
		name      string
		runErr    error
		wantCause error
	}{
		{"runner error terminates tree", stalled, stalled},
		{"nil return is still fatal", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := NewMonitorService(&fakeRunner{err: tt.runErr})

			err := svc.Serve(context.Background())
			if !errors.Is(err, suture.ErrTerminateSupervisorTree) {
				t.Fatalf("Serve() = %v, want ErrTerminateSupervisorTree", err)
			}
			if tt.wantCause != nil && !errors.Is(err, tt.wantCause) {
				t.Errorf("Serve() = %v, want wrapped %v", err, tt.wantCause)
			}
			if svc.Err() == nil {
				t.Error("Err() = nil after failure")
			}
		})
	}
}

func TestMonitorService_CancelIsNotFatal(t *testing.T) {
	t.Parallel()

	svc := NewMonitorService(&fakeRunner{block: true})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := svc.Serve(ctx)
	if errors.Is(err, suture.ErrTerminateSupervisorTree) {
		t.Fatalf("Serve() = %v, cancellation must not terminate the tree", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve() = %v, want DeadlineExceeded", err)
	}
	if svc.Err() != nil {
		t.Errorf("Err() = %v, want nil", svc.Err())
	}
}

func TestMonitorService_TerminatesSupervisor(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: errors.New("change feed ended")}
	sup := suture.New("test-sup", suture.Spec{
		FailureThreshold: 5,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          time.Second,
	})
	sup.Add(NewMonitorService(runner))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := sup.Serve(ctx)
	if err == nil {
		t.Fatal("supervisor Serve() = nil, want termination error")
	}
	if ctx.Err() != nil {
		t.Fatal("supervisor ran until the test deadline instead of terminating")
	}
	if got := runner.calls.Load(); got != 1 {
		t.Errorf("runner calls = %d, want 1 (no restart)", got)
	}
}

func TestMonitorService_String(t *testing.T) {
	t.Parallel()
	if got := NewMonitorService(&fakeRunner{}).String(); got != "change-monitor" {
		t.Errorf("String() = %q", got)
	}
}
