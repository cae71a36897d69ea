// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

type fakeHub struct {
	started chan struct{}
}

func (f *fakeHub) RunWithContext(ctx context.Context) error {
	close(f.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestWebSocketHubService_Interface(t *testing.T) {
	var _ suture.Service = (*WebSocketHubService)(nil)
}

func TestWebSocketHubService_Serve(t *testing.T) {
	t.Parallel()

	hub := &fakeHub{started: make(chan struct{})}
	svc := NewWebSocketHubService(hub)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	select {
	case <-hub.started:
	case <-time.After(time.Second):
		t.Fatal("hub did not start")
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}

	if svc.String() != "websocket-hub" {
		t.Errorf("String() = %q", svc.String())
	}
}
