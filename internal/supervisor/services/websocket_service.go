// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package services

import (
	"context"
)

// ContextHub matches *websocket.Hub. Using an interface keeps this package
// free of the websocket import.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// WebSocketHubService runs the report hub under the messaging supervisor.
//
//	hub := websocket.NewHub()
//	tree.AddMessagingService(services.NewWebSocketHubService(hub))
type WebSocketHubService struct {
	hub  ContextHub
	name string
}

// NewWebSocketHubService creates a hub service wrapper.
func NewWebSocketHubService(hub ContextHub) *WebSocketHubService {
	return &WebSocketHubService{
		hub:  hub,
		name: "websocket-hub",
	}
}

// Serve implements suture.Service. RunWithContext closes all clients and
// returns ctx.Err() on shutdown.
func (w *WebSocketHubService) Serve(ctx context.Context) error {
	return w.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for logging.
func (w *WebSocketHubService) String() string {
	return w.name
}
