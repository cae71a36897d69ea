// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package detection

import "context"

// HubMessageType is the websocket message type of broadcast reports.
const HubMessageType = "report"

// Broadcaster broadcasts messages via WebSocket.
type Broadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// HubSink broadcasts reports to connected websocket clients. Delivery is
// best effort: the hub drops messages when its queue is full.
type HubSink struct {
	hub Broadcaster
}

// NewHubSink creates a hub sink.
func NewHubSink(hub Broadcaster) *HubSink {
	return &HubSink{hub: hub}
}

// Name implements Sink.
func (s *HubSink) Name() string {
	return "hub"
}

// Send implements Sink. The hub receives a copy since it serialises later.
func (s *HubSink) Send(_ context.Context, r *Report) error {
	cp := *r
	s.hub.BroadcastJSON(HubMessageType, &cp)
	return nil
}
