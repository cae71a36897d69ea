// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for WebSocket communication
const (
	MessageTypeReport = "report"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
)

// broadcastBuffer bounds the queue between reporters and the hub goroutine.
const broadcastBuffer = 256

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, broadcastBuffer),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub until ctx is done, then closes every client
// and returns ctx.Err(). Designed for suture supervision.
//
// Selection is prioritised: shutdown first, then client lifecycle events,
// then broadcasts. Client state is therefore consistent before any message
// is delivered.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnectionsActive.Inc()
	logging.Info().Uint64("client_id", client.id).Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		h.removeLocked(client)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		logging.Info().Uint64("client_id", client.id).Int("total_clients", total).Msg("websocket client disconnected")
	}
}

// removeLocked closes the client's queue and forgets it. h.mu must be held.
func (h *Hub) removeLocked(client *Client) {
	close(client.send)
	delete(h.clients, client)
	metrics.WSConnectionsActive.Dec()
}

// logGracefulShutdown closes all clients and logs the shutdown. The context
// error is not logged as an error since cancellation is the expected path.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// sortedClientsLocked returns clients in id order. h.mu must be held.
func (h *Hub) sortedClientsLocked() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// broadcastToClients delivers a message to every client in id order. A client
// whose queue is full is dropped rather than stalling the others.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var slow []*Client
	for _, client := range h.sortedClientsLocked() {
		select {
		case client.send <- message:
		default:
			slow = append(slow, client)
		}
	}

	for _, client := range slow {
		metrics.WSMessagesDropped.Inc()
		logging.Warn().Uint64("client_id", client.id).Msg("websocket client too slow, disconnecting")
		h.removeLocked(client)
	}
}

// closeAllClients closes all connected clients in id order.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.sortedClientsLocked() {
		h.removeLocked(client)
	}
}

// BroadcastJSON queues a message for all connected clients. It never blocks:
// when the queue is full the message is dropped and counted.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	message := Message{
		Type: messageType,
		Data: data,
	}

	select {
	case h.broadcast <- message:
	default:
		metrics.WSMessagesDropped.Inc()
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
