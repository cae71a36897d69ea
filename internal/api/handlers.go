// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/sentinel/internal/detection"
	"github.com/tomtom215/sentinel/internal/logging"
	ws "github.com/tomtom215/sentinel/internal/websocket"
)

// StatusProvider exposes the monitor state. Implemented by *detection.Engine.
type StatusProvider interface {
	Status() detection.Status
}

// Handler serves the ops endpoints.
type Handler struct {
	status         StatusProvider
	wsHub          *ws.Hub
	allowedOrigins []string
	startTime      time.Time
}

// NewHandler creates the handler. A nil hub disables /ws.
func NewHandler(status StatusProvider, hub *ws.Hub, allowedOrigins []string) *Handler {
	return &Handler{
		status:         status,
		wsHub:          hub,
		allowedOrigins: allowedOrigins,
		startTime:      time.Now(),
	}
}

// StatusResponse is the payload of /status.
type StatusResponse struct {
	detection.Status
	UptimeSeconds float64 `json:"uptime_seconds"`
	WSClients     int     `json:"websocket_clients"`
}

// HealthLive reports that the process is alive.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, "success", map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady returns 503 until the monitor loop has started and once the
// watchdog has fired.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	st := h.status.Status()
	started := st.StartedAt != nil
	ready := started && !st.WatchdogFired

	code, text := http.StatusOK, "ready"
	if !ready {
		code, text = http.StatusServiceUnavailable, "not_ready"
	}
	respondData(w, r, code, text, map[string]interface{}{
		"monitor_started": started,
		"watchdog_fired":  st.WatchdogFired,
		"ready_to_serve":  ready,
	})
}

// Status returns the engine status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:        h.status.Status(),
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}
	if h.wsHub != nil {
		resp.WSClients = h.wsHub.GetClientCount()
	}
	respondData(w, r, http.StatusOK, "success", resp)
}

// WebSocket upgrades the connection and subscribes it to the report feed.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		respondError(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "WebSocket feed disabled", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	h.wsHub.Register <- client
	client.Start()
}

func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts non-browser clients (no Origin), same-host
// origins and the configured allow list.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}

	logging.Ctx(r.Context()).Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
