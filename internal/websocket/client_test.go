// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// serveHub upgrades every request and registers the connection with hub.
func serveHub(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		client := NewClient(hub, conn)
		hub.Register <- client
		client.Start()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	a := NewClient(hub, nil)
	b := NewClient(hub, nil)
	if b.ID() <= a.ID() {
		t.Errorf("ids not increasing: %d then %d", a.ID(), b.ID())
	}
	if cap(a.send) != clientBuffer {
		t.Errorf("send capacity = %d, want %d", cap(a.send), clientBuffer)
	}
}

func TestClient_ReceivesBroadcast(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, serveHub(t, hub))
	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "registration")

	hub.BroadcastJSON(MessageTypeReport, map[string]interface{}{"actor": "192.0.2.7"})

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeReport {
		t.Fatalf("type = %q", msg.Type)
	}
	if data, _ := msg.Data.(map[string]interface{}); data["actor"] != "192.0.2.7" {
		t.Errorf("data = %#v", msg.Data)
	}
}

func TestClient_PingPong(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, serveHub(t, hub))

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != MessageTypePong {
		t.Errorf("type = %q, want pong", msg.Type)
	}
}

func TestClient_DisconnectUnregisters(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, serveHub(t, hub))
	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "registration")

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	_ = conn.Close()

	waitFor(t, func() bool { return hub.GetClientCount() == 0 }, "unregistration")
}

func TestClient_ClosedByHub(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, serveHub(t, hub))
	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "registration")

	hub.closeAllClients()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) {
		t.Errorf("read after hub close = %v, want close frame", err)
	}
}
