// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

/*
Package websocket streams reports to operators watching the ops server.

The hub-and-spoke design keeps the monitor loop independent of slow
browsers: reporters enqueue with BroadcastJSON (never blocking), the Hub
goroutine fans messages out, and every Client owns a bounded queue drained by
its writePump.

	Reporter ──BroadcastJSON──> Hub ──> Client1 (readPump / writePump)
	                                ──> Client2
	                                ──> ...

A client whose queue is full is disconnected; a full hub queue drops the
message. Both cases increment sentinel_websocket_messages_dropped_total.

Message types:

  - report: a detection.Report as JSON
  - ping / pong: application-level keepalive initiated by the client

The hub runs under the supervisor tree via RunWithContext and closes every
client on shutdown.
*/
package websocket
