// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

/*
Package services adapts Sentinel components to suture.Service.

Each wrapper translates a component's lifecycle (Run, ListenAndServe,
RunWithContext) into suture's context-aware Serve and names itself through
fmt.Stringer for supervisor log lines:

	MonitorService       detection.Engine.Run; errors terminate the tree
	WebSocketHubService  websocket.Hub.RunWithContext; restarted on failure
	HTTPServerService    *http.Server with graceful shutdown

Wrappers depend on small interfaces (Runner, ContextHub, HTTPServer) rather
than the concrete packages so they can be tested with doubles.
*/
package services
