// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

/*
Package api serves Sentinel's ops HTTP endpoints using the Chi router.

Routes:

	GET /healthz   liveness, always 200 while the process runs
	GET /readyz    503 until the monitor has started and after the watchdog fired
	GET /status    engine status (watchdog deadline, poll cursor, counters)
	GET /metrics   Prometheus exposition
	GET /ws        websocket feed of reports

/status and /ws require a bearer token when server.auth_secret is set. All
routes share an IP-keyed rate limit (go-chi/httprate); /status carries CORS
headers for the configured origins so a dashboard can poll it.
*/
package api
