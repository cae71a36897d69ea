// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

/*
Sentinel watches a wiki's recent-changes feed for signs of proxy and VPN abuse
and reports suspicious IP addresses to operators.

# Commands

	sentinel [run]              monitor until a fatal error or a signal
	sentinel check-vm OLD NEW   analyze two revisions of the VM page and exit
	sentinel token OPERATOR     print a bearer token for the ops API
	sentinel version            print the build version

Common flags:

	-config PATH   config file (default: CONFIG_PATH, config.yaml, /etc/sentinel/config.yaml)

# Supervision

	RootSupervisor ("sentinel")
	├── MonitorSupervisor ("monitor-layer")
	│   └── change-monitor (detection.Engine)
	├── MessagingSupervisor ("messaging-layer")
	│   └── websocket-hub
	└── APISupervisor ("api-layer")
	    └── ops-http-server (/healthz, /readyz, /status, /metrics, /ws)

The monitor is fatal on error: a stalled or ended change feed, or a failing
VM page or block-log check, terminates the tree and the process exits with
status 1 so the service manager restarts it. SIGINT and SIGTERM stop the tree
gracefully with status 0.

# Report Sinks

Every report is written to stdout by the log sink. The webhook, websocket hub
and NATS sinks are optional; NATS requires building with -tags nats.

# Configuration

Layered with koanf (defaults, YAML file, environment). Frequently used
environment variables:

	STREAM_WIKI=dewiki
	SITE_API_URL=https://de.wikipedia.org/w/api.php
	WATCHDOG_TIMEOUT=600s
	REPUTATION_STRONG_API_KEY=...
	SINK_WEBHOOK_ENABLED=true
	SINK_WEBHOOK_URL=https://hooks.example.org/sentinel
	HTTP_PORT=9477
	OPS_AUTH_SECRET=<32+ chars>
	LOG_LEVEL=info
	LOG_FORMAT=json
*/
package main
