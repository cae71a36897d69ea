// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

/*
Package supervisor runs Sentinel's long-lived services under suture v4.

	RootSupervisor ("sentinel")
	├── MonitorSupervisor ("monitor-layer")
	│   └── MonitorService (detection.Engine.Run)
	├── MessagingSupervisor ("messaging-layer")
	│   └── WebSocketHubService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (ops endpoints)

The messaging and API layers restart independently with backoff. The monitor
is different: any error from Engine.Run (feed ended, watchdog stall, detector
failure) is fatal, so MonitorService returns suture.ErrTerminateSupervisorTree
and the whole tree stops. main then reads MonitorService.Err and exits with
status 1.

Supervisor events (restarts, backoff, timeouts) are logged through sutureslog
into the zerolog stream via logging.NewSlogLogger.
*/
package supervisor
