// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package detection correlates recent-changes events with IP reputation and
// emits reports for operators.
//
// Detection Architecture:
//
//	Event -> Engine.HandleEvent -> VMPageAnalyzer   -> Report -> Sink(s)
//	                |           -> RollbackDetector      |
//	                |           -> BlockLogPoller        v
//	                v                              Log/Webhook/Hub/NATS
//	          Watchdog.Reset
//
// Three detectors run for every event, in a fixed order:
//   - VM page: addresses newly reported on the vandalism-report page get a
//     strong reputation check, a DNSBL classification and a block count.
//   - Rollback: the reverted editor of a rollback or undo is pre-screened
//     with the cheap backend and confirmed with the strong one.
//   - Block log: at most every PollInterval, new short blocks of IPs are
//     checked with the strong backend.
//
// Errors from the VM page analyzer and the block-log poller are fatal and end
// Engine.Run. Rollback check failures are logged and ignored. Sink failures
// are logged per sink and never fatal.
package detection
