// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package metrics defines Sentinel's Prometheus collectors.
//
// All collectors are registered on the default registry through promauto and
// exposed by the ops server at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event source metrics
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_events_total",
			Help: "Total number of change events handed to the engine",
		},
		[]string{"type"}, // "edit", "log", "new", "categorize", ...
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_events_dropped_total",
			Help: "Total number of feed entries dropped before or during dispatch",
		},
		[]string{"reason"}, // "decode", "other_wiki", "suppressed_log", "unresolvable_page", "stale"
	)

	EventLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_event_lag_seconds",
			Help: "Age of the most recently handled change event",
		},
	)

	StreamReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_stream_reconnects_total",
			Help: "Total number of change stream reconnections",
		},
	)

	WatchdogResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_watchdog_resets_total",
			Help: "Total number of watchdog deadline resets",
		},
	)

	// Detection metrics
	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_reports_total",
			Help: "Total number of reports emitted",
		},
		[]string{"reason"},
	)

	BlockLogPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_block_log_polls_total",
			Help: "Total number of block-log scans",
		},
		[]string{"result"}, // "success", "error"
	)

	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_sink_errors_total",
			Help: "Total number of failed report deliveries",
		},
		[]string{"sink"},
	)

	// Reputation metrics
	ReputationChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_reputation_checks_total",
			Help: "Total number of reputation backend checks",
		},
		[]string{"backend", "result"}, // result: "proxy", "clean", "error", "rejected"
	)

	ReputationCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_reputation_check_duration_seconds",
			Help:    "Duration of reputation backend requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	ReputationCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_reputation_cache_total",
			Help: "Reputation cache lookups",
		},
		[]string{"backend", "result"}, // "hit", "miss"
	)

	// DNSBL metrics
	DNSBLLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_dnsbl_lookups_total",
			Help: "Total number of DNSBL lookups",
		},
		[]string{"result"}, // "dynamic", "static", "ipv6", "error"
	)

	// Site API metrics
	SiteAPIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_site_api_requests_total",
			Help: "Total number of MediaWiki API requests",
		},
		[]string{"action", "result"}, // result: "success", "retry", "error"
	)

	SiteAPIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_site_api_request_duration_seconds",
			Help:    "Duration of MediaWiki API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Ops surface metrics
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_websocket_connections_active",
			Help: "Current number of websocket clients subscribed to reports",
		},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_websocket_messages_dropped_total",
			Help: "Reports dropped because the hub or a client buffer was full",
		},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_ops_requests_total",
			Help: "Total number of ops HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

// RecordEvent records an event handed to the engine and its lag.
func RecordEvent(eventType string, lag time.Duration) {
	EventsTotal.WithLabelValues(eventType).Inc()
	EventLag.Set(lag.Seconds())
}

// RecordDrop records a dropped feed entry.
func RecordDrop(reason string) {
	EventsDropped.WithLabelValues(reason).Inc()
}

// RecordReport records an emitted report.
func RecordReport(reason string) {
	ReportsTotal.WithLabelValues(reason).Inc()
}

// RecordPoll records a block-log scan.
func RecordPoll(err error) {
	if err != nil {
		BlockLogPolls.WithLabelValues("error").Inc()
		return
	}
	BlockLogPolls.WithLabelValues("success").Inc()
}

// RecordReputationCheck records one backend call.
func RecordReputationCheck(backend, result string, duration time.Duration) {
	ReputationChecks.WithLabelValues(backend, result).Inc()
	if duration > 0 {
		ReputationCheckDuration.WithLabelValues(backend).Observe(duration.Seconds())
	}
}

// RecordCacheLookup records a reputation cache hit or miss.
func RecordCacheLookup(backend string, hit bool) {
	if hit {
		ReputationCache.WithLabelValues(backend, "hit").Inc()
		return
	}
	ReputationCache.WithLabelValues(backend, "miss").Inc()
}

// RecordSiteRequest records a MediaWiki API request.
func RecordSiteRequest(action, result string, duration time.Duration) {
	SiteAPIRequests.WithLabelValues(action, result).Inc()
	SiteAPIDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordBreakerTransition updates the state gauge and transition counter.
// States follow gobreaker's String() values: "closed", "half-open", "open".
func RecordBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// RecordAPIRequest records an ops HTTP request by route pattern.
func RecordAPIRequest(method, route string, status int) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
