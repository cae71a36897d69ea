// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package config loads Sentinel's configuration.
//
// Configuration Loading Order (Koanf v2), highest priority last:
//  1. Defaults: built-in values from defaultConfig()
//  2. Config File: optional YAML file (CONFIG_PATH, config.yaml, /etc/sentinel/config.yaml)
//  3. Environment Variables: explicit mapping table in envTransformFunc
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"time"
)

// Config holds all application configuration.
type Config struct {
	Stream     StreamConfig     `koanf:"stream"`
	Site       SiteConfig       `koanf:"site"`
	Monitor    MonitorConfig    `koanf:"monitor"`
	Reputation ReputationConfig `koanf:"reputation"`
	DNSBL      DNSBLConfig      `koanf:"dnsbl"`
	Sinks      SinksConfig      `koanf:"sinks"`
	Server     ServerConfig     `koanf:"server"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// StreamConfig configures the recent-changes event feed.
type StreamConfig struct {
	// URL is the server-sent-events endpoint of the recentchange stream.
	URL string `koanf:"url" validate:"required,url"`

	// Wiki is the database name entries must carry to be processed (e.g. dewiki).
	Wiki string `koanf:"wiki" validate:"required"`

	// UserAgent is sent with every stream request. Wikimedia requires a contact address.
	UserAgent string `koanf:"user_agent" validate:"required"`

	// ConnectTimeout bounds establishing the stream connection (not reading from it).
	ConnectTimeout time.Duration `koanf:"connect_timeout" validate:"gt=0"`

	// ReconnectMaxElapsed bounds the retries after the stream connection drops.
	// EventStreams closes long-lived connections routinely.
	ReconnectMaxElapsed time.Duration `koanf:"reconnect_max_elapsed" validate:"gt=0"`
}

// SiteConfig configures the MediaWiki action API client.
type SiteConfig struct {
	APIURL            string        `koanf:"api_url" validate:"required,url"`
	UserAgent         string        `koanf:"user_agent" validate:"required"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gt=0"`
	MaxRetries        int           `koanf:"max_retries" validate:"gte=0,lte=10"`

	// MaxLag is passed as the maxlag parameter; 0 disables it.
	MaxLag int `koanf:"max_lag" validate:"gte=0"`
}

// MonitorConfig holds the detection constants.
type MonitorConfig struct {
	// WatchdogTimeout aborts the monitor when no event arrived for this long.
	// 0 disables the watchdog.
	WatchdogTimeout time.Duration `koanf:"watchdog_timeout" validate:"gte=0"`

	// MaxEventAge discards events older than this.
	MaxEventAge time.Duration `koanf:"max_event_age" validate:"gt=0"`

	// PollInterval is the minimum time between two block-log scans.
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`

	// BlockExpiryWindow limits the poller to blocks expiring sooner than now + window.
	BlockExpiryWindow time.Duration `koanf:"block_expiry_window" validate:"gt=0"`

	VMPageNamespace int    `koanf:"vm_page_namespace" validate:"gte=0"`
	VMPageTitle     string `koanf:"vm_page_title" validate:"required"`
	ReportTemplate  string `koanf:"report_template" validate:"required"`

	// RollbackPattern and UndoPattern must each contain exactly one capture group.
	RollbackPattern string `koanf:"rollback_pattern" validate:"required"`
	UndoPattern     string `koanf:"undo_pattern" validate:"required"`
}

// BackendConfig configures one reputation backend.
type BackendConfig struct {
	URL               string        `koanf:"url" validate:"required,url"`
	APIKey            string        `koanf:"api_key"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	RequestsPerMinute float64       `koanf:"requests_per_minute" validate:"gt=0"`
	Burst             int           `koanf:"burst" validate:"gte=1"`
}

// ReputationConfig configures the two-stage reputation cascade.
type ReputationConfig struct {
	// Cheap is queried first for rollback targets.
	Cheap BackendConfig `koanf:"cheap"`

	// Strong is the costlier, more accurate backend.
	Strong BackendConfig `koanf:"strong"`

	// VPNListPath optionally points to a gluetun servers.json file. Listed
	// addresses are flagged locally without querying the cheap backend.
	VPNListPath string `koanf:"vpn_list_path" validate:"omitempty,file"`

	CacheTTL time.Duration `koanf:"cache_ttl" validate:"gte=0"`

	// CachePath, when set, keeps results in a BadgerDB directory so they
	// survive restarts. The TTL is CacheTTL, which must then be positive.
	CachePath string `koanf:"cache_path"`

	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold" validate:"gte=1"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// DNSBLConfig configures the dynamic-IP classifier.
type DNSBLConfig struct {
	Zone    string        `koanf:"zone" validate:"required,hostname"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// SinksConfig selects where reports go.
type SinksConfig struct {
	Log     LogSinkConfig     `koanf:"log"`
	Webhook WebhookSinkConfig `koanf:"webhook"`
	Hub     HubSinkConfig     `koanf:"hub"`
	NATS    NATSSinkConfig    `koanf:"nats"`
}

// LogSinkConfig writes report lines to the operator channel (stdout).
type LogSinkConfig struct {
	Enabled bool `koanf:"enabled"`
}

// WebhookSinkConfig posts reports as JSON.
type WebhookSinkConfig struct {
	Enabled   bool              `koanf:"enabled"`
	URL       string            `koanf:"url" validate:"required_if=Enabled true,omitempty,url"`
	Headers   map[string]string `koanf:"headers"`
	RateLimit time.Duration     `koanf:"rate_limit" validate:"gte=0"`
}

// HubSinkConfig broadcasts reports to websocket clients of the ops server.
type HubSinkConfig struct {
	Enabled bool `koanf:"enabled"`
}

// NATSSinkConfig publishes reports to a NATS subject (requires -tags nats).
type NATSSinkConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url" validate:"required_if=Enabled true"`
	Subject string `koanf:"subject" validate:"required_if=Enabled true"`
}

// ServerConfig configures the ops HTTP server (health, status, metrics, websocket).
type ServerConfig struct {
	Enabled           bool          `koanf:"enabled"`
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`

	// AllowedOrigins lists browser origins accepted on /ws in addition to the
	// server's own host. Requests without an Origin header are accepted.
	AllowedOrigins []string `koanf:"allowed_origins"`

	// AuthSecret enables bearer-token auth on /status and /ws when set.
	// Tokens are HS256 JWTs minted with "sentinel token".
	AuthSecret string        `koanf:"auth_secret" validate:"omitempty,min=32"`
	TokenTTL   time.Duration `koanf:"token_ttl" validate:"gt=0"`
}

// SupervisorConfig configures the suture tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gt=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format" validate:"oneof=json console"`

	Caller bool `koanf:"caller"`
}
