// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sentinel/config.yaml",
	"/etc/sentinel/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

const defaultUserAgent = "Sentinel/1.0 (https://github.com/tomtom215/sentinel)"

// Default detection patterns for German-language edit summaries.
const (
	DefaultRollbackPattern = `Änderungen von \[\[(?:Special:Contributions|Spezial:Beiträge)/([^|]+)\|.+`
	DefaultUndoPattern     = `Änderung [0-9]+ von \[\[Special:Contribs/([^|]+)\|.+`
)

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Stream: StreamConfig{
			URL:                 "https://stream.wikimedia.org/v2/stream/recentchange",
			Wiki:                "dewiki",
			UserAgent:           defaultUserAgent,
			ConnectTimeout:      30 * time.Second,
			ReconnectMaxElapsed: 5 * time.Minute,
		},
		Site: SiteConfig{
			APIURL:            "https://de.wikipedia.org/w/api.php",
			UserAgent:         defaultUserAgent,
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
			MaxRetries:        3,
			MaxLag:            5,
		},
		Monitor: MonitorConfig{
			WatchdogTimeout:   600 * time.Second,
			MaxEventAge:       5 * time.Minute,
			PollInterval:      30 * time.Second,
			BlockExpiryWindow: 7 * 24 * time.Hour,
			VMPageNamespace:   4,
			VMPageTitle:       "Wikipedia:Vandalismusmeldung",
			ReportTemplate:    "Benutzer",
			RollbackPattern:   DefaultRollbackPattern,
			UndoPattern:       DefaultUndoPattern,
		},
		Reputation: ReputationConfig{
			Cheap: BackendConfig{
				URL:               "https://ip.teoh.io",
				Timeout:           10 * time.Second,
				RequestsPerMinute: 60,
				Burst:             5,
			},
			Strong: BackendConfig{
				URL:               "https://ipcheck.toolforge.org",
				Timeout:           30 * time.Second,
				RequestsPerMinute: 20,
				Burst:             2,
			},
			VPNListPath:             "",
			CacheTTL:                time.Hour,
			CachePath:               "",
			BreakerFailureThreshold: 5,
			BreakerTimeout:          2 * time.Minute,
		},
		DNSBL: DNSBLConfig{
			Zone:    "dul.dnsbl.sorbs.net",
			Timeout: 5 * time.Second,
		},
		Sinks: SinksConfig{
			Log: LogSinkConfig{Enabled: true},
			Webhook: WebhookSinkConfig{
				Enabled:   false,
				RateLimit: 0,
			},
			Hub: HubSinkConfig{Enabled: true},
			NATS: NATSSinkConfig{
				Enabled: false,
				URL:     "nats://127.0.0.1:4222",
				Subject: "sentinel.reports",
			},
		},
		Server: ServerConfig{
			Enabled:           true,
			Host:              "127.0.0.1",
			Port:              9477,
			Timeout:           10 * time.Second,
			RateLimitRequests: 60,
			RateLimitWindow:   time.Minute,
			AllowedOrigins:    []string{},
			TokenTTL:          24 * time.Hour,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf with layered sources:
//  1. Defaults: built-in defaults
//  2. Config File: optional YAML config file (if exists)
//  3. Environment Variables: override any mapped setting
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file path. An empty path skips the file layer.
func LoadFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processMapFields(k); err != nil {
		return nil, fmt.Errorf("failed to process map fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "" if none is found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// mapConfigPaths lists config paths that accept "k1=v1,k2=v2" strings from the environment.
var mapConfigPaths = []string{
	"sinks.webhook.headers",
}

// processMapFields converts comma-separated key=value strings to maps for known map fields.
// Env vars arrive as strings; YAML already yields maps.
func processMapFields(k *koanf.Koanf) error {
	for _, path := range mapConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parsed := make(map[string]interface{})
		for _, pair := range strings.Split(strVal, ",") {
			name, value, found := strings.Cut(pair, "=")
			name = strings.TrimSpace(name)
			if !found || name == "" {
				return fmt.Errorf("%s: malformed entry %q (want key=value)", path, pair)
			}
			parsed[name] = strings.TrimSpace(value)
		}

		// Delete first so the string value does not shadow the nested keys.
		k.Delete(path)
		if err := k.Set(path, parsed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
var envMappings = map[string]string{
	// Stream
	"stream_url":                   "stream.url",
	"stream_wiki":                  "stream.wiki",
	"stream_user_agent":            "stream.user_agent",
	"stream_connect_timeout":       "stream.connect_timeout",
	"stream_reconnect_max_elapsed": "stream.reconnect_max_elapsed",

	// Site API
	"site_api_url":             "site.api_url",
	"site_user_agent":          "site.user_agent",
	"site_timeout":             "site.timeout",
	"site_requests_per_second": "site.requests_per_second",
	"site_max_retries":         "site.max_retries",
	"site_max_lag":             "site.max_lag",

	// Monitor
	"watchdog_timeout":    "monitor.watchdog_timeout",
	"max_event_age":       "monitor.max_event_age",
	"poll_interval":       "monitor.poll_interval",
	"block_expiry_window": "monitor.block_expiry_window",
	"vm_page_namespace":   "monitor.vm_page_namespace",
	"vm_page_title":       "monitor.vm_page_title",
	"report_template":     "monitor.report_template",
	"rollback_pattern":    "monitor.rollback_pattern",
	"undo_pattern":        "monitor.undo_pattern",

	// Reputation
	"reputation_cheap_url":                  "reputation.cheap.url",
	"reputation_cheap_api_key":              "reputation.cheap.api_key",
	"reputation_cheap_timeout":              "reputation.cheap.timeout",
	"reputation_cheap_requests_per_minute":  "reputation.cheap.requests_per_minute",
	"reputation_strong_url":                 "reputation.strong.url",
	"reputation_strong_api_key":             "reputation.strong.api_key",
	"reputation_strong_timeout":             "reputation.strong.timeout",
	"reputation_strong_requests_per_minute": "reputation.strong.requests_per_minute",
	"reputation_vpn_list_path":              "reputation.vpn_list_path",
	"reputation_cache_ttl":                  "reputation.cache_ttl",
	"reputation_cache_path":                 "reputation.cache_path",
	"reputation_breaker_threshold":          "reputation.breaker_failure_threshold",
	"reputation_breaker_timeout":            "reputation.breaker_timeout",

	// DNSBL
	"dnsbl_zone":    "dnsbl.zone",
	"dnsbl_timeout": "dnsbl.timeout",

	// Sinks
	"sink_log_enabled":        "sinks.log.enabled",
	"sink_webhook_enabled":    "sinks.webhook.enabled",
	"sink_webhook_url":        "sinks.webhook.url",
	"sink_webhook_headers":    "sinks.webhook.headers",
	"sink_webhook_rate_limit": "sinks.webhook.rate_limit",
	"sink_hub_enabled":        "sinks.hub.enabled",
	"sink_nats_enabled":       "sinks.nats.enabled",
	"nats_url":                "sinks.nats.url",
	"nats_subject":            "sinks.nats.subject",

	// Ops server
	"http_enabled":       "server.enabled",
	"http_host":          "server.host",
	"http_port":          "server.port",
	"http_timeout":       "server.timeout",
	"rate_limit_reqs":    "server.rate_limit_requests",
	"rate_limit_window":  "server.rate_limit_window",
	"ws_allowed_origins": "server.allowed_origins",
	"ops_auth_secret":    "server.auth_secret",
	"ops_token_ttl":      "server.token_ttl",

	// Supervisor
	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - STREAM_WIKI -> stream.wiki
//   - WATCHDOG_TIMEOUT -> monitor.watchdog_timeout
//   - HTTP_PORT -> server.port
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// Unmapped keys are skipped so unrelated environment variables
	// cannot pollute the config.
	return ""
}
