// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package main

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/sentinel/internal/api"
	"github.com/tomtom215/sentinel/internal/auth"
	"github.com/tomtom215/sentinel/internal/cache"
	"github.com/tomtom215/sentinel/internal/config"
	"github.com/tomtom215/sentinel/internal/detection"
	"github.com/tomtom215/sentinel/internal/dnsbl"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/mediawiki"
	"github.com/tomtom215/sentinel/internal/recentchanges"
	"github.com/tomtom215/sentinel/internal/reputation"
	"github.com/tomtom215/sentinel/internal/watchdog"
	"github.com/tomtom215/sentinel/internal/websocket"
)

// app holds the wired components of a monitor run.
type app struct {
	engine *detection.Engine
	hub    *websocket.Hub
	server *http.Server
	sinks  *detection.MultiSink

	closers []io.Closer
}

// Close releases the feed connection and sink clients.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			logging.Warn().Err(err).Msg("Close failed")
		}
	}
}

// detectors are the shared collaborators of the run and check-vm commands.
type detectors struct {
	site     *mediawiki.Client
	rep      *reputation.Client
	reporter *detection.Reporter
	vm       *detection.VMPageAnalyzer

	closers []io.Closer
}

func buildApp(cfg *config.Config, stdout io.Writer) (*app, error) {
	a := &app{}

	if cfg.Server.Enabled && cfg.Sinks.Hub.Enabled {
		a.hub = websocket.NewHub()
	}

	sinks, closers, err := buildSinks(cfg, stdout, a.hub)
	if err != nil {
		return nil, err
	}
	a.sinks = sinks
	a.closers = append(a.closers, closers...)

	d, err := buildDetectors(cfg, sinks)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, d.closers...)

	patterns, err := detection.NewRevertPatterns(cfg.Monitor.RollbackPattern, cfg.Monitor.UndoPattern)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("revert patterns: %w", err)
	}

	feed := recentchanges.NewStreamFeed(recentchanges.StreamConfig{
		URL:                 cfg.Stream.URL,
		UserAgent:           cfg.Stream.UserAgent,
		ConnectTimeout:      cfg.Stream.ConnectTimeout,
		ReconnectMaxElapsed: cfg.Stream.ReconnectMaxElapsed,
	}, nil)
	a.closers = append(a.closers, feed)

	a.engine = detection.NewEngine(detection.EngineConfig{
		VMPage: detection.VMPage{
			Namespace: cfg.Monitor.VMPageNamespace,
			Title:     cfg.Monitor.VMPageTitle,
		},
		MaxEventAge: cfg.Monitor.MaxEventAge,
	}, detection.Components{
		Source:   recentchanges.NewFaultTolerantSource(feed, cfg.Stream.Wiki),
		Watchdog: watchdog.New(cfg.Monitor.WatchdogTimeout),
		VMPage:   d.vm,
		Rollback: detection.NewRollbackDetector(patterns, d.rep, d.reporter),
		Poller: detection.NewBlockLogPoller(d.site, d.rep, d.reporter,
			cfg.Monitor.PollInterval, cfg.Monitor.BlockExpiryWindow, time.Now()),
		Reporter: d.reporter,
	})

	if cfg.Server.Enabled {
		srv, err := buildServer(cfg, a.engine, a.hub)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.server = srv
	}

	return a, nil
}

// buildSinks always includes the log sink on stdout, since stdout is the
// operator channel. Optional sinks that fail to initialize are fatal.
func buildSinks(cfg *config.Config, stdout io.Writer, hub *websocket.Hub) (*detection.MultiSink, []io.Closer, error) {
	sinks := []detection.Sink{detection.NewLogSink(stdout, cfg.Logging.Format == "console")}
	var closers []io.Closer

	if cfg.Sinks.Webhook.Enabled {
		sinks = append(sinks, detection.NewWebhookSink(detection.WebhookConfig{
			URL:       cfg.Sinks.Webhook.URL,
			Headers:   cfg.Sinks.Webhook.Headers,
			RateLimit: cfg.Sinks.Webhook.RateLimit,
		}))
	}
	if hub != nil {
		sinks = append(sinks, detection.NewHubSink(hub))
	}
	if cfg.Sinks.NATS.Enabled {
		ns, err := detection.NewNATSSink(cfg.Sinks.NATS.URL, cfg.Sinks.NATS.Subject)
		if err != nil {
			return nil, nil, fmt.Errorf("nats sink: %w", err)
		}
		sinks = append(sinks, ns)
		closers = append(closers, ns)
	}

	return detection.NewMultiSink(sinks...), closers, nil
}

func buildDetectors(cfg *config.Config, sink detection.Sink) (*detectors, error) {
	site := mediawiki.New(mediawiki.Config{
		APIURL:            cfg.Site.APIURL,
		UserAgent:         cfg.Site.UserAgent,
		Timeout:           cfg.Site.Timeout,
		RequestsPerSecond: cfg.Site.RequestsPerSecond,
		MaxRetries:        cfg.Site.MaxRetries,
		MaxLag:            cfg.Site.MaxLag,
		BreakerFailures:   cfg.Reputation.BreakerFailureThreshold,
		BreakerTimeout:    cfg.Reputation.BreakerTimeout,
	}, nil)

	template, err := detection.NewReportTemplate(cfg.Monitor.ReportTemplate)
	if err != nil {
		return nil, fmt.Errorf("report template: %w", err)
	}

	rep, closers, err := buildReputation(&cfg.Reputation, cfg.Site.UserAgent)
	if err != nil {
		return nil, err
	}

	reporter := detection.NewReporter(sink)
	classifier := dnsbl.New(nil, cfg.DNSBL.Zone, cfg.DNSBL.Timeout)
	logging.Info().Str("zone", classifier.Zone()).Dur("timeout", cfg.DNSBL.Timeout).Msg("DNSBL classifier configured")

	return &detectors{
		site:     site,
		rep:      rep,
		reporter: reporter,
		vm: detection.NewVMPageAnalyzer(site, rep, classifier,
			detection.NewBlockCounter(site), template, reporter),
		closers: closers,
	}, nil
}

// buildReputation returns the closer of the persistent result store, if any.
func buildReputation(cfg *config.ReputationConfig, userAgent string) (*reputation.Client, []io.Closer, error) {
	var list *reputation.VPNList
	if cfg.VPNListPath != "" {
		l, err := reputation.LoadVPNListFile(cfg.VPNListPath)
		if err != nil {
			return nil, nil, fmt.Errorf("vpn list: %w", err)
		}
		list = l
		logging.Info().Str("path", cfg.VPNListPath).Msg("Loaded local VPN list")
	}

	var store cache.Store[reputation.Result]
	var closers []io.Closer
	if cfg.CachePath != "" {
		pc, err := cache.OpenPersistent[reputation.Result](cfg.CachePath, "reputation/", cfg.CacheTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("reputation cache: %w", err)
		}
		store = pc
		closers = append(closers, pc)
	}

	cheap := reputation.NewTeohBackend(cfg.Cheap.URL, userAgent, cfg.Cheap.Timeout, nil)
	strong := reputation.NewIPCheckBackend(cfg.Strong.URL, cfg.Strong.APIKey, userAgent, cfg.Strong.Timeout, nil)

	return reputation.NewClient(cheap, strong, reputation.Options{
		Cheap:           reputation.Quota{RequestsPerMinute: cfg.Cheap.RequestsPerMinute, Burst: cfg.Cheap.Burst},
		Strong:          reputation.Quota{RequestsPerMinute: cfg.Strong.RequestsPerMinute, Burst: cfg.Strong.Burst},
		CacheTTL:        cfg.CacheTTL,
		BreakerFailures: cfg.BreakerFailureThreshold,
		BreakerTimeout:  cfg.BreakerTimeout,
		VPNList:         list,
		Store:           store,
	}), closers, nil
}

// buildServer assembles the ops HTTP server. Auth is enabled only when a
// secret is configured.
func buildServer(cfg *config.Config, status api.StatusProvider, hub *websocket.Hub) (*http.Server, error) {
	var authMW *auth.Middleware
	if cfg.Server.AuthSecret != "" {
		jm, err := auth.NewJWTManager(cfg.Server.AuthSecret, cfg.Server.TokenTTL)
		if err != nil {
			return nil, fmt.Errorf("ops auth: %w", err)
		}
		authMW = auth.NewMiddleware(jm)
	}

	mw := api.NewMiddleware(&api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitRequests:  cfg.Server.RateLimitRequests,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
	})
	router := api.NewRouter(api.NewHandler(status, hub, cfg.Server.AllowedOrigins), mw, authMW)

	return &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: cfg.Server.Timeout,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: /ws connections are long-lived.
	}, nil
}
