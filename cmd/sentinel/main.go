// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/tomtom215/sentinel/internal/config"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/supervisor"
	"github.com/tomtom215/sentinel/internal/supervisor/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const usage = `usage: sentinel [-config PATH] [run | check-vm OLD NEW | token OPERATOR | version]`

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

// realMain parses arguments, runs the selected command and returns the exit status.
func realMain(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sentinel", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the YAML config file")
	fs.Usage = func() { fmt.Fprintln(stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cmd, cmdArgs := "run", fs.Args()
	if len(cmdArgs) > 0 {
		cmd, cmdArgs = cmdArgs[0], cmdArgs[1:]
	}

	if cmd == "version" {
		fmt.Fprintln(stdout, version)
		return 0
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "sentinel: %v\n", err)
		return 1
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "run":
		if len(cmdArgs) != 0 {
			fmt.Fprintln(stderr, usage)
			return 2
		}
		return run(ctx, cfg, stdout)

	case "check-vm":
		if len(cmdArgs) != 2 {
			fmt.Fprintln(stderr, usage)
			return 2
		}
		oldRev, err1 := strconv.ParseInt(cmdArgs[0], 10, 64)
		newRev, err2 := strconv.ParseInt(cmdArgs[1], 10, 64)
		if err := errors.Join(err1, err2); err != nil {
			fmt.Fprintf(stderr, "sentinel: invalid revision id: %v\n", err)
			return 2
		}
		if err := checkVM(ctx, cfg, oldRev, newRev, stdout); err != nil {
			logging.Error().Err(err).Int64("old_rev", oldRev).Int64("new_rev", newRev).Msg("VM page check failed")
			return 1
		}
		return 0

	case "token":
		if len(cmdArgs) != 1 {
			fmt.Fprintln(stderr, usage)
			return 2
		}
		token, err := mintToken(cfg, cmdArgs[0])
		if err != nil {
			fmt.Fprintf(stderr, "sentinel: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, token)
		return 0

	default:
		fmt.Fprintln(stderr, usage)
		return 2
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// run starts the supervisor tree and blocks until it stops.
func run(ctx context.Context, cfg *config.Config, stdout io.Writer) int {
	logging.Info().
		Str("version", version).
		Str("wiki", cfg.Stream.Wiki).
		Str("site_api", cfg.Site.APIURL).
		Msg("Starting Sentinel with supervisor tree")

	app, err := buildApp(cfg, stdout)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to initialize")
		return 1
	}
	defer app.Close()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureDecay:     cfg.Supervisor.FailureDecay,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create supervisor tree")
		return 1
	}

	monitor := services.NewMonitorService(app.engine)
	tree.AddMonitorService(monitor)
	if app.hub != nil {
		tree.AddMessagingService(services.NewWebSocketHubService(app.hub))
	}
	if app.server != nil {
		tree.AddAPIService(services.NewHTTPServerService(app.server, cfg.Supervisor.ShutdownTimeout))
		logging.Info().Str("addr", app.server.Addr).Bool("auth", cfg.Server.AuthSecret != "").Msg("Ops HTTP server enabled")
	}
	logging.Info().Strs("sinks", app.sinks.Names()).Msg("Report sinks configured")

	err = tree.Serve(ctx)

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	if monitorErr := monitor.Err(); monitorErr != nil {
		logging.Error().Err(monitorErr).Msg("Sentinel stopped after a fatal monitor error")
		return 1
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
		return 1
	}

	logging.Info().Msg("Sentinel stopped gracefully")
	return 0
}
