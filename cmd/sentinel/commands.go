// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/tomtom215/sentinel/internal/auth"
	"github.com/tomtom215/sentinel/internal/config"
	"github.com/tomtom215/sentinel/internal/detection"
	"github.com/tomtom215/sentinel/internal/logging"
)

// checkVM runs the VM page analysis for one revision pair, printing reports
// to stdout only.
func checkVM(ctx context.Context, cfg *config.Config, oldRev, newRev int64, stdout io.Writer) error {
	sink := detection.NewLogSink(stdout, cfg.Logging.Format == "console")
	d, err := buildDetectors(cfg, sink)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range d.closers {
			_ = c.Close()
		}
	}()

	ctx = logging.ContextWithNewCorrelationID(ctx)
	reports, err := d.vm.Analyze(ctx, oldRev, newRev)
	if err != nil {
		return fmt.Errorf("analyze revisions %d..%d: %w", oldRev, newRev, err)
	}
	logging.Ctx(ctx).Info().Int("reports", len(reports)).Msg("VM page check finished")
	return nil
}

// mintToken signs an ops API token for operator.
func mintToken(cfg *config.Config, operator string) (string, error) {
	if cfg.Server.AuthSecret == "" {
		return "", fmt.Errorf("server.auth_secret is not set; ops auth is disabled")
	}
	jm, err := auth.NewJWTManager(cfg.Server.AuthSecret, cfg.Server.TokenTTL)
	if err != nil {
		return "", err
	}
	return jm.GenerateToken(operator)
}
