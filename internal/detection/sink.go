// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package detection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/sentinel/internal/metrics"
)

// LogSink writes one line per report to the operator channel.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink writes JSON lines to w, or human-readable lines when console is
// set. A nil w writes to stdout.
func NewLogSink(w io.Writer, console bool) *LogSink {
	if w == nil {
		w = os.Stdout
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return &LogSink{logger: zerolog.New(w).With().Timestamp().Str("component", "reports").Logger()}
}

// Name implements Sink.
func (s *LogSink) Name() string {
	return "log"
}

// Send implements Sink. The message is the report's text line.
func (s *LogSink) Send(_ context.Context, r *Report) error {
	ev := s.logger.Info().
		Str("report_id", r.ID).
		Str("reason", string(r.Reason)).
		Str("actor", r.Actor).
		Bool("vpn", r.VPN).
		Int("score", r.Score)
	if r.Backend != "" {
		ev = ev.Str("backend", r.Backend)
	}
	if r.Reason == ReasonVMPageReport {
		ev = ev.Str("allocation", string(r.Allocation)).Int("previous_blocks", r.PreviousBlocks)
	}
	if r.CorrelationID != "" {
		ev = ev.Str("correlation_id", r.CorrelationID)
	}
	ev.Msg(r.Line())
	return nil
}

// MultiSink fans a report out to several sinks in order.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks, ignoring nil entries.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Name implements Sink.
func (m *MultiSink) Name() string {
	return "multi"
}

// Names lists the combined sinks.
func (m *MultiSink) Names() []string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return names
}

// Send delivers to every sink, even after a failure. The returned error joins
// all sink failures.
func (m *MultiSink) Send(ctx context.Context, r *Report) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Send(ctx, r); err != nil {
			metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
