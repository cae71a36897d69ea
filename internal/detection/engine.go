// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package detection

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
	"github.com/tomtom215/sentinel/internal/recentchanges"
	"github.com/tomtom215/sentinel/internal/watchdog"
)

// DefaultMaxEventAge is the age beyond which events are skipped.
const DefaultMaxEventAge = 5 * time.Minute

// EventSource yields change events. It returns an error only when no further
// event can be read.
type EventSource interface {
	Next(ctx context.Context) (*recentchanges.Event, error)
}

// VMPage identifies the vandalism-report page.
type VMPage struct {
	Namespace int
	Title     string
}

// EngineConfig configures the dispatcher.
type EngineConfig struct {
	VMPage      VMPage
	MaxEventAge time.Duration
}

// Components are the collaborators of an Engine.
type Components struct {
	Source   EventSource
	Watchdog *watchdog.Watchdog
	VMPage   *VMPageAnalyzer
	Rollback *RollbackDetector
	Poller   *BlockLogPoller
	Reporter *Reporter
}

// Engine dispatches change events to the detectors.
type Engine struct {
	cfg      EngineConfig
	source   EventSource
	watchdog *watchdog.Watchdog
	vm       *VMPageAnalyzer
	rollback *RollbackDetector
	poller   *BlockLogPoller
	out      *Reporter
	now      func() time.Time

	startedAt atomic.Int64 // unix nanos
	lastEvent atomic.Int64 // unix nanos
	processed atomic.Int64
	skipped   atomic.Int64
}

// NewEngine creates an engine. A nil watchdog disables stall detection.
func NewEngine(cfg EngineConfig, c Components) *Engine {
	if cfg.MaxEventAge <= 0 {
		cfg.MaxEventAge = DefaultMaxEventAge
	}
	wd := c.Watchdog
	if wd == nil {
		wd = watchdog.New(0)
	}
	out := c.Reporter
	if out == nil {
		out = NewReporter(nil)
	}
	return &Engine{
		cfg:      cfg,
		source:   c.Source,
		watchdog: wd,
		vm:       c.VMPage,
		rollback: c.Rollback,
		poller:   c.Poller,
		out:      out,
		now:      time.Now,
	}
}

// Run reads events until the source or a detector fails. Every error it
// returns is fatal for the monitor: ErrStalled (wrapped) when the watchdog
// fired, ErrFeedEnded when the feed was exhausted, or a detector error.
func (e *Engine) Run(ctx context.Context) error {
	if !e.watchdog.Enabled() {
		logging.Warn().Msg("Watchdog disabled, a stalled change feed will not be detected")
	}

	wctx := e.watchdog.Arm(ctx)
	defer e.watchdog.Stop()

	e.startedAt.Store(e.now().UnixNano())
	start := logging.Info().
		Str("vm_page", e.cfg.VMPage.Title).
		Dur("watchdog_timeout", e.watchdog.Timeout())
	if e.vm != nil {
		start = start.Str("report_template", e.vm.template.Name())
	}
	start.Msg("Monitoring recent changes")

	for {
		ev, err := e.source.Next(wctx)
		if err != nil {
			switch {
			case errors.Is(err, recentchanges.ErrFeedEnded):
				logging.Error().Msg("Change feed ended, this should not happen")
			case errors.Is(err, watchdog.ErrStalled):
				logging.Error().Dur("timeout", e.watchdog.Timeout()).Msg("No change received within watchdog timeout")
			}
			return err
		}

		ectx := logging.ContextWithNewCorrelationID(wctx)
		if err := e.HandleEvent(ectx, ev); err != nil {
			// Surface a watchdog expiry that interrupted a detector call.
			if cause := context.Cause(wctx); cause != nil && !errors.Is(err, cause) {
				err = fmt.Errorf("%w (%w)", err, cause)
			}
			return err
		}
	}
}

// HandleEvent runs the detectors for one event in a fixed order: watchdog
// reset, age check, VM page analysis and rollback inspection for edits, then
// the block-log poll for every event.
func (e *Engine) HandleEvent(ctx context.Context, ev *recentchanges.Event) error {
	e.watchdog.Reset()

	now := e.now()
	e.processed.Add(1)
	e.lastEvent.Store(now.UnixNano())

	age := now.Sub(ev.Timestamp)
	metrics.RecordEvent(ev.Type, age)

	log := logging.Ctx(ctx)
	if age > e.cfg.MaxEventAge {
		e.skipped.Add(1)
		metrics.RecordDrop("stale")
		log.Warn().Dur("age", age).Str("title", ev.Title).Msg("Change too old")
		return nil
	}

	if ev.IsEdit() {
		if e.isVMPage(ev) && e.vm != nil {
			log.Debug().Int64("old", ev.Revision.Old).Int64("new", ev.Revision.New).Msg("VM page edited")
			if _, err := e.vm.Analyze(ctx, ev.Revision.Old, ev.Revision.New); err != nil {
				return fmt.Errorf("analyze VM page revision %d: %w", ev.Revision.New, err)
			}
		}
		if e.rollback != nil {
			e.rollback.Inspect(ctx, ev.Comment)
		}
	}

	if e.poller != nil {
		if err := e.poller.PollIfDue(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) isVMPage(ev *recentchanges.Event) bool {
	return ev.Namespace == e.cfg.VMPage.Namespace && ev.Title == e.cfg.VMPage.Title && !ev.Bot
}

// Status is a point-in-time view of the engine for the ops server.
type Status struct {
	StartedAt        *time.Time `json:"started_at,omitempty"`
	LastEventAt      *time.Time `json:"last_event_at,omitempty"`
	WatchdogEnabled  bool       `json:"watchdog_enabled"`
	WatchdogDeadline *time.Time `json:"watchdog_deadline,omitempty"`
	WatchdogFired    bool       `json:"watchdog_fired"`
	PollCursor       *time.Time `json:"poll_cursor,omitempty"`
	EventsProcessed  int64      `json:"events_processed"`
	EventsSkipped    int64      `json:"events_skipped"`
	ReportsEmitted   int64      `json:"reports_emitted"`
}

// Status returns the current engine status. It is safe to call from any goroutine.
func (e *Engine) Status() Status {
	s := Status{
		StartedAt:       unixTime(e.startedAt.Load()),
		LastEventAt:     unixTime(e.lastEvent.Load()),
		WatchdogEnabled: e.watchdog.Enabled(),
		WatchdogFired:   e.watchdog.Fired(),
		EventsProcessed: e.processed.Load(),
		EventsSkipped:   e.skipped.Load(),
		ReportsEmitted:  e.out.Emitted(),
	}
	if deadline, ok := e.watchdog.Deadline(); ok {
		d := deadline.UTC()
		s.WatchdogDeadline = &d
	}
	if e.poller != nil {
		c := e.poller.Cursor().UTC()
		s.PollCursor = &c
	}
	return s
}

func unixTime(nanos int64) *time.Time {
	if nanos == 0 {
		return nil
	}
	t := time.Unix(0, nanos).UTC()
	return &t
}
