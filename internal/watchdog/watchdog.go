// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package watchdog aborts the monitor when the change feed goes quiet.
//
// A Watchdog holds a single deadline. Arm derives a context that is cancelled
// with cause ErrStalled once the deadline passes; every received event calls
// Reset to push the deadline out again. Blocking feed reads take the armed
// context, so a stalled connection unblocks with an error instead of hanging.
//
//	wd := watchdog.New(10 * time.Minute)
//	ctx = wd.Arm(ctx)
//	defer wd.Stop()
//	for {
//	    ev, err := source.Next(ctx) // returns ErrStalled via context.Cause
//	    ...
//	    wd.Reset()
//	}
package watchdog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/sentinel/internal/metrics"
)

// ErrStalled is the cancellation cause when no event arrived within the timeout.
var ErrStalled = errors.New("watchdog: no change event received within timeout")

// Watchdog is a resettable deadline bound to a context.
// A zero timeout disables it: Arm returns its parent and nothing ever fires.
type Watchdog struct {
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	timer    *time.Timer
	cancel   context.CancelCauseFunc
	deadline time.Time
	fired    bool
	stopped  bool
}

// New creates a watchdog with the given timeout.
func New(timeout time.Duration) *Watchdog {
	return &Watchdog{timeout: timeout, now: time.Now}
}

// Enabled reports whether the watchdog has a positive timeout.
func (w *Watchdog) Enabled() bool {
	return w.timeout > 0
}

// Timeout returns the configured timeout.
func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}

// Arm derives a context that is cancelled with ErrStalled when the deadline
// passes and sets the first deadline to now + timeout. Arming again replaces
// the previous arming.
func (w *Watchdog) Arm(parent context.Context) context.Context {
	if !w.Enabled() {
		return parent
	}

	ctx, cancel := context.WithCancelCause(parent)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	if w.cancel != nil {
		w.cancel(context.Canceled)
	}
	w.cancel = cancel
	w.fired = false
	w.stopped = false
	w.deadline = w.now().Add(w.timeout)
	w.timer = time.AfterFunc(w.timeout, w.fire)
	return ctx
}

// Reset pushes the deadline to now + timeout. It is a no-op when the
// watchdog is disabled, stopped, not armed or has already fired.
func (w *Watchdog) Reset() {
	if !w.Enabled() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer == nil || w.fired || w.stopped {
		return
	}
	w.timer.Stop()
	w.deadline = w.now().Add(w.timeout)
	w.timer.Reset(w.timeout)
	metrics.WatchdogResets.Inc()
}

// Stop disarms the watchdog and releases the derived context.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	if w.cancel != nil {
		w.cancel(context.Canceled)
	}
}

// Deadline returns the current deadline; ok is false when the watchdog is
// disabled or not armed.
func (w *Watchdog) Deadline() (deadline time.Time, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.Enabled() || w.timer == nil {
		return time.Time{}, false
	}
	return w.deadline, true
}

// Fired reports whether the deadline passed.
func (w *Watchdog) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

func (w *Watchdog) fire() {
	w.mu.Lock()
	defer w.mu.Unlock()

	// A Reset racing with an expiring timer may find the callback already
	// queued; the deadline check keeps such a late callback from firing.
	if w.stopped || w.fired || w.now().Before(w.deadline) {
		return
	}
	w.fired = true
	w.cancel(ErrStalled)
}
