// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package breaker builds gobreaker circuit breakers that report their state
// transitions to the log and to Prometheus.
package breaker

import (
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
)

// Settings configures a breaker.
type Settings struct {
	// Name labels logs and metrics.
	Name string

	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// IsSuccessful classifies errors that must not count as failures.
	// nil counts every non-nil error.
	IsSuccessful func(err error) bool
}

// New creates a circuit breaker for results of type T.
//
// The breaker opens after ConsecutiveFailures failed calls in a row, allows a
// single probe once Timeout has passed, and closes again when the probe succeeds.
func New[T any](s Settings) *gobreaker.CircuitBreaker[T] {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.Timeout <= 0 {
		s.Timeout = time.Minute
	}

	metrics.CircuitBreakerState.WithLabelValues(s.Name).Set(0)

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:         s.Name,
		MaxRequests:  1,
		Interval:     0,
		Timeout:      s.Timeout,
		IsSuccessful: s.IsSuccessful,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.RecordBreakerTransition(name, from.String(), to.String())
		},
	})
}

// IsRejection reports whether err means the breaker refused the call.
func IsRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
