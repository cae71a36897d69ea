// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package reputation scores IP addresses for VPN and proxy use.
//
// Two remote backends are supported: a cheap single-provider API (Teoh) used
// to pre-screen, and the costlier IPCheck aggregator whose score counts how
// many underlying providers flag the address. A score of ProxyThreshold or
// more is a proxy verdict.
//
// Client puts each backend behind a TTL cache, a rate limiter and a circuit
// breaker. Every failure surfaces as a *CheckError matching ErrCheckUnavailable.
package reputation

import (
	"context"
	"errors"
	"fmt"
)

// ProxyThreshold is the minimum score for a proxy verdict.
const ProxyThreshold = 2

// BackendName identifies a backend in results, logs and metrics.
type BackendName string

// Known backends.
const (
	BackendTeoh    BackendName = "teoh"
	BackendIPCheck BackendName = "ipcheck"
	BackendVPNList BackendName = "vpn-list"
)

// Result is the outcome of one check.
type Result struct {
	Score   int         `json:"score"`
	Backend BackendName `json:"backend"`
}

// IsProxy reports whether the score reaches ProxyThreshold.
func (r Result) IsProxy() bool {
	return r.Score >= ProxyThreshold
}

// Backend checks one IP address against one reputation source.
type Backend interface {
	Name() BackendName
	Check(ctx context.Context, ip string) (Result, error)
}

// ErrCheckUnavailable matches every reputation check failure.
var ErrCheckUnavailable = errors.New("reputation check unavailable")

// CheckError describes a failed check.
type CheckError struct {
	Backend BackendName
	IP      string
	Err     error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("reputation check %s for %s: %v", e.Backend, e.IP, e.Err)
}

func (e *CheckError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrCheckUnavailable) true for every CheckError.
func (e *CheckError) Is(target error) bool {
	return target == ErrCheckUnavailable
}
