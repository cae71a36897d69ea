// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package detection

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tomtom215/sentinel/internal/config"
	"github.com/tomtom215/sentinel/internal/dnsbl"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/mediawiki"
)

var defaultRevertPatterns = mustRevertPatterns(config.DefaultRollbackPattern, config.DefaultUndoPattern)

// RevertPatterns recognises rollback and undo edit summaries. Each pattern
// captures the reverted actor in its single group.
type RevertPatterns struct {
	rollback *regexp.Regexp
	undo     *regexp.Regexp
}

// NewRevertPatterns compiles the rollback and undo patterns.
func NewRevertPatterns(rollback, undo string) (*RevertPatterns, error) {
	rb, err := regexp.Compile(rollback)
	if err != nil {
		return nil, fmt.Errorf("compile rollback pattern: %w", err)
	}
	ud, err := regexp.Compile(undo)
	if err != nil {
		return nil, fmt.Errorf("compile undo pattern: %w", err)
	}
	return &RevertPatterns{rollback: rb, undo: ud}, nil
}

func mustRevertPatterns(rollback, undo string) *RevertPatterns {
	p, err := NewRevertPatterns(rollback, undo)
	if err != nil {
		panic(err)
	}
	return p
}

// Extract returns the reverted actor. When both patterns match, the undo
// capture wins.
func (p *RevertPatterns) Extract(comment string) (string, bool) {
	var actor string
	if m := p.rollback.FindStringSubmatch(comment); len(m) > 1 {
		actor = m[1]
	}
	if m := p.undo.FindStringSubmatch(comment); len(m) > 1 {
		actor = m[1]
	}
	actor = strings.TrimSpace(actor)
	return actor, actor != ""
}

// ExtractRevertedActor applies the default German rollback and undo patterns.
func ExtractRevertedActor(comment string) (string, bool) {
	return defaultRevertPatterns.Extract(comment)
}

// RollbackDetector checks reverted anonymous editors for proxy use.
type RollbackDetector struct {
	patterns *RevertPatterns
	rep      Reputation
	out      *Reporter
}

// NewRollbackDetector creates the detector. Nil patterns use the defaults.
func NewRollbackDetector(patterns *RevertPatterns, rep Reputation, out *Reporter) *RollbackDetector {
	if patterns == nil {
		patterns = defaultRevertPatterns
	}
	return &RollbackDetector{patterns: patterns, rep: rep, out: out}
}

// Inspect pre-screens the reverted actor with the cheap backend and confirms
// a proxy verdict with the strong one. It never fails: check errors are
// logged and the comment is skipped. It returns the emitted report, if any.
func (d *RollbackDetector) Inspect(ctx context.Context, comment string) *Report {
	actor, ok := d.patterns.Extract(comment)
	if !ok || !mediawiki.IsAnonymous(actor) {
		return nil
	}

	res, err := d.rep.CheckCheap(ctx, actor)
	if err == nil && res.IsProxy() {
		res, err = d.rep.CheckStrong(ctx, actor)
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("actor", actor).Msg("Reverted address could not be checked")
		return nil
	}
	if !res.IsProxy() {
		return nil
	}

	rep := &Report{
		Reason:         ReasonRollbackProxy,
		Actor:          actor,
		Allocation:     dnsbl.AllocationUnknown,
		VPN:            true,
		Score:          res.Score,
		Backend:        string(res.Backend),
		PreviousBlocks: -1,
	}
	d.out.Emit(ctx, rep)
	return rep
}
