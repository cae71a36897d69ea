// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package detection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/sentinel/internal/dnsbl"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/mediawiki"
	"github.com/tomtom215/sentinel/internal/metrics"
)

// Default poller settings.
const (
	DefaultPollInterval      = 30 * time.Second
	DefaultBlockExpiryWindow = 7 * 24 * time.Hour
)

// BlockLogPoller scans the block log for new short blocks of IP addresses.
//
// The cursor starts at the engine start time and only moves forward, to the
// time sampled at the start of the last completed scan. A failed scan leaves
// it untouched so the next poll covers the same range again.
type BlockLogPoller struct {
	site         Site
	rep          Reputation
	out          *Reporter
	interval     time.Duration
	expiryWindow time.Duration
	now          func() time.Time

	mu     sync.Mutex
	cursor time.Time
}

// NewBlockLogPoller creates a poller whose cursor starts at start.
// Non-positive durations fall back to the defaults.
func NewBlockLogPoller(site Site, rep Reputation, out *Reporter, interval, expiryWindow time.Duration, start time.Time) *BlockLogPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if expiryWindow <= 0 {
		expiryWindow = DefaultBlockExpiryWindow
	}
	return &BlockLogPoller{
		site:         site,
		rep:          rep,
		out:          out,
		interval:     interval,
		expiryWindow: expiryWindow,
		now:          time.Now,
		cursor:       start,
	}
}

// Cursor returns the start of the next scan.
func (p *BlockLogPoller) Cursor() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// PollIfDue scans when at least one interval passed since the cursor.
func (p *BlockLogPoller) PollIfDue(ctx context.Context) error {
	now := p.now()
	if now.Sub(p.Cursor()) < p.interval {
		return nil
	}
	return p.poll(ctx, now)
}

func (p *BlockLogPoller) poll(ctx context.Context, now time.Time) error {
	since := p.Cursor()
	events, err := p.site.BlockLog(ctx, mediawiki.LogQuery{Since: since, Newer: true})
	if err != nil {
		metrics.RecordPoll(err)
		return fmt.Errorf("poll block log since %s: %w", since.UTC().Format(time.RFC3339), err)
	}

	log := logging.Ctx(ctx)
	horizon := now.Add(p.expiryWindow)
	checked := 0
	for i := range events {
		ev := &events[i]
		if ev.Action != "block" {
			continue
		}
		target := ev.Target()
		if !mediawiki.IsAnonymous(target) || !ev.ExpiresBefore(horizon) {
			continue
		}

		checked++
		res, err := p.rep.CheckStrong(ctx, target)
		if err != nil {
			metrics.RecordPoll(err)
			return fmt.Errorf("check blocked address %s: %w", target, err)
		}
		if res.IsProxy() {
			p.out.Emit(ctx, &Report{
				Reason:         ReasonBlockedProxy,
				Actor:          target,
				Allocation:     dnsbl.AllocationUnknown,
				VPN:            true,
				Score:          res.Score,
				Backend:        string(res.Backend),
				PreviousBlocks: -1,
			})
		}
	}

	p.mu.Lock()
	if now.After(p.cursor) {
		p.cursor = now
	}
	p.mu.Unlock()

	metrics.RecordPoll(nil)
	log.Debug().Int("entries", len(events)).Int("checked", checked).Msg("Block log polled")
	return nil
}
