// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package detection

import (
	"context"
	"fmt"

	"github.com/tomtom215/sentinel/internal/mediawiki"
)

// BlockCounter counts how often an actor was blocked before.
type BlockCounter struct {
	site Site
}

// NewBlockCounter creates a counter.
func NewBlockCounter(site Site) *BlockCounter {
	return &BlockCounter{site: site}
}

// PreviousBlocks counts the block entries of actor's user page, minus one
// when a block is currently in force. An active range block has no entry of
// its own, so such an actor yields -1.
func (c *BlockCounter) PreviousBlocks(ctx context.Context, actor string) (int, error) {
	events, err := c.site.BlockLog(ctx, mediawiki.LogQuery{Title: "User:" + actor})
	if err != nil {
		return 0, fmt.Errorf("block log of %s: %w", actor, err)
	}

	count := 0
	for i := range events {
		if events[i].Action == "block" {
			count++
		}
	}

	blocked, _, err := c.site.BlockStatus(ctx, actor)
	if err != nil {
		return 0, fmt.Errorf("block status of %s: %w", actor, err)
	}
	if blocked {
		count--
	}
	return count, nil
}
