// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package recentchanges

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/sentinel/internal/cache"
	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/metrics"
)

// Drop reasons recorded in sentinel_events_dropped_total.
const (
	DropDecode           = "decode"
	DropOtherWiki        = "other_wiki"
	DropSuppressedLog    = "suppressed_log"
	DropUnresolvablePage = "unresolvable_page"
	DropDuplicate        = "duplicate"
	DropOversized        = "oversized"
)

// Replay window for duplicate suppression. A reconnect resumes from the last
// event id, so only entries around the reconnect can repeat.
const (
	seenCapacity = 10000
	seenTTL      = 10 * time.Minute
)

// FaultTolerantSource yields the changes of one wiki and skips every entry
// it cannot turn into an Event. Only the end of the feed or of the context
// ends iteration. Entries whose meta id was already delivered are dropped.
type FaultTolerantSource struct {
	feed   Feed
	wiki   string
	seen   *cache.SeenSet
	logger zerolog.Logger
}

// NewFaultTolerantSource filters feed down to entries of wiki (e.g. "dewiki").
func NewFaultTolerantSource(feed Feed, wiki string) *FaultTolerantSource {
	return &FaultTolerantSource{
		feed:   feed,
		wiki:   wiki,
		seen:   cache.NewSeenSet(seenCapacity, seenTTL),
		logger: logging.WithComponent("event-source"),
	}
}

// Next returns the next usable event. It returns ErrFeedEnded when the feed
// is exhausted and the context's cause when ctx ends.
func (s *FaultTolerantSource) Next(ctx context.Context) (*Event, error) {
	for {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}

		raw, err := s.feed.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil, context.Cause(ctx)
			case errors.Is(err, io.EOF):
				return nil, ErrFeedEnded
			default:
				return nil, fmt.Errorf("read change feed: %w", err)
			}
		}

		ev, ok := s.resolve(raw)
		if ok {
			return ev, nil
		}
	}
}

// resolve decodes raw and applies the entry filters.
func (s *FaultTolerantSource) resolve(raw RawEntry) (*Event, bool) {
	var msg message
	if err := json.Unmarshal(raw.Data, &msg); err != nil {
		s.logger.Warn().Err(err).Str("event_id", raw.ID).Msg("Dropping undecodable change entry")
		metrics.RecordDrop(DropDecode)
		return nil, false
	}

	if msg.Wiki != s.wiki {
		metrics.RecordDrop(DropOtherWiki)
		return nil, false
	}

	// Log entries whose target was suppressed arrive without a title.
	if msg.Type == TypeLog && deref(msg.Title) == "" {
		metrics.RecordDrop(DropSuppressedLog)
		return nil, false
	}

	switch {
	case deref(msg.Title) == "":
		s.logger.Warn().Str("event_id", raw.ID).Str("type", msg.Type).Msg("Dropping change without page title")
		metrics.RecordDrop(DropUnresolvablePage)
		return nil, false
	case msg.Namespace == nil:
		s.logger.Warn().Str("event_id", raw.ID).Str("title", *msg.Title).Msg("Dropping change without namespace")
		metrics.RecordDrop(DropUnresolvablePage)
		return nil, false
	case *msg.Namespace < 0:
		s.logger.Warn().Str("event_id", raw.ID).Str("title", *msg.Title).Int("namespace", *msg.Namespace).
			Msg("Dropping change on virtual page")
		metrics.RecordDrop(DropUnresolvablePage)
		return nil, false
	}

	if msg.Meta.ID != "" && s.seen.Seen(msg.Meta.ID) {
		s.logger.Debug().Str("meta_id", msg.Meta.ID).Msg("Dropping replayed change entry")
		metrics.RecordDrop(DropDuplicate)
		return nil, false
	}

	return msg.toEvent(), true
}
