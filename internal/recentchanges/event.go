// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

// Package recentchanges reads the Wikimedia EventStreams recentchange feed.
//
// StreamFeed speaks server-sent events and yields raw entries.
// FaultTolerantSource turns raw entries into Events for one wiki, dropping
// anything it cannot use without ever failing on a single bad entry.
package recentchanges

import (
	"context"
	"errors"
	"time"
)

// Change types carried in the "type" field.
const (
	TypeEdit       = "edit"
	TypeNew        = "new"
	TypeLog        = "log"
	TypeCategorize = "categorize"
)

// ErrFeedEnded is returned when the underlying feed is exhausted.
// A live recent-changes feed never ends, so callers treat this as fatal.
var ErrFeedEnded = errors.New("recent changes feed ended")

// RawEntry is one undecoded feed entry.
type RawEntry struct {
	// ID is the SSE event id, used to resume the stream.
	ID string

	// Data is the JSON payload.
	Data []byte
}

// Feed yields raw entries. Next returns io.EOF when the feed is exhausted.
type Feed interface {
	Next(ctx context.Context) (RawEntry, error)
}

// Revision holds the revision pair of an edit.
type Revision struct {
	Old int64 `json:"old"`
	New int64 `json:"new"`
}

// Event is one change on the monitored wiki.
type Event struct {
	ID        int64
	Type      string
	Namespace int
	Title     string
	Timestamp time.Time
	Comment   string
	User      string
	Bot       bool
	Wiki      string
	Revision  Revision

	// LogType and LogAction are set for log entries only.
	LogType   string
	LogAction string
}

// IsEdit reports whether the change is an edit of an existing page.
func (e *Event) IsEdit() bool {
	return e.Type == TypeEdit
}

// message is the EventStreams recentchange schema subset Sentinel reads.
type message struct {
	Meta struct {
		ID     string `json:"id"`
		DT     string `json:"dt"`
		Domain string `json:"domain"`
		Stream string `json:"stream"`
	} `json:"meta"`
	ID        *int64    `json:"id"`
	Type      string    `json:"type"`
	Namespace *int      `json:"namespace"`
	Title     *string   `json:"title"`
	Comment   string    `json:"comment"`
	Timestamp int64     `json:"timestamp"`
	User      string    `json:"user"`
	Bot       bool      `json:"bot"`
	Wiki      string    `json:"wiki"`
	Revision  *Revision `json:"revision,omitempty"`
	LogType   string    `json:"log_type,omitempty"`
	LogAction string    `json:"log_action,omitempty"`
}

func (m *message) toEvent() *Event {
	ev := &Event{
		Type:      m.Type,
		Title:     deref(m.Title),
		Timestamp: time.Unix(m.Timestamp, 0).UTC(),
		Comment:   m.Comment,
		User:      m.User,
		Bot:       m.Bot,
		Wiki:      m.Wiki,
		LogType:   m.LogType,
		LogAction: m.LogAction,
	}
	if m.ID != nil {
		ev.ID = *m.ID
	}
	if m.Namespace != nil {
		ev.Namespace = *m.Namespace
	}
	if m.Revision != nil {
		ev.Revision = *m.Revision
	}
	return ev
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
