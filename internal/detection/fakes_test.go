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
	"github.com/tomtom215/sentinel/internal/mediawiki"
	"github.com/tomtom215/sentinel/internal/recentchanges"
	"github.com/tomtom215/sentinel/internal/reputation"
)

// fakeSite serves revision texts and block logs from memory.
type fakeSite struct {
	mu sync.Mutex

	revisions map[int64]string
	revErr    error

	// recent is returned for queries without a title.
	recent    []mediawiki.LogEvent
	recentErr error

	// userLogs is keyed by title ("User:<actor>").
	userLogs  map[string][]mediawiki.LogEvent
	blocked   map[string]bool
	statusErr error

	logQueries []mediawiki.LogQuery
}

func (f *fakeSite) RevisionText(_ context.Context, revID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revErr != nil {
		return "", f.revErr
	}
	text, ok := f.revisions[revID]
	if !ok {
		return "", fmt.Errorf("revision %d: %w", revID, mediawiki.ErrRevisionNotFound)
	}
	return text, nil
}

func (f *fakeSite) BlockLog(_ context.Context, q mediawiki.LogQuery) ([]mediawiki.LogEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logQueries = append(f.logQueries, q)
	if q.Title != "" {
		return f.userLogs[q.Title], nil
	}
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	return f.recent, nil
}

func (f *fakeSite) BlockStatus(_ context.Context, actor string) (bool, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return false, time.Time{}, f.statusErr
	}
	return f.blocked[actor], time.Time{}, nil
}

func (f *fakeSite) queries() []mediawiki.LogQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mediawiki.LogQuery(nil), f.logQueries...)
}

// fakeReputation answers both stages from tables. Unknown addresses score 0.
type fakeReputation struct {
	mu sync.Mutex

	cheap     map[string]int
	strong    map[string]int
	cheapErr  error
	strongErr error

	cheapCalls  []string
	strongCalls []string
}

func (f *fakeReputation) CheckCheap(_ context.Context, ip string) (reputation.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cheapCalls = append(f.cheapCalls, ip)
	if f.cheapErr != nil {
		return reputation.Result{}, &reputation.CheckError{Backend: reputation.BackendTeoh, IP: ip, Err: f.cheapErr}
	}
	return reputation.Result{Score: f.cheap[ip], Backend: reputation.BackendTeoh}, nil
}

func (f *fakeReputation) CheckStrong(_ context.Context, ip string) (reputation.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strongCalls = append(f.strongCalls, ip)
	if f.strongErr != nil {
		return reputation.Result{}, &reputation.CheckError{Backend: reputation.BackendIPCheck, IP: ip, Err: f.strongErr}
	}
	return reputation.Result{Score: f.strong[ip], Backend: reputation.BackendIPCheck}, nil
}

func (f *fakeReputation) calls() (cheap, strong []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cheapCalls...), append([]string(nil), f.strongCalls...)
}

// fakeClassifier treats listed addresses as dynamic.
type fakeClassifier struct {
	dynamic map[string]bool
	err     error
}

func (f *fakeClassifier) Classify(_ context.Context, ip string) (dnsbl.Allocation, error) {
	if f.err != nil {
		return dnsbl.AllocationUnknown, f.err
	}
	if f.dynamic[ip] {
		return dnsbl.AllocationDynamic, nil
	}
	return dnsbl.AllocationStatic, nil
}

// recordingSink keeps every report it receives.
type recordingSink struct {
	name string
	err  error

	mu      sync.Mutex
	reports []Report
}

func (s *recordingSink) Name() string {
	if s.name == "" {
		return "recording"
	}
	return s.name
}

func (s *recordingSink) Send(_ context.Context, r *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, *r)
	return s.err
}

func (s *recordingSink) received() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Report(nil), s.reports...)
}

// sliceSource yields events, then ErrFeedEnded.
type sliceSource struct {
	mu     sync.Mutex
	events []*recentchanges.Event
}

func (s *sliceSource) Next(ctx context.Context) (*recentchanges.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}
	if len(s.events) == 0 {
		return nil, recentchanges.ErrFeedEnded
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

// stalledSource blocks until the context ends.
type stalledSource struct{}

func (stalledSource) Next(ctx context.Context) (*recentchanges.Event, error) {
	<-ctx.Done()
	return nil, fmt.Errorf("read change feed: %w", context.Cause(ctx))
}

func logEvent(action, title string, ns int, expiry time.Time) mediawiki.LogEvent {
	return mediawiki.LogEvent{
		Type:      "block",
		Action:    action,
		Title:     title,
		Namespace: ns,
		Timestamp: expiry.Add(-time.Hour),
		Expiry:    expiry,
		Infinite:  expiry.IsZero(),
	}
}
