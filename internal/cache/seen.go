// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package cache

import (
	"sync"
	"time"
)

// seenEntry is a node of the recency list.
type seenEntry struct {
	key       string
	expiresAt time.Time
	prev      *seenEntry
	next      *seenEntry
}

// SeenSet remembers keys for a TTL and at most capacity keys, evicting the
// least recently seen one first. All operations are O(1).
//
//	seen := cache.NewSeenSet(10000, 10*time.Minute)
//	if seen.Seen(meta.ID) {
//	    return // replayed after reconnect
//	}
type SeenSet struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	items    map[string]*seenEntry

	// head.next is the most recently seen, tail.prev the least.
	head *seenEntry
	tail *seenEntry
}

// NewSeenSet creates a set. Non-positive arguments fall back to 10000 keys
// and 10 minutes.
func NewSeenSet(capacity int, ttl time.Duration) *SeenSet {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	s := &SeenSet{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*seenEntry, capacity),
		head:     &seenEntry{},
		tail:     &seenEntry{},
	}
	s.head.next = s.tail
	s.tail.prev = s.head
	return s
}

// Seen reports whether key was recorded within the TTL. An unseen or expired
// key is recorded and Seen returns false.
func (s *SeenSet) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.items[key]; ok {
		if now.Before(e.expiresAt) {
			s.moveToFront(e)
			return true
		}
		s.remove(e)
	}

	e := &seenEntry{key: key, expiresAt: now.Add(s.ttl)}
	s.addToFront(e)
	s.items[key] = e
	for len(s.items) > s.capacity {
		s.remove(s.tail.prev)
	}

	return false
}

// Len returns the number of recorded keys, including expired ones not yet evicted.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Internal methods (must be called with mu held)

func (s *SeenSet) addToFront(e *seenEntry) {
	e.prev = s.head
	e.next = s.head.next
	s.head.next.prev = e
	s.head.next = e
}

func (s *SeenSet) moveToFront(e *seenEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	s.addToFront(e)
}

func (s *SeenSet) remove(e *seenEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(s.items, e.key)
}
