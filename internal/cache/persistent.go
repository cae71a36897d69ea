// Sentinel - Recent-Changes Anti-Abuse Monitor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/sentinel/internal/logging"
)

// Store is the Get/Set surface shared by Cache and PersistentCache.
type Store[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V)
}

// PersistentCache is a TTL cache backed by BadgerDB, so entries survive a
// restart of the process. Values are stored as JSON and expire through
// badger's per-entry TTL.
//
// Storage errors are logged and treated as misses: a broken cache must not
// stop the caller from asking the origin.
type PersistentCache[V any] struct {
	db     *badger.DB
	ttl    time.Duration
	prefix []byte
	logger zerolog.Logger
}

// OpenPersistent opens (or creates) a badger database at path. Keys are
// namespaced with prefix so several caches can share one database.
func OpenPersistent[V any](path, prefix string, ttl time.Duration) (*PersistentCache[V], error) {
	if path == "" {
		return nil, errors.New("persistent cache path is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("persistent cache ttl must be positive")
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	// Small values and few keys; keep the footprint low.
	opts.MemTableSize = 8 << 20
	opts.ValueLogFileSize = 16 << 20
	opts.NumCompactors = 2
	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().Str("path", path).Dur("ttl", ttl).Msg("Persistent cache opened")
	return &PersistentCache[V]{
		db:     db,
		ttl:    ttl,
		prefix: []byte(prefix),
		logger: logging.WithComponent("persistent-cache"),
	}, nil
}

func (c *PersistentCache[V]) key(k string) []byte {
	out := make([]byte, 0, len(c.prefix)+len(k))
	out = append(out, c.prefix...)
	return append(out, k...)
}

// Get returns the value for key if present and not expired.
func (c *PersistentCache[V]) Get(key string) (V, bool) {
	var value V
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.key(key))
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			return json.Unmarshal(raw, &value)
		})
	})

	switch {
	case err == nil:
		return value, true
	case errors.Is(err, badger.ErrKeyNotFound):
	default:
		c.logger.Warn().Err(err).Str("key", key).Msg("Persistent cache read failed")
	}
	var zero V
	return zero, false
}

// Set stores value under key for the cache TTL.
func (c *PersistentCache[V]) Set(key string, value V) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Persistent cache encode failed")
		return
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(c.key(key), data).WithTTL(c.ttl))
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Persistent cache write failed")
	}
}

// Close runs value-log GC once and closes the database.
func (c *PersistentCache[V]) Close() error {
	if err := c.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		c.logger.Debug().Err(err).Msg("Value log GC skipped")
	}
	return c.db.Close()
}
