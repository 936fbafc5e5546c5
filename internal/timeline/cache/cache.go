// Package cache holds encoded timelines for users the social graph marks as high fan-out.
package cache

import (
	"bytes"
	"context"
	"sync/atomic"
	"time"

	"github.com/robalyx/timeline/internal/timeline"
	"go.uber.org/zap"
)

// Entry is a cached timeline. Entries are never modified once stored.
type Entry struct {
	Key        timeline.UserID
	Value      []byte
	InsertedAt time.Time
}

// Store is the key-value backend of the cache.
// Put must leave an existing unexpired entry untouched.
type Store interface {
	Get(ctx context.Context, key timeline.UserID) (*Entry, bool, error)
	Put(ctx context.Context, entry *Entry) error
}

// Admitter decides which users are worth caching.
type Admitter interface {
	IsHighFanout(ctx context.Context, userID timeline.UserID) (bool, error)
}

// Stats counts cache traffic since the cache was created.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Admitted uint64
	Rejected uint64
}

// Cache is the selective result cache in front of the aggregator.
// Backend errors are logged and treated as misses.
type Cache struct {
	store    Store
	admitter Admitter
	logger   *zap.Logger

	hits     atomic.Uint64
	misses   atomic.Uint64
	admitted atomic.Uint64
	rejected atomic.Uint64
}

// New creates a cache over store that admits users approved by admitter.
func New(store Store, admitter Admitter, logger *zap.Logger) *Cache {
	return &Cache{
		store:    store,
		admitter: admitter,
		logger:   logger.Named("result_cache"),
	}
}

// Get returns the cached timeline of key.
func (c *Cache) Get(ctx context.Context, key timeline.UserID) ([]byte, bool) {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Failed to read cached timeline",
			zap.String("userID", string(key)),
			zap.Error(err))
	}

	if err != nil || !ok {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return bytes.Clone(entry.Value), true
}

// Put stores value for key unless an entry already exists.
func (c *Cache) Put(ctx context.Context, key timeline.UserID, value []byte) {
	entry := &Entry{
		Key:        key,
		Value:      bytes.Clone(value),
		InsertedAt: time.Now(),
	}

	if err := c.store.Put(ctx, entry); err != nil {
		c.logger.Warn("Failed to cache timeline",
			zap.String("userID", string(key)),
			zap.Error(err))
		return
	}

	c.logger.Debug("Cached timeline",
		zap.String("userID", string(key)),
		zap.Int("bytes", len(value)))
}

// Admit reports whether key's timeline may be cached. A failing admitter rejects.
func (c *Cache) Admit(ctx context.Context, key timeline.UserID) bool {
	ok, err := c.admitter.IsHighFanout(ctx, key)
	if err != nil {
		c.logger.Warn("Failed to check high fan-out status",
			zap.String("userID", string(key)),
			zap.Error(err))
	}

	if err != nil || !ok {
		c.rejected.Add(1)
		return false
	}

	c.admitted.Add(1)
	return true
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Admitted: c.admitted.Load(),
		Rejected: c.rejected.Load(),
	}
}
