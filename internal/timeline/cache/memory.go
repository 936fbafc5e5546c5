package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/robalyx/timeline/internal/timeline"
)

// MemoryStore keeps entries in a process-local LRU with optional expiry.
type MemoryStore struct {
	mu  sync.Mutex // serializes Put so the presence check and insert are one step
	lru *expirable.LRU[timeline.UserID, *Entry]
}

// NewMemoryStore creates a store holding at most capacity entries (0 is unbounded)
// for at most ttl each (0 keeps them until evicted by capacity).
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		lru: expirable.NewLRU[timeline.UserID, *Entry](capacity, nil, ttl),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key timeline.UserID) (*Entry, bool, error) {
	entry, ok := s.lru.Get(key)
	return entry, ok, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lru.Peek(entry.Key); ok {
		return nil
	}

	s.lru.Add(entry.Key, entry)
	return nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	return s.lru.Len()
}
