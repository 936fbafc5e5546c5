package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
	"github.com/robalyx/timeline/internal/timeline"
)

// KeyPrefix namespaces cached timelines in Redis.
// Keys are formatted as "timeline:{userID}".
const KeyPrefix = "timeline:"

// RedisStore keeps entries in Redis so several processes share the cached subset.
// Entries read back from Redis carry no insertion time.
type RedisStore struct {
	client rueidis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store whose entries expire after ttl (0 never expires).
func NewRedisStore(client rueidis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key timeline.UserID) (*Entry, bool, error) {
	value, err := s.client.Do(ctx, s.client.B().Get().Key(KeyPrefix+string(key)).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get timeline for user %s: %w", key, err)
	}

	return &Entry{Key: key, Value: value}, true, nil
}

// Put implements Store. SET NX keeps an existing entry untouched.
func (s *RedisStore) Put(ctx context.Context, entry *Entry) error {
	set := s.client.B().Set().Key(KeyPrefix + string(entry.Key)).Value(rueidis.BinaryString(entry.Value)).Nx()

	var cmd rueidis.Completed
	if s.ttl > 0 {
		cmd = set.PxMilliseconds(s.ttl.Milliseconds()).Build()
	} else {
		cmd = set.Build()
	}

	err := s.client.Do(ctx, cmd).Error()
	if err != nil && !rueidis.IsRedisNil(err) {
		return fmt.Errorf("failed to set timeline for user %s: %w", entry.Key, err)
	}

	return nil
}
