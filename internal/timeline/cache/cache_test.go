package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/robalyx/timeline/internal/timeline"
	"github.com/robalyx/timeline/internal/timeline/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errBackend = errors.New("backend down")

type staticAdmitter map[timeline.UserID]bool

func (a staticAdmitter) IsHighFanout(_ context.Context, userID timeline.UserID) (bool, error) {
	if userID == "broken" {
		return false, errBackend
	}
	return a[userID], nil
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, timeline.UserID) (*cache.Entry, bool, error) {
	return nil, false, errBackend
}

func (brokenStore) Put(context.Context, *cache.Entry) error {
	return errBackend
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, rueidis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return mr, client
}

func TestStores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		store func(t *testing.T) cache.Store
	}{
		{
			name: "memory",
			store: func(t *testing.T) cache.Store {
				t.Helper()
				return cache.NewMemoryStore(0, 0)
			},
		},
		{
			name: "redis",
			store: func(t *testing.T) cache.Store {
				t.Helper()
				_, client := setupRedis(t)
				return cache.NewRedisStore(client, time.Minute)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := tt.store(t)
			ctx := t.Context()

			_, ok, err := store.Get(ctx, "alice")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Put(ctx, &cache.Entry{Key: "alice", Value: []byte(`{"v":1}`)}))

			// Existing entries are never replaced
			require.NoError(t, store.Put(ctx, &cache.Entry{Key: "alice", Value: []byte(`{"v":2}`)}))

			entry, ok, err := store.Get(ctx, "alice")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, timeline.UserID("alice"), entry.Key)
			assert.Equal(t, `{"v":1}`, string(entry.Value))
		})
	}
}

func TestMemoryStoreCapacity(t *testing.T) {
	t.Parallel()

	store := cache.NewMemoryStore(2, 0)
	ctx := t.Context()

	for _, key := range []timeline.UserID{"a", "b", "c"} {
		require.NoError(t, store.Put(ctx, &cache.Entry{Key: key, Value: []byte(key)}))
	}

	assert.Equal(t, 2, store.Len())
	_, ok, _ := store.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryStoreTTL(t *testing.T) {
	t.Parallel()

	store := cache.NewMemoryStore(0, 20*time.Millisecond)
	ctx := t.Context()

	require.NoError(t, store.Put(ctx, &cache.Entry{Key: "a", Value: []byte("1")}))
	assert.Eventually(t, func() bool {
		_, ok, _ := store.Get(ctx, "a")
		return !ok
	}, time.Second, 5*time.Millisecond)

	// Expired keys can be filled again
	require.NoError(t, store.Put(ctx, &cache.Entry{Key: "a", Value: []byte("2")}))
	entry, ok, _ := store.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "2", string(entry.Value))
}

func TestMemoryStoreConcurrentPutKeepsFirst(t *testing.T) {
	t.Parallel()

	store := cache.NewMemoryStore(0, 0)
	ctx := t.Context()

	const writers = 64
	seen := make([]*cache.Entry, writers)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			entry := &cache.Entry{Key: "alice", Value: []byte{byte(i)}}
			assert.NoError(t, store.Put(ctx, entry))

			got, ok, err := store.Get(ctx, "alice")
			assert.NoError(t, err)
			assert.True(t, ok)
			seen[i] = got
		}()
	}
	close(start)
	wg.Wait()

	// Once one writer has stored an entry, no later writer may replace it
	for _, got := range seen {
		assert.Same(t, seen[0], got)
	}
	assert.Equal(t, 1, store.Len())
}

func TestRedisStoreTTL(t *testing.T) {
	t.Parallel()

	mr, client := setupRedis(t)
	store := cache.NewRedisStore(client, time.Minute)
	ctx := t.Context()

	require.NoError(t, store.Put(ctx, &cache.Entry{Key: "alice", Value: []byte("payload")}))
	assert.True(t, mr.Exists(cache.KeyPrefix+"alice"))
	assert.Equal(t, time.Minute, mr.TTL(cache.KeyPrefix+"alice"))

	mr.FastForward(2 * time.Minute)

	_, ok, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreWithoutTTL(t *testing.T) {
	t.Parallel()

	mr, client := setupRedis(t)
	store := cache.NewRedisStore(client, 0)

	require.NoError(t, store.Put(t.Context(), &cache.Entry{Key: "alice", Value: []byte("payload")}))
	assert.Zero(t, mr.TTL(cache.KeyPrefix+"alice"))
}

func TestCacheAdmit(t *testing.T) {
	t.Parallel()

	c := cache.New(cache.NewMemoryStore(0, 0), staticAdmitter{"alice": true}, zaptest.NewLogger(t))
	ctx := t.Context()

	assert.True(t, c.Admit(ctx, "alice"))
	assert.False(t, c.Admit(ctx, "bob"))
	assert.False(t, c.Admit(ctx, "broken"))

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Admitted)
	assert.Equal(t, uint64(2), stats.Rejected)
}

func TestCacheReturnsCopies(t *testing.T) {
	t.Parallel()

	c := cache.New(cache.NewMemoryStore(0, 0), staticAdmitter{}, zaptest.NewLogger(t))
	ctx := t.Context()

	value := []byte("original")
	c.Put(ctx, "alice", value)
	value[0] = 'X'

	got, ok := c.Get(ctx, "alice")
	require.True(t, ok)
	assert.Equal(t, "original", string(got))

	got[0] = 'Y'
	again, _ := c.Get(ctx, "alice")
	assert.Equal(t, "original", string(again))
}

func TestCacheBackendErrorsAreMisses(t *testing.T) {
	t.Parallel()

	c := cache.New(brokenStore{}, staticAdmitter{}, zaptest.NewLogger(t))
	ctx := t.Context()

	c.Put(ctx, "alice", []byte("x"))
	_, ok := c.Get(ctx, "alice")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Misses)
}

func TestCacheConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := cache.New(cache.NewMemoryStore(16, 0), staticAdmitter{}, zaptest.NewLogger(t))
	ctx := t.Context()
	keys := []timeline.UserID{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := keys[i%len(keys)]
			c.Put(ctx, key, []byte(key))
			got, ok := c.Get(ctx, key)
			if assert.True(t, ok) {
				assert.Equal(t, string(key), string(got))
			}
		}()
	}
	wg.Wait()

	stats := c.Stats()
	assert.Equal(t, uint64(64), stats.Hits)
}
