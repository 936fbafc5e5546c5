package timeline_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robalyx/timeline/internal/timeline"
	"github.com/robalyx/timeline/internal/timeline/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// gatedProfiles counts profile lookups and holds them until release is closed.
type gatedProfiles struct {
	timeline.ProfileLookup
	calls     atomic.Int64
	cancelled atomic.Int64
	release   chan struct{}
}

func (g *gatedProfiles) GetProfile(ctx context.Context, userID timeline.UserID) (string, bool, error) {
	g.calls.Add(1)
	select {
	case <-g.release:
	case <-ctx.Done():
		g.cancelled.Add(1)
		return "", false, ctx.Err()
	}
	return g.ProfileLookup.GetProfile(ctx, userID)
}

func newService(t *testing.T, profiles timeline.ProfileLookup, coalesce bool) (*timeline.Service, *cache.Cache) {
	t.Helper()

	store := newSocialStore()
	if profiles == nil {
		profiles = store
	}

	logger := zaptest.NewLogger(t)
	resultCache := cache.New(cache.NewMemoryStore(0, 0), store, logger)
	aggregator := timeline.NewAggregator(profiles, store, store, timeline.AggregatorConfig{}, logger)

	return timeline.NewService(aggregator, resultCache, coalesce, logger), resultCache
}

func TestGetTimelineCachesAdmittedUsers(t *testing.T) {
	t.Parallel()

	service, resultCache := newService(t, nil, false)

	first, err := service.GetTimeline(t.Context(), "alice")
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := service.GetTimeline(t.Context(), "alice")
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Payload, second.Payload)

	stats := resultCache.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Admitted)
}

func TestGetTimelineSkipsOrdinaryUsers(t *testing.T) {
	t.Parallel()

	service, resultCache := newService(t, nil, false)

	for range 3 {
		res, err := service.GetTimeline(t.Context(), "bob")
		require.NoError(t, err)
		assert.False(t, res.CacheHit)
	}

	stats := resultCache.Stats()
	assert.Zero(t, stats.Hits)
	assert.Equal(t, uint64(3), stats.Rejected)
}

func TestGetTimelineCancelled(t *testing.T) {
	t.Parallel()

	for _, coalesce := range []bool{false, true} {
		t.Run(fmt.Sprintf("coalesce=%t", coalesce), func(t *testing.T) {
			t.Parallel()

			service, _ := newService(t, nil, coalesce)

			ctx, cancel := context.WithCancel(t.Context())
			cancel()

			res, err := service.GetTimeline(ctx, "bob")
			require.ErrorIs(t, err, timeline.ErrCancelled)
			assert.Nil(t, res)
		})
	}
}

func TestGetTimelineDeadlineReachesStores(t *testing.T) {
	t.Parallel()

	for _, coalesce := range []bool{false, true} {
		t.Run(fmt.Sprintf("coalesce=%t", coalesce), func(t *testing.T) {
			t.Parallel()

			profiles := &gatedProfiles{ProfileLookup: newSocialStore(), release: make(chan struct{})}
			t.Cleanup(func() { close(profiles.release) })
			service, _ := newService(t, profiles, coalesce)

			ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
			defer cancel()

			_, err := service.GetTimeline(ctx, "bob")
			require.ErrorIs(t, err, timeline.ErrCancelled)

			// The blocked lookup must observe the caller's deadline
			assert.Eventually(t, func() bool { return profiles.cancelled.Load() == 1 },
				500*time.Millisecond, 5*time.Millisecond)
		})
	}
}

func TestGetTimelineAbandonedAssemblyIsNotJoined(t *testing.T) {
	t.Parallel()

	profiles := &gatedProfiles{ProfileLookup: newSocialStore(), release: make(chan struct{})}
	service, _ := newService(t, profiles, true)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	_, err := service.GetTimeline(ctx, "bob")
	require.ErrorIs(t, err, timeline.ErrCancelled)

	close(profiles.release)

	res, err := service.GetTimeline(t.Context(), "bob")
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Equal(t, int64(2), profiles.calls.Load())
}

func TestGetTimelineWaiterLeavingKeepsSharedAssembly(t *testing.T) {
	t.Parallel()

	profiles := &gatedProfiles{ProfileLookup: newSocialStore(), release: make(chan struct{})}
	service, _ := newService(t, profiles, true)

	done := make(chan error, 1)
	go func() {
		_, err := service.GetTimeline(t.Context(), "bob")
		done <- err
	}()
	require.Eventually(t, func() bool { return profiles.calls.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	_, err := service.GetTimeline(ctx, "bob")
	require.ErrorIs(t, err, timeline.ErrCancelled)

	close(profiles.release)
	require.NoError(t, <-done)
	assert.Equal(t, int64(1), profiles.calls.Load())
	assert.Zero(t, profiles.cancelled.Load())
}

func TestGetTimelineCoalescesMisses(t *testing.T) {
	t.Parallel()

	profiles := &gatedProfiles{ProfileLookup: newSocialStore(), release: make(chan struct{})}
	service, _ := newService(t, profiles, true)

	const callers = 5
	results := make([]*timeline.Response, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := service.GetTimeline(t.Context(), "bob")
			assert.NoError(t, err)
			results[i] = res
		}()
	}

	// Let every caller join the in-flight assembly before it completes
	require.Eventually(t, func() bool { return profiles.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(profiles.release)
	wg.Wait()

	assert.Equal(t, int64(1), profiles.calls.Load())
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, results[0].Payload, res.Payload)
	}
}
