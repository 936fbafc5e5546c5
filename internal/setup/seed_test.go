package setup_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/robalyx/timeline/internal/database/types"
	"github.com/robalyx/timeline/internal/graph"
	"github.com/robalyx/timeline/internal/setup"
	"github.com/robalyx/timeline/internal/store/memory"
	"github.com/robalyx/timeline/internal/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const seedFixture = `{
	"users": [
		{"name": "alice", "profile": "https://img/alice.png", "high_fanout": true},
		{"name": "bob"}
	],
	"follows": [
		{"follower": "bob", "followee": "alice"}
	],
	"comments": [
		{"cid": "a1", "uid": "alice", "ups": 4, "timestamp": 100, "body": "hi"},
		{"cid": "b1", "uid": "bob", "ups": 1, "timestamp": 200, "parent_id": "a1"}
	]
}`

type recordingSaver struct {
	profiles []*types.Profile
	posts    []*types.Post
	err      error
}

func (r *recordingSaver) SaveProfiles(_ context.Context, profiles []*types.Profile) error {
	r.profiles = append(r.profiles, profiles...)
	return r.err
}

func (r *recordingSaver) SavePosts(_ context.Context, posts []*types.Post) error {
	r.posts = append(r.posts, posts...)
	return r.err
}

func TestSeed(t *testing.T) {
	t.Parallel()

	fixture, err := memory.ReadFixture(strings.NewReader(seedFixture))
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	graphStore, err := graph.Open(t.Context(), filepath.Join(t.TempDir(), "graph.db"), graph.Options{PoolSize: 1}, logger)
	require.NoError(t, err)
	defer graphStore.Close()

	saver := &recordingSaver{}
	counts, err := setup.Seed(t.Context(), fixture, saver, saver, graphStore, logger)
	require.NoError(t, err)
	assert.Equal(t, setup.SeedCounts{Profiles: 1, Posts: 2, Follows: 1}, counts)

	require.Len(t, saver.profiles, 1)
	assert.Equal(t, "alice", saver.profiles[0].Username)

	require.Len(t, saver.posts, 2)
	assert.Equal(t, "a1", saver.posts[0].CID)
	assert.Equal(t, "hi", saver.posts[0].Extra["body"])
	assert.Equal(t, "a1", saver.posts[1].ParentID)

	followers, err := graphStore.GetFollowers(t.Context(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []timeline.FollowerEntry{{Name: "bob", Profile: ""}}, followers)

	high, err := graphStore.IsHighFanout(t.Context(), "alice")
	require.NoError(t, err)
	assert.True(t, high)
}

func TestSeedStopsOnError(t *testing.T) {
	t.Parallel()

	fixture, err := memory.ReadFixture(strings.NewReader(seedFixture))
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	graphStore, err := graph.Open(t.Context(), filepath.Join(t.TempDir(), "graph.db"), graph.Options{PoolSize: 1}, logger)
	require.NoError(t, err)
	defer graphStore.Close()

	boom := errors.New("boom")
	counts, err := setup.Seed(t.Context(), fixture, &recordingSaver{err: boom}, &recordingSaver{}, graphStore, logger)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, setup.SeedCounts{Follows: 1}, counts)
}
