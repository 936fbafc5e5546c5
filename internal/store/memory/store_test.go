package memory_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/robalyx/timeline/internal/store/memory"
	"github.com/robalyx/timeline/internal/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `{
	"users": [
		{"name": "alice", "profile": "https://img.example/alice.png", "high_fanout": true},
		{"name": "bob", "profile": "https://img.example/bob.png"},
		{"name": "carol"}
	],
	"follows": [
		{"follower": "carol", "followee": "alice"},
		{"follower": "bob", "followee": "alice"},
		{"follower": "bob", "followee": "carol"}
	],
	"comments": [
		{"cid": "a1", "uid": "alice", "ups": 3, "timestamp": 10, "content": "first"},
		{"cid": "a2", "uid": "alice", "ups": 3, "timestamp": 20, "parent_id": "c1"},
		{"cid": "c1", "uid": "carol", "ups": 9, "timestamp": 5}
	]
}`

func loadFixture(t *testing.T, minFollowers int) *memory.Store {
	t.Helper()
	store, err := memory.LoadFixture(strings.NewReader(fixture), minFollowers)
	require.NoError(t, err)
	return store
}

func TestFixtureFollowers(t *testing.T) {
	t.Parallel()

	store := loadFixture(t, 0)
	ctx := t.Context()

	followers, err := store.GetFollowers(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []timeline.FollowerEntry{
		{Name: "bob", Profile: "https://img.example/bob.png"},
		{Name: "carol", Profile: ""},
	}, followers)

	followees, err := store.GetFollowees(ctx, "bob")
	require.NoError(t, err)
	assert.ElementsMatch(t, []timeline.UserID{"alice", "carol"}, followees)
}

func TestFixtureProfiles(t *testing.T) {
	t.Parallel()

	store := loadFixture(t, 0)
	ctx := t.Context()

	url, found, err := store.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://img.example/alice.png", url)

	// A user without a profile URL is reported as not found
	_, found, err = store.GetProfile(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFixtureContent(t *testing.T) {
	t.Parallel()

	store := loadFixture(t, 0)
	ctx := t.Context()

	top, err := store.GetTopByAuthors(ctx, []timeline.UserID{"alice", "carol"}, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "c1", top[0].ID)
	assert.Equal(t, "a2", top[1].ID)

	byAuthor, err := store.GetByAuthor(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, byAuthor, 2)
	assert.Equal(t, "a2", byAuthor[0].ID)
	assert.Equal(t, "first", byAuthor[1].Extra["content"])

	item, found, err := store.GetByID(ctx, "a2")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "c1", item.ParentID)

	_, found, err = store.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIsHighFanout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		minFollowers int
		user         timeline.UserID
		want         bool
	}{
		{name: "flagged", user: "alice", want: true},
		{name: "not flagged without threshold", user: "carol", want: false},
		{name: "threshold reached", minFollowers: 1, user: "carol", want: true},
		{name: "threshold missed", minFollowers: 2, user: "carol", want: false},
		{name: "unknown user", minFollowers: 1, user: "ghost", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := loadFixture(t, tt.minFollowers).IsHighFanout(t.Context(), tt.user)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupsHonourCancellation(t *testing.T) {
	t.Parallel()

	store := loadFixture(t, 0)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := store.GetFollowers(ctx, "alice")
	require.ErrorIs(t, err, context.Canceled)
	_, _, err = store.GetByID(ctx, "a1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadFixtureFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	store, err := memory.LoadFixtureFile(path, 0)
	require.NoError(t, err)

	_, found, err := store.GetByID(t.Context(), "c1")
	require.NoError(t, err)
	assert.True(t, found)

	_, err = memory.LoadFixtureFile(filepath.Join(t.TempDir(), "missing.json"), 0)
	require.Error(t, err)
}
