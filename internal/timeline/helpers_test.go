package timeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/robalyx/timeline/internal/store/memory"
	"github.com/robalyx/timeline/internal/timeline"
	"go.uber.org/zap/zaptest"
)

var errUnavailable = errors.New("store unavailable")

// countingContent records how often each content method is called.
type countingContent struct {
	timeline.ContentLookup
	topCalls  atomic.Int64
	byIDCalls atomic.Int64
	failByID  bool
}

func (c *countingContent) GetTopByAuthors(ctx context.Context, authors []timeline.UserID, limit int) ([]timeline.ContentItem, error) {
	c.topCalls.Add(1)
	return c.ContentLookup.GetTopByAuthors(ctx, authors, limit)
}

func (c *countingContent) GetByID(ctx context.Context, id string) (timeline.ContentItem, bool, error) {
	c.byIDCalls.Add(1)
	if c.failByID {
		return timeline.ContentItem{}, false, errUnavailable
	}
	return c.ContentLookup.GetByID(ctx, id)
}

// failingGraph fails every follower query.
type failingGraph struct {
	timeline.GraphLookup
}

func (failingGraph) GetFollowers(context.Context, timeline.UserID) ([]timeline.FollowerEntry, error) {
	return nil, errUnavailable
}

func (failingGraph) GetFollowees(context.Context, timeline.UserID) ([]timeline.UserID, error) {
	return nil, errUnavailable
}

func (failingGraph) IsHighFanout(context.Context, timeline.UserID) (bool, error) {
	return false, errUnavailable
}

// failingProfiles fails every profile query.
type failingProfiles struct{}

func (failingProfiles) GetProfile(context.Context, timeline.UserID) (string, bool, error) {
	return "", false, errUnavailable
}

// newSocialStore builds a small graph where bob follows alice and carol.
func newSocialStore() *memory.Store {
	store := memory.NewStore(0)
	store.PutUser(memory.User{Name: "alice", Profile: "https://img.example/alice.png", HighFanout: true})
	store.PutUser(memory.User{Name: "bob", Profile: "https://img.example/bob.png"})
	store.PutUser(memory.User{Name: "carol", Profile: "https://img.example/carol.png"})
	store.PutUser(memory.User{Name: "Dave", Profile: "https://img.example/dave.png"})

	store.AddFollow("bob", "alice")
	store.AddFollow("carol", "alice")
	store.AddFollow("Dave", "alice")
	store.AddFollow("bob", "carol")

	store.PutContent(
		timeline.ContentItem{ID: "a1", AuthorID: "alice", Ups: 10, Timestamp: 100},
		timeline.ContentItem{ID: "c1", AuthorID: "carol", Ups: 50, Timestamp: 90, ParentID: "a1"},
		timeline.ContentItem{ID: "c2", AuthorID: "carol", Ups: 10, Timestamp: 200, ParentID: "missing"},
		timeline.ContentItem{
			ID: "b1", AuthorID: "bob", Ups: 99, Timestamp: 1,
			Extra: map[string]any{"content": "hello"},
		},
	)

	return store
}

// newThreadStore builds a four level thread root <- l1 <- l2 <- l3 authored by alice,
// followed by bob.
func newThreadStore() *memory.Store {
	store := memory.NewStore(0)
	store.AddFollow("bob", "alice")
	store.PutContent(
		timeline.ContentItem{ID: "root", AuthorID: "zed", Ups: 1, Timestamp: 1},
		timeline.ContentItem{ID: "l1", AuthorID: "zed", Ups: 1, Timestamp: 2, ParentID: "root"},
		timeline.ContentItem{ID: "l2", AuthorID: "zed", Ups: 1, Timestamp: 3, ParentID: "l1"},
		timeline.ContentItem{ID: "l3", AuthorID: "alice", Ups: 1, Timestamp: 4, ParentID: "l2"},
	)
	return store
}

func newAggregator(
	t *testing.T, profiles timeline.ProfileLookup, graph timeline.GraphLookup, content timeline.ContentLookup,
) *timeline.Aggregator {
	t.Helper()
	return timeline.NewAggregator(profiles, graph, content, timeline.AggregatorConfig{}, zaptest.NewLogger(t))
}

func commentIDs(items []timeline.EnrichedContentItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func numberedIDs(prefix string, n int) []string {
	ids := make([]string, 0, n)
	for i := range n {
		ids = append(ids, fmt.Sprintf("%s%02d", prefix, i))
	}
	return ids
}
