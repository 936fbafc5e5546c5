// Package memory provides in-process implementations of the timeline lookups.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/robalyx/timeline/internal/timeline"
)

// User is a user record of the in-memory graph.
type User struct {
	Name       timeline.UserID `json:"name"`
	Profile    string          `json:"profile"`
	HighFanout bool            `json:"high_fanout"`
}

// Follow is a directed follow edge.
type Follow struct {
	Follower timeline.UserID `json:"follower"`
	Followee timeline.UserID `json:"followee"`
}

// Store holds profiles, follow edges and comments in memory.
// It satisfies ProfileLookup, GraphLookup and ContentLookup with the same
// ordering guarantees as the database-backed stores.
type Store struct {
	mu           sync.RWMutex
	users        map[timeline.UserID]User
	follows      []Follow
	content      map[string]timeline.ContentItem
	minFollowers int
}

// NewStore creates an empty store. A user with at least minFollowers followers
// counts as high fan-out; 0 leaves the decision to the user's flag alone.
func NewStore(minFollowers int) *Store {
	return &Store{
		users:        make(map[timeline.UserID]User),
		content:      make(map[string]timeline.ContentItem),
		minFollowers: minFollowers,
	}
}

// PutUser adds or replaces a user record.
func (s *Store) PutUser(user User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Name] = user
}

// AddFollow records that follower follows followee. Duplicate edges are ignored.
func (s *Store) AddFollow(follower, followee timeline.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	edge := Follow{Follower: follower, Followee: followee}
	if slices.Contains(s.follows, edge) {
		return
	}
	s.follows = append(s.follows, edge)
}

// PutContent adds or replaces a comment.
func (s *Store) PutContent(items ...timeline.ContentItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.content[item.ID] = item
	}
}

// GetProfile implements timeline.ProfileLookup.
func (s *Store) GetProfile(ctx context.Context, userID timeline.UserID) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok || user.Profile == "" {
		return "", false, nil
	}
	return user.Profile, true, nil
}

// GetFollowers implements timeline.GraphLookup.
func (s *Store) GetFollowers(ctx context.Context, userID timeline.UserID) ([]timeline.FollowerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var followers []timeline.FollowerEntry
	for _, edge := range s.follows {
		if edge.Followee != userID {
			continue
		}
		followers = append(followers, timeline.FollowerEntry{
			Name:    edge.Follower,
			Profile: s.users[edge.Follower].Profile,
		})
	}

	timeline.SortFollowers(followers)
	return followers, nil
}

// GetFollowees implements timeline.GraphLookup.
func (s *Store) GetFollowees(ctx context.Context, userID timeline.UserID) ([]timeline.UserID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var followees []timeline.UserID
	for _, edge := range s.follows {
		if edge.Follower == userID {
			followees = append(followees, edge.Followee)
		}
	}
	return followees, nil
}

// IsHighFanout implements timeline.GraphLookup.
func (s *Store) IsHighFanout(ctx context.Context, userID timeline.UserID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.users[userID].HighFanout {
		return true, nil
	}
	if s.minFollowers <= 0 {
		return false, nil
	}

	count := 0
	for _, edge := range s.follows {
		if edge.Followee == userID {
			count++
		}
	}
	return count >= s.minFollowers, nil
}

// GetTopByAuthors implements timeline.ContentLookup.
func (s *Store) GetTopByAuthors(ctx context.Context, authors []timeline.UserID, limit int) ([]timeline.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wanted := make(map[timeline.UserID]struct{}, len(authors))
	for _, author := range authors {
		wanted[author] = struct{}{}
	}

	items := s.collect(func(item timeline.ContentItem) bool {
		_, ok := wanted[item.AuthorID]
		return ok
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// GetByAuthor implements timeline.ContentLookup.
func (s *Store) GetByAuthor(ctx context.Context, author timeline.UserID) ([]timeline.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.collect(func(item timeline.ContentItem) bool {
		return item.AuthorID == author
	}), nil
}

// GetByID implements timeline.ContentLookup.
func (s *Store) GetByID(ctx context.Context, id string) (timeline.ContentItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return timeline.ContentItem{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.content[id]
	return item, ok, nil
}

// collect returns the matching comments in timeline order.
func (s *Store) collect(match func(timeline.ContentItem) bool) []timeline.ContentItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []timeline.ContentItem
	for _, id := range slices.Sorted(maps.Keys(s.content)) {
		if item := s.content[id]; match(item) {
			items = append(items, item)
		}
	}

	timeline.SortContent(items)
	return items
}
