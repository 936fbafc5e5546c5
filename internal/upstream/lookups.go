package upstream

import (
	"context"

	"github.com/robalyx/timeline/internal/timeline"
)

// found carries the result of a point lookup through Do.
type found[T any] struct {
	value T
	ok    bool
}

// ProfileLookup guards a timeline.ProfileLookup.
type ProfileLookup struct {
	next  timeline.ProfileLookup
	guard *Guard
}

// NewProfileLookup wraps next with guard.
func NewProfileLookup(next timeline.ProfileLookup, guard *Guard) *ProfileLookup {
	return &ProfileLookup{next: next, guard: guard}
}

// GetProfile implements timeline.ProfileLookup.
func (p *ProfileLookup) GetProfile(ctx context.Context, userID timeline.UserID) (string, bool, error) {
	res, err := Do(ctx, p.guard, "GetProfile", func(ctx context.Context) (found[string], error) {
		url, ok, err := p.next.GetProfile(ctx, userID)
		return found[string]{value: url, ok: ok}, err
	})
	return res.value, res.ok, err
}

// GraphLookup guards a timeline.GraphLookup.
type GraphLookup struct {
	next  timeline.GraphLookup
	guard *Guard
}

// NewGraphLookup wraps next with guard.
func NewGraphLookup(next timeline.GraphLookup, guard *Guard) *GraphLookup {
	return &GraphLookup{next: next, guard: guard}
}

// GetFollowers implements timeline.GraphLookup.
func (g *GraphLookup) GetFollowers(ctx context.Context, userID timeline.UserID) ([]timeline.FollowerEntry, error) {
	return Do(ctx, g.guard, "GetFollowers", func(ctx context.Context) ([]timeline.FollowerEntry, error) {
		return g.next.GetFollowers(ctx, userID)
	})
}

// GetFollowees implements timeline.GraphLookup.
func (g *GraphLookup) GetFollowees(ctx context.Context, userID timeline.UserID) ([]timeline.UserID, error) {
	return Do(ctx, g.guard, "GetFollowees", func(ctx context.Context) ([]timeline.UserID, error) {
		return g.next.GetFollowees(ctx, userID)
	})
}

// IsHighFanout implements timeline.GraphLookup.
func (g *GraphLookup) IsHighFanout(ctx context.Context, userID timeline.UserID) (bool, error) {
	return Do(ctx, g.guard, "IsHighFanout", func(ctx context.Context) (bool, error) {
		return g.next.IsHighFanout(ctx, userID)
	})
}

// ContentLookup guards a timeline.ContentLookup.
type ContentLookup struct {
	next  timeline.ContentLookup
	guard *Guard
}

// NewContentLookup wraps next with guard.
func NewContentLookup(next timeline.ContentLookup, guard *Guard) *ContentLookup {
	return &ContentLookup{next: next, guard: guard}
}

// GetTopByAuthors implements timeline.ContentLookup.
func (c *ContentLookup) GetTopByAuthors(
	ctx context.Context, authorIDs []timeline.UserID, limit int,
) ([]timeline.ContentItem, error) {
	return Do(ctx, c.guard, "GetTopByAuthors", func(ctx context.Context) ([]timeline.ContentItem, error) {
		return c.next.GetTopByAuthors(ctx, authorIDs, limit)
	})
}

// GetByAuthor implements timeline.ContentLookup.
func (c *ContentLookup) GetByAuthor(ctx context.Context, authorID timeline.UserID) ([]timeline.ContentItem, error) {
	return Do(ctx, c.guard, "GetByAuthor", func(ctx context.Context) ([]timeline.ContentItem, error) {
		return c.next.GetByAuthor(ctx, authorID)
	})
}

// GetByID implements timeline.ContentLookup.
func (c *ContentLookup) GetByID(ctx context.Context, contentID string) (timeline.ContentItem, bool, error) {
	res, err := Do(ctx, c.guard, "GetByID", func(ctx context.Context) (found[timeline.ContentItem], error) {
		item, ok, err := c.next.GetByID(ctx, contentID)
		return found[timeline.ContentItem]{value: item, ok: ok}, err
	})
	return res.value, res.ok, err
}
