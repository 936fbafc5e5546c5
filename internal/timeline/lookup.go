package timeline

import "context"

// ProfileLookup resolves a user's profile image URL from the identity store.
type ProfileLookup interface {
	// GetProfile returns the profile image URL and whether the user exists.
	GetProfile(ctx context.Context, userID UserID) (string, bool, error)
}

// GraphLookup answers follower questions from the social graph store.
type GraphLookup interface {
	// GetFollowers returns the users following userID, ordered ascending by name.
	GetFollowers(ctx context.Context, userID UserID) ([]FollowerEntry, error)
	// GetFollowees returns the users that userID follows.
	GetFollowees(ctx context.Context, userID UserID) ([]UserID, error)
	// IsHighFanout reports whether userID is popular enough to have its timeline cached.
	IsHighFanout(ctx context.Context, userID UserID) (bool, error)
}

// ContentLookup reads comments from the content store.
//
// Every multi-item method returns items ordered by ups descending, then
// timestamp descending, then id ascending.
type ContentLookup interface {
	// GetTopByAuthors returns at most limit comments written by any of authorIDs.
	GetTopByAuthors(ctx context.Context, authorIDs []UserID, limit int) ([]ContentItem, error)
	// GetByAuthor returns every comment written by authorID.
	GetByAuthor(ctx context.Context, authorID UserID) ([]ContentItem, error)
	// GetByID returns the comment with the given id and whether it exists.
	GetByID(ctx context.Context, contentID string) (ContentItem, bool, error)
}

// ResultCache memoizes encoded payloads for admitted users.
type ResultCache interface {
	Get(ctx context.Context, key UserID) ([]byte, bool)
	Put(ctx context.Context, key UserID, value []byte)
	Admit(ctx context.Context, key UserID) bool
}
