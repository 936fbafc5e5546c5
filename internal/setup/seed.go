package setup

import (
	"context"
	"fmt"

	"github.com/robalyx/timeline/internal/database/types"
	"github.com/robalyx/timeline/internal/graph"
	"github.com/robalyx/timeline/internal/store/memory"
	"go.uber.org/zap"
)

// ProfileSaver persists identity store records.
type ProfileSaver interface {
	SaveProfiles(ctx context.Context, profiles []*types.Profile) error
}

// PostSaver persists content store records.
type PostSaver interface {
	SavePosts(ctx context.Context, posts []*types.Post) error
}

// GraphSaver persists users and follow edges of the graph store.
type GraphSaver interface {
	SaveUsers(ctx context.Context, users []graph.User) error
	SaveFollows(ctx context.Context, follows []graph.Follow) error
}

// SeedCounts reports how many records Seed wrote to each store.
type SeedCounts struct {
	Profiles int
	Posts    int
	Follows  int
}

// Seed writes a fixture into the three backing stores. Users without a profile
// URL are kept out of the identity store so that they resolve to the sentinel.
func Seed(
	ctx context.Context, fixture *memory.Fixture,
	profiles ProfileSaver, posts PostSaver, graphStore GraphSaver, logger *zap.Logger,
) (SeedCounts, error) {
	var counts SeedCounts

	profileRows := make([]*types.Profile, 0, len(fixture.Users))
	graphUsers := make([]graph.User, 0, len(fixture.Users))

	for _, user := range fixture.Users {
		graphUsers = append(graphUsers, graph.User{
			Name:       user.Name,
			ProfileURL: user.Profile,
			HighFanout: user.HighFanout,
		})

		if user.Profile != "" {
			profileRows = append(profileRows, &types.Profile{
				Username:   string(user.Name),
				ProfileURL: user.Profile,
			})
		}
	}

	follows := make([]graph.Follow, 0, len(fixture.Follows))
	for _, edge := range fixture.Follows {
		follows = append(follows, graph.Follow{Follower: edge.Follower, Followee: edge.Followee})
	}

	postRows := make([]*types.Post, 0, len(fixture.Comments))
	for _, item := range fixture.Comments {
		postRows = append(postRows, types.NewPost(item))
	}

	if err := graphStore.SaveUsers(ctx, graphUsers); err != nil {
		return counts, fmt.Errorf("failed to seed graph users: %w", err)
	}

	if err := graphStore.SaveFollows(ctx, follows); err != nil {
		return counts, fmt.Errorf("failed to seed follows: %w", err)
	}
	counts.Follows = len(follows)

	if err := profiles.SaveProfiles(ctx, profileRows); err != nil {
		return counts, fmt.Errorf("failed to seed profiles: %w", err)
	}
	counts.Profiles = len(profileRows)

	if err := posts.SavePosts(ctx, postRows); err != nil {
		return counts, fmt.Errorf("failed to seed posts: %w", err)
	}
	counts.Posts = len(postRows)

	logger.Info("Seeded stores",
		zap.Int("profiles", counts.Profiles),
		zap.Int("posts", counts.Posts),
		zap.Int("follows", counts.Follows))

	return counts, nil
}
