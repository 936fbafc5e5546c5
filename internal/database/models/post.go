package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/robalyx/timeline/internal/database/dbretry"
	"github.com/robalyx/timeline/internal/database/types"
	"github.com/robalyx/timeline/internal/timeline"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// PostModel handles database operations for comments.
type PostModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewPost creates a new post model.
func NewPost(db *bun.DB, logger *zap.Logger) *PostModel {
	return &PostModel{
		db:     db,
		logger: logger.Named("db_post"),
	}
}

// GetTopByAuthors returns the best comments written by any of authorIDs.
func (r *PostModel) GetTopByAuthors(
	ctx context.Context, authorIDs []timeline.UserID, limit int,
) ([]timeline.ContentItem, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}

	var posts []*types.Post
	if err := r.topByAuthorsQuery(authorIDs, limit).Scan(ctx, &posts); err != nil {
		return nil, fmt.Errorf("failed to get top posts: %w", err)
	}

	return contentItems(posts), nil
}

// GetByAuthor returns every comment written by authorID.
func (r *PostModel) GetByAuthor(ctx context.Context, authorID timeline.UserID) ([]timeline.ContentItem, error) {
	var posts []*types.Post
	if err := r.byAuthorQuery(authorID).Scan(ctx, &posts); err != nil {
		return nil, fmt.Errorf("failed to get posts by author: %w", err)
	}

	return contentItems(posts), nil
}

// GetByID returns a single comment.
func (r *PostModel) GetByID(ctx context.Context, contentID string) (timeline.ContentItem, bool, error) {
	var post types.Post
	err := r.db.NewSelect().
		Model(&post).
		Where("cid = ?", contentID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return timeline.ContentItem{}, false, nil
		}
		return timeline.ContentItem{}, false, fmt.Errorf("failed to get post: %w", err)
	}

	return post.ContentItem(), true, nil
}

// SavePosts inserts or replaces comments.
func (r *PostModel) SavePosts(ctx context.Context, posts []*types.Post) error {
	if len(posts) == 0 {
		return nil
	}

	err := dbretry.Transaction(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&posts).
			On("CONFLICT (cid) DO UPDATE").
			Set("uid = EXCLUDED.uid").
			Set("ups = EXCLUDED.ups").
			Set(`"timestamp" = EXCLUDED."timestamp"`).
			Set("parent_id = EXCLUDED.parent_id").
			Set("extra = EXCLUDED.extra").
			Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save posts: %w", err)
	}

	r.logger.Debug("Saved posts", zap.Int("count", len(posts)))

	return nil
}

func (r *PostModel) topByAuthorsQuery(authorIDs []timeline.UserID, limit int) *bun.SelectQuery {
	ids := make([]string, len(authorIDs))
	for i, id := range authorIDs {
		ids[i] = string(id)
	}

	return orderByRank(r.db.NewSelect().
		Model((*types.Post)(nil)).
		Where("uid IN (?)", bun.In(ids))).
		Limit(limit)
}

func (r *PostModel) byAuthorQuery(authorID timeline.UserID) *bun.SelectQuery {
	return orderByRank(r.db.NewSelect().
		Model((*types.Post)(nil)).
		Where("uid = ?", string(authorID)))
}

// orderByRank applies the timeline ordering. cid is compared bytewise to make it total.
func orderByRank(q *bun.SelectQuery) *bun.SelectQuery {
	return q.OrderExpr(`ups DESC, "timestamp" DESC, cid COLLATE "C" ASC`)
}

func contentItems(posts []*types.Post) []timeline.ContentItem {
	items := make([]timeline.ContentItem, 0, len(posts))
	for _, post := range posts {
		items = append(items, post.ContentItem())
	}
	return items
}
