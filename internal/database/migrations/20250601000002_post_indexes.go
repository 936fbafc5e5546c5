package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Content.MustRegister(func(ctx context.Context, db *bun.DB) error {
		indexes := []string{
			// Serves the top comments of a set of authors in timeline order
			`CREATE INDEX IF NOT EXISTS idx_posts_uid_rank
			ON posts (uid, ups DESC, "timestamp" DESC, cid COLLATE "C")`,

			// Serves reply lookups
			`CREATE INDEX IF NOT EXISTS idx_posts_parent_id
			ON posts (parent_id) WHERE parent_id IS NOT NULL`,
		}

		for _, index := range indexes {
			if _, err := db.NewRaw(index).Exec(ctx); err != nil {
				return fmt.Errorf("failed to create index: %w", err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewRaw(`DROP INDEX IF EXISTS idx_posts_uid_rank, idx_posts_parent_id`).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop indexes: %w", err)
		}
		return nil
	})
}
