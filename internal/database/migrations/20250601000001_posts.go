package migrations

import (
	"context"
	"fmt"

	"github.com/robalyx/timeline/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Content.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewCreateTable().
			Model((*types.Post)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create posts table: %w", err)
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewDropTable().
			Model((*types.Post)(nil)).
			IfExists().
			Cascade().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop posts table: %w", err)
		}
		return nil
	})
}
