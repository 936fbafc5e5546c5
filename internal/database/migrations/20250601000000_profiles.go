package migrations

import (
	"context"
	"fmt"

	"github.com/robalyx/timeline/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Profiles.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewCreateTable().
			Model((*types.Profile)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create profiles table: %w", err)
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewDropTable().
			Model((*types.Profile)(nil)).
			IfExists().
			Cascade().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop profiles table: %w", err)
		}
		return nil
	})
}
