package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robalyx/timeline/internal/database/dbretry"
	"github.com/robalyx/timeline/internal/database/types"
	"github.com/robalyx/timeline/internal/timeline"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ProfileModel handles database operations for user profiles.
type ProfileModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewProfile creates a new profile model.
func NewProfile(db *bun.DB, logger *zap.Logger) *ProfileModel {
	return &ProfileModel{
		db:     db,
		logger: logger.Named("db_profile"),
	}
}

// GetProfile returns the profile image URL of a user.
// A missing user or an empty URL reports not found.
func (r *ProfileModel) GetProfile(ctx context.Context, userID timeline.UserID) (string, bool, error) {
	var url string
	err := r.profileQuery(userID).Scan(ctx, &url)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get profile: %w", err)
	}

	return url, url != "", nil
}

func (r *ProfileModel) profileQuery(userID timeline.UserID) *bun.SelectQuery {
	return r.db.NewSelect().
		Model((*types.Profile)(nil)).
		Column("profile_url").
		Where("username = ?", string(userID)).
		Limit(1)
}

// SaveProfiles inserts or updates user profiles.
func (r *ProfileModel) SaveProfiles(ctx context.Context, profiles []*types.Profile) error {
	if len(profiles) == 0 {
		return nil
	}

	now := time.Now()
	for _, profile := range profiles {
		profile.UpdatedAt = now
	}

	err := dbretry.Transaction(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&profiles).
			On("CONFLICT (username) DO UPDATE").
			Set("profile_url = EXCLUDED.profile_url").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save profiles: %w", err)
	}

	r.logger.Debug("Saved profiles", zap.Int("count", len(profiles)))

	return nil
}
