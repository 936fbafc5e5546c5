package database

import (
	"github.com/robalyx/timeline/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	profile *models.ProfileModel
	post    *models.PostModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		profile: models.NewProfile(db, logger),
		post:    models.NewPost(db, logger),
	}
}

// Profile returns the profile model repository.
func (r *Repository) Profile() *models.ProfileModel {
	return r.profile
}

// Post returns the post model repository.
func (r *Repository) Post() *models.PostModel {
	return r.post
}
