package migrations

import (
	"errors"
	"fmt"

	"github.com/uptrace/bun/migrate"
)

// Store names, matching the config sections of the two PostgreSQL databases.
const (
	ProfileDB = "profile_db"
	ContentDB = "content_db"
)

// ErrUnknownStore is returned by For when no migration set exists for a store name.
var ErrUnknownStore = errors.New("no migrations for store")

var (
	// Profiles holds the migrations of the identity store.
	Profiles = migrate.NewMigrations() //nolint:gochecknoglobals // -
	// Content holds the migrations of the comment store.
	Content = migrate.NewMigrations() //nolint:gochecknoglobals // -
)

// For returns the migration set of the named store.
func For(store string) (*migrate.Migrations, error) {
	switch store {
	case ProfileDB:
		return Profiles, nil
	case ContentDB:
		return Content, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, store)
	}
}

// GoTemplate returns the source template of a new Go migration registered on the
// named store's set. The package name is substituted for %s.
func GoTemplate(store string) string {
	set := "Content"
	if store == ProfileDB {
		set = "Profiles"
	}

	return `package %s

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	` + set + `.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Print(" [up migration] ")
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Print(" [down migration] ")
		return nil
	})
}
`
}
