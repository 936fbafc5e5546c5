package migrations_test

import (
	"testing"

	"github.com/robalyx/timeline/internal/database/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	t.Parallel()

	profiles, err := migrations.For(migrations.ProfileDB)
	require.NoError(t, err)
	assert.Same(t, migrations.Profiles, profiles)

	content, err := migrations.For(migrations.ContentDB)
	require.NoError(t, err)
	assert.Same(t, migrations.Content, content)

	_, err = migrations.For("graph")
	require.ErrorIs(t, err, migrations.ErrUnknownStore)
}

func TestStoresOwnTheirTables(t *testing.T) {
	t.Parallel()

	profiles := migrations.Profiles.Sorted()
	content := migrations.Content.Sorted()

	require.Len(t, profiles, 1)
	assert.Equal(t, "profiles", profiles[0].Comment)

	require.Len(t, content, 2)
	assert.Equal(t, "posts", content[0].Comment)
	assert.Equal(t, "post_indexes", content[1].Comment)
}

func TestGoTemplate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		store string
		want  string
	}{
		{store: migrations.ProfileDB, want: "Profiles.MustRegister("},
		{store: migrations.ContentDB, want: "Content.MustRegister("},
	}

	for _, tt := range tests {
		t.Run(tt.store, func(t *testing.T) {
			t.Parallel()

			tmpl := migrations.GoTemplate(tt.store)
			assert.Contains(t, tmpl, tt.want)
			assert.Contains(t, tmpl, "package %s")
		})
	}
}
