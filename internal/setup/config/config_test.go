package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/robalyx/timeline/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const commonTOML = `
[common]
version = 1

[common.debug]
log_level = "debug"

[common.profile_db]
host = "profiles.internal"
port = 5432
password = "from-file"

[common.graph]
path = "graph.db"
high_fanout_min_followers = 50
`

const timelineTOML = `
[timeline]
version = 1

[timeline.aggregator]
comment_limit = 30
max_in_flight = 4

[timeline.cache]
backend = "redis"
ttl = 60
`

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".toml"), []byte(content), 0o600))
}

func TestLoadConfigFrom(t *testing.T) {
	t.Parallel()

	first := t.TempDir()
	second := t.TempDir()
	writeConfig(t, second, "common", commonTOML)
	writeConfig(t, second, "timeline", timelineTOML)

	cfg, dir, err := config.LoadConfigFrom([]string{first, second})
	require.NoError(t, err)

	assert.Equal(t, second, dir)
	assert.Equal(t, "debug", cfg.Common.Debug.LogLevel)
	assert.Equal(t, "profiles.internal", cfg.Common.ProfileDB.Host)
	assert.Equal(t, 50, cfg.Common.Graph.HighFanoutMinFollowers)
	assert.Equal(t, 4, cfg.Timeline.Aggregator.MaxInFlight)
	assert.Equal(t, config.CacheBackendRedis, cfg.Timeline.Cache.Backend)
	assert.Equal(t, 60, cfg.Timeline.Cache.TTL)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		common   string
		timeline string
		wantErr  error
	}{
		{
			name:    "missing timeline file",
			common:  commonTOML,
			wantErr: config.ErrConfigFileNotFound,
		},
		{
			name:     "missing version",
			common:   "[common.debug]\nlog_level = \"info\"\n",
			timeline: timelineTOML,
			wantErr:  config.ErrConfigVersionMissing,
		},
		{
			name:     "version mismatch",
			common:   commonTOML,
			timeline: "[timeline]\nversion = 7\n",
			wantErr:  config.ErrConfigVersionMismatch,
		},
		{
			name:     "unknown cache backend",
			common:   commonTOML,
			timeline: "[timeline]\nversion = 1\n\n[timeline.cache]\nbackend = \"memcached\"\n",
			wantErr:  config.ErrUnknownCacheBackend,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			if tt.common != "" {
				writeConfig(t, dir, "common", tt.common)
			}
			if tt.timeline != "" {
				writeConfig(t, dir, "timeline", tt.timeline)
			}

			_, _, err := config.LoadConfigFrom([]string{dir})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "common", commonTOML)
	writeConfig(t, dir, "timeline", timelineTOML)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("TIMELINE_REDIS_PASSWORD=from-dotenv\n"), 0o600))

	t.Setenv("TIMELINE_PROFILE_DB_PASSWORD", "from-env")
	t.Setenv("TIMELINE_REDIS_PASSWORD", "")
	os.Unsetenv("TIMELINE_REDIS_PASSWORD")

	cfg, _, err := config.LoadConfigFrom([]string{dir})
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Common.ProfileDB.Password)
	assert.Equal(t, "profiles.internal", cfg.Common.ProfileDB.Host)
	assert.Equal(t, "from-dotenv", cfg.Common.Redis.Password)
}
