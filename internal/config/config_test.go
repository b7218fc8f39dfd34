package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trakt-toggl-sync/internal/domain"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TRAKT_CLIENT_ID", "trakt-id")
	t.Setenv("TRAKT_CLIENT_SECRET", "trakt-secret")
	t.Setenv("TOGGL_API_TOKEN", "toggl-token")
	t.Setenv("TOGGL_WORKSPACE_ID", "456")
	t.Setenv("TOGGL_PROJECT_ID", "123")
	// Isolate from any ambient file or optional vars.
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("TRAKT_HISTORY_DAYS", "")
	t.Setenv("TOGGL_TAGS", "")
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("SYNC_MATCH_GRANULARITY", "")
	t.Setenv("SYNC_MATCH_TOLERANCE", "")
	t.Setenv("SYNC_MAX_DURATION", "")
	t.Setenv("SYNC_DEFAULT_DURATION", "")
}

func TestLoad_RequiredAndDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "trakt-id", cfg.Trakt.ClientID)
	assert.Equal(t, "trakt-secret", cfg.Trakt.ClientSecret)
	assert.Equal(t, int64(456), cfg.Toggl.WorkspaceID)
	assert.Equal(t, int64(123), cfg.Toggl.ProjectID)

	// Defaults
	assert.Equal(t, 7, cfg.Trakt.HistoryDays)
	assert.Equal(t, ".trakt_tokens.json", cfg.Trakt.TokenFile)
	assert.Equal(t, "https://api.trakt.tv", cfg.Trakt.BaseURL)
	assert.Equal(t, "https://api.track.toggl.com", cfg.Toggl.BaseURL)
	assert.Equal(t, time.Minute, cfg.Sync.MatchGranularity)
	assert.Equal(t, 2*time.Minute, cfg.Sync.MatchTolerance)
	assert.Equal(t, 6*time.Hour, cfg.Sync.MaxDuration)
	assert.Equal(t, time.Duration(0), cfg.Sync.DefaultDuration)
	assert.Empty(t, cfg.MySQL.DSN)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRAKT_HISTORY_DAYS", "14")
	t.Setenv("TOGGL_TAGS", "trakt, tv ,movies")
	t.Setenv("SYNC_MATCH_GRANULARITY", "30s")
	t.Setenv("SYNC_MAX_DURATION", "4h")
	t.Setenv("MYSQL_DSN", "user:pass@tcp(db:3306)/sync?parseTime=true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 14, cfg.Trakt.HistoryDays)
	assert.Equal(t, []string{"trakt", "tv", "movies"}, cfg.Toggl.Tags)
	assert.Equal(t, 30*time.Second, cfg.Sync.MatchGranularity)
	assert.Equal(t, 4*time.Hour, cfg.Sync.MaxDuration)
	assert.Equal(t, "user:pass@tcp(db:3306)/sync?parseTime=true", cfg.MySQL.DSN)
}

func TestLoad_MissingRequiredIsConfigError(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOGGL_API_TOKEN", "")

	_, err := Load()
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "TOGGL_API_TOKEN")
}

func TestLoad_InvalidWindowRejected(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRAKT_HISTORY_DAYS", "0")

	_, err := Load()
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "TRAKT_HISTORY_DAYS")
}

func TestLoad_ConfigFileLayeredUnderEnv(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
trakt:
  history_days: 21
toggl:
  base_url: https://toggl.example.test
`), 0o600))
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("TRAKT_HISTORY_DAYS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	// Env beats the file; the file beats defaults.
	assert.Equal(t, 3, cfg.Trakt.HistoryDays)
	assert.Equal(t, "https://toggl.example.test", cfg.Toggl.BaseURL)
}
