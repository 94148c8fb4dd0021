package config

import (
	"os"
	"path/filepath"
	"testing"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: Europe/Paris
vault:
  path: /notes
calendar:
  name: Work
caldav:
  enabled: true
  url: https://dav.example.com/cal/tasks.ics
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Europe/Paris", cfg.Timezone)
	assert.Equal(t, "/notes", cfg.Vault.Path)
	assert.True(t, cfg.Vault.IgnoreCompleted)
	assert.Equal(t, "Work", cfg.Calendar.Name)
	assert.Equal(t, "-//taskcal//EN", cfg.Calendar.ProdID)
	assert.Equal(t, "ONLINE", cfg.Calendar.DefaultLocation)
	assert.True(t, cfg.Calendar.Verify)
	assert.True(t, cfg.CalDAV.Enabled)
	assert.Equal(t, "*/15 * * * *", cfg.RefreshCron)
	assert.NoError(t, cfg.Validate())
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vault: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	assert.EqualError(t, err, "config path is empty")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RefreshCron = "every now and then"
	cfg.Timezone = "Mars/Colony"
	cfg.CalDAV.Enabled = true
	cfg.Gist.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "refresh:")
	assert.ErrorContains(t, err, "timezone:")
	assert.ErrorContains(t, err, "caldav: url is required")
	assert.ErrorContains(t, err, "gist: gist_id and token are required")

	assert.NoError(t, DefaultConfig().Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Gist = GistSinkConfig{Enabled: true, GistID: "abc", Token: "tok"}
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}

	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tasks.ics", got.Gist.Filename)
	assert.Equal(t, cfg, got)
}
