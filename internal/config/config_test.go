package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHasSaneBaseline(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "main", cfg.Channel.Default)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotNil(t, cfg.Remotes)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.Channel.Default = "dev"
	cfg.Log.Level = "debug"
	cfg.Remotes["origin"] = RemoteConfig{Carrier: "http", Address: "https://example.invalid/repo"}

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dev", loaded.Channel.Default)
	assert.Equal(t, "debug", loaded.Log.Level)
	assert.Equal(t, RemoteConfig{Carrier: "http", Address: "https://example.invalid/repo"}, loaded.Remotes["origin"])
}

func TestLoadMissingExplicitFileErrors(t *testing.T) {
	dir := t.TempDir()

	loaded, err := Load(filepath.Join(dir, "does-not-exist.yaml"))
	require.Error(t, err)
	assert.Nil(t, loaded)
}

func TestLoadEmptySearchesStandardPathsAndDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	loaded, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "main", loaded.Channel.Default)
}
