package repo_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomic-vcs/atomic/internal/config"
	"github.com/atomic-vcs/atomic/internal/errs"
	"github.com/atomic-vcs/atomic/internal/repo"
)

func TestInitCreatesLayoutAndOpens(t *testing.T) {
	dir := t.TempDir()

	r, err := repo.Init(dir)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, dir, r.Root)
	assert.Equal(t, "main", r.Config.Channel.Default)

	for _, p := range []string{".atomic", ".atomic/config.toml"} {
		_, statErr := os.Stat(filepath.Join(dir, p))
		assert.NoError(t, statErr, p)
	}
}

func TestInitTwiceFails(t *testing.T) {
	dir := t.TempDir()

	r, err := repo.Init(dir)
	require.NoError(t, err)
	r.Close()

	_, err = repo.Init(dir)
	assert.Error(t, err)
}

func TestDiscoverWalksUpToRoot(t *testing.T) {
	dir := t.TempDir()
	r, err := repo.Init(dir)
	require.NoError(t, err)
	r.Close()

	nested := filepath.Join(dir, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := repo.Discover(nested)
	require.NoError(t, err)
	assert.Equal(t, dir, found)
}

func TestDiscoverFailsWithoutAtomicDir(t *testing.T) {
	dir := t.TempDir()

	_, err := repo.Discover(dir)
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestOpenFromNestedDirReusesConfig(t *testing.T) {
	dir := t.TempDir()
	r, err := repo.Init(dir)
	require.NoError(t, err)
	r.Config.Channel.Default = "dev"
	require.NoError(t, r.Close())

	// Init only wrote the default config once; simulate a user editing
	// it by re-saving through the same path Init used.
	cfgPath := filepath.Join(dir, ".atomic", "config.toml")
	require.NoError(t, config.Save(r.Config, cfgPath))
	raw, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	nested := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	opened, err := repo.Open(nested)
	require.NoError(t, err)
	defer opened.Close()
	assert.Equal(t, dir, opened.Root)
	assert.Equal(t, "dev", opened.Config.Channel.Default)
}
