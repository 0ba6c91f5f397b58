package worktree_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomic-vcs/atomic/internal/project"
	"github.com/atomic-vcs/atomic/internal/worktree"
)

func TestWriteMaterializesFiles(t *testing.T) {
	dir := t.TempDir()

	files := []project.File{
		{Path: "hello.txt", Bytes: []byte("hello\n")},
		{Path: "nested/dir/file.txt", Bytes: []byte("nested\n")},
	}

	require.NoError(t, worktree.Write(dir, files))

	got, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(got))

	got, err = os.ReadFile(filepath.Join(dir, "nested/dir/file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested\n", string(got))
}

func buildTarGz(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestExtractArchiveWritesAllEntries(t *testing.T) {
	dir := t.TempDir()
	archive := buildTarGz(t, map[string]string{
		"a.txt":          "A\n",
		"sub/b.txt":      "B\n",
		"sub/sub2/c.txt": "C\n",
	})

	require.NoError(t, worktree.ExtractArchive(dir, bytes.NewReader(archive)))

	for path, want := range map[string]string{
		"a.txt":          "A\n",
		"sub/b.txt":      "B\n",
		"sub/sub2/c.txt": "C\n",
	} {
		got, err := os.ReadFile(filepath.Join(dir, path))
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}

func TestExtractArchiveRejectsNonGzip(t *testing.T) {
	dir := t.TempDir()
	err := worktree.ExtractArchive(dir, bytes.NewReader([]byte("not a gzip stream")))
	assert.Error(t, err)
}
