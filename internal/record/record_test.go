package record

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomic-vcs/atomic/internal/channel"
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/patchstore"
	"github.com/atomic-vcs/atomic/internal/project"
	"github.com/atomic-vcs/atomic/internal/store"
)

type testRepo struct {
	env  *store.Env
	ps   *patchstore.Store
	root string
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	dir := t.TempDir()

	env, err := store.Open(filepath.Join(dir, "pristine"))
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })

	ps, err := patchstore.Open(filepath.Join(dir, "changes"))
	require.NoError(t, err)

	root := filepath.Join(dir, "work")
	require.NoError(t, os.MkdirAll(root, 0o755))

	require.NoError(t, env.Update(func(txn *store.Txn) error {
		_, err := channel.Create(txn, "main")
		return err
	}))

	return &testRepo{env: env, ps: ps, root: root}
}

func (r *testRepo) writeFile(t *testing.T, relPath, content string) {
	t.Helper()
	full := filepath.Join(r.root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func (r *testRepo) record(t *testing.T, message string) *patch.Patch {
	t.Helper()
	var p *patch.Patch
	require.NoError(t, r.env.Update(func(txn *store.Txn) error {
		var err error
		p, _, err = Record(txn, r.ps, "main", r.root, patch.Header{Message: message}, nil)
		return err
	}))
	return p
}

func (r *testRepo) materialize(t *testing.T) map[string]string {
	t.Helper()
	out := map[string]string{}
	require.NoError(t, r.env.View(func(txn *store.Txn) error {
		files, err := project.Materialize(txn, "main", r.ps)
		if err != nil {
			return err
		}
		for _, f := range files {
			out[f.Path] = string(f.Bytes)
		}
		return nil
	}))
	return out
}

func TestRecordAddFile(t *testing.T) {
	r := newTestRepo(t)
	r.writeFile(t, "hello.txt", "hello world\n")

	p := r.record(t, "add hello")
	require.NotNil(t, p)

	files := r.materialize(t)
	assert.Equal(t, "hello world\n", files["hello.txt"])
}

func TestRecordNothingChangedReturnsNilPatch(t *testing.T) {
	r := newTestRepo(t)
	r.writeFile(t, "hello.txt", "hello world\n")
	require.NotNil(t, r.record(t, "add hello"))

	p := r.record(t, "no-op")
	assert.Nil(t, p)
}

func TestRecordEditFile(t *testing.T) {
	r := newTestRepo(t)
	r.writeFile(t, "hello.txt", "line one\nline two\nline three\n")
	require.NotNil(t, r.record(t, "add hello"))

	r.writeFile(t, "hello.txt", "line one\nline TWO\nline three\nline four\n")
	p := r.record(t, "edit hello")
	require.NotNil(t, p)

	files := r.materialize(t)
	assert.Equal(t, "line one\nline TWO\nline three\nline four\n", files["hello.txt"])
}

func TestRecordDeleteFile(t *testing.T) {
	r := newTestRepo(t)
	r.writeFile(t, "hello.txt", "hello world\n")
	require.NotNil(t, r.record(t, "add hello"))

	require.NoError(t, os.Remove(filepath.Join(r.root, "hello.txt")))
	p := r.record(t, "delete hello")
	require.NotNil(t, p)

	files := r.materialize(t)
	_, exists := files["hello.txt"]
	assert.False(t, exists)
}

func TestRecordMoveFile(t *testing.T) {
	r := newTestRepo(t)
	r.writeFile(t, "old.txt", "contents\n")
	require.NotNil(t, r.record(t, "add old"))

	require.NoError(t, os.Rename(
		filepath.Join(r.root, "old.txt"),
		filepath.Join(r.root, "new.txt"),
	))
	p := r.record(t, "rename old to new")
	require.NotNil(t, p)

	files := r.materialize(t)
	assert.Equal(t, "contents\n", files["new.txt"])
	_, oldExists := files["old.txt"]
	assert.False(t, oldExists)
}

func TestRecordMultipleFilesIndependentDependencies(t *testing.T) {
	r := newTestRepo(t)
	r.writeFile(t, "a.txt", "A\n")
	pa := r.record(t, "add a")
	require.NotNil(t, pa)

	r.writeFile(t, "b.txt", "B\n")
	pb := r.record(t, "add b")
	require.NotNil(t, pb)

	files := r.materialize(t)
	assert.Equal(t, "A\n", files["a.txt"])
	assert.Equal(t, "B\n", files["b.txt"])

	// b's patch only needs to depend on whatever vertices it actually
	// touched; adding an unrelated file does not transitively pull in a's hash.
	assert.NotContains(t, pb.Dependencies, pa.Hash)
}
