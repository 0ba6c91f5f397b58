package project_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomic-vcs/atomic/internal/apply"
	"github.com/atomic-vcs/atomic/internal/channel"
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/patchstore"
	"github.com/atomic-vcs/atomic/internal/project"
	"github.com/atomic-vcs/atomic/internal/record"
	"github.com/atomic-vcs/atomic/internal/store"
)

type testRepo struct {
	env *store.Env
	ps  *patchstore.Store
}

func newTestRepo(t *testing.T, channels ...string) *testRepo {
	t.Helper()
	dir := t.TempDir()

	env, err := store.Open(filepath.Join(dir, "pristine"))
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })

	ps, err := patchstore.Open(filepath.Join(dir, "changes"))
	require.NoError(t, err)

	require.NoError(t, env.Update(func(txn *store.Txn) error {
		for _, ch := range channels {
			if _, err := channel.Create(txn, ch); err != nil {
				return err
			}
		}
		return nil
	}))

	return &testRepo{env: env, ps: ps}
}

func (r *testRepo) record(t *testing.T, ch, root, message string) *patch.Patch {
	t.Helper()
	var p *patch.Patch
	require.NoError(t, r.env.Update(func(txn *store.Txn) error {
		var err error
		p, _, err = record.Record(txn, r.ps, ch, root, patch.Header{Message: message}, nil)
		return err
	}))
	return p
}

func (r *testRepo) apply(t *testing.T, ch string, p *patch.Patch) {
	t.Helper()
	require.NoError(t, r.env.Update(func(txn *store.Txn) error {
		_, err := apply.Apply(txn, r.ps, ch, p)
		return err
	}))
}

func (r *testRepo) materialize(t *testing.T, ch string) map[string]project.File {
	t.Helper()
	out := map[string]project.File{}
	require.NoError(t, r.env.View(func(txn *store.Txn) error {
		files, err := project.Materialize(txn, ch, r.ps)
		if err != nil {
			return err
		}
		for _, f := range files {
			out[f.Path] = f
		}
		return nil
	}))
	return out
}

func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestMaterializeSingleChainNoConflict(t *testing.T) {
	r := newTestRepo(t, "main")
	root := t.TempDir()

	writeFile(t, root, "hello.txt", "line one\n")
	require.NotNil(t, r.record(t, "main", root, "add hello"))

	writeFile(t, root, "hello.txt", "line one\nline two\n")
	require.NotNil(t, r.record(t, "main", root, "edit hello"))

	files := r.materialize(t, "main")
	f, ok := files["hello.txt"]
	require.True(t, ok)
	assert.False(t, f.Conflict)
	assert.Equal(t, "line one\nline two\n", string(f.Bytes))
}

// TestMaterializeForkedEditsProduceConflict builds two channels sharing
// a common ancestor patch, edits the same file divergently on each,
// then applies the second channel's edit onto the first: neither edit
// depends on the other, so the file now has two alive branches and
// Materialize must render it as a conflict instead of picking one.
func TestMaterializeForkedEditsProduceConflict(t *testing.T) {
	r := newTestRepo(t, "main", "fork")
	rootMain := t.TempDir()
	rootFork := t.TempDir()

	writeFile(t, rootMain, "hello.txt", "line one\n")
	add := r.record(t, "main", rootMain, "add hello")
	require.NotNil(t, add)

	// replay the common ancestor onto fork so both channels start identical.
	r.apply(t, "fork", add)
	writeFile(t, rootFork, "hello.txt", "line one\n")

	writeFile(t, rootMain, "hello.txt", "line one\nedited on main\n")
	editMain := r.record(t, "main", rootMain, "edit on main")
	require.NotNil(t, editMain)
	assert.Contains(t, editMain.Dependencies, add.Hash)

	writeFile(t, rootFork, "hello.txt", "line one\nedited on fork\n")
	editFork := r.record(t, "fork", rootFork, "edit on fork")
	require.NotNil(t, editFork)
	assert.Contains(t, editFork.Dependencies, add.Hash)

	// bring fork's divergent edit onto main: it only depends on add,
	// which main already has, so Apply accepts it without requiring
	// editMain as a dependency.
	r.apply(t, "main", editFork)

	files := r.materialize(t, "main")
	f, ok := files["hello.txt"]
	require.True(t, ok)
	assert.True(t, f.Conflict)
	assert.Contains(t, string(f.Bytes), "<<<<<<< conflict")
	assert.Contains(t, string(f.Bytes), "edited on main")
	assert.Contains(t, string(f.Bytes), "edited on fork")
}

func TestMaterializeDeletedFileIsAbsent(t *testing.T) {
	r := newTestRepo(t, "main")
	root := t.TempDir()

	writeFile(t, root, "gone.txt", "bye\n")
	require.NotNil(t, r.record(t, "main", root, "add gone"))

	require.NoError(t, os.Remove(filepath.Join(root, "gone.txt")))
	require.NotNil(t, r.record(t, "main", root, "delete gone"))

	files := r.materialize(t, "main")
	_, exists := files["gone.txt"]
	assert.False(t, exists)
}
