package apply_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomic-vcs/atomic/internal/apply"
	"github.com/atomic-vcs/atomic/internal/channel"
	"github.com/atomic-vcs/atomic/internal/errs"
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/patchstore"
	"github.com/atomic-vcs/atomic/internal/project"
	"github.com/atomic-vcs/atomic/internal/record"
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
		p, _, err = record.Record(txn, r.ps, "main", r.root, patch.Header{Message: message}, nil)
		return err
	}))
	return p
}

func (r *testRepo) unrecord(hash patch.Hash) error {
	return r.env.Update(func(txn *store.Txn) error {
		return apply.Unrecord(txn, r.ps, "main", hash)
	})
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

func TestUnrecordSinglePatchRevertsState(t *testing.T) {
	r := newTestRepo(t)
	r.writeFile(t, "hello.txt", "hello world\n")
	p := r.record(t, "add hello")
	require.NotNil(t, p)

	require.NoError(t, r.unrecord(p.Hash))

	files := r.materialize(t)
	_, exists := files["hello.txt"]
	assert.False(t, exists)
}

func TestUnrecordBlockedByDependent(t *testing.T) {
	r := newTestRepo(t)
	r.writeFile(t, "hello.txt", "line one\nline two\nline three\n")
	add := r.record(t, "add hello")
	require.NotNil(t, add)

	r.writeFile(t, "hello.txt", "line one\nline TWO\nline three\nline four\n")
	edit := r.record(t, "edit hello")
	require.NotNil(t, edit)
	require.Contains(t, edit.Dependencies, add.Hash)

	err := r.unrecord(add.Hash)
	require.Error(t, err)
	assert.Equal(t, errs.KindHasDependents, errs.KindOf(err))

	// still materializes as the edited version, untouched by the failed attempt.
	files := r.materialize(t)
	assert.Equal(t, "line one\nline TWO\nline three\nline four\n", files["hello.txt"])
}

func TestUnrecordSucceedsOnceDependentRemoved(t *testing.T) {
	r := newTestRepo(t)
	r.writeFile(t, "hello.txt", "line one\nline two\nline three\n")
	add := r.record(t, "add hello")
	require.NotNil(t, add)

	r.writeFile(t, "hello.txt", "line one\nline TWO\nline three\nline four\n")
	edit := r.record(t, "edit hello")
	require.NotNil(t, edit)

	require.NoError(t, r.unrecord(edit.Hash))
	require.NoError(t, r.unrecord(add.Hash))

	files := r.materialize(t)
	_, exists := files["hello.txt"]
	assert.False(t, exists)
}
