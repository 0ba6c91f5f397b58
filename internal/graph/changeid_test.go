package graph

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/store"
)

func openTestEnv(t *testing.T) *store.Env {
	t.Helper()
	env, err := store.Open(filepath.Join(t.TempDir(), "pristine"))
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env
}

func TestResolveOrAllocateChangeIDIsStable(t *testing.T) {
	env := openTestEnv(t)
	h := patch.HashBytes([]byte("patch1"))

	var first, second ChangeID
	require.NoError(t, env.Update(func(txn *store.Txn) error {
		var err error
		first, err = ResolveOrAllocateChangeID(txn, h)
		return err
	}))
	require.NoError(t, env.Update(func(txn *store.Txn) error {
		var err error
		second, err = ResolveOrAllocateChangeID(txn, h)
		return err
	}))

	assert.Equal(t, first, second)
}

func TestDistinctHashesGetDistinctChangeIDs(t *testing.T) {
	env := openTestEnv(t)
	a := patch.HashBytes([]byte("a"))
	b := patch.HashBytes([]byte("b"))

	var idA, idB ChangeID
	require.NoError(t, env.Update(func(txn *store.Txn) error {
		var err error
		idA, err = ResolveOrAllocateChangeID(txn, a)
		if err != nil {
			return err
		}
		idB, err = ResolveOrAllocateChangeID(txn, b)
		return err
	}))

	assert.NotEqual(t, idA, idB)
}

func TestLookupChangeIDAndHashOfRoundTrip(t *testing.T) {
	env := openTestEnv(t)
	h := patch.HashBytes([]byte("patch1"))

	var id ChangeID
	require.NoError(t, env.Update(func(txn *store.Txn) error {
		var err error
		id, err = ResolveOrAllocateChangeID(txn, h)
		return err
	}))

	require.NoError(t, env.View(func(txn *store.Txn) error {
		gotID, ok, err := LookupChangeID(txn, h)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, id, gotID)

		gotHash, ok, err := HashOf(txn, id)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, h, gotHash)
		return nil
	}))
}

func TestLookupChangeIDUnknownHash(t *testing.T) {
	env := openTestEnv(t)

	require.NoError(t, env.View(func(txn *store.Txn) error {
		_, ok, err := LookupChangeID(txn, patch.HashBytes([]byte("never seen")))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}
