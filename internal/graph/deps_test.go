package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomic-vcs/atomic/internal/store"
)

func TestRecordDependencyPopulatesBothIndices(t *testing.T) {
	env := openTestEnv(t)

	require.NoError(t, env.Update(func(txn *store.Txn) error {
		return RecordDependency(txn, "main", ChangeID(2), ChangeID(1))
	}))

	require.NoError(t, env.View(func(txn *store.Txn) error {
		n, err := DependencyCount(txn, "main", ChangeID(2))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		dependents, err := Dependents(txn, "main", ChangeID(1))
		require.NoError(t, err)
		assert.Equal(t, []ChangeID{ChangeID(2)}, dependents)
		return nil
	}))
}

func TestRemoveDependencyClearsBothIndices(t *testing.T) {
	env := openTestEnv(t)

	require.NoError(t, env.Update(func(txn *store.Txn) error {
		return RecordDependency(txn, "main", ChangeID(2), ChangeID(1))
	}))
	require.NoError(t, env.Update(func(txn *store.Txn) error {
		return RemoveDependency(txn, "main", ChangeID(2), ChangeID(1))
	}))

	require.NoError(t, env.View(func(txn *store.Txn) error {
		n, err := DependencyCount(txn, "main", ChangeID(2))
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		dependents, err := Dependents(txn, "main", ChangeID(1))
		require.NoError(t, err)
		assert.Empty(t, dependents)
		return nil
	}))
}

func TestDependsOnTransitivelyWalksChain(t *testing.T) {
	env := openTestEnv(t)

	// 3 depends on 2, 2 depends on 1: 3 transitively depends on 1 but not vice versa.
	require.NoError(t, env.Update(func(txn *store.Txn) error {
		if err := RecordDependency(txn, "main", ChangeID(2), ChangeID(1)); err != nil {
			return err
		}
		return RecordDependency(txn, "main", ChangeID(3), ChangeID(2))
	}))

	require.NoError(t, env.View(func(txn *store.Txn) error {
		ok, err := DependsOnTransitively(txn, "main", ChangeID(3), ChangeID(1))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = DependsOnTransitively(txn, "main", ChangeID(1), ChangeID(3))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = DependsOnTransitively(txn, "main", ChangeID(1), ChangeID(1))
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestDependencyCountOnUnknownChangeIsZero(t *testing.T) {
	env := openTestEnv(t)

	require.NoError(t, env.View(func(txn *store.Txn) error {
		n, err := DependencyCount(txn, "main", ChangeID(99))
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		return nil
	}))
}
