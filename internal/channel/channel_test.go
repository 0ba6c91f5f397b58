package channel

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomic-vcs/atomic/internal/graph"
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

func TestCreateAndTipOnEmptyChannel(t *testing.T) {
	env := openTestEnv(t)

	require.NoError(t, env.Update(func(txn *store.Txn) error {
		_, err := Create(txn, "main")
		return err
	}))

	require.NoError(t, env.View(func(txn *store.Txn) error {
		_, _, _, ok, err := Tip(txn, "main")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestCreateTwiceFails(t *testing.T) {
	env := openTestEnv(t)

	require.NoError(t, env.Update(func(txn *store.Txn) error {
		_, err := Create(txn, "main")
		return err
	}))

	err := env.Update(func(txn *store.Txn) error {
		_, err := Create(txn, "main")
		return err
	})
	assert.Error(t, err)
}

func TestAppendAdvancesTip(t *testing.T) {
	env := openTestEnv(t)

	require.NoError(t, env.Update(func(txn *store.Txn) error {
		_, err := Create(txn, "main")
		return err
	}))

	h := patch.HashBytes([]byte("patch1"))
	state, err := Add(ZeroState, h)
	require.NoError(t, err)

	require.NoError(t, env.Update(func(txn *store.Txn) error {
		n, err := Append(txn, "main", graph.ChangeID(1), state)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), n)
		return nil
	}))

	require.NoError(t, env.View(func(txn *store.Txn) error {
		n, changeID, got, ok, err := Tip(txn, "main")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, uint64(0), n)
		assert.Equal(t, graph.ChangeID(1), changeID)
		assert.Equal(t, state, got)
		return nil
	}))
}

func TestAppendOnMissingChannelFails(t *testing.T) {
	env := openTestEnv(t)

	err := env.Update(func(txn *store.Txn) error {
		_, err := Append(txn, "ghost", graph.ChangeID(1), ZeroState)
		return err
	})
	assert.Error(t, err)
}

func TestStateHashIsOrderIndependent(t *testing.T) {
	a := patch.HashBytes([]byte("a"))
	b := patch.HashBytes([]byte("b"))

	s1, err := Add(ZeroState, a)
	require.NoError(t, err)
	s1, err = Add(s1, b)
	require.NoError(t, err)

	s2, err := Add(ZeroState, b)
	require.NoError(t, err)
	s2, err = Add(s2, a)
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
}

func TestStateHashSubtractReversesAdd(t *testing.T) {
	h := patch.HashBytes([]byte("x"))

	added, err := Add(ZeroState, h)
	require.NoError(t, err)

	back, err := Subtract(added, h)
	require.NoError(t, err)

	assert.Equal(t, ZeroState, back)
}

func TestWalkVisitsEveryAppliedPosition(t *testing.T) {
	env := openTestEnv(t)

	require.NoError(t, env.Update(func(txn *store.Txn) error {
		_, err := Create(txn, "main")
		return err
	}))

	state := ZeroState
	for i := 0; i < 3; i++ {
		h := patch.HashBytes([]byte{byte(i)})
		var err error
		state, err = Add(state, h)
		require.NoError(t, err)
		st := state
		require.NoError(t, env.Update(func(txn *store.Txn) error {
			_, err := Append(txn, "main", graph.ChangeID(i+1), st)
			return err
		}))
	}

	var positions []uint64
	require.NoError(t, env.View(func(txn *store.Txn) error {
		return Walk(txn, "main", 0, func(n uint64, changeID graph.ChangeID, s StateHash, tagged byte) error {
			positions = append(positions, n)
			return nil
		})
	}))
	assert.Equal(t, []uint64{0, 1, 2}, positions)
}

func TestMarkTagAndRecordTagHashRoundTrip(t *testing.T) {
	env := openTestEnv(t)

	require.NoError(t, env.Update(func(txn *store.Txn) error {
		_, err := Create(txn, "main")
		return err
	}))

	h := patch.HashBytes([]byte("patch1"))
	state, err := Add(ZeroState, h)
	require.NoError(t, err)
	require.NoError(t, env.Update(func(txn *store.Txn) error {
		_, err := Append(txn, "main", graph.ChangeID(1), state)
		return err
	}))

	tagHash := patch.HashBytes([]byte("tag1"))
	require.NoError(t, env.Update(func(txn *store.Txn) error {
		if err := MarkTag(txn, "main", 0, true); err != nil {
			return err
		}
		return RecordTagHash(txn, "main", 0, tagHash)
	}))

	require.NoError(t, env.View(func(txn *store.Txn) error {
		flag, err := TagFlagAt(txn, "main", 0)
		require.NoError(t, err)
		assert.Equal(t, byte(2), flag)

		got, ok, err := TagHashAt(txn, "main", 0)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, tagHash, got)

		known, err := IsKnownTag(txn, "main", tagHash)
		require.NoError(t, err)
		assert.True(t, known)

		n, changeID, ok, err := LatestConsolidatingTag(txn, "main")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, uint64(0), n)
		assert.Equal(t, graph.ChangeID(1), changeID)
		return nil
	}))
}

func TestListReturnsCreatedChannels(t *testing.T) {
	env := openTestEnv(t)

	require.NoError(t, env.Update(func(txn *store.Txn) error {
		if _, err := Create(txn, "main"); err != nil {
			return err
		}
		_, err := Create(txn, "dev")
		return err
	}))

	require.NoError(t, env.View(func(txn *store.Txn) error {
		names, err := List(txn)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"main", "dev"}, names)
		return nil
	}))
}
