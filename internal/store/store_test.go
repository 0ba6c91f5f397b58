package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestEnv(t *testing.T) *Env {
	t.Helper()
	env, err := Open(filepath.Join(t.TempDir(), "pristine"))
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env
}

func TestPutGetRoundTrip(t *testing.T) {
	env := openTestEnv(t)

	require.NoError(t, env.Update(func(txn *Txn) error {
		b, err := txn.Bucket("widgets")
		require.NoError(t, err)
		return b.Put([]byte("k"), []byte("v"))
	}))

	require.NoError(t, env.View(func(txn *Txn) error {
		b, err := txn.Bucket("widgets")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), b.Get([]byte("k")))
		return nil
	}))
}

func TestBucketNotFoundOnReadOnlyMissingPath(t *testing.T) {
	env := openTestEnv(t)

	err := env.View(func(txn *Txn) error {
		_, err := txn.Bucket("nope")
		return err
	})
	assert.ErrorIs(t, err, ErrBucketNotFound)
}

func TestNestedBucketPath(t *testing.T) {
	env := openTestEnv(t)

	require.NoError(t, env.Update(func(txn *Txn) error {
		b, err := txn.Bucket("channels", "main", "log")
		require.NoError(t, err)
		return b.Put([]byte("0"), []byte("entry"))
	}))

	require.NoError(t, env.View(func(txn *Txn) error {
		b, err := txn.Bucket("channels", "main", "log")
		require.NoError(t, err)
		assert.Equal(t, []byte("entry"), b.Get([]byte("0")))
		return nil
	}))
}

func TestUpdateRollsBackOnError(t *testing.T) {
	env := openTestEnv(t)

	err := env.Update(func(txn *Txn) error {
		b, err := txn.Bucket("widgets")
		require.NoError(t, err)
		require.NoError(t, b.Put([]byte("k"), []byte("v")))
		return assertErr
	})
	assert.ErrorIs(t, err, assertErr)

	require.NoError(t, env.View(func(txn *Txn) error {
		_, err := txn.Bucket("widgets")
		assert.ErrorIs(t, err, ErrBucketNotFound)
		return nil
	}))
}

var assertErr = errTest("boom")

type errTest string

func (e errTest) Error() string { return string(e) }

func TestIterRespectsRange(t *testing.T) {
	env := openTestEnv(t)

	require.NoError(t, env.Update(func(txn *Txn) error {
		b, err := txn.Bucket("widgets")
		require.NoError(t, err)
		for _, k := range []string{"a", "b", "c", "d"} {
			if err := b.Put([]byte(k), []byte(k)); err != nil {
				return err
			}
		}
		return nil
	}))

	var got []string
	require.NoError(t, env.View(func(txn *Txn) error {
		b, err := txn.Bucket("widgets")
		require.NoError(t, err)
		return b.Iter([]byte("b"), []byte("d"), func(k, v []byte) error {
			got = append(got, string(k))
			return nil
		})
	}))
	assert.Equal(t, []string{"b", "c"}, got)
}

func TestPutUniqueIsIdempotent(t *testing.T) {
	env := openTestEnv(t)

	require.NoError(t, env.Update(func(txn *Txn) error {
		b, err := txn.Bucket("deps")
		require.NoError(t, err)
		require.NoError(t, b.PutUnique([]byte("parent"), []byte("child")))
		return b.PutUnique([]byte("parent"), []byte("child"))
	}))

	var members []string
	require.NoError(t, env.View(func(txn *Txn) error {
		b, err := txn.Bucket("deps")
		require.NoError(t, err)
		return b.ForEachUnique([]byte("parent"), func(member []byte) error {
			members = append(members, string(member))
			return nil
		})
	}))
	assert.Equal(t, []string{"child"}, members)
}

func TestNextSequenceIncrements(t *testing.T) {
	env := openTestEnv(t)

	var seqs []uint64
	require.NoError(t, env.Update(func(txn *Txn) error {
		b, err := txn.Bucket("seq")
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			n, err := b.NextSequence()
			if err != nil {
				return err
			}
			seqs = append(seqs, n)
		}
		return nil
	}))
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}
