package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBytesDeterministic(t *testing.T) {
	a := HashBytes([]byte("hello world"))
	b := HashBytes([]byte("hello world"))
	assert.Equal(t, a, b)

	c := HashBytes([]byte("hello world!"))
	assert.NotEqual(t, a, c)
}

func TestHashStringRoundTrip(t *testing.T) {
	h := HashBytes([]byte("some patch body"))
	s := h.String()
	assert.Len(t, s, 53)

	parsed, err := ParseHash(s)
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestParseHashRejectsWrongLength(t *testing.T) {
	_, err := ParseHash("too-short")
	assert.Error(t, err)
}

func TestZeroHashIsZero(t *testing.T) {
	var h Hash
	assert.True(t, h.IsZero())
	assert.True(t, ZeroHash.IsZero())

	h2 := HashBytes([]byte("x"))
	assert.False(t, h2.IsZero())
}

func TestShardPrefixIsFirstTwoChars(t *testing.T) {
	h := HashBytes([]byte("shard me"))
	assert.Equal(t, h.String()[:2], h.ShardPrefix())
}

func TestHashLessIsTotalOrder(t *testing.T) {
	a := HashBytes([]byte("a"))
	b := HashBytes([]byte("b"))
	if a.String() < b.String() {
		assert.True(t, a.Less(b))
		assert.False(t, b.Less(a))
	} else {
		assert.True(t, b.Less(a))
		assert.False(t, a.Less(b))
	}
}

func TestStateHashStringRoundTrip(t *testing.T) {
	var s StateHash
	for i := range s {
		s[i] = byte(i)
	}
	str := s.String()
	assert.Len(t, str, 53)

	parsed, err := ParseStateHash(str)
	require.NoError(t, err)
	assert.Equal(t, s, parsed)
}
