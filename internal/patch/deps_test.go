package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinimalAntichainDropsTransitiveDeps(t *testing.T) {
	a := HashBytes([]byte("a"))
	b := HashBytes([]byte("b"))
	c := HashBytes([]byte("c"))

	// b depends on a, c is independent: the minimal antichain of
	// {a, b, c} is {b, c} since a is implied by b.
	dependsOn := func(y, x Hash) bool {
		return y == b && x == a
	}

	got := MinimalAntichain([]Hash{a, b, c}, dependsOn)

	assert.Len(t, got, 2)
	assert.NotContains(t, got, a)
	assert.Contains(t, got, b)
	assert.Contains(t, got, c)
}

func TestMinimalAntichainKeepsIndependentSet(t *testing.T) {
	a := HashBytes([]byte("a"))
	b := HashBytes([]byte("b"))

	got := MinimalAntichain([]Hash{a, b}, func(y, x Hash) bool { return false })

	assert.Len(t, got, 2)
}

func TestMinimalAntichainIsSortedByHash(t *testing.T) {
	a := HashBytes([]byte("a"))
	b := HashBytes([]byte("b"))
	c := HashBytes([]byte("c"))

	got := MinimalAntichain([]Hash{c, a, b}, func(y, x Hash) bool { return false })

	require := assert.New(t)
	require.Len(got, 3)
	for i := 1; i < len(got); i++ {
		require.True(got[i-1].Less(got[i]))
	}
}

func TestTagShortcutEligible(t *testing.T) {
	a := HashBytes([]byte("a"))
	b := HashBytes([]byte("b"))
	c := HashBytes([]byte("c"))

	consolidated := map[Hash]bool{a: true, b: true}

	assert.True(t, TagShortcutEligible([]Hash{a, b}, consolidated))
	assert.False(t, TagShortcutEligible([]Hash{a, c}, consolidated))
	assert.True(t, TagShortcutEligible(nil, consolidated))
}
