package errs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atomic-vcs/atomic/internal/errs"
)

func TestKindOfUnwrapsError(t *testing.T) {
	err := errs.NotFound("patch abc")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestKindOfOnForeignErrorDefaultsToStorage(t *testing.T) {
	assert.Equal(t, errs.KindStorage, errs.KindOf(errors.New("boom")))
}

func TestRetriableOnlyForNetworkKind(t *testing.T) {
	assert.True(t, errs.Retriable(errs.Network(errors.New("timeout"), "dial")))
	assert.False(t, errs.Retriable(errs.NotFound("x")))
	assert.False(t, errs.Retriable(errors.New("plain")))
}

func TestWrapPreservesCauseAndUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := errs.Storage(cause, "write patch file")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, errs.KindStorage, errs.KindOf(err))
}

func TestWrapOfNilCauseReturnsNil(t *testing.T) {
	assert.Nil(t, errs.Wrap(nil, errs.KindStorage, "no-op"))
}

func TestIsComparesByKindOnly(t *testing.T) {
	a := errs.NotFound("a")
	b := errs.NotFound("b")
	c := errs.InvalidPatch("c")

	assert.ErrorIs(t, a, b)
	assert.False(t, errors.Is(a, c))
}

func TestMissingDepsAndHasDependentsCarryHashes(t *testing.T) {
	hashes := []string{"h1", "h2"}

	md := errs.MissingDeps(hashes)
	assert.Equal(t, errs.KindMissingDeps, md.Kind)
	assert.Equal(t, hashes, md.Hashes)
	assert.Contains(t, md.Error(), "h1")

	hd := errs.HasDependents(hashes)
	assert.Equal(t, errs.KindHasDependents, hd.Kind)
	assert.Contains(t, hd.Error(), "h2")
}
