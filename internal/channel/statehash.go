// Package channel implements the named, mutable pointer into the
// shared patch graph: its ordered log of applied patches, its
// Ed25519-curve state-hash accumulator (spec I5), and its tags index.
package channel

import (
	"filippo.io/edwards25519"
	"github.com/zeebo/blake3"

	"github.com/atomic-vcs/atomic/internal/patch"
)

// StateHash is the compressed Edwards point accumulated over every
// patch applied on a channel up to some position. Two channels that
// have applied the same SET of patches, in any order, accumulate to
// the same StateHash (spec I5): curve addition is commutative and
// associative, so order of identical additions never matters.
type StateHash = patch.StateHash

// ZeroState is the state hash of the empty channel (curve identity).
var ZeroState StateHash

func init() {
	id := edwards25519.NewIdentityPoint()
	copy(ZeroState[:], id.Bytes())
}

// pointFromHash derives a curve point from a patch's content hash by
// expanding it to 64 uniform bytes via BLAKE3's extendable output and
// reducing that into a scalar, then multiplying the base point by it.
// This makes every content hash map to a well-defined point regardless
// of the 32-byte hash's own bit pattern.
func pointFromHash(h patch.Hash) (*edwards25519.Point, error) {
	xof := blake3.New()
	_, _ = xof.Write(h[:])
	var wide [64]byte
	d := xof.Digest()
	if _, err := d.Read(wide[:]); err != nil {
		return nil, err
	}
	scalar, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		return nil, err
	}
	return edwards25519.NewIdentityPoint().ScalarBaseMult(scalar), nil
}

// Add returns the state hash after additionally applying the patch
// identified by h on top of prev (spec I5:
// state_hash(Sₙ₊₁) = state_hash(Sₙ) + curve_point(hash_of(patchₙ₊₁))).
func Add(prev StateHash, h patch.Hash) (StateHash, error) {
	accum, err := edwards25519.NewIdentityPoint().SetBytes(prev[:])
	if err != nil {
		return StateHash{}, err
	}
	pt, err := pointFromHash(h)
	if err != nil {
		return StateHash{}, err
	}
	sum := edwards25519.NewIdentityPoint().Add(accum, pt)
	var out StateHash
	copy(out[:], sum.Bytes())
	return out, nil
}

// Subtract returns the state hash after removing the patch identified
// by h from prev — the inverse of Add, so the resulting state hash is
// identical to never having applied h (spec P4), computed without
// needing to replay every other patch.
func Subtract(prev StateHash, h patch.Hash) (StateHash, error) {
	accum, err := edwards25519.NewIdentityPoint().SetBytes(prev[:])
	if err != nil {
		return StateHash{}, err
	}
	pt, err := pointFromHash(h)
	if err != nil {
		return StateHash{}, err
	}
	diff := edwards25519.NewIdentityPoint().Subtract(accum, pt)
	var out StateHash
	copy(out[:], diff.Bytes())
	return out, nil
}
