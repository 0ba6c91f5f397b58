// Package patch defines the immutable, content-addressed patch and tag
// types: hashed body, hunks, atoms, and the canonical encoding whose
// BLAKE3 digest is the patch's sole cross-repository identity.
package patch

import (
	"encoding/base32"

	"github.com/zeebo/blake3"
)

// base32Alphabet is the fixed, unpadded alphabet the wire format uses
// for every hash (spec §6): [A-Z2-7], no padding.
const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

var base32Enc = base32.NewEncoding(base32Alphabet).WithPadding(base32.NoPadding)

// hashVersion is a one-byte tag prepended to every digest before
// base32 encoding; it exists purely so that 32 digest bytes plus this
// tag base32-encode to exactly the 53 characters spec §3/§6 specify
// (33 bytes = 264 bits = ceil(264/5) = 53 base32 symbols), without
// overloading the digest's own bit pattern with a version marker.
const hashVersion byte = 1

// Hash is a content hash: a version byte plus a 32-byte BLAKE3 digest,
// shown on the wire and on disk as a 53-character base32 string.
type Hash [33]byte

// ZeroHash is the hash of nothing; used as a sentinel "no previous
// consolidation" value.
var ZeroHash Hash

// HashBytes computes the content hash of buf.
func HashBytes(buf []byte) Hash {
	digest := blake3.Sum256(buf)
	var h Hash
	h[0] = hashVersion
	copy(h[1:], digest[:])
	return h
}

// String renders the hash as its 53-character base32 form.
func (h Hash) String() string {
	return base32Enc.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// ParseHash decodes a 53-character base32 hash string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := base32Enc.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(raw) != len(h) {
		return h, errBadHashLength
	}
	copy(h[:], raw)
	return h, nil
}

var errBadHashLength = &hashLengthError{}

type hashLengthError struct{}

func (*hashLengthError) Error() string { return "patch: decoded hash has wrong length" }

// ShardPrefix returns the first two base32 characters of the hash's
// string form, used by the patch store to shard <hash>.change files
// into subdirectories (spec §6).
func (h Hash) ShardPrefix() string {
	s := h.String()
	if len(s) < 2 {
		return s
	}
	return s[:2]
}

// Less orders hashes by their base32 string form; used to break ties
// in the minimal-antichain dependency reduction (spec §4.3).
func (h Hash) Less(other Hash) bool {
	return h.String() < other.String()
}
