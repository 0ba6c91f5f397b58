package patch

import "bytes"

// StateHash is the compressed Edwards-point accumulator over an
// ordered list of applied patches (spec §3); channel package owns the
// curve arithmetic, this package only moves the 32-byte compressed
// point around.
type StateHash [32]byte

// String renders the state hash in the same 53-character base32 form
// as a patch Hash (spec §6), by reusing its version-byte framing.
func (s StateHash) String() string {
	var h Hash
	h[0] = hashVersion
	copy(h[1:], s[:])
	return h.String()
}

// ParseStateHash decodes a 53-character base32 state hash string.
func ParseStateHash(str string) (StateHash, error) {
	h, err := ParseHash(str)
	if err != nil {
		return StateHash{}, err
	}
	var s StateHash
	copy(s[:], h[1:])
	return s, nil
}

// Tag is a value parallel to a Patch (spec §3 "Tag"). A non-consolidating
// tag leaves Consolidating false and the consolidation-only fields zero.
type Tag struct {
	Hash Hash

	Channel   string
	State     StateHash
	Version   string // optional semver string
	Author    string
	Message   string
	Timestamp int64

	Consolidating bool

	// Populated only when Consolidating is true.
	ConsolidatedChanges     []Hash
	DependencyCountBefore   uint64
	ConsolidatedChangeCount uint64
	PreviousConsolidation   Hash // ZeroHash if none

	// AttributionSummary is opaque aggregate metadata; the core never
	// interprets it (spec §4.10).
	AttributionSummary []byte
}

// EncodeFull produces the canonical encoding of the tag's full body
// (header + consolidated list). Its BLAKE3 digest is the tag's content
// hash, identical whichever wire form (short or full) carried it.
func EncodeFull(t *Tag) []byte {
	var buf bytes.Buffer
	encodeTagHeader(&buf, t)
	buf.WriteByte(boolByte(t.Consolidating))
	if t.Consolidating {
		writeU32(&buf, uint32(len(t.ConsolidatedChanges)))
		for _, h := range t.ConsolidatedChanges {
			writeHash(&buf, h)
		}
		writeU64(&buf, t.DependencyCountBefore)
		writeU64(&buf, t.ConsolidatedChangeCount)
		writeHash(&buf, t.PreviousConsolidation)
	}
	writeBytes(&buf, t.AttributionSummary)
	return buf.Bytes()
}

func encodeTagHeader(buf *bytes.Buffer, t *Tag) {
	writeString(buf, t.Channel)
	buf.Write(t.State[:])
	writeString(buf, t.Version)
	writeString(buf, t.Author)
	writeString(buf, t.Message)
	writeU64(buf, uint64(t.Timestamp))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// ComputeHash returns the tag's content hash computed from its
// current full body; it does not set t.Hash.
func (t *Tag) ComputeHash() Hash {
	return HashBytes(EncodeFull(t))
}

// ShortForm strips the consolidated-list fields, producing the header
// a server replies with for a `tag <hash>` verb; the client regenerates
// the full body locally and must re-derive the same content hash
// (spec §4.8 "Expansion").
func (t *Tag) ShortForm() Tag {
	short := *t
	short.ConsolidatedChanges = nil
	short.DependencyCountBefore = 0
	short.ConsolidatedChangeCount = 0
	short.PreviousConsolidation = Hash{}
	return short
}

// NodeKey derives the graph-node key a consolidating tag is also
// stored under: BLAKE3 of the compressed Edwards point form of the
// tag's state hash (spec §3, §4.8, §9 open question on its collision
// floor).
func NodeKey(state StateHash) Hash {
	return HashBytes(state[:])
}
