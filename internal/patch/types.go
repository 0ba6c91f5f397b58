package patch

// EdgeFlags is the bitset carried by every graph edge (spec §3).
type EdgeFlags uint8

const (
	// FlagBlock marks an intra-block (within line/chunk) edge; its
	// absence denotes a line boundary.
	FlagBlock EdgeFlags = 1 << iota
	// FlagPseudo marks a synthetic edge inserted by apply to preserve
	// reachability; it never appears inside a patch's hashed body.
	FlagPseudo
	// FlagFolder marks a filesystem-tree edge (directory to entry, or
	// entry to file content).
	FlagFolder
	// FlagDeleted marks that the edge's destination vertex is dead as
	// of the edge's introducing patch.
	FlagDeleted
	// FlagParent marks a direction-reversal marker used by some
	// indices that store reversed edges.
	FlagParent
)

func (f EdgeFlags) Has(flag EdgeFlags) bool { return f&flag != 0 }

// ContextVertex names a vertex by the content hash of the patch that
// introduced it plus its byte range; the applier resolves PatchHash to
// a local change_id via the extra_known map before use (spec §4.2).
// A patch's hash cannot be known while its own hunks are still being
// assembled (the hash is computed over the finished body), so an atom
// referencing a vertex introduced earlier in the SAME patch sets
// PatchHash to ZeroHash as a "self" sentinel; the applier substitutes
// whatever change_id it just allocated for the patch being applied.
type ContextVertex struct {
	PatchHash Hash
	Start     uint64
	End       uint64
}

// AtomKind distinguishes the two atom shapes a hunk's edits are made
// of (spec §4.2).
type AtomKind uint8

const (
	AtomNewVertex AtomKind = iota
	AtomEdgeMap
)

// Atom is a single edit primitive inside a FileEdit hunk, or a
// resolution primitive inside a SolveOrderConflict/SolveNameConflict
// hunk.
type Atom struct {
	Kind AtomKind

	// NewVertex fields: insert byte range [Start,End) with context.
	UpContext   []ContextVertex
	DownContext []ContextVertex
	Start       uint64
	End         uint64
	Flag        EdgeFlags

	// EdgeMap fields: rewrite an existing edge's flags.
	EdgeFrom     ContextVertex
	EdgeTo       ContextVertex
	PrevFlags    EdgeFlags
	NewFlags     EdgeFlags
	IntroducedBy Hash
}

// HunkKind is the hunk tagged union discriminant (spec §4.2).
type HunkKind uint8

const (
	HunkFileAdd HunkKind = iota
	HunkFileDel
	HunkFileMove
	HunkFileEdit
	HunkSolveOrderConflict
	HunkSolveNameConflict
)

// Hunk is a single ordered edit entry inside a patch. Exactly the
// fields relevant to Kind are populated; the rest are zero.
type Hunk struct {
	Kind HunkKind

	// FileAdd / FileDel
	Name          string
	Perms         uint32
	ContentsStart uint64
	ContentsEnd   uint64
	InodeMarker   uint64
	// IntroducedBy is the hash of the patch that introduced the FOLDER
	// edge being deleted; zero for FileAdd (the edge is new) or when
	// the introducer is this same patch (see ContextVertex's
	// self-sentinel doc comment).
	IntroducedBy Hash

	// FileMove renames in place: OldStart/OldEnd/IntroducedBy identify
	// the existing entry vertex exactly like FileDel's ContentsStart/
	// ContentsEnd/IntroducedBy do, and only its g_name binding changes
	// from OldPath to NewPath. The entry vertex and its FOLDER edge keep
	// whatever identity the introducing patch gave them.
	OldPath  string
	NewPath  string
	OldStart uint64
	OldEnd   uint64

	// FileEdit
	Path    string
	Changes []Atom

	// SolveOrderConflict / SolveNameConflict
	ConflictAtoms []Atom
}

// Header is the free-text/metadata portion of a patch's hashed body.
type Header struct {
	Message   string
	Timestamp int64 // unix seconds
	Authors   []string
}

// HashedBody is the part of a patch that contributes to its content
// hash (spec §3).
type HashedBody struct {
	Header       Header
	Dependencies []Hash // ordered, minimal antichain
	ExtraKnown   []Hash // hint-only, never in the dependency closure
	Hunks        []Hunk
	Contents     []byte // atoms reference slices of this buffer
}

// Patch is a full patch value: hashed body plus an unhashed tail that
// never participates in identity.
type Patch struct {
	Hash Hash
	HashedBody

	// Unhashed tail.
	Signatures [][]byte
	Metadata   []byte // opaque free-form metadata (spec §4.10)
}

// Slice returns the byte range [start,end) of the patch's contents
// buffer, as atoms reference it.
func (p *Patch) Slice(start, end uint64) []byte {
	if end > uint64(len(p.Contents)) || start > end {
		return nil
	}
	return p.Contents[start:end]
}

// ComputeHash recomputes the content hash from the current hashed
// body; Record/tests call this after assembling a Patch to fill Hash.
func (p *Patch) ComputeHash() Hash {
	return HashBytes(EncodeHashedBody(&p.HashedBody))
}
