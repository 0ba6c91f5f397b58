package patch

import (
	"bytes"
	"encoding/binary"
)

// EncodeHashedBody produces the canonical, deterministic byte
// serialization of a patch's hashed body (spec §4.2): a length-prefixed,
// field-ordered binary layout, all integers little-endian, all strings
// UTF-8, every collection an explicit-length sequence. No map is used
// anywhere in this encoding. This layout is authoritative for this
// implementation (spec §9 open question: "the source repository's
// encoding is authoritative until a written spec supersedes it").
func EncodeHashedBody(hb *HashedBody) []byte {
	var buf bytes.Buffer
	writeString(&buf, hb.Header.Message)
	writeU64(&buf, uint64(hb.Header.Timestamp))
	writeU32(&buf, uint32(len(hb.Header.Authors)))
	for _, a := range hb.Header.Authors {
		writeString(&buf, a)
	}

	writeU32(&buf, uint32(len(hb.Dependencies)))
	for _, d := range hb.Dependencies {
		writeHash(&buf, d)
	}

	writeU32(&buf, uint32(len(hb.ExtraKnown)))
	for _, d := range hb.ExtraKnown {
		writeHash(&buf, d)
	}

	writeU32(&buf, uint32(len(hb.Hunks)))
	for _, h := range hb.Hunks {
		writeHunk(&buf, h)
	}

	writeBytes(&buf, hb.Contents)

	return buf.Bytes()
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeU64(buf, uint64(len(b)))
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func writeHash(buf *bytes.Buffer, h Hash) {
	buf.Write(h[:])
}

func writeContextVertex(buf *bytes.Buffer, v ContextVertex) {
	writeHash(buf, v.PatchHash)
	writeU64(buf, v.Start)
	writeU64(buf, v.End)
}

func writeContextVertices(buf *bytes.Buffer, vs []ContextVertex) {
	writeU32(buf, uint32(len(vs)))
	for _, v := range vs {
		writeContextVertex(buf, v)
	}
}

func writeAtom(buf *bytes.Buffer, a Atom) {
	buf.WriteByte(byte(a.Kind))
	switch a.Kind {
	case AtomNewVertex:
		writeContextVertices(buf, a.UpContext)
		writeContextVertices(buf, a.DownContext)
		writeU64(buf, a.Start)
		writeU64(buf, a.End)
		buf.WriteByte(byte(a.Flag))
	case AtomEdgeMap:
		writeContextVertex(buf, a.EdgeFrom)
		writeContextVertex(buf, a.EdgeTo)
		buf.WriteByte(byte(a.PrevFlags))
		buf.WriteByte(byte(a.NewFlags))
		writeHash(buf, a.IntroducedBy)
	}
}

func writeAtoms(buf *bytes.Buffer, atoms []Atom) {
	writeU32(buf, uint32(len(atoms)))
	for _, a := range atoms {
		writeAtom(buf, a)
	}
}

// EncodeFile produces the on-disk representation of a full patch file:
// the stored hash, the canonical hashed-body encoding (so a reader can
// verify identity without a separate re-derivation step), and the
// unhashed tail (signatures, opaque metadata). This is what the patch
// store writes as `<hash>.change`.
func EncodeFile(p *Patch) []byte {
	var buf bytes.Buffer
	writeHash(&buf, p.Hash)
	writeBytes(&buf, EncodeHashedBody(&p.HashedBody))
	writeU32(&buf, uint32(len(p.Signatures)))
	for _, sig := range p.Signatures {
		writeBytes(&buf, sig)
	}
	writeBytes(&buf, p.Metadata)
	return buf.Bytes()
}

// HunkSpan is a hunk's byte range within an encoded patch file, as
// produced by EncodeFileWithHunkIndex.
type HunkSpan struct {
	Offset uint64
	Length uint64
}

// EncodeFileWithHunkIndex produces the exact bytes EncodeFile does,
// plus the byte offset and length of each hunk within that output, so
// a single hunk can later be sliced out of the file and decoded with
// DecodeHunkAt without parsing the hunks around it (spec §3 "Patch
// store": a per-patch index for random access inside a patch).
func EncodeFileWithHunkIndex(p *Patch) ([]byte, []HunkSpan) {
	var hb bytes.Buffer
	writeString(&hb, p.Header.Message)
	writeU64(&hb, uint64(p.Header.Timestamp))
	writeU32(&hb, uint32(len(p.Header.Authors)))
	for _, a := range p.Header.Authors {
		writeString(&hb, a)
	}

	writeU32(&hb, uint32(len(p.Dependencies)))
	for _, d := range p.Dependencies {
		writeHash(&hb, d)
	}

	writeU32(&hb, uint32(len(p.ExtraKnown)))
	for _, d := range p.ExtraKnown {
		writeHash(&hb, d)
	}

	writeU32(&hb, uint32(len(p.Hunks)))
	spans := make([]HunkSpan, len(p.Hunks))
	for i, h := range p.Hunks {
		start := hb.Len()
		writeHunk(&hb, h)
		spans[i] = HunkSpan{Offset: uint64(start), Length: uint64(hb.Len() - start)}
	}

	writeBytes(&hb, p.Contents)

	var buf bytes.Buffer
	writeHash(&buf, p.Hash)
	writeBytes(&buf, hb.Bytes())
	hbDataStart := uint64(buf.Len()) - uint64(hb.Len())
	for i := range spans {
		spans[i].Offset += hbDataStart
	}

	writeU32(&buf, uint32(len(p.Signatures)))
	for _, sig := range p.Signatures {
		writeBytes(&buf, sig)
	}
	writeBytes(&buf, p.Metadata)

	return buf.Bytes(), spans
}

func writeHunk(buf *bytes.Buffer, h Hunk) {
	buf.WriteByte(byte(h.Kind))
	switch h.Kind {
	case HunkFileAdd, HunkFileDel:
		writeString(buf, h.Name)
		writeU32(buf, h.Perms)
		writeU64(buf, h.ContentsStart)
		writeU64(buf, h.ContentsEnd)
		writeU64(buf, h.InodeMarker)
		writeHash(buf, h.IntroducedBy)
	case HunkFileMove:
		writeString(buf, h.OldPath)
		writeString(buf, h.NewPath)
		writeU32(buf, h.Perms)
		writeU64(buf, h.OldStart)
		writeU64(buf, h.OldEnd)
		writeHash(buf, h.IntroducedBy)
	case HunkFileEdit:
		writeString(buf, h.Path)
		writeAtoms(buf, h.Changes)
	case HunkSolveOrderConflict, HunkSolveNameConflict:
		writeAtoms(buf, h.ConflictAtoms)
	}
}
