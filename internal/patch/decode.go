package patch

import (
	"bytes"
	"encoding/binary"
	"io"
)

// decoder reads the little-endian, length-prefixed layout EncodeHashedBody
// and EncodeFull produce. Any truncation or malformed length surfaces as
// invalid_patch to the caller (spec §4.2 "canonical encoding").
type decoder struct {
	r *bytes.Reader
}

func newDecoder(buf []byte) *decoder { return &decoder{r: bytes.NewReader(buf)} }

func (d *decoder) u32() (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(d.r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(tmp[:]), nil
}

func (d *decoder) u64() (uint64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(d.r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(tmp[:]), nil
}

func (d *decoder) bytesField() ([]byte, error) {
	n, err := d.u64()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *decoder) stringField() (string, error) {
	b, err := d.bytesField()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) hash() (Hash, error) {
	var h Hash
	if _, err := io.ReadFull(d.r, h[:]); err != nil {
		return h, err
	}
	return h, nil
}

func (d *decoder) byteField() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) contextVertex() (ContextVertex, error) {
	var cv ContextVertex
	h, err := d.hash()
	if err != nil {
		return cv, err
	}
	start, err := d.u64()
	if err != nil {
		return cv, err
	}
	end, err := d.u64()
	if err != nil {
		return cv, err
	}
	cv.PatchHash, cv.Start, cv.End = h, start, end
	return cv, nil
}

func (d *decoder) contextVertices() ([]ContextVertex, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	out := make([]ContextVertex, n)
	for i := range out {
		out[i], err = d.contextVertex()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *decoder) atom() (Atom, error) {
	var a Atom
	kindByte, err := d.byteField()
	if err != nil {
		return a, err
	}
	a.Kind = AtomKind(kindByte)
	switch a.Kind {
	case AtomNewVertex:
		if a.UpContext, err = d.contextVertices(); err != nil {
			return a, err
		}
		if a.DownContext, err = d.contextVertices(); err != nil {
			return a, err
		}
		if a.Start, err = d.u64(); err != nil {
			return a, err
		}
		if a.End, err = d.u64(); err != nil {
			return a, err
		}
		flag, err := d.byteField()
		if err != nil {
			return a, err
		}
		a.Flag = EdgeFlags(flag)
	case AtomEdgeMap:
		if a.EdgeFrom, err = d.contextVertex(); err != nil {
			return a, err
		}
		if a.EdgeTo, err = d.contextVertex(); err != nil {
			return a, err
		}
		prev, err := d.byteField()
		if err != nil {
			return a, err
		}
		a.PrevFlags = EdgeFlags(prev)
		next, err := d.byteField()
		if err != nil {
			return a, err
		}
		a.NewFlags = EdgeFlags(next)
		if a.IntroducedBy, err = d.hash(); err != nil {
			return a, err
		}
	}
	return a, nil
}

func (d *decoder) atoms() ([]Atom, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	out := make([]Atom, n)
	for i := range out {
		out[i], err = d.atom()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *decoder) hunk() (Hunk, error) {
	var h Hunk
	kindByte, err := d.byteField()
	if err != nil {
		return h, err
	}
	h.Kind = HunkKind(kindByte)
	switch h.Kind {
	case HunkFileAdd, HunkFileDel:
		if h.Name, err = d.stringField(); err != nil {
			return h, err
		}
		if h.Perms, err = d.u32(); err != nil {
			return h, err
		}
		if h.ContentsStart, err = d.u64(); err != nil {
			return h, err
		}
		if h.ContentsEnd, err = d.u64(); err != nil {
			return h, err
		}
		if h.InodeMarker, err = d.u64(); err != nil {
			return h, err
		}
		if h.IntroducedBy, err = d.hash(); err != nil {
			return h, err
		}
	case HunkFileMove:
		if h.OldPath, err = d.stringField(); err != nil {
			return h, err
		}
		if h.NewPath, err = d.stringField(); err != nil {
			return h, err
		}
		if h.Perms, err = d.u32(); err != nil {
			return h, err
		}
		if h.OldStart, err = d.u64(); err != nil {
			return h, err
		}
		if h.OldEnd, err = d.u64(); err != nil {
			return h, err
		}
		if h.IntroducedBy, err = d.hash(); err != nil {
			return h, err
		}
	case HunkFileEdit:
		if h.Path, err = d.stringField(); err != nil {
			return h, err
		}
		if h.Changes, err = d.atoms(); err != nil {
			return h, err
		}
	case HunkSolveOrderConflict, HunkSolveNameConflict:
		if h.ConflictAtoms, err = d.atoms(); err != nil {
			return h, err
		}
	}
	return h, nil
}

// DecodeHashedBody parses the canonical encoding EncodeHashedBody
// produces. Callers that need to verify identity should re-hash the
// result and compare against the stored Hash.
func DecodeHashedBody(buf []byte) (*HashedBody, error) {
	d := newDecoder(buf)
	var hb HashedBody

	msg, err := d.stringField()
	if err != nil {
		return nil, err
	}
	ts, err := d.u64()
	if err != nil {
		return nil, err
	}
	nAuthors, err := d.u32()
	if err != nil {
		return nil, err
	}
	authors := make([]string, nAuthors)
	for i := range authors {
		if authors[i], err = d.stringField(); err != nil {
			return nil, err
		}
	}
	hb.Header = Header{Message: msg, Timestamp: int64(ts), Authors: authors}

	nDeps, err := d.u32()
	if err != nil {
		return nil, err
	}
	hb.Dependencies = make([]Hash, nDeps)
	for i := range hb.Dependencies {
		if hb.Dependencies[i], err = d.hash(); err != nil {
			return nil, err
		}
	}

	nExtra, err := d.u32()
	if err != nil {
		return nil, err
	}
	hb.ExtraKnown = make([]Hash, nExtra)
	for i := range hb.ExtraKnown {
		if hb.ExtraKnown[i], err = d.hash(); err != nil {
			return nil, err
		}
	}

	nHunks, err := d.u32()
	if err != nil {
		return nil, err
	}
	hb.Hunks = make([]Hunk, nHunks)
	for i := range hb.Hunks {
		if hb.Hunks[i], err = d.hunk(); err != nil {
			return nil, err
		}
	}

	if hb.Contents, err = d.bytesField(); err != nil {
		return nil, err
	}
	return &hb, nil
}

// DecodeHunkAt decodes a single hunk from buf, which must hold exactly
// the bytes a HunkSpan identifies within an encoded patch file (the
// slice patchstore.Store.LoadHunk reads with a single ReadAt), without
// touching any of the surrounding hunks.
func DecodeHunkAt(buf []byte) (Hunk, error) {
	d := newDecoder(buf)
	return d.hunk()
}

// DecodeFile parses the on-disk representation EncodeFile produces.
func DecodeFile(buf []byte) (*Patch, error) {
	d := newDecoder(buf)
	var p Patch
	var err error
	if p.Hash, err = d.hash(); err != nil {
		return nil, err
	}
	hbBytes, err := d.bytesField()
	if err != nil {
		return nil, err
	}
	hb, err := DecodeHashedBody(hbBytes)
	if err != nil {
		return nil, err
	}
	p.HashedBody = *hb

	nSigs, err := d.u32()
	if err != nil {
		return nil, err
	}
	p.Signatures = make([][]byte, nSigs)
	for i := range p.Signatures {
		if p.Signatures[i], err = d.bytesField(); err != nil {
			return nil, err
		}
	}
	if p.Metadata, err = d.bytesField(); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeTagFull parses the canonical encoding EncodeFull produces.
func DecodeTagFull(buf []byte) (*Tag, error) {
	d := newDecoder(buf)
	var t Tag
	var err error
	if t.Channel, err = d.stringField(); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(d.r, t.State[:]); err != nil {
		return nil, err
	}
	if t.Version, err = d.stringField(); err != nil {
		return nil, err
	}
	if t.Author, err = d.stringField(); err != nil {
		return nil, err
	}
	if t.Message, err = d.stringField(); err != nil {
		return nil, err
	}
	ts, err := d.u64()
	if err != nil {
		return nil, err
	}
	t.Timestamp = int64(ts)

	consByte, err := d.byteField()
	if err != nil {
		return nil, err
	}
	t.Consolidating = consByte != 0
	if t.Consolidating {
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		t.ConsolidatedChanges = make([]Hash, n)
		for i := range t.ConsolidatedChanges {
			if t.ConsolidatedChanges[i], err = d.hash(); err != nil {
				return nil, err
			}
		}
		if t.DependencyCountBefore, err = d.u64(); err != nil {
			return nil, err
		}
		if t.ConsolidatedChangeCount, err = d.u64(); err != nil {
			return nil, err
		}
		if t.PreviousConsolidation, err = d.hash(); err != nil {
			return nil, err
		}
	}
	if t.AttributionSummary, err = d.bytesField(); err != nil {
		return nil, err
	}
	return &t, nil
}
