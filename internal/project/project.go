// Package project materializes a channel's current state as an
// in-memory working tree: for every alive FOLDER path, the data
// vertices reachable from its entry are walked in total order and
// their byte ranges concatenated from each patch's stored contents
// (spec §4.7).
package project

import (
	"bytes"
	"fmt"

	"github.com/atomic-vcs/atomic/internal/graph"
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/patchstore"
	"github.com/atomic-vcs/atomic/internal/store"
)

// File is one materialized path: its rendered bytes and whether
// rendering hit a conflict (multiple alive branches with no common
// resolution), in which case Bytes carries inline textual markers.
type File struct {
	Path     string
	Bytes    []byte
	Conflict bool
}

// contentSource lazily loads and caches patch bodies by change ID so a
// projection touching many vertices from the same patch reads it once.
type contentSource struct {
	txn     *store.Txn
	ch      string
	ps      *patchstore.Store
	patches map[graph.ChangeID]*patch.Patch
}

func newContentSource(txn *store.Txn, ch string, ps *patchstore.Store) *contentSource {
	return &contentSource{txn: txn, ch: ch, ps: ps, patches: map[graph.ChangeID]*patch.Patch{}}
}

func (c *contentSource) bytesOf(v graph.Vertex) ([]byte, error) {
	p, ok := c.patches[v.Change]
	if !ok {
		h, known, err := graph.HashOf(c.txn, v.Change)
		if err != nil {
			return nil, err
		}
		if !known {
			return nil, fmt.Errorf("project: change %d has no known hash", v.Change)
		}
		loaded, err := c.ps.LoadChange(h)
		if err != nil {
			return nil, err
		}
		c.patches[v.Change] = loaded
		p = loaded
	}
	return p.Slice(v.Start, v.End), nil
}

// ContentOf renders the single file rooted at entry, for callers (like
// record) that already know which entry vertex they care about and
// don't need a full-tree walk.
func ContentOf(txn *store.Txn, ch string, ps *patchstore.Store, entry graph.Vertex) (File, error) {
	src := newContentSource(txn, ch, ps)
	return materializeFile(txn, ch, src, "", entry)
}

// ChainOf returns the ordered, alive, non-conflicted content-vertex
// chain reachable from entry, and the content of each vertex. Record
// uses this to diff line-by-line against the working tree; it reports
// forked is true and stops at the fork when entry's projection isn't a
// single chain, mirroring materializeFile's conflict detection.
func ChainOf(txn *store.Txn, ch string, ps *patchstore.Store, entry graph.Vertex) (chain []graph.Vertex, contents [][]byte, forked bool, err error) {
	src := newContentSource(txn, ch, ps)
	cur := entry
	for {
		out, err := graph.OutgoingEdges(txn, ch, cur)
		if err != nil {
			return nil, nil, false, err
		}
		var branches []graph.Vertex
		for _, e := range out {
			if e.Flags.Has(patch.FlagFolder) || e.Flags.Has(patch.FlagPseudo) || e.Flags.Has(patch.FlagDeleted) {
				continue
			}
			alive, err := graph.IsAlive(txn, ch, e.Dest)
			if err != nil {
				return nil, nil, false, err
			}
			if alive {
				branches = append(branches, e.Dest)
			}
		}
		if len(branches) == 0 {
			return chain, contents, false, nil
		}
		if len(branches) > 1 {
			return chain, contents, true, nil
		}
		v := branches[0]
		b, err := src.bytesOf(v)
		if err != nil {
			return nil, nil, false, err
		}
		chain = append(chain, v)
		contents = append(contents, b)
		cur = v
	}
}

// Materialize renders every alive path on ch.
func Materialize(txn *store.Txn, ch string, ps *patchstore.Store) ([]File, error) {
	src := newContentSource(txn, ch, ps)

	rootEdges, err := graph.OutgoingEdges(txn, ch, graph.Root)
	if err != nil {
		return nil, err
	}
	var files []File
	for _, e := range rootEdges {
		if !e.Flags.Has(patch.FlagFolder) || e.Flags.Has(patch.FlagDeleted) {
			continue
		}
		alive, err := graph.IsAlive(txn, ch, e.Dest)
		if err != nil {
			return nil, err
		}
		if !alive {
			continue
		}
		name, known, err := graph.NameOf(txn, ch, e.Dest)
		if err != nil {
			return nil, err
		}
		if !known {
			name = fmt.Sprintf("(unnamed-%d-%d-%d)", e.Dest.Change, e.Dest.Start, e.Dest.End)
		}
		f, err := materializeFile(txn, ch, src, name, e.Dest)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// materializeFile walks the data-vertex chain reachable from entry
// (its non-FOLDER outgoing edges), concatenating alive vertices in
// total order. A fork — entry or any data vertex with more than one
// alive outgoing branch — is rendered as an inline conflict with
// textual markers citing each branch's introducing patch hash, per
// spec §4.7. An edit over the marked text is not turned into a
// Solve…Conflict atom: record rejects a path whose projection is still
// forked with a conflict error.
func materializeFile(txn *store.Txn, ch string, src *contentSource, name string, entry graph.Vertex) (File, error) {
	var buf bytes.Buffer
	conflict := false
	cur := entry
	for {
		out, err := graph.OutgoingEdges(txn, ch, cur)
		if err != nil {
			return File{}, err
		}
		var branches []graph.Vertex
		for _, e := range out {
			if e.Flags.Has(patch.FlagFolder) || e.Flags.Has(patch.FlagPseudo) || e.Flags.Has(patch.FlagDeleted) {
				continue
			}
			alive, err := graph.IsAlive(txn, ch, e.Dest)
			if err != nil {
				return File{}, err
			}
			if alive {
				branches = append(branches, e.Dest)
			}
		}
		if len(branches) == 0 {
			break
		}
		if len(branches) == 1 {
			v := branches[0]
			b, err := src.bytesOf(v)
			if err != nil {
				return File{}, err
			}
			buf.Write(b)
			cur = v
			continue
		}

		conflict = true
		sortVertices(branches)
		fmt.Fprintf(&buf, "<<<<<<< conflict\n")
		for i, v := range branches {
			h, known, err := graph.HashOf(txn, v.Change)
			if err != nil {
				return File{}, err
			}
			label := "unknown"
			if known {
				label = h.String()
			}
			fmt.Fprintf(&buf, "||||||| %s\n", label)
			b, err := src.bytesOf(v)
			if err != nil {
				return File{}, err
			}
			buf.Write(b)
			if i < len(branches)-1 {
				buf.WriteString("\n")
			}
		}
		fmt.Fprintf(&buf, "\n>>>>>>> end conflict\n")
		// Conflicting branches don't merge back into a single
		// continuation point here; each is rendered once and the walk
		// stops, matching the "no common dominator on a line boundary"
		// case in spec §4.7.
		break
	}
	return File{Path: name, Bytes: buf.Bytes(), Conflict: conflict}, nil
}

func sortVertices(vs []graph.Vertex) {
	for i := 1; i < len(vs); i++ {
		for j := i; j > 0 && vs[j].Less(vs[j-1]); j-- {
			vs[j], vs[j-1] = vs[j-1], vs[j]
		}
	}
}
