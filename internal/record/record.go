// Package record implements the working-tree diff that produces a new
// patch from the state of files on disk (spec §4.6): it walks the
// inode tree, classifies every path as added, deleted, moved, or
// edited, translates content edits into NewVertex/EdgeMap atoms via a
// line diff, computes the minimal dependency antichain (and the
// consolidating-tag shortcut, spec §4.3), assembles the patch body,
// and applies it to the channel.
package record

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/atomic-vcs/atomic/internal/apply"
	"github.com/atomic-vcs/atomic/internal/channel"
	"github.com/atomic-vcs/atomic/internal/errs"
	"github.com/atomic-vcs/atomic/internal/graph"
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/patchstore"
	"github.com/atomic-vcs/atomic/internal/project"
	"github.com/atomic-vcs/atomic/internal/store"
)

// ignoreDir is the control directory every working-tree walk skips.
const ignoreDir = ".atomic"

// trackedEntry is a path record already knows about, recovered from
// the graph's existing inode and name-binding indices — record keeps
// no registry of its own.
type trackedEntry struct {
	inode  graph.InodeID
	vertex graph.Vertex
	path   string
}

func trackedEntries(txn *store.Txn, ch string) (map[string]trackedEntry, error) {
	inodes, err := graph.AllInodes(txn, ch)
	if err != nil {
		return nil, err
	}
	out := map[string]trackedEntry{}
	for _, ino := range inodes {
		v, ok, err := graph.LookupPosition(txn, ch, ino)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		name, known, err := graph.NameOf(txn, ch, v)
		if err != nil {
			return nil, err
		}
		if !known {
			continue
		}
		out[name] = trackedEntry{inode: ino, vertex: v, path: name}
	}
	return out, nil
}

// walkWorkingTree reads every regular file under root, keyed by its
// slash-separated path relative to root, skipping the control directory.
func walkWorkingTree(root string) (map[string][]byte, error) {
	files := map[string][]byte{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if parts[0] == ignoreDir {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func splitLines(b []byte) [][]byte {
	if len(b) == 0 {
		return nil
	}
	var lines [][]byte
	start := 0
	for i, c := range b {
		if c == '\n' {
			lines = append(lines, b[start:i+1])
			start = i + 1
		}
	}
	if start < len(b) {
		lines = append(lines, b[start:])
	}
	return lines
}

func bytesToStrings(chunks [][]byte) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = string(c)
	}
	return out
}

// builder assembles one patch's hashed body: the growing contents
// buffer, the hunks referencing slices of it, and the set of other
// patches' hashes this one turns out to depend on.
type builder struct {
	txn       *store.Txn
	ch        string
	contents  bytes.Buffer
	hunks     []patch.Hunk
	depHashes map[patch.Hash]bool
}

func newBuilder(txn *store.Txn, ch string) *builder {
	return &builder{txn: txn, ch: ch, depHashes: map[patch.Hash]bool{}}
}

// mark allocates a fresh, uniquely-positioned one-byte placeholder
// range used as a FileAdd/FileDel/FileMove entry's own identity — the
// entry vertex carries no real file content, only the anchor other
// atoms hang off of.
func (b *builder) mark() (start, end uint64) {
	start = uint64(b.contents.Len())
	b.contents.WriteByte(0)
	end = uint64(b.contents.Len())
	return
}

func (b *builder) writeLine(line []byte) (start, end uint64) {
	start = uint64(b.contents.Len())
	b.contents.Write(line)
	end = uint64(b.contents.Len())
	return
}

// selfVertex builds a context vertex referring to a vertex introduced
// earlier in this same, not-yet-hashed patch (spec §4.2's ZeroHash
// self-sentinel, documented on ContextVertex).
func selfVertex(start, end uint64) patch.ContextVertex {
	return patch.ContextVertex{PatchHash: patch.ZeroHash, Start: start, End: end}
}

// dependOn builds a context vertex referring to an already-applied
// vertex, recording its owning patch's hash as a direct dependency.
func (b *builder) dependOn(v graph.Vertex) (patch.ContextVertex, error) {
	h, ok, err := graph.HashOf(b.txn, v.Change)
	if err != nil {
		return patch.ContextVertex{}, err
	}
	if !ok {
		return patch.ContextVertex{}, errs.InvalidPatchf("vertex references unassigned change %d", v.Change)
	}
	b.depHashes[h] = true
	return patch.ContextVertex{PatchHash: h, Start: v.Start, End: v.End}, nil
}

func (b *builder) addFile(path string, content []byte) error {
	entryStart, entryEnd := b.mark()
	b.hunks = append(b.hunks, patch.Hunk{
		Kind:          patch.HunkFileAdd,
		Name:          path,
		Perms:         0o644,
		ContentsStart: entryStart,
		ContentsEnd:   entryEnd,
	})

	lines := splitLines(content)
	if len(lines) == 0 {
		return nil
	}
	var atoms []patch.Atom
	up := selfVertex(entryStart, entryEnd)
	for _, line := range lines {
		s, e := b.writeLine(line)
		atoms = append(atoms, patch.Atom{
			Kind:      patch.AtomNewVertex,
			UpContext: []patch.ContextVertex{up},
			Start:     s,
			End:       e,
		})
		up = selfVertex(s, e)
	}
	b.hunks = append(b.hunks, patch.Hunk{Kind: patch.HunkFileEdit, Path: path, Changes: atoms})
	return nil
}

func (b *builder) delFile(e trackedEntry) error {
	introHash, ok, err := graph.HashOf(b.txn, e.vertex.Change)
	if err != nil {
		return err
	}
	if !ok {
		return errs.InvalidPatchf("tracked entry %s references unassigned change %d", e.path, e.vertex.Change)
	}
	b.depHashes[introHash] = true
	b.hunks = append(b.hunks, patch.Hunk{
		Kind:          patch.HunkFileDel,
		Name:          e.path,
		ContentsStart: e.vertex.Start,
		ContentsEnd:   e.vertex.End,
		IntroducedBy:  introHash,
	})
	return nil
}

func (b *builder) moveFile(e trackedEntry, newPath string) error {
	introHash, ok, err := graph.HashOf(b.txn, e.vertex.Change)
	if err != nil {
		return err
	}
	if !ok {
		return errs.InvalidPatchf("tracked entry %s references unassigned change %d", e.path, e.vertex.Change)
	}
	b.depHashes[introHash] = true
	b.hunks = append(b.hunks, patch.Hunk{
		Kind:         patch.HunkFileMove,
		OldPath:      e.path,
		NewPath:      newPath,
		Perms:        0o644,
		OldStart:     e.vertex.Start,
		OldEnd:       e.vertex.End,
		IntroducedBy: introHash,
	})
	return nil
}

// editFile diffs the alive content chain rooted at entry against the
// on-disk bytes and translates the line diff into NewVertex/EdgeMap
// atoms. IntroducedBy on the deleting EdgeMap atom is the deleted
// vertex's own owning change: applyNewVertex always records both a
// vertex's up- and down-context edges with that vertex's own change
// id as introducer (see apply.go), so the edge ending at a chain
// vertex was always introduced by that vertex's patch.
func (b *builder) editFile(path string, entry graph.Vertex, chain []graph.Vertex, oldLines [][]byte, newContent []byte) error {
	entryCV, err := b.dependOn(entry)
	if err != nil {
		return err
	}

	newLines := splitLines(newContent)
	ops := diffLines(bytesToStrings(oldLines), bytesToStrings(newLines))

	var atoms []patch.Atom
	lastCtx := entryCV
	oldIdx := 0
	for _, op := range ops {
		switch op.kind {
		case editEqual:
			cv, err := b.dependOn(chain[oldIdx])
			if err != nil {
				return err
			}
			lastCtx = cv
			oldIdx++
		case editDelete:
			v := chain[oldIdx]
			toCV, err := b.dependOn(v)
			if err != nil {
				return err
			}
			introHash, ok, err := graph.HashOf(b.txn, v.Change)
			if err != nil {
				return err
			}
			if !ok {
				return errs.InvalidPatchf("chain vertex references unassigned change %d", v.Change)
			}
			b.depHashes[introHash] = true
			atoms = append(atoms, patch.Atom{
				Kind:         patch.AtomEdgeMap,
				EdgeFrom:     lastCtx,
				EdgeTo:       toCV,
				PrevFlags:    0,
				NewFlags:     patch.FlagDeleted,
				IntroducedBy: introHash,
			})
			oldIdx++
		case editInsert:
			s, e := b.writeLine(newLines[op.line])
			atoms = append(atoms, patch.Atom{
				Kind:      patch.AtomNewVertex,
				UpContext: []patch.ContextVertex{lastCtx},
				Start:     s,
				End:       e,
			})
			lastCtx = selfVertex(s, e)
		}
	}
	b.hunks = append(b.hunks, patch.Hunk{Kind: patch.HunkFileEdit, Path: path, Changes: atoms})
	return nil
}

// classification is the result of comparing the tracked set against
// the working tree (spec §4.6 steps 1-2).
type classification struct {
	added   []string          // disk paths with no tracked entry
	edited  []string          // paths present, unchanged name, differing content
	stable  []string          // paths present, unchanged name, identical content — skipped
	deleted []string          // tracked paths missing from disk
	moved   map[string]string // old tracked path -> new disk path, identical content
}

func classify(txn *store.Txn, ch string, ps *patchstore.Store, tracked map[string]trackedEntry, disk map[string][]byte) (*classification, error) {
	c := &classification{moved: map[string]string{}}

	deletedCandidates := map[string][]byte{}
	for path, e := range tracked {
		if _, onDisk := disk[path]; onDisk {
			continue
		}
		f, err := project.ContentOf(txn, ch, ps, e.vertex)
		if err != nil {
			return nil, err
		}
		deletedCandidates[path] = f.Bytes
	}

	addedCandidates := map[string][]byte{}
	for path, b := range disk {
		if _, tracked := tracked[path]; tracked {
			continue
		}
		addedCandidates[path] = b
	}

	for oldPath, oldContent := range deletedCandidates {
		matched := ""
		for newPath, newContent := range addedCandidates {
			if bytes.Equal(oldContent, newContent) {
				matched = newPath
				break
			}
		}
		if matched != "" {
			c.moved[oldPath] = matched
			delete(addedCandidates, matched)
		} else {
			c.deleted = append(c.deleted, oldPath)
		}
	}
	for path := range addedCandidates {
		c.added = append(c.added, path)
	}

	for path, e := range tracked {
		diskContent, onDisk := disk[path]
		if !onDisk {
			continue
		}
		f, err := project.ContentOf(txn, ch, ps, e.vertex)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(f.Bytes, diskContent) {
			c.stable = append(c.stable, path)
		} else {
			c.edited = append(c.edited, path)
		}
	}

	sort.Strings(c.added)
	sort.Strings(c.edited)
	sort.Strings(c.deleted)
	return c, nil
}

// Record implements spec §4.6: diff the working tree at root against
// ch's current projection, assemble a new patch, persist it, and
// apply it. metadata is the opaque attribution payload carried
// verbatim through the external metadata hook (spec §4.10). Returns a
// nil patch if nothing changed.
func Record(txn *store.Txn, ps *patchstore.Store, ch, root string, header patch.Header, metadata []byte) (*patch.Patch, apply.Result, error) {
	tracked, err := trackedEntries(txn, ch)
	if err != nil {
		return nil, apply.Result{}, err
	}
	disk, err := walkWorkingTree(root)
	if err != nil {
		return nil, apply.Result{}, err
	}
	cls, err := classify(txn, ch, ps, tracked, disk)
	if err != nil {
		return nil, apply.Result{}, err
	}
	if len(cls.added) == 0 && len(cls.edited) == 0 && len(cls.deleted) == 0 && len(cls.moved) == 0 {
		return nil, apply.Result{}, nil
	}

	b := newBuilder(txn, ch)

	for _, p := range cls.added {
		if err := b.addFile(p, disk[p]); err != nil {
			return nil, apply.Result{}, err
		}
	}
	for _, p := range cls.deleted {
		if err := b.delFile(tracked[p]); err != nil {
			return nil, apply.Result{}, err
		}
	}
	movedFrom := make([]string, 0, len(cls.moved))
	for from := range cls.moved {
		movedFrom = append(movedFrom, from)
	}
	sort.Strings(movedFrom)
	for _, from := range movedFrom {
		if err := b.moveFile(tracked[from], cls.moved[from]); err != nil {
			return nil, apply.Result{}, err
		}
	}
	for _, p := range cls.edited {
		e := tracked[p]
		chain, contents, forked, err := project.ChainOf(txn, ch, ps, e.vertex)
		if err != nil {
			return nil, apply.Result{}, err
		}
		if forked {
			return nil, apply.Result{}, errs.Conflict("path " + p + " has an unresolved conflict; resolve it before recording")
		}
		if err := b.editFile(p, e.vertex, chain, contents, disk[p]); err != nil {
			return nil, apply.Result{}, err
		}
	}

	direct := make([]patch.Hash, 0, len(b.depHashes))
	for h := range b.depHashes {
		direct = append(direct, h)
	}
	dependsOn := func(y, x patch.Hash) bool {
		yID, ok1, err1 := graph.LookupChangeID(txn, y)
		xID, ok2, err2 := graph.LookupChangeID(txn, x)
		if err1 != nil || err2 != nil || !ok1 || !ok2 {
			return false
		}
		transitively, _ := graph.DependsOnTransitively(txn, ch, yID, xID)
		return transitively
	}
	minimal := patch.MinimalAntichain(direct, dependsOn)

	deps := minimal
	if n, _, ok, err := channel.LatestConsolidatingTag(txn, ch); err == nil && ok {
		if tagHash, known, err := channel.TagHashAt(txn, ch, n); err == nil && known {
			if tag, err := ps.LoadTag(tagHash); err == nil {
				consolidated := make(map[patch.Hash]bool, len(tag.ConsolidatedChanges))
				for _, cc := range tag.ConsolidatedChanges {
					consolidated[cc] = true
				}
				if patch.TagShortcutEligible(minimal, consolidated) {
					deps = []patch.Hash{tagHash}
				}
			}
		}
	}

	p := &patch.Patch{
		HashedBody: patch.HashedBody{
			Header:       header,
			Dependencies: deps,
			ExtraKnown:   direct,
			Hunks:        b.hunks,
			Contents:     b.contents.Bytes(),
		},
		Metadata: metadata,
	}
	p.Hash = p.ComputeHash()

	if err := ps.SaveChange(p); err != nil {
		return nil, apply.Result{}, err
	}
	res, err := apply.Apply(txn, ps, ch, p)
	if err != nil {
		return nil, apply.Result{}, err
	}
	return p, res, nil
}
