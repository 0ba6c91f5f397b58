package apply

import (
	"github.com/atomic-vcs/atomic/internal/channel"
	"github.com/atomic-vcs/atomic/internal/errs"
	"github.com/atomic-vcs/atomic/internal/graph"
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/patchstore"
	"github.com/atomic-vcs/atomic/internal/store"
)

// tailEntry is a log position surviving an Unrecord that isn't the
// channel's tip, captured before TruncateFrom destroys it so it can be
// re-appended at its shifted position afterward.
type tailEntry struct {
	changeID graph.ChangeID
	hash     patch.Hash
	tagFlag  byte
}

// Unrecord removes the patch identified by hash from ch: the reverse
// of Apply (spec §4.5). It refuses when any patch still applied on the
// channel directly depends on it. When the removed patch isn't the
// tip, every later log entry is replayed: the graph mutations those
// later patches made are left untouched (nothing depended on the
// removed patch, or the dependents check above would have failed), and
// only the log/changes/states/tags indices need their positions and
// state hashes recomputed — each surviving entry's hash is re-added on
// top of the truncated prefix's state, which the accumulator's order
// independence makes exact without a full graph re-derivation
// (spec §4.5, I5).
func Unrecord(txn *store.Txn, ps *patchstore.Store, ch string, hash patch.Hash) error {
	id, known, err := graph.LookupChangeID(txn, hash)
	if err != nil {
		return err
	}
	if !known {
		return errs.NotFound("patch " + hash.String())
	}
	pos, applied, err := channel.PositionOfChange(txn, ch, id)
	if err != nil {
		return err
	}
	if !applied {
		return errs.NotFound("patch " + hash.String() + " not applied on channel")
	}

	if err := checkNoDependents(txn, ch, id); err != nil {
		return err
	}

	p, err := ps.LoadChange(hash)
	if err != nil {
		return err
	}

	var tail []tailEntry
	err = channel.Walk(txn, ch, pos+1, func(_ uint64, changeID graph.ChangeID, _ channel.StateHash, tagFlag byte) error {
		h, ok, err := graph.HashOf(txn, changeID)
		if err != nil {
			return err
		}
		if !ok {
			return errs.NotFound("change hash for tail entry")
		}
		tail = append(tail, tailEntry{changeID: changeID, hash: h, tagFlag: tagFlag})
		return nil
	})
	if err != nil {
		return err
	}

	if err := reverseHunks(txn, ch, id, p); err != nil {
		return err
	}
	pseudo, err := graph.PseudoVerticesOf(txn, ch, id)
	if err != nil {
		return err
	}
	for _, v := range pseudo {
		if err := graph.RemoveEdge(txn, ch, graph.Root, patch.FlagPseudo, v, id); err != nil {
			return err
		}
	}
	if err := graph.ClearPseudoIndex(txn, ch, id); err != nil {
		return err
	}
	for _, d := range p.Dependencies {
		if depID, known, err := graph.LookupChangeID(txn, d); err != nil {
			return err
		} else if known {
			if err := graph.RemoveDependency(txn, ch, id, depID); err != nil {
				return err
			}
		}
	}

	if err := channel.TruncateFrom(txn, ch, pos); err != nil {
		return err
	}

	for _, e := range tail {
		prevState, err := channel.CurrentState(txn, ch)
		if err != nil {
			return err
		}
		newState, err := channel.Add(prevState, e.hash)
		if err != nil {
			return err
		}
		n, err := channel.Append(txn, ch, e.changeID, newState)
		if err != nil {
			return err
		}
		if e.tagFlag != 0 {
			if err := channel.MarkTag(txn, ch, n, e.tagFlag == 2); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkNoDependents enforces spec §4.5's added step 0: no currently
// applied patch may directly depend on the one being removed.
func checkNoDependents(txn *store.Txn, ch string, id graph.ChangeID) error {
	dependents, err := graph.Dependents(txn, ch, id)
	if err != nil {
		return err
	}
	var blocking []string
	for _, dep := range dependents {
		if ok, err := channel.IsApplied(txn, ch, dep); err != nil {
			return err
		} else if ok {
			if h, ok, err := graph.HashOf(txn, dep); err != nil {
				return err
			} else if ok {
				blocking = append(blocking, h.String())
			}
		}
	}
	if len(blocking) > 0 {
		return errs.HasDependents(blocking)
	}
	return nil
}

// reverseHunks undoes every hunk's graph mutations in reverse order,
// mirroring applyHunk's forward translation.
func reverseHunks(txn *store.Txn, ch string, id graph.ChangeID, p *patch.Patch) error {
	resolve := func(cv patch.ContextVertex) (graph.Vertex, error) {
		if cv.PatchHash.IsZero() {
			return graph.Vertex{Change: id, Start: cv.Start, End: cv.End}, nil
		}
		changeID, known, err := graph.LookupChangeID(txn, cv.PatchHash)
		if err != nil {
			return graph.Vertex{}, err
		}
		if !known {
			return graph.Vertex{}, errs.InvalidPatchf("context vertex references unknown patch %s", cv.PatchHash.String())
		}
		return graph.Vertex{Change: changeID, Start: cv.Start, End: cv.End}, nil
	}

	for i := len(p.Hunks) - 1; i >= 0; i-- {
		if err := reverseHunk(txn, ch, id, p.Hunks[i], resolve); err != nil {
			return err
		}
	}
	return nil
}

func reverseHunk(txn *store.Txn, ch string, id graph.ChangeID, h patch.Hunk, resolve resolveFn) error {
	switch h.Kind {
	case patch.HunkFileEdit:
		for i := len(h.Changes) - 1; i >= 0; i-- {
			if err := reverseAtom(txn, ch, id, h.Changes[i], resolve); err != nil {
				return err
			}
		}
		return nil
	case patch.HunkSolveOrderConflict, patch.HunkSolveNameConflict:
		for i := len(h.ConflictAtoms) - 1; i >= 0; i-- {
			if err := reverseAtom(txn, ch, id, h.ConflictAtoms[i], resolve); err != nil {
				return err
			}
		}
		return nil
	case patch.HunkFileAdd:
		return reverseFileAdd(txn, ch, id, h)
	case patch.HunkFileDel:
		return reverseFileDel(txn, ch, id, h)
	case patch.HunkFileMove:
		return reverseFileMove(txn, ch, id, h)
	default:
		return errs.InvalidPatchf("unknown hunk kind %d", h.Kind)
	}
}

func reverseAtom(txn *store.Txn, ch string, id graph.ChangeID, a patch.Atom, resolve resolveFn) error {
	switch a.Kind {
	case patch.AtomNewVertex:
		return reverseNewVertex(txn, ch, id, a, resolve)
	case patch.AtomEdgeMap:
		return reverseEdgeMap(txn, ch, id, a, resolve)
	default:
		return errs.InvalidPatchf("unknown atom kind %d", a.Kind)
	}
}

func reverseNewVertex(txn *store.Txn, ch string, id graph.ChangeID, a patch.Atom, resolve resolveFn) error {
	v := graph.Vertex{Change: id, Start: a.Start, End: a.End}
	for _, cv := range a.UpContext {
		up, err := resolve(cv)
		if err != nil {
			return err
		}
		if err := graph.RemoveEdge(txn, ch, up, a.Flag, v, id); err != nil {
			return err
		}
	}
	for _, cv := range a.DownContext {
		down, err := resolve(cv)
		if err != nil {
			return err
		}
		if err := graph.RemoveEdge(txn, ch, v, a.Flag, down, id); err != nil {
			return err
		}
	}
	if err := graph.ClearZombie(txn, ch, v); err != nil {
		return err
	}
	return graph.UnmarkVertex(txn, ch, v)
}

func reverseEdgeMap(txn *store.Txn, ch string, id graph.ChangeID, a patch.Atom, resolve resolveFn) error {
	from, err := resolve(a.EdgeFrom)
	if err != nil {
		return err
	}
	to, err := resolve(a.EdgeTo)
	if err != nil {
		return err
	}
	introID := id
	if !a.IntroducedBy.IsZero() {
		if lookedUp, ok, err := graph.LookupChangeID(txn, a.IntroducedBy); err != nil {
			return err
		} else if ok {
			introID = lookedUp
		}
	}
	// Restore the edge to its pre-atom flags, undoing the atom's rewrite.
	return graph.ReplaceEdgeFlags(txn, ch, from, to, a.NewFlags, a.PrevFlags, introID)
}

func reverseFileAdd(txn *store.Txn, ch string, id graph.ChangeID, h patch.Hunk) error {
	entry := graph.Vertex{Change: id, Start: h.ContentsStart, End: h.ContentsEnd}
	if inode, ok, err := graph.LookupInodeByPosition(txn, ch, entry); err != nil {
		return err
	} else if ok {
		if err := graph.ReleaseInode(txn, ch, inode); err != nil {
			return err
		}
	}
	if err := graph.UnbindName(txn, ch, entry); err != nil {
		return err
	}
	if err := graph.RemoveEdge(txn, ch, graph.Root, patch.FlagFolder, entry, id); err != nil {
		return err
	}
	return graph.UnmarkVertex(txn, ch, entry)
}

func reverseFileDel(txn *store.Txn, ch string, id graph.ChangeID, h patch.Hunk) error {
	introID, err := resolveIntroducer(txn, id, h.IntroducedBy)
	if err != nil {
		return err
	}
	entry := graph.Vertex{Change: introID, Start: h.ContentsStart, End: h.ContentsEnd}
	if err := graph.ReplaceEdgeFlags(txn, ch, graph.Root, entry, patch.FlagFolder|patch.FlagDeleted, patch.FlagFolder, introID); err != nil {
		return err
	}
	_, err = graph.AllocateInode(txn, ch, entry)
	return err
}

// reverseFileMove restores the entry's pre-move name; the entry's
// identity and FOLDER edge were never touched by the forward move.
func reverseFileMove(txn *store.Txn, ch string, id graph.ChangeID, h patch.Hunk) error {
	introID, err := resolveIntroducer(txn, id, h.IntroducedBy)
	if err != nil {
		return err
	}
	entry := graph.Vertex{Change: introID, Start: h.OldStart, End: h.OldEnd}
	if err := graph.UnbindName(txn, ch, entry); err != nil {
		return err
	}
	return graph.BindName(txn, ch, entry, h.OldPath)
}
