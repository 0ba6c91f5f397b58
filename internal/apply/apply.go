// Package apply implements the patch algebra's two core state
// transitions: Apply (spec §4.4) and Unrecord (spec §4.5). Both run
// inside a single store.Txn the caller commits or rolls back; neither
// function opens its own transaction.
package apply

import (
	"github.com/atomic-vcs/atomic/internal/channel"
	"github.com/atomic-vcs/atomic/internal/errs"
	"github.com/atomic-vcs/atomic/internal/graph"
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/patchstore"
	"github.com/atomic-vcs/atomic/internal/store"
)

// Result is what a successful Apply reports back to the caller.
type Result struct {
	ChangeID graph.ChangeID
	Position uint64
	State    channel.StateHash
	// AlreadyApplied is true when p.Hash was already present on the
	// channel and Apply was a no-op (spec §4.4 step 1).
	AlreadyApplied bool
}

// Apply resolves p's dependencies, translates every hunk's atoms into
// graph mutations, appends the new log entry, and updates the
// dependency indices, all inside txn (spec §4.4). ps is needed to
// expand a tag-shortcut dependency into its consolidated change set.
func Apply(txn *store.Txn, ps *patchstore.Store, ch string, p *patch.Patch) (Result, error) {
	// Step 1: idempotence check by content hash, not by a possibly
	// unassigned change_id.
	if existingID, known, err := graph.LookupChangeID(txn, p.Hash); err != nil {
		return Result{}, err
	} else if known {
		if already, err := channel.IsApplied(txn, ch, existingID); err != nil {
			return Result{}, err
		} else if already {
			state, err := channel.CurrentState(txn, ch)
			if err != nil {
				return Result{}, err
			}
			return Result{ChangeID: existingID, State: state, AlreadyApplied: true}, nil
		}
	}

	// Step 2: resolve dependencies; every one must already be applied
	// on this channel, OR (spec §4.3 tag shortcut) be a consolidating
	// tag this channel already knows about, in which case its whole
	// consolidated set is trusted without a per-change_id lookup.
	depIDs := make(map[patch.Hash]graph.ChangeID, len(p.Dependencies))
	var missing []string
	for _, d := range p.Dependencies {
		id, known, err := graph.LookupChangeID(txn, d)
		if err != nil {
			return Result{}, err
		}
		if known {
			if ok, err := channel.IsApplied(txn, ch, id); err != nil {
				return Result{}, err
			} else if ok {
				depIDs[d] = id
				continue
			}
		}
		if isTag, err := channel.IsKnownTag(txn, ch, d); err != nil {
			return Result{}, err
		} else if isTag {
			// Tag shortcut (spec §4.3): trust the whole consolidated
			// set without requiring each member be independently
			// applied, but still record each as a real dependency so
			// has_dependents and transitive-dependency queries see them.
			t, err := ps.LoadTag(d)
			if err != nil {
				return Result{}, err
			}
			for _, cc := range t.ConsolidatedChanges {
				ccID, known, err := graph.LookupChangeID(txn, cc)
				if err != nil {
					return Result{}, err
				}
				if !known {
					return Result{}, errs.InvalidPatchf("consolidating tag %s references unknown change %s", d.String(), cc.String())
				}
				depIDs[cc] = ccID
			}
			continue
		}
		missing = append(missing, d.String())
	}
	if len(missing) > 0 {
		return Result{}, errs.MissingDeps(missing)
	}

	// extra_known hints: resolved if already known, silently skipped
	// otherwise (they are hints, never part of the dependency closure).
	hashToChange := map[patch.Hash]graph.ChangeID{}
	for h, id := range depIDs {
		hashToChange[h] = id
	}
	for _, h := range p.ExtraKnown {
		if id, known, err := graph.LookupChangeID(txn, h); err != nil {
			return Result{}, err
		} else if known {
			hashToChange[h] = id
		}
	}

	// Step 3: allocate (or reuse) this patch's own change_id.
	ownID, err := graph.ResolveOrAllocateChangeID(txn, p.Hash)
	if err != nil {
		return Result{}, err
	}

	resolve := func(cv patch.ContextVertex) (graph.Vertex, error) {
		if cv.PatchHash.IsZero() {
			return graph.Vertex{Change: ownID, Start: cv.Start, End: cv.End}, nil
		}
		id, ok := hashToChange[cv.PatchHash]
		if !ok {
			return graph.Vertex{}, errs.InvalidPatchf("context vertex references unknown patch %s", cv.PatchHash.String())
		}
		return graph.Vertex{Change: id, Start: cv.Start, End: cv.End}, nil
	}

	// Step 4: translate every hunk's atoms in order.
	for _, hunk := range p.Hunks {
		if err := applyHunk(txn, ch, ownID, hunk, resolve); err != nil {
			return Result{}, err
		}
	}

	// Step 5: append to the log and accumulate the state hash.
	prevState, err := channel.CurrentState(txn, ch)
	if err != nil {
		return Result{}, err
	}
	newState, err := channel.Add(prevState, p.Hash)
	if err != nil {
		return Result{}, err
	}
	n, err := channel.Append(txn, ch, ownID, newState)
	if err != nil {
		return Result{}, err
	}

	// Step 6: dependency indices.
	for _, d := range depIDs {
		if err := graph.RecordDependency(txn, ch, ownID, d); err != nil {
			return Result{}, err
		}
	}

	return Result{ChangeID: ownID, Position: n, State: newState}, nil
}

type resolveFn func(patch.ContextVertex) (graph.Vertex, error)

func applyHunk(txn *store.Txn, ch string, ownID graph.ChangeID, h patch.Hunk, resolve resolveFn) error {
	switch h.Kind {
	case patch.HunkFileEdit:
		for _, a := range h.Changes {
			if err := applyAtom(txn, ch, ownID, a, resolve); err != nil {
				return err
			}
		}
		return nil
	case patch.HunkSolveOrderConflict, patch.HunkSolveNameConflict:
		for _, a := range h.ConflictAtoms {
			if err := applyAtom(txn, ch, ownID, a, resolve); err != nil {
				return err
			}
		}
		return nil
	case patch.HunkFileAdd:
		return applyFileAdd(txn, ch, ownID, h)
	case patch.HunkFileDel:
		return applyFileDel(txn, ch, ownID, h)
	case patch.HunkFileMove:
		return applyFileMove(txn, ch, ownID, h)
	default:
		return errs.InvalidPatchf("unknown hunk kind %d", h.Kind)
	}
}

func applyAtom(txn *store.Txn, ch string, ownID graph.ChangeID, a patch.Atom, resolve resolveFn) error {
	switch a.Kind {
	case patch.AtomNewVertex:
		return applyNewVertex(txn, ch, ownID, a, resolve)
	case patch.AtomEdgeMap:
		return applyEdgeMap(txn, ch, ownID, a, resolve)
	default:
		return errs.InvalidPatchf("unknown atom kind %d", a.Kind)
	}
}

// applyNewVertex inserts v and wires it to its context, inserting
// PSEUDO edges where a context vertex is currently dead so v stays
// reachable from the root, and marking v zombie-produced if any
// down-context was dead (spec §4.4 step 4, NewVertex).
func applyNewVertex(txn *store.Txn, ch string, ownID graph.ChangeID, a patch.Atom, resolve resolveFn) error {
	v := graph.Vertex{Change: ownID, Start: a.Start, End: a.End}
	if err := graph.MarkVertex(txn, ch, v); err != nil {
		return err
	}

	anyDownDead := false
	for _, cv := range a.UpContext {
		up, err := resolve(cv)
		if err != nil {
			return err
		}
		if err := graph.AddEdge(txn, ch, up, a.Flag, v, ownID); err != nil {
			return err
		}
		alive, err := graph.IsAlive(txn, ch, up)
		if err != nil {
			return err
		}
		if !alive {
			if err := graph.AddEdge(txn, ch, graph.Root, patch.FlagPseudo, v, ownID); err != nil {
				return err
			}
			if err := graph.RecordPseudoBySelf(txn, ch, ownID, v); err != nil {
				return err
			}
		}
	}
	for _, cv := range a.DownContext {
		down, err := resolve(cv)
		if err != nil {
			return err
		}
		if err := graph.AddEdge(txn, ch, v, a.Flag, down, ownID); err != nil {
			return err
		}
		alive, err := graph.IsAlive(txn, ch, down)
		if err != nil {
			return err
		}
		if !alive {
			anyDownDead = true
		}
	}
	if anyDownDead {
		if err := graph.MarkZombie(txn, ch, v); err != nil {
			return err
		}
	}
	if len(a.UpContext) == 0 && len(a.DownContext) == 0 {
		// A vertex with no context at all is only reachable from the
		// root via an explicit pseudo edge.
		if err := graph.AddEdge(txn, ch, graph.Root, patch.FlagPseudo, v, ownID); err != nil {
			return err
		}
		if err := graph.RecordPseudoBySelf(txn, ch, ownID, v); err != nil {
			return err
		}
	}
	return nil
}

// applyEdgeMap rewrites an existing edge's flags and, if the edge
// newly becomes DELETED, repairs reachability for any alive vertex
// that depended on it (spec §4.4 step 4, EdgeMap).
func applyEdgeMap(txn *store.Txn, ch string, ownID graph.ChangeID, a patch.Atom, resolve resolveFn) error {
	from, err := resolve(a.EdgeFrom)
	if err != nil {
		return err
	}
	to, err := resolve(a.EdgeTo)
	if err != nil {
		return err
	}
	introID := ownID
	if !a.IntroducedBy.IsZero() {
		id, ok, err := graph.LookupChangeID(txn, a.IntroducedBy)
		if err != nil {
			return err
		}
		if ok {
			introID = id
		}
	}
	// a.IntroducedBy zero means "introduced by this same patch" (see
	// ContextVertex's self-sentinel doc comment); introID already
	// defaults to ownID in that case.
	if err := graph.ReplaceEdgeFlags(txn, ch, from, to, a.PrevFlags, a.NewFlags, introID); err != nil {
		return err
	}
	if a.NewFlags.Has(patch.FlagDeleted) {
		return repairReachability(txn, ch, to, ownID)
	}
	return nil
}

// repairReachability inserts a PSEUDO edge from the root to any
// still-alive vertex downstream of v that no longer has any live path
// back to the root, after an edge deletion may have severed it
// (spec §4.4 step 4, EdgeMap: "check downward reachability... insert
// PSEUDO edges on every alive descendant that now depends on this
// edge for reachability").
func repairReachability(txn *store.Txn, ch string, v graph.Vertex, introID graph.ChangeID) error {
	visited := map[graph.Vertex]bool{v: true}
	stack := []graph.Vertex{v}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out, err := graph.OutgoingEdges(txn, ch, cur)
		if err != nil {
			return err
		}
		for _, e := range out {
			if visited[e.Dest] {
				continue
			}
			visited[e.Dest] = true
			reachable, err := graph.ReachableIgnoringLiveness(txn, ch, e.Dest)
			if err != nil {
				return err
			}
			if !reachable {
				continue
			}
			alive, err := graph.IsAlive(txn, ch, e.Dest)
			if err != nil {
				return err
			}
			if alive {
				stillReachable, err := hasLivePath(txn, ch, e.Dest)
				if err != nil {
					return err
				}
				if !stillReachable {
					if err := graph.AddEdge(txn, ch, graph.Root, patch.FlagPseudo, e.Dest, introID); err != nil {
						return err
					}
					if err := graph.RecordPseudoBySelf(txn, ch, introID, e.Dest); err != nil {
						return err
					}
				}
			}
			stack = append(stack, e.Dest)
		}
	}
	return nil
}

// hasLivePath reports whether v has at least one incoming edge that is
// neither pseudo nor deleted — the same test as graph.IsAlive, kept
// separate here for readability at the call site above.
func hasLivePath(txn *store.Txn, ch string, v graph.Vertex) (bool, error) {
	return graph.IsAlive(txn, ch, v)
}

func applyFileAdd(txn *store.Txn, ch string, ownID graph.ChangeID, h patch.Hunk) error {
	entry := graph.Vertex{Change: ownID, Start: h.ContentsStart, End: h.ContentsEnd}
	if err := graph.MarkVertex(txn, ch, entry); err != nil {
		return err
	}
	if err := graph.AddEdge(txn, ch, graph.Root, patch.FlagFolder, entry, ownID); err != nil {
		return err
	}
	if err := graph.BindName(txn, ch, entry, h.Name); err != nil {
		return err
	}
	_, err := graph.AllocateInode(txn, ch, entry)
	return err
}

func applyFileDel(txn *store.Txn, ch string, ownID graph.ChangeID, h patch.Hunk) error {
	introID, err := resolveIntroducer(txn, ownID, h.IntroducedBy)
	if err != nil {
		return err
	}
	entry := graph.Vertex{Change: introID, Start: h.ContentsStart, End: h.ContentsEnd}
	if err := graph.ReplaceEdgeFlags(txn, ch, graph.Root, entry, patch.FlagFolder, patch.FlagFolder|patch.FlagDeleted, introID); err != nil {
		return err
	}
	if inode, ok, err := graph.LookupInodeByPosition(txn, ch, entry); err != nil {
		return err
	} else if ok {
		return graph.ReleaseInode(txn, ch, inode)
	}
	return nil
}

// resolveIntroducer resolves a FileDel/FileMove hunk's IntroducedBy
// hash to a change ID, defaulting to ownID when it is the self-sentinel
// zero hash (the entry was introduced earlier in this same patch).
func resolveIntroducer(txn *store.Txn, ownID graph.ChangeID, introducedBy patch.Hash) (graph.ChangeID, error) {
	if introducedBy.IsZero() {
		return ownID, nil
	}
	id, ok, err := graph.LookupChangeID(txn, introducedBy)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errs.InvalidPatchf("hunk references unknown introducing patch %s", introducedBy.String())
	}
	return id, nil
}

// applyFileMove renames an entry in place: the entry vertex and its
// FOLDER edge keep the identity assigned by whichever patch introduced
// them, only the g_name binding changes. OldStart/OldEnd/IntroducedBy
// identify that entry exactly like FileDel does.
func applyFileMove(txn *store.Txn, ch string, ownID graph.ChangeID, h patch.Hunk) error {
	introID, err := resolveIntroducer(txn, ownID, h.IntroducedBy)
	if err != nil {
		return err
	}
	entry := graph.Vertex{Change: introID, Start: h.OldStart, End: h.OldEnd}
	if err := graph.UnbindName(txn, ch, entry); err != nil {
		return err
	}
	return graph.BindName(txn, ch, entry, h.NewPath)
}
