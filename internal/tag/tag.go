// Package tag implements consolidating and plain tag creation (spec
// §4.8). Resolution (finding the channel's latest consolidating tag
// and consulting its consolidated set) lives in internal/channel and
// internal/record, since both already need the same log-scanning
// primitive; this package owns the write path only.
package tag

import (
	"github.com/atomic-vcs/atomic/internal/channel"
	"github.com/atomic-vcs/atomic/internal/errs"
	"github.com/atomic-vcs/atomic/internal/graph"
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/patchstore"
	"github.com/atomic-vcs/atomic/internal/store"
)

// bucketConsolidatingTags is repo-global (not channel-scoped): the
// node key derives from the state hash alone, so two channels or two
// repositories that reach the same accumulated state recognize the
// same tag (spec §4.8 step 4's "derived node key").
const bucketConsolidatingTags = "consolidating_tags"

// Params carries the free-text fields of a new tag (spec §3 "Tag").
type Params struct {
	Version            string
	Author             string
	Message            string
	Timestamp          int64
	AttributionSummary []byte
	Consolidating      bool
}

// Create builds and persists a tag at ch's current tip: a full
// consolidating tag (spec §4.8 "Creation") when Consolidating is set,
// or a plain marker tag otherwise.
func Create(txn *store.Txn, ps *patchstore.Store, ch string, p Params) (*patch.Tag, error) {
	n, _, state, ok, err := channel.Tip(txn, ch)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.NotFound("channel " + ch + " has no applied patches to tag")
	}

	t := &patch.Tag{
		Channel:            ch,
		State:              state,
		Version:            p.Version,
		Author:             p.Author,
		Message:            p.Message,
		Timestamp:          p.Timestamp,
		Consolidating:      p.Consolidating,
		AttributionSummary: p.AttributionSummary,
	}

	if p.Consolidating {
		var changes []patch.Hash
		var depCount uint64
		err = channel.Walk(txn, ch, 0, func(_ uint64, changeID graph.ChangeID, _ channel.StateHash, _ byte) error {
			h, known, err := graph.HashOf(txn, changeID)
			if err != nil {
				return err
			}
			if !known {
				return errs.NotFound("change hash during tag consolidation")
			}
			changes = append(changes, h)
			cnt, err := graph.DependencyCount(txn, ch, changeID)
			if err != nil {
				return err
			}
			depCount += uint64(cnt)
			return nil
		})
		if err != nil {
			return nil, err
		}

		prevHash := patch.ZeroHash
		if prevN, _, found, err := channel.LatestConsolidatingTag(txn, ch); err != nil {
			return nil, err
		} else if found {
			if h, known, err := channel.TagHashAt(txn, ch, prevN); err != nil {
				return nil, err
			} else if known {
				prevHash = h
			}
		}

		t.ConsolidatedChanges = changes
		t.DependencyCountBefore = depCount
		t.ConsolidatedChangeCount = uint64(len(changes))
		t.PreviousConsolidation = prevHash
	}

	t.Hash = t.ComputeHash()
	if err := ps.SaveTag(t); err != nil {
		return nil, err
	}
	if err := channel.MarkTag(txn, ch, n, p.Consolidating); err != nil {
		return nil, err
	}
	if err := channel.RecordTagHash(txn, ch, n, t.Hash); err != nil {
		return nil, err
	}

	if p.Consolidating {
		key := patch.NodeKey(t.State)
		b, err := txn.Bucket(bucketConsolidatingTags)
		if err != nil {
			return nil, err
		}
		if err := b.Put(key[:], patch.EncodeFull(t)); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// ByNodeKey looks up a previously-created consolidating tag by the
// derived node key of a state hash, without needing its content hash
// (spec §4.8 step 6).
func ByNodeKey(txn *store.Txn, state patch.StateHash) (*patch.Tag, bool, error) {
	key := patch.NodeKey(state)
	b, err := txn.Bucket(bucketConsolidatingTags)
	if err == store.ErrBucketNotFound {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	raw := b.Get(key[:])
	if raw == nil {
		return nil, false, nil
	}
	t, err := patch.DecodeTagFull(raw)
	if err != nil {
		return nil, false, err
	}
	t.Hash = t.ComputeHash()
	return t, true, nil
}
