package graph

import (
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/store"
)

// Change IDs are repository-global (spec §3 "Change ID"): assigned the
// first time a patch is applied on any channel in this repository, and
// reused thereafter regardless of which channel asks.
const (
	bucketHashToID = "change_hash2id"
	bucketIDToHash = "change_id2hash"
	bucketIDSeq    = "change_idseq"
)

// ResolveOrAllocateChangeID returns the change ID for hash, allocating
// a fresh one if this repository has never seen the patch before
// (spec §4.4 step 3).
func ResolveOrAllocateChangeID(txn *store.Txn, hash patch.Hash) (ChangeID, error) {
	h2i, err := txn.Bucket(bucketHashToID)
	if err != nil {
		return 0, err
	}
	if v := h2i.Get(hash[:]); v != nil {
		return decodeChangeID(v), nil
	}

	seq, err := txn.Bucket(bucketIDSeq)
	if err != nil {
		return 0, err
	}
	n, err := seq.NextSequence()
	if err != nil {
		return 0, err
	}
	id := ChangeID(n)

	if err := h2i.Put(hash[:], encodeChangeID(id)); err != nil {
		return 0, err
	}
	i2h, err := txn.Bucket(bucketIDToHash)
	if err != nil {
		return 0, err
	}
	if err := i2h.Put(encodeChangeID(id), hash[:]); err != nil {
		return 0, err
	}
	return id, nil
}

// LookupChangeID returns the change ID already assigned to hash, if any.
func LookupChangeID(txn *store.Txn, hash patch.Hash) (ChangeID, bool, error) {
	h2i, err := txn.Bucket(bucketHashToID)
	if err == store.ErrBucketNotFound {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	v := h2i.Get(hash[:])
	if v == nil {
		return 0, false, nil
	}
	return decodeChangeID(v), true, nil
}

// HashOf returns the content hash a change ID was allocated for.
func HashOf(txn *store.Txn, id ChangeID) (patch.Hash, bool, error) {
	i2h, err := txn.Bucket(bucketIDToHash)
	if err == store.ErrBucketNotFound {
		return patch.Hash{}, false, nil
	} else if err != nil {
		return patch.Hash{}, false, err
	}
	v := i2h.Get(encodeChangeID(id))
	if v == nil {
		return patch.Hash{}, false, nil
	}
	var h patch.Hash
	copy(h[:], v)
	return h, true, nil
}
