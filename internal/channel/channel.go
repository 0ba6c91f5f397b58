package channel

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/atomic-vcs/atomic/internal/graph"
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/store"
)

// Meta is a channel's repository-level metadata (spec §3 "Channel"),
// excluding its log (which is stored separately for efficient
// position-indexed access).
type Meta struct {
	ID           string `json:"id"` // opaque UUID, created at channel birth
	ApplyCounter uint64 `json:"apply_counter"`
	LastModified int64  `json:"last_modified"` // unix seconds
}

const (
	bucketChannelsMeta = "channels_meta"

	subLog       = "log"        // n -> (change_id, state_hash)
	subChanges   = "changes"    // change_id -> n
	subStates    = "states"     // state_hash -> n
	subTags      = "tags"       // n -> tag flag byte
	subTagHash   = "tag_hash"   // n -> tag content hash, for consolidating/plain tags
	subKnownTags = "known_tags" // tag hash -> 1
	tagFlagNone  = byte(0)
	tagFlagTag   = byte(1)
	tagFlagCons  = byte(2)
)

// logEntry is the value stored at log position n.
type logEntry struct {
	Change graph.ChangeID
	State  StateHash
}

func encodeU64(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

func decodeU64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func encodeLogEntry(e logEntry) []byte {
	b := make([]byte, 8+32)
	binary.BigEndian.PutUint64(b[0:8], uint64(e.Change))
	copy(b[8:40], e.State[:])
	return b
}

func decodeLogEntry(b []byte) logEntry {
	var e logEntry
	e.Change = graph.ChangeID(binary.BigEndian.Uint64(b[0:8]))
	copy(e.State[:], b[8:40])
	return e
}

// Create registers a brand-new channel with a fresh UUID and an empty
// log, failing if the name is already taken.
func Create(txn *store.Txn, name string) (*Meta, error) {
	metaBucket, err := txn.Bucket(bucketChannelsMeta)
	if err != nil {
		return nil, err
	}
	if metaBucket.Get([]byte(name)) != nil {
		return nil, errAlreadyExists(name)
	}
	m := &Meta{ID: uuid.NewString(), LastModified: nowUnix()}
	if err := putMeta(metaBucket, name, m); err != nil {
		return nil, err
	}
	return m, nil
}

// GetMeta returns a channel's metadata.
func GetMeta(txn *store.Txn, name string) (*Meta, bool, error) {
	metaBucket, err := txn.Bucket(bucketChannelsMeta)
	if err == store.ErrBucketNotFound {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	raw := metaBucket.Get([]byte(name))
	if raw == nil {
		return nil, false, nil
	}
	var m Meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, err
	}
	return &m, true, nil
}

// List returns every channel name registered in this repository.
func List(txn *store.Txn) ([]string, error) {
	metaBucket, err := txn.Bucket(bucketChannelsMeta)
	if err == store.ErrBucketNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var names []string
	err = metaBucket.ForEach(func(k, _ []byte) error {
		names = append(names, string(k))
		return nil
	})
	return names, err
}

func putMeta(b *store.Bucket, name string, m *Meta) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return b.Put([]byte(name), raw)
}

// Tip returns the channel's current log position, its tip change ID,
// and its current state hash. ok is false for an empty (genesis) channel.
func Tip(txn *store.Txn, name string) (n uint64, change graph.ChangeID, state StateHash, ok bool, err error) {
	m, found, err := GetMeta(txn, name)
	if err != nil || !found || m.ApplyCounter == 0 {
		return 0, 0, ZeroState, false, err
	}
	tipN := m.ApplyCounter - 1
	e, found, err := entryAt(txn, name, tipN)
	if err != nil || !found {
		return 0, 0, ZeroState, false, err
	}
	return tipN, e.Change, e.State, true, nil
}

// CurrentState returns the channel's current state hash (ZeroState for
// an empty channel).
func CurrentState(txn *store.Txn, name string) (StateHash, error) {
	_, _, state, ok, err := Tip(txn, name)
	if err != nil {
		return ZeroState, err
	}
	if !ok {
		return ZeroState, nil
	}
	return state, nil
}

func entryAt(txn *store.Txn, channelName string, n uint64) (logEntry, bool, error) {
	b, err := txn.Bucket(channelPath(channelName, subLog)...)
	if err == store.ErrBucketNotFound {
		return logEntry{}, false, nil
	} else if err != nil {
		return logEntry{}, false, err
	}
	raw := b.Get(encodeU64(n))
	if raw == nil {
		return logEntry{}, false, nil
	}
	return decodeLogEntry(raw), true, nil
}

func channelPath(name, bucket string) []string {
	return []string{"channels", name, bucket}
}

// Append records a newly applied patch at the channel's next log
// position, updates the changes/states indices, and bumps
// ApplyCounter/LastModified (spec §4.4 step 5). Returns the position n.
func Append(txn *store.Txn, name string, changeID graph.ChangeID, state StateHash) (uint64, error) {
	m, found, err := GetMeta(txn, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, errNotFound(name)
	}
	n := m.ApplyCounter

	logB, err := txn.Bucket(channelPath(name, subLog)...)
	if err != nil {
		return 0, err
	}
	if err := logB.Put(encodeU64(n), encodeLogEntry(logEntry{Change: changeID, State: state})); err != nil {
		return 0, err
	}

	changesB, err := txn.Bucket(channelPath(name, subChanges)...)
	if err != nil {
		return 0, err
	}
	if err := changesB.Put(encodeChangeIDKey(changeID), encodeU64(n)); err != nil {
		return 0, err
	}

	statesB, err := txn.Bucket(channelPath(name, subStates)...)
	if err != nil {
		return 0, err
	}
	if err := statesB.Put(state[:], encodeU64(n)); err != nil {
		return 0, err
	}

	m.ApplyCounter = n + 1
	m.LastModified = nowUnix()
	metaBucket, err := txn.Bucket(bucketChannelsMeta)
	if err != nil {
		return 0, err
	}
	if err := putMeta(metaBucket, name, m); err != nil {
		return 0, err
	}
	return n, nil
}

func encodeChangeIDKey(c graph.ChangeID) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(c))
	return b[:]
}

// PositionOfChange returns the log position of changeID on this
// channel, if applied.
func PositionOfChange(txn *store.Txn, name string, changeID graph.ChangeID) (uint64, bool, error) {
	b, err := txn.Bucket(channelPath(name, subChanges)...)
	if err == store.ErrBucketNotFound {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	v := b.Get(encodeChangeIDKey(changeID))
	if v == nil {
		return 0, false, nil
	}
	return decodeU64(v), true, nil
}

// IsApplied reports whether changeID is currently applied on channel.
func IsApplied(txn *store.Txn, name string, changeID graph.ChangeID) (bool, error) {
	_, ok, err := PositionOfChange(txn, name, changeID)
	return ok, err
}

// MarkTag flags log position n as tagged, distinguishing a plain tag
// from a consolidating one.
func MarkTag(txn *store.Txn, name string, n uint64, consolidating bool) error {
	b, err := txn.Bucket(channelPath(name, subTags)...)
	if err != nil {
		return err
	}
	flag := tagFlagTag
	if consolidating {
		flag = tagFlagCons
	}
	return b.Put(encodeU64(n), []byte{flag})
}

// TagFlagAt returns the tag flag at position n: 0 none, 1 plain tag, 2 consolidating.
func TagFlagAt(txn *store.Txn, name string, n uint64) (byte, error) {
	b, err := txn.Bucket(channelPath(name, subTags)...)
	if err == store.ErrBucketNotFound {
		return tagFlagNone, nil
	} else if err != nil {
		return tagFlagNone, err
	}
	v := b.Get(encodeU64(n))
	if v == nil {
		return tagFlagNone, nil
	}
	return v[0], nil
}

// RecordTagHash stores the content hash of the tag created at log
// position n, alongside the plain tags flag MarkTag already set, and
// marks the hash as a known tag on this channel so Apply's dependency
// resolution can accept it as a tag-shortcut dependency (spec §4.3).
func RecordTagHash(txn *store.Txn, name string, n uint64, hash patch.Hash) error {
	b, err := txn.Bucket(channelPath(name, subTagHash)...)
	if err != nil {
		return err
	}
	if err := b.Put(encodeU64(n), hash[:]); err != nil {
		return err
	}
	known, err := txn.Bucket(channelPath(name, subKnownTags)...)
	if err != nil {
		return err
	}
	return known.Put(hash[:], []byte{1})
}

// IsKnownTag reports whether hash names a tag (plain or consolidating)
// already recorded on this channel (locally created, or received via tagup).
func IsKnownTag(txn *store.Txn, name string, hash patch.Hash) (bool, error) {
	b, err := txn.Bucket(channelPath(name, subKnownTags)...)
	if err == store.ErrBucketNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return b.Get(hash[:]) != nil, nil
}

// TagHashAt returns the content hash of the tag recorded at position n, if any.
func TagHashAt(txn *store.Txn, name string, n uint64) (patch.Hash, bool, error) {
	b, err := txn.Bucket(channelPath(name, subTagHash)...)
	if err == store.ErrBucketNotFound {
		return patch.Hash{}, false, nil
	} else if err != nil {
		return patch.Hash{}, false, err
	}
	v := b.Get(encodeU64(n))
	if v == nil {
		return patch.Hash{}, false, nil
	}
	var h patch.Hash
	copy(h[:], v)
	return h, true, nil
}

// LatestConsolidatingTag scans the channel's tags index from the tip
// backward for the most recent consolidating-flagged position
// (spec §4.8 "Resolution").
func LatestConsolidatingTag(txn *store.Txn, name string) (n uint64, changeID graph.ChangeID, ok bool, err error) {
	m, found, err := GetMeta(txn, name)
	if err != nil || !found || m.ApplyCounter == 0 {
		return 0, 0, false, err
	}
	for i := int64(m.ApplyCounter) - 1; i >= 0; i-- {
		flag, err := TagFlagAt(txn, name, uint64(i))
		if err != nil {
			return 0, 0, false, err
		}
		if flag == tagFlagCons {
			e, found, err := entryAt(txn, name, uint64(i))
			if err != nil || !found {
				return 0, 0, false, err
			}
			return uint64(i), e.Change, true, nil
		}
	}
	return 0, 0, false, nil
}

// Entry returns the log entry at position n.
func Entry(txn *store.Txn, name string, n uint64) (changeID graph.ChangeID, state StateHash, ok bool, err error) {
	e, found, err := entryAt(txn, name, n)
	if err != nil || !found {
		return 0, StateHash{}, false, err
	}
	return e.Change, e.State, true, nil
}

// Walk calls fn for every log entry from position from (inclusive) to
// the tip, in order. Used by `changelist` and by tag consolidation's
// full-log read (spec §4.8 step 1, §4.9 `changelist` verb).
func Walk(txn *store.Txn, name string, from uint64, fn func(n uint64, changeID graph.ChangeID, state StateHash, tagged byte) error) error {
	m, found, err := GetMeta(txn, name)
	if err != nil || !found {
		return err
	}
	for n := from; n < m.ApplyCounter; n++ {
		e, found, err := entryAt(txn, name, n)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		flag, err := TagFlagAt(txn, name, n)
		if err != nil {
			return err
		}
		if err := fn(n, e.Change, e.State, flag); err != nil {
			return err
		}
	}
	return nil
}

// TruncateFrom removes every log entry at position >= n and their
// changes/states/tags index entries, used by Unrecord's replay when
// the removed patch isn't the tip (spec §4.5).
func TruncateFrom(txn *store.Txn, name string, n uint64) error {
	m, found, err := GetMeta(txn, name)
	if err != nil || !found {
		return err
	}
	logB, err := txn.Bucket(channelPath(name, subLog)...)
	if err != nil {
		return err
	}
	changesB, err := txn.Bucket(channelPath(name, subChanges)...)
	if err != nil {
		return err
	}
	statesB, err := txn.Bucket(channelPath(name, subStates)...)
	if err != nil {
		return err
	}
	tagsB, err := txn.Bucket(channelPath(name, subTags)...)
	if err != nil {
		return err
	}
	for i := n; i < m.ApplyCounter; i++ {
		e, found, err := entryAt(txn, name, i)
		if err != nil {
			return err
		}
		if found {
			if err := changesB.Delete(encodeChangeIDKey(e.Change)); err != nil {
				return err
			}
			if err := statesB.Delete(e.State[:]); err != nil {
				return err
			}
		}
		if err := logB.Delete(encodeU64(i)); err != nil {
			return err
		}
		if err := tagsB.Delete(encodeU64(i)); err != nil {
			return err
		}
	}
	m.ApplyCounter = n
	m.LastModified = nowUnix()
	metaBucket, err := txn.Bucket(bucketChannelsMeta)
	if err != nil {
		return err
	}
	return putMeta(metaBucket, name, m)
}

// ConsolidatedSetCovers reports whether changeID is among the change
// IDs applied on channel at or before position n — used to resolve
// a consolidating tag's recorded ConsolidatedChanges hash list back to
// local change IDs without re-walking content hashes each time.
func ConsolidatedSetCovers(txn *store.Txn, name string, n uint64, changeID graph.ChangeID) (bool, error) {
	pos, ok, err := PositionOfChange(txn, name, changeID)
	if err != nil || !ok {
		return false, err
	}
	return pos <= n, nil
}

func nowUnix() int64 { return time.Now().Unix() }
