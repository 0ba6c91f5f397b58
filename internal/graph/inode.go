package graph

import (
	"encoding/binary"

	"github.com/atomic-vcs/atomic/internal/store"
)

// InodeID is an opaque per-channel identifier linking a filesystem
// path to a graph position (spec §3 "Inode tree").
type InodeID uint64

const (
	bucketInodeToPos = "g_ino2pos"
	bucketPosToInode = "g_pos2ino"
	bucketInodeSeq   = "g_inoseq"
)

func encodeInode(id InodeID) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

func decodeInode(b []byte) InodeID {
	return InodeID(binary.BigEndian.Uint64(b))
}

// AllocateInode creates a fresh inode bound to position pos, used when
// FileAdd introduces a new filesystem entry (spec §4.4 step 4).
func AllocateInode(txn *store.Txn, channel string, pos Vertex) (InodeID, error) {
	seqBucket, err := txn.Bucket(channelPath(channel, bucketInodeSeq)...)
	if err != nil {
		return 0, err
	}
	n, err := seqBucket.NextSequence()
	if err != nil {
		return 0, err
	}
	id := InodeID(n)

	i2p, err := txn.Bucket(channelPath(channel, bucketInodeToPos)...)
	if err != nil {
		return 0, err
	}
	if err := i2p.Put(encodeInode(id), pos.encode()); err != nil {
		return 0, err
	}

	p2i, err := txn.Bucket(channelPath(channel, bucketPosToInode)...)
	if err != nil {
		return 0, err
	}
	if err := p2i.Put(pos.encode(), encodeInode(id)); err != nil {
		return 0, err
	}
	return id, nil
}

// LookupInodeByPosition returns the inode bound to pos, if any.
func LookupInodeByPosition(txn *store.Txn, channel string, pos Vertex) (InodeID, bool, error) {
	b, err := txn.Bucket(channelPath(channel, bucketPosToInode)...)
	if err == store.ErrBucketNotFound {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	v := b.Get(pos.encode())
	if v == nil {
		return 0, false, nil
	}
	return decodeInode(v), true, nil
}

// LookupPosition returns the graph position bound to inode, if any.
func LookupPosition(txn *store.Txn, channel string, inode InodeID) (Vertex, bool, error) {
	b, err := txn.Bucket(channelPath(channel, bucketInodeToPos)...)
	if err == store.ErrBucketNotFound {
		return Vertex{}, false, nil
	} else if err != nil {
		return Vertex{}, false, err
	}
	v := b.Get(encodeInode(inode))
	if v == nil {
		return Vertex{}, false, nil
	}
	return decodeVertex(v), true, nil
}

// AllInodes returns every inode currently bound on channel, for record
// to enumerate the tracked set without needing its own duplicate index.
func AllInodes(txn *store.Txn, channel string) ([]InodeID, error) {
	b, err := txn.Bucket(channelPath(channel, bucketInodeToPos)...)
	if err == store.ErrBucketNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var out []InodeID
	err = b.ForEach(func(k, _ []byte) error {
		out = append(out, decodeInode(k))
		return nil
	})
	return out, err
}

// ReleaseInode destroys the inode<->position binding, e.g. when a path
// is deleted and no alive vertex references it (spec §3 lifecycle).
func ReleaseInode(txn *store.Txn, channel string, inode InodeID) error {
	i2p, err := txn.Bucket(channelPath(channel, bucketInodeToPos)...)
	if err != nil {
		return err
	}
	pos := i2p.Get(encodeInode(inode))
	if pos == nil {
		return nil
	}
	posCopy := append([]byte(nil), pos...)
	if err := i2p.Delete(encodeInode(inode)); err != nil {
		return err
	}
	p2i, err := txn.Bucket(channelPath(channel, bucketPosToInode)...)
	if err != nil {
		return err
	}
	return p2i.Delete(posCopy)
}
