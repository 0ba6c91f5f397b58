// Package graph implements the persistent change graph: vertices,
// labeled multigraph edges, alive/dead/zombie determination, the inode
// tree, and the dep/revdep dependency indices (spec §3). Every
// operation here is a pure function of a store.Txn; the package never
// opens its own transaction.
package graph

import (
	"encoding/binary"

	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/store"
)

// ChangeID is the small, per-repository integer assigned to a patch
// the first time it is applied on any channel (spec §3).
type ChangeID uint64

// Vertex denotes the byte range [Start,End) introduced by Change.
// Vertices are totally ordered by (Change, Start).
type Vertex struct {
	Change ChangeID
	Start  uint64
	End    uint64
}

// Root is the special root vertex (0,0,0) that anchors the graph.
var Root = Vertex{Change: 0, Start: 0, End: 0}

// Less orders vertices by (Change, Start), the spec's total order.
func (v Vertex) Less(o Vertex) bool {
	if v.Change != o.Change {
		return v.Change < o.Change
	}
	return v.Start < o.Start
}

// encode renders v as a 24-byte big-endian key so bucket iteration
// order matches the vertex total order.
func (v Vertex) encode() []byte {
	var b [24]byte
	binary.BigEndian.PutUint64(b[0:8], uint64(v.Change))
	binary.BigEndian.PutUint64(b[8:16], v.Start)
	binary.BigEndian.PutUint64(b[16:24], v.End)
	return b[:]
}

func decodeVertex(b []byte) Vertex {
	return Vertex{
		Change: ChangeID(binary.BigEndian.Uint64(b[0:8])),
		Start:  binary.BigEndian.Uint64(b[8:16]),
		End:    binary.BigEndian.Uint64(b[16:24]),
	}
}

func encodeChangeID(c ChangeID) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(c))
	return b[:]
}

func decodeChangeID(b []byte) ChangeID {
	return ChangeID(binary.BigEndian.Uint64(b))
}

// Edge is a single labeled multigraph edge: (flags, dest, introducer).
type Edge struct {
	Flags patch.EdgeFlags
	Dest  Vertex
	Intro ChangeID
}

func (e Edge) encode() []byte {
	b := make([]byte, 1+24+8)
	b[0] = byte(e.Flags)
	copy(b[1:25], e.Dest.encode())
	binary.BigEndian.PutUint64(b[25:33], uint64(e.Intro))
	return b
}

func decodeEdge(b []byte) Edge {
	return Edge{
		Flags: patch.EdgeFlags(b[0]),
		Dest:  decodeVertex(b[1:25]),
		Intro: ChangeID(binary.BigEndian.Uint64(b[25:33])),
	}
}

// channelBuckets are the nested bucket names under ["channels", name, ...]
// this package uses.
const (
	bucketOutgoing = "g_out"  // vertex -> multimap of outgoing edges
	bucketIncoming = "g_in"   // vertex -> multimap of incoming edges (PARENT-flagged mirrors)
	bucketVertices = "g_vert" // vertex -> 1 (existence marker)
	bucketZombie   = "g_zomb" // vertex -> 1 (zombie-produced marker)
)

func channelPath(channel string, bucket string) []string {
	return []string{"channels", channel, bucket}
}

// MarkVertex records v as having been introduced, for existence checks
// independent of liveness.
func MarkVertex(txn *store.Txn, channel string, v Vertex) error {
	b, err := txn.Bucket(channelPath(channel, bucketVertices)...)
	if err != nil {
		return err
	}
	return b.Put(v.encode(), []byte{1})
}

// VertexExists reports whether v has ever been introduced on channel.
func VertexExists(txn *store.Txn, channel string, v Vertex) (bool, error) {
	b, err := txn.Bucket(channelPath(channel, bucketVertices)...)
	if err == store.ErrBucketNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return b.Get(v.encode()) != nil, nil
}

// UnmarkVertex reverts MarkVertex, used when Unrecord removes the
// patch that introduced v.
func UnmarkVertex(txn *store.Txn, channel string, v Vertex) error {
	b, err := txn.Bucket(channelPath(channel, bucketVertices)...)
	if err != nil {
		return err
	}
	return b.Delete(v.encode())
}

// ClearZombie reverts MarkZombie, used when Unrecord removes the
// patch that produced v as a zombie.
func ClearZombie(txn *store.Txn, channel string, v Vertex) error {
	b, err := txn.Bucket(channelPath(channel, bucketZombie)...)
	if err != nil {
		return err
	}
	return b.Delete(v.encode())
}

// MarkZombie records that v was produced as a zombie resurrection
// during some apply (spec §3 "zombie", scenario 6).
func MarkZombie(txn *store.Txn, channel string, v Vertex) error {
	b, err := txn.Bucket(channelPath(channel, bucketZombie)...)
	if err != nil {
		return err
	}
	return b.Put(v.encode(), []byte{1})
}

// IsZombie reports whether v was ever marked zombie-produced.
func IsZombie(txn *store.Txn, channel string, v Vertex) (bool, error) {
	b, err := txn.Bucket(channelPath(channel, bucketZombie)...)
	if err == store.ErrBucketNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return b.Get(v.encode()) != nil, nil
}
