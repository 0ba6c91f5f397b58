package graph

import (
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/store"
)

// AddEdge inserts the forward edge src -(flags,intro)-> dest and its
// reverse mirror (same flags plus FlagParent) into the incoming index,
// so liveness queries on dest don't require a full scan (spec §3
// "PARENT — direction reversal marker... some indices store reversed
// edges"). Adding the same edge twice is a no-op (I4).
func AddEdge(txn *store.Txn, channel string, src Vertex, flags patch.EdgeFlags, dest Vertex, intro ChangeID) error {
	out, err := txn.Bucket(channelPath(channel, bucketOutgoing)...)
	if err != nil {
		return err
	}
	fwd := Edge{Flags: flags, Dest: dest, Intro: intro}
	if err := out.PutUnique(src.encode(), fwd.encode()); err != nil {
		return err
	}

	in, err := txn.Bucket(channelPath(channel, bucketIncoming)...)
	if err != nil {
		return err
	}
	rev := Edge{Flags: flags | patch.FlagParent, Dest: src, Intro: intro}
	return in.PutUnique(dest.encode(), rev.encode())
}

// RemoveEdge deletes the forward edge and its reverse mirror exactly
// as AddEdge created them.
func RemoveEdge(txn *store.Txn, channel string, src Vertex, flags patch.EdgeFlags, dest Vertex, intro ChangeID) error {
	out, err := txn.Bucket(channelPath(channel, bucketOutgoing)...)
	if err != nil {
		return err
	}
	fwd := Edge{Flags: flags, Dest: dest, Intro: intro}
	if err := out.DeleteUnique(src.encode(), fwd.encode()); err != nil {
		return err
	}

	in, err := txn.Bucket(channelPath(channel, bucketIncoming)...)
	if err != nil {
		return err
	}
	rev := Edge{Flags: flags | patch.FlagParent, Dest: src, Intro: intro}
	return in.DeleteUnique(dest.encode(), rev.encode())
}

// ReplaceEdgeFlags implements the EdgeMap atom: look up edge
// (from,to,oldFlags), remove it, and insert (from,to,newFlags) with
// the same introducer (spec §4.4 step 4, EdgeMap).
func ReplaceEdgeFlags(txn *store.Txn, channel string, from, to Vertex, oldFlags, newFlags patch.EdgeFlags, intro ChangeID) error {
	if err := RemoveEdge(txn, channel, from, oldFlags, to, intro); err != nil {
		return err
	}
	return AddEdge(txn, channel, from, newFlags, to, intro)
}

// OutgoingEdges returns every edge introduced so far whose source is v.
func OutgoingEdges(txn *store.Txn, channel string, v Vertex) ([]Edge, error) {
	return edgesOf(txn, channel, bucketOutgoing, v)
}

// IncomingEdges returns every edge (in its PARENT-flagged mirror form)
// whose destination is v.
func IncomingEdges(txn *store.Txn, channel string, v Vertex) ([]Edge, error) {
	return edgesOf(txn, channel, bucketIncoming, v)
}

func edgesOf(txn *store.Txn, channel, bucket string, v Vertex) ([]Edge, error) {
	b, err := txn.Bucket(channelPath(channel, bucket)...)
	if err == store.ErrBucketNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var edges []Edge
	err = b.ForEachUnique(v.encode(), func(member []byte) error {
		edges = append(edges, decodeEdge(member))
		return nil
	})
	return edges, err
}

// IsAlive reports whether v has at least one non-pseudo, non-deleted
// incoming edge (spec §3 "Alive / dead / zombie").
func IsAlive(txn *store.Txn, channel string, v Vertex) (bool, error) {
	if v == Root {
		return true, nil
	}
	in, err := IncomingEdges(txn, channel, v)
	if err != nil {
		return false, err
	}
	for _, e := range in {
		if !e.Flags.Has(patch.FlagPseudo) && !e.Flags.Has(patch.FlagDeleted) {
			return true, nil
		}
	}
	return false, nil
}

// ReachableIgnoringLiveness reports whether v has ANY incoming edge at
// all (alive, dead, or only pseudo) — used by apply's reachability
// repair after an edge deletion to skip descendants that have no
// incoming edge at all (spec I2).
func ReachableIgnoringLiveness(txn *store.Txn, channel string, v Vertex) (bool, error) {
	if v == Root {
		return true, nil
	}
	in, err := IncomingEdges(txn, channel, v)
	if err != nil {
		return false, err
	}
	return len(in) > 0, nil
}
