package graph

import "github.com/atomic-vcs/atomic/internal/store"

// bucketPseudoByIntro indexes every PSEUDO edge apply ever inserted
// from the root, keyed by the change ID that caused the insertion, so
// Unrecord can remove exactly the pseudo edges one patch introduced
// without guessing (spec §4.5: "Pseudo edges introduced by apply are
// removed").
const bucketPseudoByIntro = "g_pseudo_idx"

// RecordPseudoBySelf registers that applying intro caused a PSEUDO
// edge to be inserted from the root to dest.
func RecordPseudoBySelf(txn *store.Txn, channel string, intro ChangeID, dest Vertex) error {
	b, err := txn.Bucket(channelPath(channel, bucketPseudoByIntro)...)
	if err != nil {
		return err
	}
	return b.PutUnique(encodeChangeID(intro), dest.encode())
}

// PseudoVerticesOf returns every vertex that received a root pseudo
// edge because of applying intro.
func PseudoVerticesOf(txn *store.Txn, channel string, intro ChangeID) ([]Vertex, error) {
	b, err := txn.Bucket(channelPath(channel, bucketPseudoByIntro)...)
	if err == store.ErrBucketNotFound {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var out []Vertex
	err = b.ForEachUnique(encodeChangeID(intro), func(member []byte) error {
		out = append(out, decodeVertex(member))
		return nil
	})
	return out, err
}

// ClearPseudoIndex removes intro's pseudo-edge index entries after
// Unrecord has removed the edges themselves.
func ClearPseudoIndex(txn *store.Txn, channel string, intro ChangeID) error {
	b, err := txn.Bucket(channelPath(channel, bucketPseudoByIntro)...)
	if err != nil {
		return err
	}
	vertices, err := PseudoVerticesOf(txn, channel, intro)
	if err != nil {
		return err
	}
	for _, v := range vertices {
		if err := b.DeleteUnique(encodeChangeID(intro), v.encode()); err != nil {
			return err
		}
	}
	return nil
}
