package graph

import "github.com/atomic-vcs/atomic/internal/store"

// bucketName binds a folder-entry vertex to the path name the hunk
// that introduced it carried (spec §4.2 FileAdd/FileMove `name`/
// `new_path` fields) — the graph itself only knows vertex identity,
// never path text, so the projector and record need this side index
// to recover names without re-parsing every patch body (spec §4.7).
const bucketName = "g_name"

// BindName records that vertex v is currently known by name.
func BindName(txn *store.Txn, channel string, v Vertex, name string) error {
	b, err := txn.Bucket(channelPath(channel, bucketName)...)
	if err != nil {
		return err
	}
	return b.Put(v.encode(), []byte(name))
}

// NameOf returns the name bound to v, if any.
func NameOf(txn *store.Txn, channel string, v Vertex) (string, bool, error) {
	b, err := txn.Bucket(channelPath(channel, bucketName)...)
	if err == store.ErrBucketNotFound {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	raw := b.Get(v.encode())
	if raw == nil {
		return "", false, nil
	}
	return string(raw), true, nil
}

// UnbindName reverts BindName, used by Unrecord.
func UnbindName(txn *store.Txn, channel string, v Vertex) error {
	b, err := txn.Bucket(channelPath(channel, bucketName)...)
	if err != nil {
		return err
	}
	return b.Delete(v.encode())
}
