// Package store is the transactional substrate every other package in
// this module goes through to touch disk: a copy-on-write B-tree
// key/value environment with ACID commits, multiple concurrent
// readers, and a single writer. It wraps go.etcd.io/bbolt the way the
// teacher's identity-resolver cache wraps it (tx.View/tx.Update plus
// CreateBucketIfNotExists), generalized to nested, named buckets so
// every other package addresses storage only through Env/Txn/Bucket —
// never through *bolt.DB directly.
package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Env is a process-exclusive handle on a substrate directory. Crossing
// a process boundary requires re-opening; Env itself is safe for
// concurrent use by multiple goroutines within one process.
type Env struct {
	db *bolt.DB
}

// Open opens (creating if absent) the substrate environment at path.
// Every failure here and below is reported as a single *errs.Error of
// KindStorage by the caller; store itself returns plain errors so it
// has no dependency on the errs package (kept a leaf package).
func Open(path string) (*Env, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open substrate %s: %w", path, err)
	}
	return &Env{db: db}, nil
}

// Close releases the environment. The process must hold no open
// transactions when this is called.
func (e *Env) Close() error {
	return e.db.Close()
}

// Txn is a single read or write transaction.
type Txn struct {
	tx *bolt.Tx
}

// View runs fn in a read-only snapshot transaction. Multiple Views may
// run concurrently with each other and with an in-flight Update.
func (e *Env) View(fn func(*Txn) error) error {
	return e.db.View(func(tx *bolt.Tx) error {
		return fn(&Txn{tx: tx})
	})
}

// Update runs fn in the single writer transaction. Any error returned
// by fn rolls back every effect fn produced; a nil return commits
// atomically. Only one Update may be in flight at a time per Env.
func (e *Env) Update(fn func(*Txn) error) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return fn(&Txn{tx: tx})
	})
}

// Bucket navigates to (read-only) or creates (in a write Txn) a
// possibly-nested named bucket, e.g. Bucket("channels", "main", "edges").
// Every subsystem's schema is expressed as a path of bucket names.
func (t *Txn) Bucket(path ...string) (*Bucket, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("store: empty bucket path")
	}
	var b *bolt.Bucket
	if t.tx.Writable() {
		root, err := t.tx.CreateBucketIfNotExists([]byte(path[0]))
		if err != nil {
			return nil, err
		}
		b = root
		for _, name := range path[1:] {
			child, err := b.CreateBucketIfNotExists([]byte(name))
			if err != nil {
				return nil, err
			}
			b = child
		}
		return &Bucket{b: b}, nil
	}

	b = t.tx.Bucket([]byte(path[0]))
	if b == nil {
		return nil, ErrBucketNotFound
	}
	for _, name := range path[1:] {
		b = b.Bucket([]byte(name))
		if b == nil {
			return nil, ErrBucketNotFound
		}
	}
	return &Bucket{b: b}, nil
}

// ErrBucketNotFound is returned by Bucket() in a read-only Txn when the
// path doesn't exist; callers in a View treat this as "empty", not a
// storage failure.
var ErrBucketNotFound = fmt.Errorf("store: bucket not found")

// Bucket is a single (possibly nested) named key space.
type Bucket struct {
	b *bolt.Bucket
}

// Get returns the value for key, or nil if absent. The returned slice
// is only valid for the lifetime of the transaction; callers that need
// to retain it must copy.
func (b *Bucket) Get(key []byte) []byte {
	return b.b.Get(key)
}

// Put sets key to value.
func (b *Bucket) Put(key, value []byte) error {
	return b.b.Put(key, value)
}

// Delete removes key, if present.
func (b *Bucket) Delete(key []byte) error {
	return b.b.Delete(key)
}

// ForEach iterates every key/value pair in ascending key order.
func (b *Bucket) ForEach(fn func(k, v []byte) error) error {
	return b.b.ForEach(fn)
}

// Cursor returns a cursor for range iteration bounded by the enclosing
// transaction's lifetime, mirroring the spec's iter(from, to) primitive.
func (b *Bucket) Cursor() *bolt.Cursor {
	return b.b.Cursor()
}

// Iter calls fn for every key in [from, to) (to == nil means "to the
// end"), in ascending order. Returning an error from fn stops iteration
// and propagates the error.
func (b *Bucket) Iter(from, to []byte, fn func(k, v []byte) error) error {
	c := b.b.Cursor()
	var k, v []byte
	if from == nil {
		k, v = c.First()
	} else {
		k, v = c.Seek(from)
	}
	for ; k != nil; k, v = c.Next() {
		if to != nil && string(k) >= string(to) {
			break
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// PutUnique records member under the multimap key parentKey: a nested
// bucket named parentKey holding one zero-length entry per distinct
// member. Putting the same (parentKey, member) pair twice is a no-op,
// giving the multimap the idempotence apply needs (I4).
func (b *Bucket) PutUnique(parentKey, member []byte) error {
	sub, err := b.b.CreateBucketIfNotExists(parentKey)
	if err != nil {
		return err
	}
	return sub.Put(member, []byte{})
}

// DeleteUnique removes member from the parentKey multimap, if present.
func (b *Bucket) DeleteUnique(parentKey, member []byte) error {
	sub := b.b.Bucket(parentKey)
	if sub == nil {
		return nil
	}
	return sub.Delete(member)
}

// ForEachUnique iterates every member stored under parentKey via
// PutUnique, in ascending order.
func (b *Bucket) ForEachUnique(parentKey []byte, fn func(member []byte) error) error {
	sub := b.b.Bucket(parentKey)
	if sub == nil {
		return nil
	}
	return sub.ForEach(func(k, _ []byte) error {
		return fn(k)
	})
}

// NextSequence returns a monotonically increasing integer for this
// bucket, used to allocate change IDs and inode IDs.
func (b *Bucket) NextSequence() (uint64, error) {
	return b.b.NextSequence()
}
