// Package patchstore is the content-addressed file layer that holds
// every patch and tag body on disk: one `<hash>.change` or `<hash>.tag`
// file per object, sharded into subdirectories named by the hash's
// first two base32 characters. Every hash begins with the same version
// byte, so that prefix takes only four distinct values and each shard
// holds roughly a quarter of all objects. A
// sibling `<hash>.hunkidx` file per change holds that patch's
// hunk-offset table, so LoadHunk can fetch one hunk with a single
// ReadAt instead of decoding the whole change.
package patchstore

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/atomic-vcs/atomic/internal/errs"
	"github.com/atomic-vcs/atomic/internal/patch"
)

// Store is a handle on a repository's patch-file directory, normally
// `.atomic/changes`.
type Store struct {
	root string
}

// Open ensures root exists and returns a handle on it.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errs.Storage(err, "create patch store directory")
	}
	return &Store{root: root}, nil
}

func (s *Store) shardDir(h patch.Hash) string {
	return filepath.Join(s.root, h.ShardPrefix())
}

func (s *Store) changePath(h patch.Hash) string {
	return filepath.Join(s.shardDir(h), h.String()+".change")
}

func (s *Store) tagPath(h patch.Hash) string {
	return filepath.Join(s.shardDir(h), h.String()+".tag")
}

func (s *Store) hunkIndexPath(h patch.Hash) string {
	return filepath.Join(s.shardDir(h), h.String()+".hunkidx")
}

// encodeHunkIndex lays out spans as a flat little-endian table: a u32
// count followed by one (offset uint64, length uint64) pair per hunk,
// in hunk order, so LoadHunk can seek straight to entry i.
func encodeHunkIndex(spans []patch.HunkSpan) []byte {
	buf := make([]byte, 4+16*len(spans))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(spans)))
	for i, sp := range spans {
		off := 4 + 16*i
		binary.LittleEndian.PutUint64(buf[off:off+8], sp.Offset)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], sp.Length)
	}
	return buf
}

func decodeHunkIndexEntry(buf []byte, i int) (patch.HunkSpan, bool) {
	if len(buf) < 4 {
		return patch.HunkSpan{}, false
	}
	n := int(binary.LittleEndian.Uint32(buf[0:4]))
	if i < 0 || i >= n {
		return patch.HunkSpan{}, false
	}
	off := 4 + 16*i
	if len(buf) < off+16 {
		return patch.HunkSpan{}, false
	}
	return patch.HunkSpan{
		Offset: binary.LittleEndian.Uint64(buf[off : off+8]),
		Length: binary.LittleEndian.Uint64(buf[off+8 : off+16]),
	}, true
}

// writeAtomic writes buf to path by writing to a sibling temp file and
// renaming over the destination, so a crash mid-write never leaves a
// truncated `<hash>.change` behind under the final name.
func writeAtomic(path string, buf []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// SaveChange persists p under its content hash, a no-op if the file
// already exists (patch store entries are immutable once written). It
// also writes a sidecar hunk-offset index so LoadHunk can later fetch a
// single hunk without reading the whole patch.
func (s *Store) SaveChange(p *patch.Patch) error {
	path := s.changePath(p.Hash)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	buf, spans := patch.EncodeFileWithHunkIndex(p)
	if err := writeAtomic(path, buf); err != nil {
		return errs.Storage(err, "write patch file")
	}
	if err := writeAtomic(s.hunkIndexPath(p.Hash), encodeHunkIndex(spans)); err != nil {
		return errs.Storage(err, "write patch hunk index")
	}
	return nil
}

// LoadChange reads back the patch stored under hash.
func (s *Store) LoadChange(h patch.Hash) (*patch.Patch, error) {
	buf, err := os.ReadFile(s.changePath(h))
	if os.IsNotExist(err) {
		return nil, errs.NotFound("patch " + h.String())
	} else if err != nil {
		return nil, errs.Storage(err, "read patch file")
	}
	p, err := patch.DecodeFile(buf)
	if err != nil {
		return nil, errs.InvalidPatchf("corrupt patch file %s: %v", h.String(), err)
	}
	return p, nil
}

// LoadHunk decodes the ith hunk of the patch stored under h by seeking
// straight to its byte range via the sidecar index, instead of
// decoding every hunk that precedes it.
func (s *Store) LoadHunk(h patch.Hash, i int) (patch.Hunk, error) {
	idxBuf, err := os.ReadFile(s.hunkIndexPath(h))
	if os.IsNotExist(err) {
		return patch.Hunk{}, errs.NotFound("hunk index for patch " + h.String())
	} else if err != nil {
		return patch.Hunk{}, errs.Storage(err, "read patch hunk index")
	}
	span, ok := decodeHunkIndexEntry(idxBuf, i)
	if !ok {
		return patch.Hunk{}, errs.NotFound("hunk index out of range for patch " + h.String())
	}

	f, err := os.Open(s.changePath(h))
	if os.IsNotExist(err) {
		return patch.Hunk{}, errs.NotFound("patch " + h.String())
	} else if err != nil {
		return patch.Hunk{}, errs.Storage(err, "open patch file")
	}
	defer f.Close()

	raw := make([]byte, span.Length)
	if _, err := f.ReadAt(raw, int64(span.Offset)); err != nil {
		return patch.Hunk{}, errs.Storage(err, "read patch hunk range")
	}
	hunk, err := patch.DecodeHunkAt(raw)
	if err != nil {
		return patch.Hunk{}, errs.InvalidPatchf("corrupt hunk %d of patch %s: %v", i, h.String(), err)
	}
	return hunk, nil
}

// HasChange reports whether hash is already on disk.
func (s *Store) HasChange(h patch.Hash) bool {
	_, err := os.Stat(s.changePath(h))
	return err == nil
}

// SaveTag persists t's full body under its content hash.
func (s *Store) SaveTag(t *patch.Tag) error {
	path := s.tagPath(t.Hash)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := writeAtomic(path, patch.EncodeFull(t)); err != nil {
		return errs.Storage(err, "write tag file")
	}
	return nil
}

// LoadTag reads back the full tag body stored under hash.
func (s *Store) LoadTag(h patch.Hash) (*patch.Tag, error) {
	buf, err := os.ReadFile(s.tagPath(h))
	if os.IsNotExist(err) {
		return nil, errs.NotFound("tag " + h.String())
	} else if err != nil {
		return nil, errs.Storage(err, "read tag file")
	}
	t, err := patch.DecodeTagFull(buf)
	if err != nil {
		return nil, errs.InvalidPatchf("corrupt tag file %s: %v", h.String(), err)
	}
	t.Hash = h
	return t, nil
}

// HasTag reports whether hash is already on disk.
func (s *Store) HasTag(h patch.Hash) bool {
	_, err := os.Stat(s.tagPath(h))
	return err == nil
}
