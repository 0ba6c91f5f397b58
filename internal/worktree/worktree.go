// Package worktree writes a channel's projected file tree to disk: the
// write side of project.Materialize (Write, which no CLI command calls)
// and clone's archive expansion (ExtractArchive). The projector (internal/project) only computes
// bytes in memory; this package owns the filesystem side effects,
// following the teacher's MkdirAll-then-WriteFile idiom
// (internal/cache/manager.go).
package worktree

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"

	"github.com/atomic-vcs/atomic/internal/errs"
	"github.com/atomic-vcs/atomic/internal/project"
)

// Write materializes files onto disk under root, creating parent
// directories as needed. It does not remove files already on disk that
// aren't in files — callers that want a clean checkout should clear
// root first.
func Write(root string, files []project.File) error {
	for _, f := range files {
		path := filepath.Join(root, f.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errs.Storage(err, "create working tree directory")
		}
		if err := os.WriteFile(path, f.Bytes, 0o644); err != nil {
			return errs.Storage(err, "write working tree file "+f.Path)
		}
	}
	return nil
}

// ExtractArchive unpacks a tar+gzip stream (the transport archive verb's
// reply) into root, for conflict-free initial clones (spec §4.9).
func ExtractArchive(root string, r io.Reader) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return errs.InvalidPatchf("corrupt archive stream: %v", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errs.InvalidPatchf("corrupt archive entry: %v", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		path := filepath.Join(root, hdr.Name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errs.Storage(err, "create working tree directory")
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return errs.Storage(err, "create working tree file "+hdr.Name)
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return errs.Storage(err, "write working tree file "+hdr.Name)
		}
		if err := f.Close(); err != nil {
			return errs.Storage(err, "close working tree file "+hdr.Name)
		}
	}
}
