// Package repo discovers and opens a repository's on-disk layout
// (spec §6 "Repository layout"): `.atomic/pristine` (substrate),
// `.atomic/changes` (patch store), `.atomic/config.toml`.
package repo

import (
	"os"
	"path/filepath"

	"github.com/atomic-vcs/atomic/internal/config"
	"github.com/atomic-vcs/atomic/internal/errs"
	"github.com/atomic-vcs/atomic/internal/patchstore"
	"github.com/atomic-vcs/atomic/internal/store"
)

const dirName = ".atomic"

// Repo is an opened repository: its root path, the VCS directory's
// paths, the substrate environment, and the patch store.
type Repo struct {
	Root   string
	Env    *store.Env
	Store  *patchstore.Store
	Config *config.Config
}

func atomicDir(root string) string { return filepath.Join(root, dirName) }

// Discover walks up from start looking for a `.atomic` directory,
// mirroring the teacher's git-root search (cmd/crisk-init's
// detectCurrentRepo), generalized from `.git` to `.atomic`.
func Discover(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", errs.Storage(err, "resolve start directory")
	}
	for {
		if fi, err := os.Stat(atomicDir(dir)); err == nil && fi.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errs.NotFound("no .atomic directory found above " + start)
		}
		dir = parent
	}
}

// Init creates a brand-new repository rooted at root: the `.atomic`
// directory tree and a default config.toml. Fails if `.atomic` already
// exists.
func Init(root string) (*Repo, error) {
	dir := atomicDir(root)
	if _, err := os.Stat(dir); err == nil {
		return nil, errs.New(errs.KindInvalidPatch, dir+" already exists")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Storage(err, "create .atomic directory")
	}

	cfg := config.Default()
	if err := config.Save(cfg, filepath.Join(dir, "config.toml")); err != nil {
		return nil, err
	}

	return open(root, cfg)
}

// Open discovers and opens the repository containing start.
func Open(start string) (*Repo, error) {
	root, err := Discover(start)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(filepath.Join(atomicDir(root), "config.toml"))
	if err != nil {
		return nil, err
	}
	return open(root, cfg)
}

func open(root string, cfg *config.Config) (*Repo, error) {
	dir := atomicDir(root)
	env, err := store.Open(filepath.Join(dir, "pristine"))
	if err != nil {
		return nil, err
	}
	ps, err := patchstore.Open(filepath.Join(dir, "changes"))
	if err != nil {
		env.Close()
		return nil, err
	}
	return &Repo{Root: root, Env: env, Store: ps, Config: cfg}, nil
}

// Close releases the substrate environment handle.
func (r *Repo) Close() error {
	return r.Env.Close()
}
