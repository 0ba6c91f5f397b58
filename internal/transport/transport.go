// Package transport implements the carrier-agnostic verb set (spec
// §4.9): state, id, changelist, change, tag, apply, tagup, archive. A
// Server executes verbs against a repository's substrate and patch
// store; localcarrier, httpcarrier, and sshcarrier each bind the same
// Server to a different wire.
package transport

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/atomic-vcs/atomic/internal/apply"
	"github.com/atomic-vcs/atomic/internal/channel"
	"github.com/atomic-vcs/atomic/internal/errs"
	"github.com/atomic-vcs/atomic/internal/graph"
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/patchstore"
	"github.com/atomic-vcs/atomic/internal/project"
	"github.com/atomic-vcs/atomic/internal/store"
	"github.com/atomic-vcs/atomic/internal/tag"
)

// Capability is the verb surface every carrier's client side exposes,
// whether bound to a local Server, an HTTP endpoint, or an SSH
// subprocess (spec §4.9).
type Capability interface {
	State(ch string, n *uint64) (patch.StateHash, error)
	ID(ch string) (string, error)
	Changelist(ch string, from uint64) ([]ChangelistEntry, error)
	Change(hash patch.Hash) ([]byte, error)
	Tag(hash patch.Hash) ([]byte, error)
	Apply(ch string, body []byte) (apply.Result, error)
	Tagup(ch string, body []byte) (*patch.Tag, error)
	Archive(ch string, w io.Writer) error

	// TagHashAt resolves the content hash of the tag recorded at log
	// position n, if any. The wire changelist line itself only carries
	// the per-position change hash and state (spec §6); this side
	// channel is how Pull learns which hash to pass to the tag verb
	// for a trailing-dot line, without overloading the line format.
	TagHashAt(ch string, n uint64) (patch.Hash, bool, error)
}

// Server executes transport verbs against one repository. It owns no
// connection state; every carrier constructs one and calls its methods
// per request, serialized by the underlying substrate's writer lock.
type Server struct {
	Env   *store.Env
	Store *patchstore.Store
}

// New wraps an already-open substrate environment and patch store.
func New(env *store.Env, ps *patchstore.Store) *Server {
	return &Server{Env: env, Store: ps}
}

// ChangelistEntry is one line of a changelist reply.
type ChangelistEntry struct {
	N      uint64
	Hash   patch.Hash
	State  patch.StateHash
	Tagged bool
}

// String renders the entry in the wire form spec §4.9 defines:
// "n.<hash>.<state>" or, for a tagged position, the same with a
// trailing dot.
func (e ChangelistEntry) String() string {
	s := fmt.Sprintf("%d.%s.%s", e.N, e.Hash.String(), e.State.String())
	if e.Tagged {
		s += "."
	}
	return s
}

// ParseChangelistEntry parses one line produced by String.
func ParseChangelistEntry(line string) (ChangelistEntry, error) {
	tagged := strings.HasSuffix(line, ".")
	line = strings.TrimSuffix(line, ".")
	parts := strings.SplitN(line, ".", 2)
	if len(parts) != 2 {
		return ChangelistEntry{}, errs.InvalidPatchf("malformed changelist line %q", line)
	}
	var n uint64
	if _, err := fmt.Sscanf(parts[0], "%d", &n); err != nil {
		return ChangelistEntry{}, errs.InvalidPatchf("malformed changelist position %q", line)
	}
	rest := parts[1]
	idx := strings.IndexByte(rest, '.')
	if idx < 0 {
		return ChangelistEntry{}, errs.InvalidPatchf("malformed changelist line %q", line)
	}
	hashStr, stateStr := rest[:idx], rest[idx+1:]
	h, err := patch.ParseHash(hashStr)
	if err != nil {
		return ChangelistEntry{}, errs.InvalidPatchf("malformed changelist hash %q", line)
	}
	st, err := patch.ParseStateHash(stateStr)
	if err != nil {
		return ChangelistEntry{}, errs.InvalidPatchf("malformed changelist state %q", line)
	}
	return ChangelistEntry{N: n, Hash: h, State: st, Tagged: tagged}, nil
}

// State replies with the state hash at position n (default tip).
func (s *Server) State(ch string, n *uint64) (patch.StateHash, error) {
	var state patch.StateHash
	err := s.Env.View(func(txn *store.Txn) error {
		if n == nil {
			var ok bool
			var err error
			_, _, state, ok, err = channel.Tip(txn, ch)
			if err != nil {
				return err
			}
			if !ok {
				state = patch.StateHash{}
			}
			return nil
		}
		_, st, ok, err := channel.Entry(txn, ch, *n)
		if err != nil {
			return err
		}
		if !ok {
			return errs.NotFound(fmt.Sprintf("channel %s position %d", ch, *n))
		}
		state = st
		return nil
	})
	return state, err
}

// ID replies with the channel's opaque identifier.
func (s *Server) ID(ch string) (string, error) {
	var id string
	err := s.Env.View(func(txn *store.Txn) error {
		m, ok, err := channel.GetMeta(txn, ch)
		if err != nil {
			return err
		}
		if !ok {
			return errs.NotFound("channel " + ch)
		}
		id = m.ID
		return nil
	})
	return id, err
}

// Changelist replies with every log entry on ch from position from onward.
func (s *Server) Changelist(ch string, from uint64) ([]ChangelistEntry, error) {
	var out []ChangelistEntry
	err := s.Env.View(func(txn *store.Txn) error {
		return channel.Walk(txn, ch, from, func(n uint64, changeID graph.ChangeID, state patch.StateHash, tagged byte) error {
			h, known, err := graph.HashOf(txn, changeID)
			if err != nil {
				return err
			}
			if !known {
				return errs.NotFound("change hash for logged entry")
			}
			out = append(out, ChangelistEntry{N: n, Hash: h, State: state, Tagged: tagged != 0})
			return nil
		})
	})
	return out, err
}

// Change replies with the raw patch body bytes for hash.
func (s *Server) Change(hash patch.Hash) ([]byte, error) {
	p, err := s.Store.LoadChange(hash)
	if err != nil {
		return nil, err
	}
	return patch.EncodeFile(p), nil
}

// Tag replies with the short-form tag body bytes for hash.
func (s *Server) Tag(hash patch.Hash) ([]byte, error) {
	t, err := s.Store.LoadTag(hash)
	if err != nil {
		return nil, err
	}
	short := t.ShortForm()
	return patch.EncodeFull(&short), nil
}

// TagHashAt resolves the content hash of the tag recorded at log
// position n on ch, if any.
func (s *Server) TagHashAt(ch string, n uint64) (patch.Hash, bool, error) {
	var h patch.Hash
	var known bool
	err := s.Env.View(func(txn *store.Txn) error {
		var err error
		h, known, err = channel.TagHashAt(txn, ch, n)
		return err
	})
	return h, known, err
}

// Apply validates and applies an uploaded patch body to ch.
func (s *Server) Apply(ch string, body []byte) (apply.Result, error) {
	p, err := patch.DecodeFile(body)
	if err != nil {
		return apply.Result{}, errs.InvalidPatchf("corrupt uploaded patch: %v", err)
	}
	var res apply.Result
	err = s.Env.Update(func(txn *store.Txn) error {
		if err := s.Store.SaveChange(p); err != nil {
			return err
		}
		var err error
		res, err = apply.Apply(txn, s.Store, ch, p)
		return err
	})
	return res, err
}

// Tagup regenerates a full tag body from the local channel log at
// state, from an uploaded short-form tag, and persists + records it.
func (s *Server) Tagup(ch string, body []byte) (*patch.Tag, error) {
	short, err := patch.DecodeTagFull(body)
	if err != nil {
		return nil, errs.InvalidPatchf("corrupt uploaded tag: %v", err)
	}
	var full *patch.Tag
	err = s.Env.Update(func(txn *store.Txn) error {
		_, _, state, ok, err := channel.Tip(txn, ch)
		if err != nil {
			return err
		}
		if !ok || state != short.State {
			return errs.InvalidPatchf("tagup state %s does not match channel tip", short.State.String())
		}
		t, err := tag.Create(txn, s.Store, ch, tag.Params{
			Version:            short.Version,
			Author:             short.Author,
			Message:            short.Message,
			Timestamp:          short.Timestamp,
			AttributionSummary: short.AttributionSummary,
			Consolidating:      short.Consolidating,
		})
		if err != nil {
			return err
		}
		full = t
		return nil
	})
	return full, err
}

// Archive writes a tar+gzip stream of ch's projected working tree at
// its current tip to w, for conflict-free initial clones.
func (s *Server) Archive(ch string, w io.Writer) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	err := s.Env.View(func(txn *store.Txn) error {
		files, err := project.Materialize(txn, ch, s.Store)
		if err != nil {
			return err
		}
		for _, f := range files {
			hdr := &tar.Header{
				Name: f.Path,
				Mode: 0o644,
				Size: int64(len(f.Bytes)),
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if _, err := tw.Write(f.Bytes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
