// Package localcarrier binds transport.Server directly to in-process
// callers: no serialization, used when client and server share a
// process (spec §6 "Local binding").
package localcarrier

import (
	"io"

	"github.com/atomic-vcs/atomic/internal/apply"
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/transport"
)

// Carrier is a thin pass-through to an in-process transport.Server.
type Carrier struct {
	Server *transport.Server
}

var _ transport.Capability = (*Carrier)(nil)

func New(s *transport.Server) *Carrier { return &Carrier{Server: s} }

func (c *Carrier) State(ch string, n *uint64) (patch.StateHash, error) {
	return c.Server.State(ch, n)
}

func (c *Carrier) ID(ch string) (string, error) {
	return c.Server.ID(ch)
}

func (c *Carrier) Changelist(ch string, from uint64) ([]transport.ChangelistEntry, error) {
	return c.Server.Changelist(ch, from)
}

func (c *Carrier) Change(hash patch.Hash) ([]byte, error) {
	return c.Server.Change(hash)
}

func (c *Carrier) Tag(hash patch.Hash) ([]byte, error) {
	return c.Server.Tag(hash)
}

func (c *Carrier) Apply(ch string, body []byte) (apply.Result, error) {
	return c.Server.Apply(ch, body)
}

func (c *Carrier) Tagup(ch string, body []byte) (*patch.Tag, error) {
	return c.Server.Tagup(ch, body)
}

func (c *Carrier) Archive(ch string, w io.Writer) error {
	return c.Server.Archive(ch, w)
}

func (c *Carrier) TagHashAt(ch string, n uint64) (patch.Hash, bool, error) {
	return c.Server.TagHashAt(ch, n)
}
