// Package sshcarrier binds the same transport verbs to a long-lived
// SSH subprocess (spec §6 "SSH binding"): one space-separated verb
// line per request, length-prefixed binary replies, identical to the
// local and HTTP carriers' underlying transport.Server semantics.
package sshcarrier

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/atomic-vcs/atomic/internal/apply"
	"github.com/atomic-vcs/atomic/internal/errs"
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/transport"
)

func writeFrame(w io.Writer, status byte, body []byte) error {
	var hdr [9]byte
	hdr[0] = status
	binary.BigEndian.PutUint64(hdr[1:], uint64(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func readFrame(r io.Reader) (byte, []byte, error) {
	var hdr [9]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint64(hdr[1:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return hdr[0], body, nil
}

const (
	statusOK    = 0
	statusError = 1
)

// ServeConn reads verb lines from rw until EOF or a read error,
// dispatching each to server and writing a length-prefixed reply
// frame. One goroutine per accepted SSH session channel.
//
// A single bufio.Reader serves both the line-oriented verb reads and
// the length-prefixed upload-body reads (apply/tagup): a bufio.Scanner
// would read ahead past the verb line into the frame header bytes and
// lose them, since line and frame reads would otherwise use two
// independent buffers over the same stream.
func ServeConn(server *transport.Server, rw io.ReadWriter) error {
	r := bufio.NewReader(rw)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		reply, status := dispatch(server, fields, r, rw)
		if err := writeFrame(rw, status, reply); err != nil {
			return err
		}
	}
}

func dispatch(server *transport.Server, fields []string, r *bufio.Reader, w io.Writer) ([]byte, byte) {
	verb := fields[0]
	switch verb {
	case "state":
		ch := fields[1]
		var n *uint64
		if len(fields) > 2 {
			v, err := strconv.ParseUint(fields[2], 10, 64)
			if err != nil {
				return []byte(err.Error()), statusError
			}
			n = &v
		}
		state, err := server.State(ch, n)
		if err != nil {
			return []byte(err.Error()), statusError
		}
		return []byte(state.String()), statusOK

	case "id":
		id, err := server.ID(fields[1])
		if err != nil {
			return []byte(err.Error()), statusError
		}
		return []byte(id), statusOK

	case "changelist":
		ch := fields[1]
		from, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return []byte(err.Error()), statusError
		}
		entries, err := server.Changelist(ch, from)
		if err != nil {
			return []byte(err.Error()), statusError
		}
		var sb strings.Builder
		for _, e := range entries {
			sb.WriteString(e.String())
			sb.WriteByte('\n')
		}
		return []byte(sb.String()), statusOK

	case "change":
		hash, err := patch.ParseHash(fields[1])
		if err != nil {
			return []byte(err.Error()), statusError
		}
		body, err := server.Change(hash)
		if err != nil {
			return []byte(err.Error()), statusError
		}
		return body, statusOK

	case "tag":
		hash, err := patch.ParseHash(fields[1])
		if err != nil {
			return []byte(err.Error()), statusError
		}
		body, err := server.Tag(hash)
		if err != nil {
			return []byte(err.Error()), statusError
		}
		return body, statusOK

	case "taghashat":
		ch := fields[1]
		n, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return []byte(err.Error()), statusError
		}
		hash, known, err := server.TagHashAt(ch, n)
		if err != nil {
			return []byte(err.Error()), statusError
		}
		if !known {
			return []byte("not found"), statusError
		}
		return []byte(hash.String()), statusOK

	case "apply":
		hash := fields[1]
		ch := fields[2]
		_ = hash
		_, body, err := readFrame(r)
		if err != nil {
			return []byte(err.Error()), statusError
		}
		res, err := server.Apply(ch, body)
		if err != nil {
			return []byte(err.Error()), statusError
		}
		return []byte(fmt.Sprintf("%d", res.Position)), statusOK

	case "tagup":
		ch := fields[2]
		_, body, err := readFrame(r)
		if err != nil {
			return []byte(err.Error()), statusError
		}
		t, err := server.Tagup(ch, body)
		if err != nil {
			return []byte(err.Error()), statusError
		}
		return []byte(t.Hash.String()), statusOK

	case "archive":
		ch := fields[1]
		var buf bytes.Buffer
		if err := server.Archive(ch, &buf); err != nil {
			return []byte(err.Error()), statusError
		}
		return buf.Bytes(), statusOK

	default:
		return []byte("unknown verb " + verb), statusError
	}
}

// Client implements transport.Capability over a long-lived SSH session
// whose remote command speaks the line protocol ServeConn understands.
type Client struct {
	conn    *ssh.Client
	session *ssh.Session
	in      io.WriteCloser
	out     io.Reader
}

// Dial opens an SSH connection to addr and starts the remote atomic
// transport command, returning a Client ready for verb calls.
func Dial(addr string, config *ssh.ClientConfig, remoteCommand string) (*Client, error) {
	conn, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, errs.Network(err, "ssh dial")
	}
	session, err := conn.NewSession()
	if err != nil {
		conn.Close()
		return nil, errs.Network(err, "ssh new session")
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, errs.Network(err, "ssh stdin pipe")
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, errs.Network(err, "ssh stdout pipe")
	}
	if err := session.Start(remoteCommand); err != nil {
		return nil, errs.Network(err, "ssh start remote command")
	}
	return &Client{conn: conn, session: session, in: stdin, out: stdout}, nil
}

func (c *Client) Close() error {
	c.session.Close()
	return c.conn.Close()
}

var _ transport.Capability = (*Client)(nil)

func (c *Client) call(verbLine string) (byte, []byte, error) {
	if _, err := io.WriteString(c.in, verbLine+"\n"); err != nil {
		return 0, nil, errs.Network(err, "write ssh verb line")
	}
	status, body, err := readFrame(c.out)
	if err != nil {
		return 0, nil, errs.Network(err, "read ssh reply frame")
	}
	return status, body, nil
}

func (c *Client) callWithBody(verbLine string, body []byte) (byte, []byte, error) {
	if _, err := io.WriteString(c.in, verbLine+"\n"); err != nil {
		return 0, nil, errs.Network(err, "write ssh verb line")
	}
	if err := writeFrame(c.in, statusOK, body); err != nil {
		return 0, nil, errs.Network(err, "write ssh upload body")
	}
	status, reply, err := readFrame(c.out)
	if err != nil {
		return 0, nil, errs.Network(err, "read ssh reply frame")
	}
	return status, reply, nil
}

func (c *Client) State(ch string, n *uint64) (patch.StateHash, error) {
	line := "state " + ch
	if n != nil {
		line += " " + strconv.FormatUint(*n, 10)
	}
	status, body, err := c.call(line)
	if err != nil {
		return patch.StateHash{}, err
	}
	if status != statusOK {
		return patch.StateHash{}, errs.Network(fmt.Errorf("%s", body), "ssh state verb")
	}
	return patch.ParseStateHash(string(body))
}

func (c *Client) ID(ch string) (string, error) {
	status, body, err := c.call("id " + ch)
	if err != nil {
		return "", err
	}
	if status != statusOK {
		return "", errs.Network(fmt.Errorf("%s", body), "ssh id verb")
	}
	return string(body), nil
}

func (c *Client) Changelist(ch string, from uint64) ([]transport.ChangelistEntry, error) {
	status, body, err := c.call(fmt.Sprintf("changelist %s %d", ch, from))
	if err != nil {
		return nil, err
	}
	if status != statusOK {
		return nil, errs.Network(fmt.Errorf("%s", body), "ssh changelist verb")
	}
	var out []transport.ChangelistEntry
	for _, line := range strings.Split(strings.TrimRight(string(body), "\n"), "\n") {
		if line == "" {
			continue
		}
		e, err := transport.ParseChangelistEntry(line)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *Client) Change(hash patch.Hash) ([]byte, error) {
	status, body, err := c.call("change " + hash.String())
	if err != nil {
		return nil, err
	}
	if status != statusOK {
		return nil, errs.Network(fmt.Errorf("%s", body), "ssh change verb")
	}
	return body, nil
}

func (c *Client) Tag(hash patch.Hash) ([]byte, error) {
	status, body, err := c.call("tag " + hash.String())
	if err != nil {
		return nil, err
	}
	if status != statusOK {
		return nil, errs.Network(fmt.Errorf("%s", body), "ssh tag verb")
	}
	return body, nil
}

func (c *Client) TagHashAt(ch string, n uint64) (patch.Hash, bool, error) {
	status, body, err := c.call(fmt.Sprintf("taghashat %s %d", ch, n))
	if err != nil {
		return patch.Hash{}, false, err
	}
	if status != statusOK {
		return patch.Hash{}, false, nil
	}
	h, err := patch.ParseHash(string(body))
	if err != nil {
		return patch.Hash{}, false, err
	}
	return h, true, nil
}

func (c *Client) Apply(ch string, body []byte) (apply.Result, error) {
	status, reply, err := c.callWithBody("apply - "+ch, body)
	if err != nil {
		return apply.Result{}, err
	}
	if status != statusOK {
		return apply.Result{}, errs.Network(fmt.Errorf("%s", reply), "ssh apply verb")
	}
	return apply.Result{}, nil
}

func (c *Client) Tagup(ch string, body []byte) (*patch.Tag, error) {
	status, reply, err := c.callWithBody("tagup - "+ch, body)
	if err != nil {
		return nil, err
	}
	if status != statusOK {
		return nil, errs.Network(fmt.Errorf("%s", reply), "ssh tagup verb")
	}
	hash, err := patch.ParseHash(string(reply))
	if err != nil {
		return nil, err
	}
	return &patch.Tag{Hash: hash}, nil
}

func (c *Client) Archive(ch string, w io.Writer) error {
	status, body, err := c.call("archive " + ch)
	if err != nil {
		return err
	}
	if status != statusOK {
		return errs.Network(fmt.Errorf("%s", body), "ssh archive verb")
	}
	_, err = w.Write(body)
	return err
}
