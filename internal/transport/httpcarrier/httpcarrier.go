// Package httpcarrier binds transport.Server to plain net/http (spec
// §6 "Transport verbs (HTTP binding)"), following the teacher's plain
// net/http MCP tool server idiom rather than adding a router dependency.
package httpcarrier

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/atomic-vcs/atomic/internal/apply"
	"github.com/atomic-vcs/atomic/internal/errs"
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/transport"
)

// Handler serves the `/code` endpoint described by spec §6, dispatching
// on query parameters to the underlying transport.Server.
type Handler struct {
	Server *transport.Server
}

func NewHandler(s *transport.Server) *Handler { return &Handler{Server: s} }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ch := q.Get("channel")

	switch {
	case r.Method == http.MethodGet && q.Has("id"):
		id, err := h.Server.ID(ch)
		writeResult(w, []byte(id), err)

	case r.Method == http.MethodGet && q.Has("state"):
		var n *uint64
		if s := q.Get("state"); s != "" {
			v, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				writeError(w, errs.InvalidPatchf("bad state position %q", s))
				return
			}
			n = &v
		}
		state, err := h.Server.State(ch, n)
		writeResult(w, []byte(state.String()), err)

	case r.Method == http.MethodGet && q.Has("changelist"):
		from, err := strconv.ParseUint(q.Get("changelist"), 10, 64)
		if err != nil {
			writeError(w, errs.InvalidPatchf("bad changelist position %q", q.Get("changelist")))
			return
		}
		entries, err := h.Server.Changelist(ch, from)
		if err != nil {
			writeError(w, err)
			return
		}
		var buf bytes.Buffer
		for _, e := range entries {
			buf.WriteString(e.String())
			buf.WriteByte('\n')
		}
		writeResult(w, buf.Bytes(), nil)

	case r.Method == http.MethodGet && q.Has("change"):
		hash, err := patch.ParseHash(q.Get("change"))
		if err != nil {
			writeError(w, errs.InvalidPatchf("bad change hash %q", q.Get("change")))
			return
		}
		body, err := h.Server.Change(hash)
		writeResult(w, body, err)

	case r.Method == http.MethodGet && q.Has("tag") && !q.Has("tagHashAt"):
		hash, err := patch.ParseHash(q.Get("tag"))
		if err != nil {
			writeError(w, errs.InvalidPatchf("bad tag hash %q", q.Get("tag")))
			return
		}
		body, err := h.Server.Tag(hash)
		writeResult(w, body, err)

	case r.Method == http.MethodGet && q.Has("tagHashAt"):
		n, err := strconv.ParseUint(q.Get("tagHashAt"), 10, 64)
		if err != nil {
			writeError(w, errs.InvalidPatchf("bad tag position %q", q.Get("tagHashAt")))
			return
		}
		hash, known, err := h.Server.TagHashAt(ch, n)
		if err != nil {
			writeError(w, err)
			return
		}
		if !known {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeResult(w, []byte(hash.String()), nil)

	case r.Method == http.MethodPost && q.Has("apply"):
		to := q.Get("to_channel")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, errs.Network(err, "read apply body"))
			return
		}
		res, err := h.Server.Apply(to, body)
		if err != nil {
			writeError(w, err)
			return
		}
		writeResult(w, []byte(fmt.Sprintf("%d", res.Position)), nil)

	case r.Method == http.MethodPost && q.Has("tagup"):
		to := q.Get("to_channel")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, errs.Network(err, "read tagup body"))
			return
		}
		t, err := h.Server.Tagup(to, body)
		if err != nil {
			writeError(w, err)
			return
		}
		writeResult(w, []byte(t.Hash.String()), nil)

	case r.Method == http.MethodGet && q.Has("archive"):
		// The state argument is accepted for wire compatibility with
		// spec §4.9's "archive channel state"; this server always
		// archives the channel's current tip projection.
		w.Header().Set("Content-Type", "application/gzip")
		if err := h.Server.Archive(ch, w); err != nil {
			writeError(w, err)
		}

	default:
		http.Error(w, "unknown verb", http.StatusBadRequest)
	}
}

func writeResult(w http.ResponseWriter, body []byte, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// statusFor maps an error kind to the HTTP status the binding uses
// (spec §7 "Across transport, errors map to stable codes... HTTP 4xx/5xx").
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindMissingDeps, errs.KindHasDependents, errs.KindInvalidPatch, errs.KindConflict:
		return http.StatusBadRequest
	case errs.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(errs.KindOf(err)))
}

// Client implements transport.Capability over HTTP against a `/code`
// endpoint served by Handler.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: http.DefaultClient}
}

var _ transport.Capability = (*Client)(nil)

func (c *Client) get(params url.Values) ([]byte, error) {
	u := c.BaseURL + "?" + params.Encode()
	resp, err := c.HTTP.Get(u)
	if err != nil {
		return nil, errs.Network(err, "http get")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Network(err, "read http response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.Network(fmt.Errorf("%s", string(body)), fmt.Sprintf("http status %d", resp.StatusCode))
	}
	return body, nil
}

func (c *Client) post(params url.Values, body []byte) ([]byte, error) {
	u := c.BaseURL + "?" + params.Encode()
	resp, err := c.HTTP.Post(u, "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Network(err, "http post")
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Network(err, "read http response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.Network(fmt.Errorf("%s", string(out)), fmt.Sprintf("http status %d", resp.StatusCode))
	}
	return out, nil
}

func (c *Client) State(ch string, n *uint64) (patch.StateHash, error) {
	params := url.Values{"channel": {ch}}
	if n == nil {
		params.Set("state", "")
	} else {
		params.Set("state", strconv.FormatUint(*n, 10))
	}
	body, err := c.get(params)
	if err != nil {
		return patch.StateHash{}, err
	}
	return patch.ParseStateHash(string(body))
}

func (c *Client) ID(ch string) (string, error) {
	body, err := c.get(url.Values{"channel": {ch}, "id": {""}})
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) Changelist(ch string, from uint64) ([]transport.ChangelistEntry, error) {
	body, err := c.get(url.Values{"channel": {ch}, "changelist": {strconv.FormatUint(from, 10)}})
	if err != nil {
		return nil, err
	}
	return parseChangelist(body)
}

func (c *Client) Change(hash patch.Hash) ([]byte, error) {
	return c.get(url.Values{"change": {hash.String()}})
}

func (c *Client) Tag(hash patch.Hash) ([]byte, error) {
	return c.get(url.Values{"tag": {hash.String()}})
}

func (c *Client) TagHashAt(ch string, n uint64) (patch.Hash, bool, error) {
	body, err := c.get(url.Values{"channel": {ch}, "tagHashAt": {strconv.FormatUint(n, 10)}})
	if err != nil {
		if errs.KindOf(err) == errs.KindNetwork {
			return patch.Hash{}, false, nil
		}
		return patch.Hash{}, false, err
	}
	h, err := patch.ParseHash(string(body))
	if err != nil {
		return patch.Hash{}, false, err
	}
	return h, true, nil
}

func (c *Client) Apply(ch string, body []byte) (apply.Result, error) {
	_, err := c.post(url.Values{"apply": {""}, "to_channel": {ch}}, body)
	if err != nil {
		return apply.Result{}, err
	}
	return apply.Result{}, nil
}

func (c *Client) Tagup(ch string, body []byte) (*patch.Tag, error) {
	out, err := c.post(url.Values{"tagup": {""}, "to_channel": {ch}}, body)
	if err != nil {
		return nil, err
	}
	hash, err := patch.ParseHash(string(out))
	if err != nil {
		return nil, err
	}
	return &patch.Tag{Hash: hash}, nil
}

func (c *Client) Archive(ch string, w io.Writer) error {
	u := c.BaseURL + "?" + url.Values{"channel": {ch}, "archive": {""}}.Encode()
	resp, err := c.HTTP.Get(u)
	if err != nil {
		return errs.Network(err, "http get archive")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return errs.Network(fmt.Errorf("%s", string(body)), fmt.Sprintf("http status %d", resp.StatusCode))
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func parseChangelist(body []byte) ([]transport.ChangelistEntry, error) {
	var out []transport.ChangelistEntry
	lines := splitLines(body)
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		e, err := transport.ParseChangelistEntry(string(line))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func splitLines(b []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, c := range b {
		if c == '\n' {
			out = append(out, b[start:i])
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, b[start:])
	}
	return out
}
