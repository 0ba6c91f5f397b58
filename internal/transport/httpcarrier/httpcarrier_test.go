package httpcarrier_test

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomic-vcs/atomic/internal/channel"
	"github.com/atomic-vcs/atomic/internal/patch"
	"github.com/atomic-vcs/atomic/internal/patchstore"
	"github.com/atomic-vcs/atomic/internal/project"
	"github.com/atomic-vcs/atomic/internal/record"
	"github.com/atomic-vcs/atomic/internal/store"
	"github.com/atomic-vcs/atomic/internal/transport"
	"github.com/atomic-vcs/atomic/internal/transport/httpcarrier"
)

type testSide struct {
	env  *store.Env
	ps   *patchstore.Store
	root string
}

func newTestSide(t *testing.T) *testSide {
	t.Helper()
	dir := t.TempDir()

	env, err := store.Open(filepath.Join(dir, "pristine"))
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })

	ps, err := patchstore.Open(filepath.Join(dir, "changes"))
	require.NoError(t, err)

	root := filepath.Join(dir, "work")
	require.NoError(t, os.MkdirAll(root, 0o755))

	require.NoError(t, env.Update(func(txn *store.Txn) error {
		_, err := channel.Create(txn, "main")
		return err
	}))

	return &testSide{env: env, ps: ps, root: root}
}

func (s *testSide) writeFile(t *testing.T, relPath, content string) {
	t.Helper()
	full := filepath.Join(s.root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func (s *testSide) record(t *testing.T, message string) *patch.Patch {
	t.Helper()
	var p *patch.Patch
	require.NoError(t, s.env.Update(func(txn *store.Txn) error {
		var err error
		p, _, err = record.Record(txn, s.ps, "main", s.root, patch.Header{Message: message}, nil)
		return err
	}))
	return p
}

func (s *testSide) materialize(t *testing.T) map[string]string {
	t.Helper()
	out := map[string]string{}
	require.NoError(t, s.env.View(func(txn *store.Txn) error {
		files, err := project.Materialize(txn, "main", s.ps)
		if err != nil {
			return err
		}
		for _, f := range files {
			out[f.Path] = string(f.Bytes)
		}
		return nil
	}))
	return out
}

func TestHTTPPullOverRealServer(t *testing.T) {
	remoteSide := newTestSide(t)
	localSide := newTestSide(t)

	remoteSide.writeFile(t, "hello.txt", "hello\n")
	require.NotNil(t, remoteSide.record(t, "add hello"))

	remoteServer := transport.New(remoteSide.env, remoteSide.ps)
	handler := httpcarrier.NewHandler(remoteServer)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	client := httpcarrier.NewClient(ts.URL)
	localServer := transport.New(localSide.env, localSide.ps)

	require.NoError(t, transport.Pull(localServer, client, "main"))

	files := localSide.materialize(t)
	assert.Equal(t, "hello\n", files["hello.txt"])
}

func TestHTTPIDAndChangelistRoundTrip(t *testing.T) {
	side := newTestSide(t)
	side.writeFile(t, "a.txt", "A\n")
	p := side.record(t, "add a")
	require.NotNil(t, p)

	server := transport.New(side.env, side.ps)
	handler := httpcarrier.NewHandler(server)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	client := httpcarrier.NewClient(ts.URL)

	id, err := client.ID("main")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := client.Changelist("main", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, p.Hash, entries[0].Hash)
}
