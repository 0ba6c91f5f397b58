package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atomic.log")

	l, err := New(Config{Level: INFO, OutputFile: path})
	require.NoError(t, err)
	defer l.Close()

	l.Info("hello", "channel", "main")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "hello")
	assert.Contains(t, string(raw), "channel=main")
}

func TestNewJSONFormatEmitsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atomic.log")

	l, err := New(Config{Level: INFO, OutputFile: path, JSONFormat: true})
	require.NoError(t, err)
	defer l.Close()

	l.Info("hello")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"hello"`)
}

func TestWithAttachesFieldsToChildLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atomic.log")

	l, err := New(Config{Level: INFO, OutputFile: path})
	require.NoError(t, err)
	defer l.Close()

	child := l.With("change_id", 42)
	child.Info("applied")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "change_id=42")
}

func TestGlobalFallsBackWithoutInitialize(t *testing.T) {
	l := Global()
	assert.NotNil(t, l)
}
