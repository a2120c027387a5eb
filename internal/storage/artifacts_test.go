package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceLifecycle(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)

	ws, err := a.Workspace("job-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(a.OutDir(), ".work", "job-1"), ws.Dir)

	require.NoError(t, os.WriteFile(filepath.Join(ws.Dir, "a.part"), []byte("x"), 0o644))
	require.NoError(t, ws.Reset())
	entries, err := os.ReadDir(ws.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, ws.Cleanup())
	assert.NoDirExists(t, ws.Dir)
}

func TestWorkspaceRejectsTraversal(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", "..", "a/b", "../x"} {
		_, err := a.Workspace(id)
		assert.Error(t, err, id)
	}
}

func TestPromote(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)
	ws, err := a.Workspace("job-1")
	require.NoError(t, err)

	src := filepath.Join(ws.Dir, "abc.mp4")
	require.NoError(t, os.WriteFile(src, []byte("media"), 0o644))

	dst := a.FinalPath("final", "mp4")
	require.NoError(t, Promote(src, dst))
	assert.NoFileExists(t, src)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "media", string(data))

	require.NoError(t, os.WriteFile(src, []byte("again"), 0o644))
	assert.Error(t, Promote(src, dst), "existing artifacts are never overwritten")
}

func TestMoveCrossDevice(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "sub", "dst.bin")
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	require.NoError(t, moveCrossDevice(src, dst))

	assert.NoFileExists(t, src)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dst), ".dst.bin.tmp"))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}
