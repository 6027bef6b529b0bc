package workdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_CreatesScopedDirectory(t *testing.T) {
	root := t.TempDir()
	g, err := Acquire(root, "some-repo", 3)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "some-repo@3"), g.Path)

	info, err := os.Stat(g.Path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestAcquire_ClearsStaleContents(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "some-repo@1")
	require.NoError(t, os.MkdirAll(path, 0o755))
	stale := filepath.Join(path, "leftover.txt")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	g, err := Acquire(root, "some-repo", 1)
	require.NoError(t, err)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "Acquire must clear any leftover contents from a crashed prior run")
	_ = g
}

func TestRelease_RemovesDirectory(t *testing.T) {
	root := t.TempDir()
	g, err := Acquire(root, "some-repo", 2)
	require.NoError(t, err)

	require.NoError(t, g.Release())

	_, err = os.Stat(g.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestRelease_NilGuardIsSafe(t *testing.T) {
	var g *Guard
	assert.NoError(t, g.Release())
}

func TestRelease_EmptyPathIsSafe(t *testing.T) {
	g := &Guard{}
	assert.NoError(t, g.Release())
}
