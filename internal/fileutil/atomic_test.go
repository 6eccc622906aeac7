package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c.txt")

	require.NoError(t, AtomicWriteString(path, "hello", 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, os.FileMode(0o600), FileMode(path, 0o644))
	assert.True(t, Exists(path))
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, AtomicWriteString(path, "one", 0o644))
	require.NoError(t, AtomicWriteString(path, "two", 0o644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "f.txt", entries[0].Name())
}

func TestFileModeDefault(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	assert.Equal(t, os.FileMode(0o644), FileMode(missing, 0o644))
	assert.False(t, Exists(missing))
}
