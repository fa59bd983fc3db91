package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic(t *testing.T) {
	t.Run("creates parent directories", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "nested", "deeper", "auth.json")

		require.NoError(t, WriteAtomic(path, []byte(`{"a":1}`), SecretMode))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, string(data))
	})

	t.Run("applies requested mode", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "secret.json")

		require.NoError(t, WriteAtomic(path, []byte("x"), SecretMode))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, SecretMode, info.Mode().Perm())
	})

	t.Run("overwrites existing content", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "f.json")
		require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

		require.NoError(t, WriteAtomic(path, []byte("new"), SecretMode))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))
	})

	t.Run("leaves no temp file behind", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "f.json")
		require.NoError(t, WriteAtomic(path, []byte("x"), SecretMode))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "f.json", entries[0].Name())
	})
}

func TestWriteAtomicThroughSymlink(t *testing.T) {
	dir := t.TempDir()
	realPath := filepath.Join(dir, "real.json")
	linkPath := filepath.Join(dir, "link.json")
	require.NoError(t, os.WriteFile(realPath, []byte("before"), 0o600))
	require.NoError(t, os.Symlink(realPath, linkPath))

	require.NoError(t, WriteAtomic(linkPath, []byte("after"), SecretMode))

	// The symlink must survive and still point at the real target.
	info, err := os.Lstat(linkPath)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)

	target, err := os.Readlink(linkPath)
	require.NoError(t, err)
	assert.Equal(t, realPath, target)

	data, err := os.ReadFile(realPath)
	require.NoError(t, err)
	assert.Equal(t, "after", string(data))
}

func TestResolveWriteTarget(t *testing.T) {
	t.Run("plain file unchanged", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "f.json")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

		target, err := ResolveWriteTarget(path)
		require.NoError(t, err)
		assert.Equal(t, path, target)
	})

	t.Run("missing file unchanged", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "missing.json")

		target, err := ResolveWriteTarget(path)
		require.NoError(t, err)
		assert.Equal(t, path, target)
	})

	t.Run("relative link resolved against link directory", func(t *testing.T) {
		dir := t.TempDir()
		sub := filepath.Join(dir, "sub")
		require.NoError(t, os.MkdirAll(sub, 0o755))
		realPath := filepath.Join(sub, "real.json")
		require.NoError(t, os.WriteFile(realPath, []byte("x"), 0o600))
		linkPath := filepath.Join(sub, "link.json")
		require.NoError(t, os.Symlink("real.json", linkPath))

		target, err := ResolveWriteTarget(linkPath)
		require.NoError(t, err)
		assert.Equal(t, realPath, target)
	})

	t.Run("chained links", func(t *testing.T) {
		dir := t.TempDir()
		realPath := filepath.Join(dir, "real.json")
		require.NoError(t, os.WriteFile(realPath, []byte("x"), 0o600))
		mid := filepath.Join(dir, "mid.json")
		require.NoError(t, os.Symlink(realPath, mid))
		link := filepath.Join(dir, "link.json")
		require.NoError(t, os.Symlink(mid, link))

		target, err := ResolveWriteTarget(link)
		require.NoError(t, err)
		assert.Equal(t, realPath, target)
	})
}

func TestPreserveMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.json")

	assert.Equal(t, os.FileMode(0o644), PreserveMode(path, 0o644))

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o640))
	assert.Equal(t, os.FileMode(0o640), PreserveMode(path, 0o644))
}

func TestWriteJSONAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.json")

	require.NoError(t, WriteJSONAtomic(path, map[string]int{"n": 1}, SecretMode))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"n\": 1\n}\n", string(data))
}
