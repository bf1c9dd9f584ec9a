//go:build linux

package filesystem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/relfs/relfs/filesystem/common"
	"github.com/ZanzyTHEbar/relfs/relfs/filesystem/options"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveMissing(t *testing.T) {
	err := Remove(filepath.Join(t.TempDir(), "absent"), options.RemoveOptions{})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRemoveFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.NoError(t, Remove(path, options.RemoveOptions{}))
	assert.NoFileExists(t, path)
}

func TestRemoveSymlinkKeepsTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	link := filepath.Join(dir, "link")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	require.NoError(t, os.Symlink("target", link))

	require.NoError(t, Remove(link, options.RemoveOptions{}))
	assert.NoFileExists(t, link)
	assert.FileExists(t, target)
}

func TestRemoveDirRequiresRecursive(t *testing.T) {
	root := buildTree(t)

	err := Remove(root, options.RemoveOptions{})
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
	assert.DirExists(t, root)
	assert.FileExists(t, filepath.Join(root, "a.txt"))
}

func TestRemoveRecursive(t *testing.T) {
	root := buildTree(t)

	require.NoError(t, Remove(root, options.RemoveOptions{Recursive: true}))
	assert.NoDirExists(t, root)
}

func TestRemoveRecursiveKeepsLinkTargets(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(dir, "outside")
	require.NoError(t, os.MkdirAll(filepath.Join(outside, "kept"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "kept", "f"), []byte("x"), 0o644))

	root := filepath.Join(dir, "root")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "kept", "f"), filepath.Join(root, "flink")))

	require.NoError(t, Remove(root, options.RemoveOptions{Recursive: true}))

	// Only the links themselves go; the trees and files they point at stay.
	assert.NoDirExists(t, root)
	assert.DirExists(t, outside)
	assert.FileExists(t, filepath.Join(outside, "kept", "f"))
}

func TestRemoveRecursiveEmptyDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.Mkdir(root, 0o755))

	require.NoError(t, Remove(root, options.RemoveOptions{Recursive: true}))
	assert.NoDirExists(t, root)
}
