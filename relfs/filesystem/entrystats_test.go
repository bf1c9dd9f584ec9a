//go:build linux

package filesystem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestEntryStatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello relfs"), 0o640))

	s := NewEntryStatsPath(path)
	require.True(t, s.OK(), "stat should succeed: errno %v", s.Errno())
	assert.True(t, s.Exists())
	assert.True(t, s.HasAccess())
	assert.True(t, s.IsFile())
	assert.False(t, s.IsDir())
	assert.False(t, s.IsLink())
	assert.Equal(t, int64(len("hello relfs")), s.Size())
	assert.Equal(t, FMode(0o640), s.Prot())
	assert.Equal(t, uint64(1), s.Nlink())
	assert.True(t, s.Fields().Has(FieldType|FieldMode|FieldIno|FieldDev|FieldSize))
	assert.Equal(t, path, s.Path())
}

func TestEntryStatsDirectory(t *testing.T) {
	dir := t.TempDir()
	s := NewEntryStatsPath(dir)
	require.True(t, s.OK())
	assert.True(t, s.IsDir())
	assert.False(t, s.IsFile())
}

func TestEntryStatsMissing(t *testing.T) {
	dir := t.TempDir()
	s := NewEntryStatsPath(filepath.Join(dir, "nope"))

	// Construction never fails; the error is carried as an instance.
	require.NotNil(t, s)
	assert.False(t, s.OK())
	assert.False(t, s.Exists())
	assert.True(t, s.Fields().Has(FieldErrno))
	assert.Equal(t, unix.ENOENT, s.Errno())
	assert.False(t, s.IsFile())
	assert.False(t, s.IsDir())
	assert.Equal(t, int64(0), s.Size())
}

func TestEntryStatsRelativeToDirFD(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644))

	fd, err := unix.Open(dir, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(fd)

	s := NewEntryStats(fd, NewPathItem(dir, "f"))
	require.True(t, s.OK())
	assert.True(t, s.IsFile())
	assert.Equal(t, int64(1), s.Size())
	assert.Equal(t, fd, s.DirFD())
	assert.Equal(t, filepath.Join(dir, "f"), s.Path())
}

func TestEntryStatsFD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("abcd"), 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	s := NewEntryStatsFD(int(f.Fd()))
	require.True(t, s.OK())
	assert.True(t, s.IsFile())
	assert.Equal(t, int64(4), s.Size())
	assert.True(t, s.Fields().Has(FieldFD))
	assert.Equal(t, int(f.Fd()), s.FD())
}

func TestEntryStatsSymlinkChain(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(target, []byte("payload"), 0o644))
	require.NoError(t, os.Symlink("target", filepath.Join(dir, "hop")))
	require.NoError(t, os.Symlink("hop", filepath.Join(dir, "head")))

	s := NewEntryStatsPath(filepath.Join(dir, "head"))
	require.True(t, s.OK())
	assert.True(t, s.IsLink())
	assert.True(t, s.Exists())
	assert.Equal(t, "hop", s.LinkTarget())

	mid := s.LinkTargetStats()
	require.NotNil(t, mid)
	assert.True(t, mid.IsLink())
	assert.Equal(t, "target", mid.LinkTarget())
	assert.Equal(t, filepath.Join(dir, "hop"), mid.Path())

	var hops int
	final := s.FinalTarget(&hops)
	assert.Equal(t, 2, hops)
	assert.True(t, final.IsFile())
	assert.False(t, final.IsLink())
	assert.Equal(t, int64(len("payload")), final.Size())
	assert.Equal(t, filepath.Join(dir, "target"), final.Path())
}

func TestEntryStatsAbsoluteSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	require.NoError(t, os.Symlink(target, filepath.Join(dir, "abs")))

	s := NewEntryStatsPath(filepath.Join(dir, "abs"))
	require.True(t, s.OK())
	assert.True(t, s.IsLink())
	final := s.FinalTarget(nil)
	assert.True(t, final.IsFile())
	assert.Equal(t, target, final.Path())
}

func TestEntryStatsBrokenSymlink(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Symlink("missing", filepath.Join(dir, "dangling")))

	s := NewEntryStatsPath(filepath.Join(dir, "dangling"))
	assert.True(t, s.IsLink())
	assert.False(t, s.Exists())
	assert.Equal(t, "missing", s.LinkTarget())
	assert.Nil(t, s.LinkTargetStats())
	assert.Equal(t, unix.ENOENT, s.Errno())
}

func TestEntryStatsSymlinkLoop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Symlink("b", filepath.Join(dir, "a")))
	require.NoError(t, os.Symlink("a", filepath.Join(dir, "b")))

	s := NewEntryStatsPath(filepath.Join(dir, "a"))
	assert.True(t, s.IsLink())
	assert.False(t, s.Exists())
	assert.Equal(t, unix.ELOOP, s.Errno())

	// FinalTarget on a looping chain terminates at the first unresolvable hop.
	final := s.FinalTarget(nil)
	assert.NotNil(t, final)
	assert.False(t, final.Exists())
}

func TestEntryStatsEqual(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	other := filepath.Join(dir, "g")
	require.NoError(t, os.WriteFile(path, []byte("same"), 0o644))
	require.NoError(t, os.WriteFile(other, []byte("different bytes"), 0o644))

	a := NewEntryStatsPath(path)
	b := NewEntryStatsPath(path)
	c := NewEntryStatsPath(other)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))

	var nilStats *EntryStats
	assert.True(t, nilStats.Equal(nil))
}

func TestFModeTypeTags(t *testing.T) {
	// Protection bits and type tags occupy disjoint ranges.
	assert.Zero(t, ModeProtMask&ModeTypeMask)
	assert.EqualValues(t, 0o7777, ModeProtMask)

	tags := []FMode{ModeSock, ModeBlk, ModeChr, ModeFifo, ModeDir, ModeFile, ModeLink, ModeNoAccess, ModeNotExisting}
	for i, a := range tags {
		for _, b := range tags[i+1:] {
			assert.Zero(t, a&b, "type tags must not overlap")
		}
	}
}
