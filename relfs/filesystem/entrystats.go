//go:build linux

package filesystem

import (
	"log/slog"
	"strings"
	"time"
	"unsafe"

	"github.com/ZanzyTHEbar/relfs/relfs/filesystem/common"

	"golang.org/x/sys/unix"
)

// Field is a bitmask recording which EntryStats fields were retrieved.
type Field uint32

const (
	FieldType Field = 1 << iota
	FieldMode
	FieldNlink
	FieldUID
	FieldGID
	FieldAtime
	FieldMtime
	FieldCtime
	FieldBtime
	FieldIno
	FieldDev
	FieldSize
	FieldBlocks
	FieldErrno
	FieldFD
)

// Has reports whether all bits in f are set.
func (fs Field) Has(f Field) bool { return fs&f == f }

// FMode combines the entity type tag with the POSIX protection bits.
// The lower 12 bits are bit-compatible with the platform's mode_t
// protection bits; the upper bits are mutually exclusive type tags,
// except ModeLink which combines with the tag of the link target.
type FMode uint32

const (
	ModeSticky FMode = 0o1000
	ModeSetGID FMode = 0o2000
	ModeSetUID FMode = 0o4000

	// ModeProtMask covers rwxrwxrwx plus setuid/setgid/sticky.
	ModeProtMask FMode = 0o7777

	ModeSock        FMode = 1 << 12
	ModeBlk         FMode = 1 << 13
	ModeChr         FMode = 1 << 14
	ModeFifo        FMode = 1 << 15
	ModeDir         FMode = 1 << 16
	ModeFile        FMode = 1 << 17
	ModeLink        FMode = 1 << 18
	ModeNoAccess    FMode = 1 << 19
	ModeNotExisting FMode = 1 << 20

	ModeTypeMask = ModeSock | ModeBlk | ModeChr | ModeFifo | ModeDir | ModeFile |
		ModeLink | ModeNoAccess | ModeNotExisting
)

// maxSymlinkHops bounds chain construction independent of the kernel's
// own nesting limit.
const maxSymlinkHops = 64

// EntryStats holds one entity's metadata, captured with a single
// fd-relative stat call so that the inspected entry is the same object a
// later openat/unlinkat against the same fd+name pair will act on.
// Construction never fails: on error the errno is captured and the mode
// carries ModeNoAccess or ModeNotExisting, with every accessor returning
// a well-defined default. A symlink owns a child EntryStats for its
// target, forming a singly-linked chain.
type EntryStats struct {
	fields Field
	mode   FMode

	fd      int
	dirFD   int
	relName string
	item    PathItem

	uid    uint32
	gid    uint32
	nlink  uint64
	ino    uint64
	dev    uint64
	size   int64
	blocks uint64

	btime time.Time
	atime time.Time
	ctime time.Time
	mtime time.Time

	errno unix.Errno

	linkTarget      string
	linkTargetStats *EntryStats
}

// NewEntryStats stats item relative to dirfd. Pass unix.AT_FDCWD as the
// current-directory sentinel, in which case the item's full path is used
// as the relative name.
func NewEntryStats(dirfd int, item PathItem) *EntryStats {
	relName := item.Basename()
	if dirfd == unix.AT_FDCWD {
		relName = item.Path()
	}
	return newEntryStats(dirfd, relName, item, 0)
}

// NewEntryStatsPath is shorthand for stating a normalized path relative
// to the current directory.
func NewEntryStatsPath(path string) *EntryStats {
	return NewEntryStats(unix.AT_FDCWD, Normalize(path))
}

// NewEntryStatsFD stats an already open file descriptor.
func NewEntryStatsFD(fd int) *EntryStats {
	s := &EntryStats{fd: fd, dirFD: unix.AT_FDCWD, item: NewPathItem(".", ".")}
	s.fields |= FieldFD

	var stx unix.Statx_t
	err := unix.Statx(fd, "", unix.AT_EMPTY_PATH|unix.AT_STATX_SYNC_AS_STAT,
		unix.STATX_BASIC_STATS|unix.STATX_BTIME, &stx)
	if err == unix.ENOSYS {
		var st unix.Stat_t
		if err2 := unix.Fstat(fd, &st); err2 != nil {
			s.captureErrno(err2)
			return s
		}
		s.fillFromStat(&st)
		return s
	}
	if err != nil {
		s.captureErrno(err)
		return s
	}
	s.fillFromStatx(&stx)
	return s
}

func newEntryStats(dirfd int, relName string, item PathItem, hops int) *EntryStats {
	s := &EntryStats{fd: -1, dirFD: dirfd, relName: relName, item: item}

	if hops > maxSymlinkHops {
		s.errno = unix.ELOOP
		s.fields |= FieldErrno
		s.mode |= ModeNotExisting
		slog.Error("Symlink chain exceeds hop limit", "path", item.Path(), "hops", hops)
		return s
	}

	var stx unix.Statx_t
	err := unix.Statx(dirfd, relName, unix.AT_SYMLINK_NOFOLLOW|unix.AT_STATX_SYNC_AS_STAT,
		unix.STATX_BASIC_STATS|unix.STATX_BTIME, &stx)
	if err == unix.ENOSYS {
		var st unix.Stat_t
		if err2 := unix.Fstatat(dirfd, relName, &st, unix.AT_SYMLINK_NOFOLLOW); err2 != nil {
			s.captureErrno(err2)
			return s
		}
		s.fillFromStat(&st)
	} else if err != nil {
		s.captureErrno(err)
		return s
	} else {
		s.fillFromStatx(&stx)
	}

	if s.mode&ModeLink != 0 {
		s.resolveLink(hops)
	}
	return s
}

// captureErrno records a stat failure without raising it.
func (s *EntryStats) captureErrno(err error) {
	if errno, ok := err.(unix.Errno); ok {
		s.errno = errno
	} else {
		s.errno = unix.EIO
	}
	s.fields |= FieldErrno

	if s.errno == unix.EACCES {
		s.mode |= ModeNoAccess
	} else {
		s.mode |= ModeNotExisting
	}
}

func (s *EntryStats) fillFromStatx(stx *unix.Statx_t) {
	// The raw buffer is scrubbed once its fields have been consumed.
	defer common.SecureZero(unsafe.Slice((*byte)(unsafe.Pointer(stx)), int(unsafe.Sizeof(*stx))))

	s.mode |= typeTag(uint32(stx.Mode))
	s.mode |= FMode(stx.Mode) & ModeProtMask
	s.fields |= FieldType | FieldMode

	if stx.Mask&unix.STATX_NLINK != 0 {
		s.nlink = uint64(stx.Nlink)
		s.fields |= FieldNlink
	}
	if stx.Mask&unix.STATX_UID != 0 {
		s.uid = stx.Uid
		s.fields |= FieldUID
	}
	if stx.Mask&unix.STATX_GID != 0 {
		s.gid = stx.Gid
		s.fields |= FieldGID
	}
	if stx.Mask&unix.STATX_INO != 0 {
		s.ino = stx.Ino
		s.fields |= FieldIno
	}
	if stx.Mask&unix.STATX_SIZE != 0 {
		s.size = int64(stx.Size)
		s.fields |= FieldSize
	}
	if stx.Mask&unix.STATX_BLOCKS != 0 {
		s.blocks = stx.Blocks
		s.fields |= FieldBlocks
	}
	if stx.Mask&unix.STATX_ATIME != 0 {
		s.atime = statxTime(stx.Atime)
		s.fields |= FieldAtime
	}
	if stx.Mask&unix.STATX_BTIME != 0 {
		s.btime = statxTime(stx.Btime)
		s.fields |= FieldBtime
	}
	if stx.Mask&unix.STATX_CTIME != 0 {
		s.ctime = statxTime(stx.Ctime)
		s.fields |= FieldCtime
	}
	if stx.Mask&unix.STATX_MTIME != 0 {
		s.mtime = statxTime(stx.Mtime)
		s.fields |= FieldMtime
	}

	s.dev = unix.Mkdev(stx.Dev_major, stx.Dev_minor)
	s.fields |= FieldDev
}

func (s *EntryStats) fillFromStat(st *unix.Stat_t) {
	defer common.SecureZero(unsafe.Slice((*byte)(unsafe.Pointer(st)), int(unsafe.Sizeof(*st))))

	s.mode |= typeTag(st.Mode)
	s.mode |= FMode(st.Mode) & ModeProtMask
	s.fields |= FieldType | FieldMode | FieldNlink | FieldUID | FieldGID |
		FieldIno | FieldDev | FieldSize | FieldBlocks | FieldAtime | FieldCtime | FieldMtime

	s.nlink = uint64(st.Nlink)
	s.uid = st.Uid
	s.gid = st.Gid
	s.ino = st.Ino
	s.dev = st.Dev
	s.size = st.Size
	s.blocks = uint64(st.Blocks)
	s.atime = time.Unix(st.Atim.Sec, st.Atim.Nsec)
	s.ctime = time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	s.mtime = time.Unix(st.Mtim.Sec, st.Mtim.Nsec)
}

// resolveLink reads the link text and builds the owned target chain.
// The follow-stat on this hop lets the kernel flag an immediate loop or
// missing target; deeper hops repeat the same check for themselves, so
// any cycle terminates the recursion with ELOOP.
func (s *EntryStats) resolveLink(hops int) {
	buf := make([]byte, unix.PathMax)
	n, err := unix.Readlinkat(s.dirFD, s.relName, buf)
	if err != nil {
		s.captureErrno(err)
		return
	}
	s.linkTarget = string(buf[:n])

	var probe unix.Stat_t
	if err := unix.Fstatat(s.dirFD, s.relName, &probe, 0); err != nil {
		if errno, ok := err.(unix.Errno); ok && (errno == unix.ELOOP || errno == unix.ENOENT) {
			s.errno = errno
			s.fields |= FieldErrno
			s.mode |= ModeNotExisting
			return
		}
		s.captureErrno(err)
		return
	}
	common.SecureZero(unsafe.Slice((*byte)(unsafe.Pointer(&probe)), int(unsafe.Sizeof(probe))))

	if strings.HasPrefix(s.linkTarget, "/") {
		tgt := Normalize(s.linkTarget)
		s.linkTargetStats = newEntryStats(unix.AT_FDCWD, tgt.Path(), tgt, hops+1)
		return
	}

	rel := Normalize(joinPath(Normalize(s.relName).Dirname(), s.linkTarget))
	display := Normalize(joinPath(s.item.Dirname(), s.linkTarget))
	s.linkTargetStats = newEntryStats(s.dirFD, rel.Path(), display, hops+1)
}

func typeTag(mode uint32) FMode {
	switch mode & unix.S_IFMT {
	case unix.S_IFSOCK:
		return ModeSock
	case unix.S_IFBLK:
		return ModeBlk
	case unix.S_IFCHR:
		return ModeChr
	case unix.S_IFIFO:
		return ModeFifo
	case unix.S_IFDIR:
		return ModeDir
	case unix.S_IFLNK:
		return ModeLink
	case unix.S_IFREG:
		return ModeFile
	default:
		return 0
	}
}

func statxTime(ts unix.StatxTimestamp) time.Time {
	return time.Unix(ts.Sec, int64(ts.Nsec))
}

func joinPath(dir, name string) string {
	switch dir {
	case "", ".":
		return name
	case "/":
		return "/" + name
	default:
		return dir + "/" + name
	}
}

// Fields returns the retrieved-fields bitmask.
func (s *EntryStats) Fields() Field { return s.fields }

// Mode returns the combined type and protection bitmask.
func (s *EntryStats) Mode() FMode { return s.mode }

// Prot returns the POSIX protection bits only.
func (s *EntryStats) Prot() FMode { return s.mode & ModeProtMask }

// Item returns the logical path split of the statted entry.
func (s *EntryStats) Item() PathItem { return s.item }

// Path returns the logical path of the statted entry.
func (s *EntryStats) Path() string { return s.item.Path() }

// DirFD returns the directory fd the stat was issued against.
func (s *EntryStats) DirFD() int { return s.dirFD }

// FD returns the bare fd this instance was built from, or -1.
func (s *EntryStats) FD() int { return s.fd }

// Errno returns the captured errno, zero when the stat succeeded.
func (s *EntryStats) Errno() unix.Errno { return s.errno }

// OK reports whether the stat succeeded.
func (s *EntryStats) OK() bool { return !s.fields.Has(FieldErrno) }

// Exists reports whether the entry was present at stat time.
func (s *EntryStats) Exists() bool { return s.mode&ModeNotExisting == 0 }

// HasAccess reports whether the entry was reachable at stat time.
func (s *EntryStats) HasAccess() bool { return s.mode&ModeNoAccess == 0 }

func (s *EntryStats) IsFile() bool { return s.mode&ModeFile != 0 }
func (s *EntryStats) IsDir() bool  { return s.mode&ModeDir != 0 }
func (s *EntryStats) IsLink() bool { return s.mode&ModeLink != 0 }
func (s *EntryStats) IsFifo() bool { return s.mode&ModeFifo != 0 }
func (s *EntryStats) IsChr() bool  { return s.mode&ModeChr != 0 }
func (s *EntryStats) IsBlk() bool  { return s.mode&ModeBlk != 0 }
func (s *EntryStats) IsSock() bool { return s.mode&ModeSock != 0 }

func (s *EntryStats) UID() uint32    { return s.uid }
func (s *EntryStats) GID() uint32    { return s.gid }
func (s *EntryStats) Nlink() uint64  { return s.nlink }
func (s *EntryStats) Ino() uint64    { return s.ino }
func (s *EntryStats) Dev() uint64    { return s.dev }
func (s *EntryStats) Size() int64    { return s.size }
func (s *EntryStats) Blocks() uint64 { return s.blocks }

func (s *EntryStats) Btime() time.Time { return s.btime }
func (s *EntryStats) Atime() time.Time { return s.atime }
func (s *EntryStats) Ctime() time.Time { return s.ctime }
func (s *EntryStats) Mtime() time.Time { return s.mtime }

// LinkTarget returns the raw symlink text, empty for non-links.
func (s *EntryStats) LinkTarget() string { return s.linkTarget }

// LinkTargetStats returns the owned stats of the link target, nil when
// the entry is not a link or the target could not be resolved.
func (s *EntryStats) LinkTargetStats() *EntryStats { return s.linkTargetStats }

// FinalTarget walks the link chain to the terminal non-symlink node and
// optionally reports the hop count.
func (s *EntryStats) FinalTarget(hopCount *int) *EntryStats {
	cur := s
	hops := 0
	for cur.linkTargetStats != nil {
		cur = cur.linkTargetStats
		hops++
	}
	if hopCount != nil {
		*hopCount = hops
	}
	return cur
}

// Equal compares semantic fields, including the link chain. Process-local
// descriptors are not part of the comparison.
func (s *EntryStats) Equal(o *EntryStats) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.fields != o.fields || s.mode != o.mode || !s.item.Equal(o.item) ||
		s.uid != o.uid || s.gid != o.gid || s.nlink != o.nlink ||
		s.ino != o.ino || s.dev != o.dev || s.size != o.size ||
		!s.atime.Equal(o.atime) || !s.mtime.Equal(o.mtime) ||
		!s.ctime.Equal(o.ctime) || !s.btime.Equal(o.btime) ||
		s.errno != o.errno || s.linkTarget != o.linkTarget {
		return false
	}
	if s.linkTargetStats == nil || o.linkTargetStats == nil {
		return s.linkTargetStats == o.linkTargetStats
	}
	return s.linkTargetStats.Equal(o.linkTargetStats)
}
