//go:build linux

package filesystem

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	internal "github.com/ZanzyTHEbar/relfs/relfs"
	"github.com/ZanzyTHEbar/relfs/relfs/config"
	"github.com/ZanzyTHEbar/relfs/relfs/filesystem/common"
	"github.com/ZanzyTHEbar/relfs/relfs/filesystem/options"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

const defaultCopyBufferSize = 64 * 1024

// stagedDir is one destination directory frame during a tree copy.
type stagedDir struct {
	dirf        *os.File
	parentFD    int
	finalName   string
	preExisting bool
}

type copyContext struct {
	opts      options.CopyOptions
	bufSize   int
	tmpPrefix string

	dstStack []*stagedDir

	// createdRoot is the logical path of the destination root this call
	// created, removed on abort. Empty when the root pre-existed.
	createdRoot string
}

// Copy copies a single file or symlink, or a whole directory tree when
// Recursive is set. Destination subdirectories are staged under an
// unpredictable temporary name with their read permission dropped, then
// atomically renamed into place, so an observer sees each subdirectory
// either fully absent or fully named, never half-created. Final
// permissions are restored once a directory's children are in place.
func Copy(src, dst string, opts options.CopyOptions) error {
	srcItem := Normalize(src)
	srcStats := NewEntryStats(unix.AT_FDCWD, srcItem)
	if !srcStats.Exists() && !srcStats.IsLink() {
		return common.WrapError(common.ErrNotFound, "copy %s", src)
	}

	cc := &copyContext{
		opts:      opts,
		bufSize:   config.AppConfig.Engine.CopyBufferSize,
		tmpPrefix: config.AppConfig.Engine.TempPrefix,
	}
	if cc.bufSize <= 0 {
		cc.bufSize = defaultCopyBufferSize
	}
	if cc.tmpPrefix == "" {
		cc.tmpPrefix = internal.DefaultTempPrefix
	}

	if srcStats.IsDir() {
		if !opts.Recursive {
			return common.WrapError(common.ErrInvalidArgument,
				"copy %s: directory copy requires the recursive option", src)
		}
		return cc.copyTree(srcStats, dst)
	}
	return cc.copySingle(srcStats, dst)
}

// copySingle copies one file or symlink to dst, which may be an existing
// directory the entry is placed under.
func (cc *copyContext) copySingle(srcStats *EntryStats, dst string) error {
	dstItem := Normalize(dst)
	dstStats := NewEntryStats(unix.AT_FDCWD, dstItem)

	if dstStats.Exists() && dstStats.FinalTarget(nil).IsDir() {
		dirFD, err := unix.Openat(unix.AT_FDCWD, dstItem.Path(),
			unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
		if err != nil {
			return fmt.Errorf("failed to open destination directory %s: %w", dst, err)
		}
		defer unix.Close(dirFD)
		return cc.copyEntry(srcStats, dirFD, srcStats.Item().Basename())
	}

	return cc.copyEntry(srcStats, unix.AT_FDCWD, dstItem.Path())
}

// copyTree copies a directory tree rooted at srcStats to dst.
func (cc *copyContext) copyTree(srcStats *EntryStats, dst string) error {
	dstItem := Normalize(dst)
	dstStats := NewEntryStats(unix.AT_FDCWD, dstItem)

	var parentPath, rootName string
	rootPreExisting := false

	switch {
	case dstStats.Exists() && dstStats.FinalTarget(nil).IsDir():
		if cc.opts.IntoExistingDir {
			rootPreExisting = true
			parentPath = dstItem.Path()
		} else {
			parentPath = dstItem.Path()
			rootName = srcStats.Item().Basename()
			if !cc.opts.Overwrite &&
				NewEntryStats(unix.AT_FDCWD, NewPathItem(parentPath, rootName)).Exists() {
				return common.WrapError(common.ErrAlreadyExists,
					"copy %s: %s", srcStats.Path(), joinPath(parentPath, rootName))
			}
		}
	case dstStats.Exists():
		return common.WrapError(common.ErrInvalidArgument,
			"copy %s: destination %s exists and is not a directory", srcStats.Path(), dst)
	default:
		parentPath = dstItem.Dirname()
		rootName = dstItem.Basename()
	}

	parentFD, err := unix.Openat(unix.AT_FDCWD, parentPath,
		unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("failed to open destination parent %s: %w", parentPath, err)
	}
	defer unix.Close(parentFD)

	var opErr error
	fail := func(err error) bool {
		opErr = err
		return false
	}

	visitor := func(event VisitEvent, s *EntryStats, depth int) bool {
		switch {
		case event.Has(EventDirEntry | EventDirExit):
			// Recursive walk, combined event cannot fire.
			return true
		case event.Has(EventDirEntry):
			if depth == 1 && rootPreExisting {
				fd, err := unix.Openat(unix.AT_FDCWD, parentPath,
					unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
				if err != nil {
					return fail(fmt.Errorf("failed to open destination %s: %w", parentPath, err))
				}
				cc.push(&stagedDir{
					dirf:        os.NewFile(uintptr(fd), parentPath),
					parentFD:    unix.AT_FDCWD,
					finalName:   parentPath,
					preExisting: true,
				})
				return true
			}

			pfd := parentFD
			name := rootName
			if depth > 1 {
				pfd = cc.topFD()
				name = s.Item().Basename()
			}
			staged, err := cc.stageDir(pfd, name, s)
			if err != nil {
				return fail(err)
			}
			if depth == 1 && !staged.preExisting {
				cc.createdRoot = joinPath(parentPath, rootName)
			}
			cc.push(staged)
			return true
		case event.Has(EventDirExit):
			if err := cc.finishDir(s); err != nil {
				return fail(err)
			}
			return true
		default:
			if err := cc.copyEntry(s, cc.topFD(), s.Item().Basename()); err != nil {
				return fail(err)
			}
			return true
		}
	}

	visitOpts := options.VisitOptions{
		Recursive:          true,
		FollowSymlinks:     cc.opts.FollowSymlinks,
		LexicographicOrder: true,
		DirEntry:           true,
		DirExit:            true,
		Verbose:            cc.opts.Verbose,
	}

	if err := Visit(srcStats.Path(), visitOpts, visitor); err != nil {
		cc.abort()
		if opErr != nil {
			return opErr
		}
		return fmt.Errorf("failed to copy %s: %w", srcStats.Path(), err)
	}
	return nil
}

func (cc *copyContext) push(sd *stagedDir) {
	cc.dstStack = append(cc.dstStack, sd)
}

func (cc *copyContext) topFD() int {
	return int(cc.dstStack[len(cc.dstStack)-1].dirf.Fd())
}

// stageDir creates the destination directory for one source directory:
// created under a temporary name with mode 0700, read permission dropped
// to 0300 so its contents cannot be listed while populating, then
// renamed to its final name with the fd still valid.
func (cc *copyContext) stageDir(pfd int, finalName string, s *EntryStats) (*stagedDir, error) {
	var st unix.Stat_t
	if err := unix.Fstatat(pfd, finalName, &st, unix.AT_SYMLINK_NOFOLLOW); err == nil {
		isDir := st.Mode&unix.S_IFMT == unix.S_IFDIR
		switch {
		case !cc.opts.Overwrite:
			return nil, common.WrapError(common.ErrAlreadyExists, "copy %s", s.Path())
		case isDir:
			// Merge into the existing directory instead of staging.
			fd, err := unix.Openat(pfd, finalName,
				unix.O_RDONLY|unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
			if err != nil {
				return nil, fmt.Errorf("failed to open existing directory %s: %w", s.Path(), err)
			}
			return &stagedDir{
				dirf:        os.NewFile(uintptr(fd), finalName),
				parentFD:    pfd,
				finalName:   finalName,
				preExisting: true,
			}, nil
		default:
			if err := unix.Unlinkat(pfd, finalName, 0); err != nil {
				return nil, fmt.Errorf("failed to replace %s: %w", finalName, err)
			}
		}
	}

	tmp := cc.tmpPrefix + uuid.NewString()
	if err := unix.Mkdirat(pfd, tmp, 0o700); err != nil {
		return nil, fmt.Errorf("failed to stage directory for %s: %w", s.Path(), err)
	}

	fd, err := unix.Openat(pfd, tmp,
		unix.O_RDONLY|unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		unix.Unlinkat(pfd, tmp, unix.AT_REMOVEDIR)
		return nil, fmt.Errorf("failed to open staged directory for %s: %w", s.Path(), err)
	}

	if err := unix.Fchmod(fd, 0o300); err != nil {
		unix.Close(fd)
		unix.Unlinkat(pfd, tmp, unix.AT_REMOVEDIR)
		return nil, fmt.Errorf("failed to restrict staged directory for %s: %w", s.Path(), err)
	}

	if err := unix.Renameat(pfd, tmp, pfd, finalName); err != nil {
		unix.Close(fd)
		unix.Unlinkat(pfd, tmp, unix.AT_REMOVEDIR)
		return nil, fmt.Errorf("failed to publish directory %s: %w", finalName, err)
	}

	return &stagedDir{
		dirf:      os.NewFile(uintptr(fd), finalName),
		parentFD:  pfd,
		finalName: finalName,
	}, nil
}

// finishDir restores the directory's final metadata once all children
// are copied, then pops and closes its frame.
func (cc *copyContext) finishDir(s *EntryStats) error {
	sd := cc.dstStack[len(cc.dstStack)-1]
	cc.dstStack = cc.dstStack[:len(cc.dstStack)-1]
	defer sd.dirf.Close()

	if sd.preExisting {
		return nil
	}

	fd := int(sd.dirf.Fd())
	if err := unix.Fchmod(fd, uint32(s.Prot())); err != nil {
		return fmt.Errorf("failed to restore permissions on %s: %w", sd.finalName, err)
	}

	if cc.opts.PreserveAll {
		if err := unix.Fchown(fd, int(s.UID()), int(s.GID())); err != nil {
			if err != unix.EPERM {
				return fmt.Errorf("failed to restore ownership on %s: %w", sd.finalName, err)
			}
			slog.Warn("Insufficient privileges to restore ownership", "path", sd.finalName)
		}
		times := []unix.Timespec{
			unix.NsecToTimespec(s.Atime().UnixNano()),
			unix.NsecToTimespec(s.Mtime().UnixNano()),
		}
		if err := unix.UtimesNanoAt(sd.parentFD, sd.finalName, times, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			return fmt.Errorf("failed to restore timestamps on %s: %w", sd.finalName, err)
		}
	}
	return nil
}

// abort closes every open destination frame and removes the destination
// root this call created. A pre-existing destination is never removed.
func (cc *copyContext) abort() {
	for i := len(cc.dstStack) - 1; i >= 0; i-- {
		cc.dstStack[i].dirf.Close()
	}
	cc.dstStack = nil

	if cc.createdRoot == "" {
		return
	}
	if err := Remove(cc.createdRoot, options.RemoveOptions{Recursive: true}); err != nil {
		slog.Error("Failed to remove staged destination after abort",
			"path", cc.createdRoot, "error", err)
	}
}

// copyEntry dispatches one non-directory source entry.
func (cc *copyContext) copyEntry(s *EntryStats, dstDirFD int, dstName string) error {
	if !s.HasAccess() {
		return common.WrapError(common.ErrAccessDenied, "copy %s", s.Path())
	}
	if !s.Exists() && !s.IsLink() {
		return common.WrapError(common.ErrNotFound, "copy %s", s.Path())
	}
	if s.IsLink() && !cc.opts.FollowSymlinks {
		return cc.copySymlink(s, dstDirFD, dstName)
	}

	payload := s.FinalTarget(nil)
	if s.IsLink() && !payload.IsFile() {
		err := common.WrapError(common.ErrNotFound,
			"copy %s: symlink target %q is not a regular file", s.Path(), s.LinkTarget())
		return cc.symlinkFailure(err)
	}
	if !payload.IsFile() {
		return common.WrapError(common.ErrInvalidArgument,
			"copy %s: unsupported entry type %#o", s.Path(), s.Mode()&ModeTypeMask)
	}
	return cc.copyFilePayload(s, payload, dstDirFD, dstName)
}

// copySymlink recreates a symlink at the destination with the same
// target text.
func (cc *copyContext) copySymlink(s *EntryStats, dstDirFD int, dstName string) error {
	target := s.LinkTarget()
	if target == "" {
		err := common.WrapError(common.ErrInvalidArgument,
			"copy %s: unreadable symlink", s.Path())
		return cc.symlinkFailure(err)
	}

	var st unix.Stat_t
	if err := unix.Fstatat(dstDirFD, dstName, &st, unix.AT_SYMLINK_NOFOLLOW); err == nil {
		if !cc.opts.Overwrite {
			return common.WrapError(common.ErrAlreadyExists, "copy %s", s.Path())
		}
		if err := unix.Unlinkat(dstDirFD, dstName, 0); err != nil {
			return fmt.Errorf("failed to replace %s: %w", dstName, err)
		}
	}

	if err := unix.Symlinkat(target, dstDirFD, dstName); err != nil {
		return cc.symlinkFailure(fmt.Errorf("failed to create symlink %s: %w", dstName, err))
	}

	if cc.opts.PreserveAll {
		if err := unix.Fchownat(dstDirFD, dstName, int(s.UID()), int(s.GID()),
			unix.AT_SYMLINK_NOFOLLOW); err != nil && err != unix.EPERM {
			return fmt.Errorf("failed to restore ownership on %s: %w", dstName, err)
		}
		times := []unix.Timespec{
			unix.NsecToTimespec(s.Atime().UnixNano()),
			unix.NsecToTimespec(s.Mtime().UnixNano()),
		}
		if err := unix.UtimesNanoAt(dstDirFD, dstName, times, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			return fmt.Errorf("failed to restore timestamps on %s: %w", dstName, err)
		}
	}
	return nil
}

// symlinkFailure downgrades symlink errors to warnings when requested.
func (cc *copyContext) symlinkFailure(err error) error {
	if cc.opts.IgnoreSymlinkErrors {
		slog.Warn("Ignoring symlink error", "error", err)
		return nil
	}
	return err
}

// copyFilePayload transfers regular-file bytes through the kernel
// zero-copy path, falling back to a buffered loop. A transfer moving
// fewer bytes than the source size is a hard failure, never a partial
// success.
func (cc *copyContext) copyFilePayload(s, payload *EntryStats, dstDirFD int, dstName string) error {
	srcFlags := unix.O_RDONLY | unix.O_CLOEXEC
	if !s.IsLink() {
		srcFlags |= unix.O_NOFOLLOW
	}
	srcFD, err := unix.Openat(s.DirFD(), s.relName, srcFlags, 0)
	if err != nil {
		return fmt.Errorf("failed to open source %s: %w", s.Path(), err)
	}
	srcFile := os.NewFile(uintptr(srcFD), s.Path())
	defer srcFile.Close()

	var st unix.Stat_t
	if err := unix.Fstatat(dstDirFD, dstName, &st, unix.AT_SYMLINK_NOFOLLOW); err == nil {
		if !cc.opts.Overwrite {
			return common.WrapError(common.ErrAlreadyExists, "copy %s to %s", s.Path(), dstName)
		}
		if err := unix.Unlinkat(dstDirFD, dstName, 0); err != nil {
			return fmt.Errorf("failed to replace %s: %w", dstName, err)
		}
	}

	prot := payload.Prot()
	dstFD, err := unix.Openat(dstDirFD, dstName,
		unix.O_WRONLY|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, uint32(prot&0o777))
	if err != nil {
		return fmt.Errorf("failed to create destination %s: %w", dstName, err)
	}
	dstFile := os.NewFile(uintptr(dstFD), dstName)
	defer dstFile.Close()

	size := payload.Size()
	copied, err := cc.transfer(srcFile, dstFile, size)
	if err == nil && copied < size {
		err = common.WrapError(common.ErrShortTransfer,
			"copy %s: %d of %d bytes", s.Path(), copied, size)
	}
	if err != nil {
		unix.Unlinkat(dstDirFD, dstName, 0)
		return err
	}

	if err := unix.Fchmod(dstFD, uint32(prot)); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", dstName, err)
	}
	if cc.opts.PreserveAll {
		if err := unix.Fchown(dstFD, int(payload.UID()), int(payload.GID())); err != nil {
			if err != unix.EPERM {
				return fmt.Errorf("failed to restore ownership on %s: %w", dstName, err)
			}
			slog.Warn("Insufficient privileges to restore ownership", "path", dstName)
		}
		times := []unix.Timespec{
			unix.NsecToTimespec(payload.Atime().UnixNano()),
			unix.NsecToTimespec(payload.Mtime().UnixNano()),
		}
		if err := unix.UtimesNanoAt(dstDirFD, dstName, times, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			return fmt.Errorf("failed to restore timestamps on %s: %w", dstName, err)
		}
	}
	if cc.opts.Sync {
		if err := unix.Fsync(dstFD); err != nil {
			return fmt.Errorf("failed to sync %s: %w", dstName, err)
		}
	}
	return nil
}

// transfer moves up to size bytes from src to dst, preferring
// copy_file_range and falling back to a buffered loop when the kernel
// or filesystem does not support it.
func (cc *copyContext) transfer(src, dst *os.File, size int64) (int64, error) {
	srcFD := int(src.Fd())
	dstFD := int(dst.Fd())

	var copied int64
	for copied < size {
		chunk := int(min(size-copied, 1<<30))
		n, err := unix.CopyFileRange(srcFD, nil, dstFD, nil, chunk, 0)
		if err != nil {
			if copied == 0 && (err == unix.ENOSYS || err == unix.EXDEV ||
				err == unix.EINVAL || err == unix.EOPNOTSUPP) {
				n, cerr := io.CopyBuffer(dst, src, make([]byte, cc.bufSize))
				if cerr != nil {
					return n, fmt.Errorf("failed to transfer %s: %w", src.Name(), cerr)
				}
				return n, nil
			}
			return copied, fmt.Errorf("failed to transfer %s: %w", src.Name(), err)
		}
		if n == 0 {
			// Source truncated beneath us; the short-transfer check
			// in the caller turns this into a hard failure.
			break
		}
		copied += int64(n)
	}
	return copied, nil
}
