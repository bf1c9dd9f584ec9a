//go:build linux

package filesystem

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/ZanzyTHEbar/relfs/relfs/filesystem/common"
	"github.com/ZanzyTHEbar/relfs/relfs/filesystem/options"

	"github.com/RoaringBitmap/roaring/roaring64"
	"golang.org/x/sys/unix"
)

// VisitEvent identifies the traversal event a visitor is called for.
// EventFile and EventSymlink may combine (symlink to a regular file);
// EventDirEntry|EventDirExit combined denotes the non-recursive
// visitation of a directory.
type VisitEvent uint16

const (
	EventFile VisitEvent = 1 << iota
	EventSymlink
	EventDirSymlink
	EventDirCheckEntry
	EventDirEntry
	EventDirExit
)

// Has reports whether all bits in e are set.
func (ev VisitEvent) Has(e VisitEvent) bool { return ev&e == e }

// Visitor receives traversal events. Returning false at EventDirCheckEntry
// vetoes the directory: only that subtree is skipped and the walk
// continues with its siblings. Returning false at any other event aborts
// the entire walk. The traversal engine never retains the visitor beyond
// the call.
type Visitor func(event VisitEvent, stats *EntryStats, depth int) bool

type traverseContext struct {
	opts    options.VisitOptions
	visitor Visitor

	// fdStack holds the owned directory fds of the currently open
	// frames; every fd is closed on each exit path including unwinding.
	fdStack []*os.File

	// visited tracks (dev, ino) of entered directories when symlinks
	// are followed, so upward-pointing links cannot loop the walk.
	visited map[uint64]*roaring64.Bitmap
}

// Visit walks path, driving the visitor per the enabled options. The
// walk enumerates each directory exactly once through its own open fd;
// children are statted relative to that fd, never by re-resolving a
// path, so concurrent renames cannot redirect the walk.
func Visit(path string, opts options.VisitOptions, visitor Visitor) error {
	if visitor == nil {
		return common.WrapError(common.ErrInvalidArgument, "visit %s: nil visitor", path)
	}

	item := Normalize(path)
	stats := NewEntryStats(unix.AT_FDCWD, item)
	if !stats.Exists() {
		return common.WrapError(common.ErrNotFound, "visit %s", path)
	}

	tc := &traverseContext{opts: opts, visitor: visitor}
	if opts.FollowSymlinks {
		tc.visited = make(map[uint64]*roaring64.Bitmap)
	}

	switch {
	case stats.IsDir():
		return tc.visitDir(stats, 1)
	case stats.IsLink() && stats.FinalTarget(nil).IsDir():
		if opts.FollowSymlinks {
			return tc.visitDir(stats, 1)
		}
		if !visitor(EventDirSymlink, stats, 1) {
			return common.ErrAborted
		}
		return nil
	default:
		if !visitor(fileEvent(stats), stats, 1) {
			return common.ErrAborted
		}
		return nil
	}
}

func (tc *traverseContext) visitDir(dstats *EntryStats, depth int) error {
	flags := unix.O_RDONLY | unix.O_DIRECTORY | unix.O_CLOEXEC
	if !dstats.IsLink() {
		// A directory replaced by a symlink between stat and open
		// must fail, not silently redirect the walk.
		flags |= unix.O_NOFOLLOW
	}

	fd, err := unix.Openat(dstats.DirFD(), dstats.relName, flags, 0)
	if err != nil {
		return fmt.Errorf("failed to open directory %s: %w", dstats.Path(), err)
	}

	dirf := os.NewFile(uintptr(fd), dstats.Path())
	tc.fdStack = append(tc.fdStack, dirf)
	defer func() {
		tc.fdStack = tc.fdStack[:len(tc.fdStack)-1]
		dirf.Close()
	}()

	if tc.opts.FollowSymlinks && tc.markVisited(dstats) {
		slog.Debug("Directory already visited through another link, skipping",
			"path", dstats.Path())
		return nil
	}

	if tc.opts.DirCheckEntry && !tc.visitor(EventDirCheckEntry, dstats, depth) {
		// Veto: this subtree is skipped, siblings continue.
		return nil
	}
	if tc.opts.DirEntry && !tc.visitor(EventDirEntry, dstats, depth) {
		return common.ErrAborted
	}

	names, err := dirf.Readdirnames(-1)
	if err != nil {
		return fmt.Errorf("failed to enumerate directory %s: %w", dstats.Path(), err)
	}
	if tc.opts.LexicographicOrder {
		sort.Strings(names)
	}

	for _, name := range names {
		child := NewEntryStats(int(dirf.Fd()), NewPathItem(dstats.Path(), name))

		if tc.opts.Ignore != nil && tc.opts.Ignore.MatchesPath(child.Path()) {
			if tc.opts.Verbose {
				slog.Debug("Entry matches ignore pattern, skipping", "path", child.Path())
			}
			continue
		}
		if tc.opts.Verbose {
			slog.Debug("Visiting entry",
				"path", child.Path(),
				"mode", fmt.Sprintf("%#o", child.Mode()),
				"depth", depth+1)
		}

		linkToDir := child.IsLink() && child.Exists() && child.FinalTarget(nil).IsDir()

		switch {
		case child.IsDir(), linkToDir && tc.opts.FollowSymlinks:
			if !tc.opts.Recursive {
				if tc.opts.DirEntry || tc.opts.DirExit {
					if !tc.visitor(EventDirEntry|EventDirExit, child, depth+1) {
						return common.ErrAborted
					}
				}
				continue
			}
			if err := tc.visitDir(child, depth+1); err != nil {
				return err
			}
		case linkToDir:
			if !tc.visitor(EventDirSymlink, child, depth+1) {
				return common.ErrAborted
			}
		default:
			if !tc.visitor(fileEvent(child), child, depth+1) {
				return common.ErrAborted
			}
		}
	}

	if tc.opts.DirExit && !tc.visitor(EventDirExit, dstats, depth) {
		return common.ErrAborted
	}
	return nil
}

// markVisited records the directory's final-target identity and reports
// whether it was already entered.
func (tc *traverseContext) markVisited(dstats *EntryStats) bool {
	target := dstats.FinalTarget(nil)
	if !target.Fields().Has(FieldIno | FieldDev) {
		return false
	}

	bm, ok := tc.visited[target.Dev()]
	if !ok {
		bm = roaring64.New()
		tc.visited[target.Dev()] = bm
	}
	if bm.Contains(target.Ino()) {
		return true
	}
	bm.Add(target.Ino())
	return false
}

// fileEvent maps non-directory stats to their visitor event bits.
func fileEvent(s *EntryStats) VisitEvent {
	if !s.IsLink() {
		return EventFile
	}
	ev := EventSymlink
	if s.Exists() && s.FinalTarget(nil).IsFile() {
		ev |= EventFile
	}
	return ev
}
