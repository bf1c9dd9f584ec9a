//go:build linux

package filesystem

import (
	"fmt"
	"log/slog"

	"github.com/ZanzyTHEbar/relfs/relfs/filesystem/common"
	"github.com/ZanzyTHEbar/relfs/relfs/filesystem/options"

	"golang.org/x/sys/unix"
)

// Remove unlinks a single file or symlink directly, or a whole directory
// tree when Recursive is set. Directory trees are removed through one
// traversal: files and symlinks are unlinked top-down against the open
// directory fd they were found under, directories bottom-up once empty.
// The operation is fail-fast: the first unlink failure or inaccessible
// entry aborts the whole removal.
func Remove(path string, opts options.RemoveOptions) error {
	item := Normalize(path)
	stats := NewEntryStats(unix.AT_FDCWD, item)
	if !stats.Exists() {
		return common.WrapError(common.ErrNotFound, "remove %s", path)
	}

	if stats.IsLink() || !stats.IsDir() {
		if err := unix.Unlinkat(unix.AT_FDCWD, item.Path(), 0); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		return nil
	}

	if !opts.Recursive {
		return common.WrapError(common.ErrInvalidArgument,
			"remove %s: directory removal requires the recursive option", path)
	}

	var opErr error
	removed := 0

	visitor := func(event VisitEvent, s *EntryStats, depth int) bool {
		var err error
		switch {
		case event.Has(EventDirExit):
			err = unix.Unlinkat(s.DirFD(), s.relName, unix.AT_REMOVEDIR)
		case event&(EventFile|EventSymlink|EventDirSymlink) != 0:
			err = unix.Unlinkat(s.DirFD(), s.relName, 0)
		default:
			return true
		}
		if err != nil {
			opErr = fmt.Errorf("failed to remove %s: %w", s.Path(), err)
			return false
		}
		removed++
		if opts.Verbose {
			slog.Debug("Removed entry", "path", s.Path(), "depth", depth)
		}
		return true
	}

	visitOpts := options.VisitOptions{
		Recursive: true,
		DirExit:   true,
		Verbose:   opts.Verbose,
	}

	if err := Visit(item.Path(), visitOpts, visitor); err != nil {
		if opErr != nil {
			return opErr
		}
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	if opts.Verbose {
		slog.Debug("Removal completed", "path", path, "entries", removed)
	}
	return nil
}
