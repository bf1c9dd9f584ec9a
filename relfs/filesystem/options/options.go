package options

import (
	ignore "github.com/sabhiram/go-gitignore"
)

// VisitOptions configures directory traversal.
// The DirCheckEntry/DirEntry/DirExit flags enable the corresponding
// visitor events; a disabled event is simply never fired.
type VisitOptions struct {
	Recursive          bool              // Descend into subdirectories
	FollowSymlinks     bool              // Enter directories reached through symlinks
	LexicographicOrder bool              // Sort children by basename for deterministic order
	DirCheckEntry      bool              // Fire the veto event before entering a directory
	DirEntry           bool              // Fire the directory-entry event
	DirExit            bool              // Fire the directory-exit event
	Verbose            bool              // Per-entry diagnostic logging
	Ignore             *ignore.GitIgnore // Optional ignore patterns; matching entries are skipped
}

// CopyOptions configures file and directory copy operations
type CopyOptions struct {
	Recursive           bool // Copy directories recursively
	FollowSymlinks      bool // Copy symlink targets instead of recreating links
	IntoExistingDir     bool // Copy source content into an existing destination directory
	Overwrite           bool // Replace pre-existing destination files
	IgnoreSymlinkErrors bool // Downgrade broken-symlink failures to warnings
	PreserveAll         bool // Preserve ownership and timestamps
	Sync                bool // Flush file payloads before reporting success
	Verbose             bool // Per-entry diagnostic logging
}

// RemoveOptions configures file and directory removal
type RemoveOptions struct {
	Recursive bool // Required for directory removal
	Verbose   bool // Per-entry diagnostic logging
}

// DefaultVisitOptions returns sensible defaults for traversal
func DefaultVisitOptions() VisitOptions {
	return VisitOptions{
		Recursive:          true,
		FollowSymlinks:     false,
		LexicographicOrder: true,
		DirCheckEntry:      false,
		DirEntry:           true,
		DirExit:            true,
		Verbose:            false,
	}
}

// DefaultCopyOptions returns sensible defaults for copy operations
func DefaultCopyOptions() CopyOptions {
	return CopyOptions{
		Recursive:           true,
		FollowSymlinks:      false,
		IntoExistingDir:     false,
		Overwrite:           false,
		IgnoreSymlinkErrors: false,
		PreserveAll:         false,
		Sync:                false,
		Verbose:             false,
	}
}

// DefaultRemoveOptions returns sensible defaults for removal
func DefaultRemoveOptions() RemoveOptions {
	return RemoveOptions{
		Recursive: false,
		Verbose:   false,
	}
}
