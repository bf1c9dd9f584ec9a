package filesystem

import (
	"log/slog"
	"strings"
)

// PathItem is the lexically normalized split of a path into its parent
// directory and basename. Both components use "." as the empty sentinel:
// a dirname of "." means the current directory, a basename of "." means
// the item denotes the directory itself. The value is immutable and is
// produced purely lexically, without touching the filesystem.
type PathItem struct {
	dirname  string
	basename string
}

// NewPathItem builds a PathItem from explicit components. Empty
// components collapse to the "." sentinel.
func NewPathItem(dirname, basename string) PathItem {
	if dirname == "" {
		dirname = "."
	}
	if basename == "" {
		basename = "."
	}
	return PathItem{dirname: dirname, basename: basename}
}

// Normalize reduces a path lexically and splits it into components:
// leading "./" prefixes are stripped, "/./" segments collapse, and
// "/../" segments pop the preceding segment. A leading ".." that has no
// parent to pop is kept as-is, since it can only be resolved against the
// real filesystem. A rooted path that climbs above "/" cannot be
// represented; it is logged and returned unresolved.
func Normalize(path string) PathItem {
	if path == "" {
		return PathItem{dirname: ".", basename: "."}
	}

	rooted := strings.HasPrefix(path, "/")

	rest := path
	if rooted {
		rest = rest[1:]
	}
	for strings.HasPrefix(rest, "./") {
		rest = rest[2:]
	}

	segments := make([]string, 0, 8)
	for _, seg := range strings.Split(rest, "/") {
		switch seg {
		case "", ".":
			// duplicate separators and "." segments carry no meaning
		case "..":
			if n := len(segments); n > 0 && segments[n-1] != ".." {
				segments = segments[:n-1]
			} else if rooted {
				slog.Error("Path escapes the root, returning unresolved", "path", path)
				return splitRaw(path)
			} else {
				segments = append(segments, "..")
			}
		default:
			segments = append(segments, seg)
		}
	}

	switch len(segments) {
	case 0:
		if rooted {
			return PathItem{dirname: "/", basename: "."}
		}
		return PathItem{dirname: ".", basename: "."}
	case 1:
		if rooted {
			return PathItem{dirname: "/", basename: segments[0]}
		}
		return PathItem{dirname: ".", basename: segments[0]}
	}

	dirname := strings.Join(segments[:len(segments)-1], "/")
	if rooted {
		dirname = "/" + dirname
	}
	return PathItem{dirname: dirname, basename: segments[len(segments)-1]}
}

// splitRaw splits without resolving, used when normalization fails.
func splitRaw(path string) PathItem {
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}

	idx := strings.LastIndexByte(path, '/')
	switch {
	case idx < 0:
		return PathItem{dirname: ".", basename: path}
	case idx == 0:
		if len(path) == 1 {
			return PathItem{dirname: "/", basename: "."}
		}
		return PathItem{dirname: "/", basename: path[1:]}
	default:
		return PathItem{dirname: path[:idx], basename: path[idx+1:]}
	}
}

// Dirname returns the parent directory component, never empty.
func (p PathItem) Dirname() string { return p.dirname }

// Basename returns the entry name component, never containing a separator.
func (p PathItem) Basename() string { return p.basename }

// Path reconstructs the path, collapsing the "." sentinels.
func (p PathItem) Path() string {
	switch {
	case p.dirname == "." || p.dirname == "":
		if p.basename == "" {
			return "."
		}
		return p.basename
	case p.basename == "." || p.basename == "":
		return p.dirname
	case p.dirname == "/":
		return "/" + p.basename
	default:
		return p.dirname + "/" + p.basename
	}
}

// Empty reports whether both components are the "." sentinel.
func (p PathItem) Empty() bool {
	return (p.dirname == "." || p.dirname == "") && (p.basename == "." || p.basename == "")
}

// Equal compares component-wise.
func (p PathItem) Equal(o PathItem) bool {
	return p.dirname == o.dirname && p.basename == o.basename
}

func (p PathItem) String() string { return p.Path() }
