package interfaces

import (
	"github.com/ZanzyTHEbar/relfs/relfs/filesystem/options"
)

// Copier copies files and directory trees.
type Copier interface {
	Copy(src, dst string, opts options.CopyOptions) error
}

// Remover removes files and directory trees.
type Remover interface {
	Remove(path string, opts options.RemoveOptions) error
}
