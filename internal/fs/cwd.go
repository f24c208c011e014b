package fs

import (
	"fmt"
	stdpath "path"

	"github.com/huxgo/kernel/internal/proc"
)

// Cwd is a process's current working directory: the resolved inode
// entry (held with its own reference) plus the absolute path string
// that produced it. Directories carry no "." or ".." entries (spec.md
// §4.9), so getcwd cannot be reconstructed by walking the tree
// upward; the path is tracked alongside the entry instead, the same
// way spec.md §3 lists cwd* as a plain PCB field rather than something
// derived.
type Cwd struct {
	Entry *CacheEntry
	Path  string
}

// RootCwd builds the cwd for a freshly created process: the root
// directory at "/".
func (fs *FileSystem) RootCwd(p *proc.Process) (*Cwd, error) {
	root, err := fs.Cache.Get(p, RootInumber)
	if err != nil {
		return nil, err
	}
	return &Cwd{Entry: root, Path: "/"}, nil
}

// Chdir implements the chdir syscall: resolves path against cur,
// requires the result to be a directory, and returns a new Cwd with
// the old entry's reference released.
func (fs *FileSystem) Chdir(p *proc.Process, cur *Cwd, path string) (*Cwd, error) {
	entry, err := fs.Resolve(p, cur.Entry, path)
	if err != nil {
		return nil, err
	}
	if entry.Inode.Type != TypeDir {
		fs.Cache.Put(p, entry)
		return nil, fmt.Errorf("fs: %q is not a directory", path)
	}

	var newPath string
	if stdpath.IsAbs(path) {
		newPath = stdpath.Clean(path)
	} else {
		newPath = stdpath.Clean(stdpath.Join(cur.Path, path))
	}
	if newPath == "" {
		newPath = "/"
	}

	fs.Cache.Put(p, cur.Entry)
	return &Cwd{Entry: entry, Path: newPath}, nil
}
