// Package pathresolve walks a path string over the directory cache,
// honouring ".", "..", and absolute/relative forms (spec.md §4.7). It is
// grounded on the path-normalization shape of
// drivers/common/basedriver/driver.go's normalizePath/getObjectAtPathNoFollow
// in the teacher driver, trimmed of symlink resolution (this filesystem has
// none).
package pathresolve

import (
	"strings"

	vfs "github.com/ButterDevelop/c-virtual-file-system"
	"github.com/ButterDevelop/c-virtual-file-system/internal/dirstore"
)

// Tree is the subset of dirstore.Store path resolution needs.
type Tree interface {
	Node(dirInodeID int32) (*dirstore.Node, bool)
}

// Resolve walks path starting at currentDirID (used when path is relative),
// over the directory tree, returning the inode id of the directory it names.
// Only subdirectory children are considered path components; files cannot
// be intermediate segments.
func Resolve(tree Tree, rootID, currentDirID int32, path string) (int32, vfs.DriverError) {
	cursor := currentDirID
	if strings.HasPrefix(path, "/") {
		cursor = rootID
	}

	for _, segment := range strings.Split(path, "/") {
		if segment == "" || segment == "." {
			continue
		}

		node, ok := tree.Node(cursor)
		if !ok {
			return 0, vfs.ErrPathNotFound
		}

		if segment == ".." {
			cursor = node.ParentID
			continue
		}

		if len(segment) > vfs.MaxNameLength {
			return 0, vfs.ErrPathNotFound
		}

		found := false
		for _, sub := range node.Subdirs {
			if sub.Name == segment {
				cursor = sub.InodeID
				found = true
				break
			}
		}
		if !found {
			return 0, vfs.ErrPathNotFound
		}
	}
	return cursor, nil
}

// SplitDirAndName splits a path into its directory portion (everything up to
// the last "/", or "." if there is none) and the trailing file/dir name, the
// convention spec.md §4.7 requires for file lookups (cat, rm, cp, mv, ln,
// info).
func SplitDirAndName(path string) (dirPath string, name string) {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ".", path
	}
	if idx == 0 {
		return "/", path[idx+1:]
	}
	return path[:idx], path[idx+1:]
}
