package engine

import (
	vfs "github.com/ButterDevelop/c-virtual-file-system"
	"github.com/ButterDevelop/c-virtual-file-system/internal/blockmap"
	"github.com/ButterDevelop/c-virtual-file-system/internal/dirstore"
	"github.com/ButterDevelop/c-virtual-file-system/internal/inode"
	"github.com/ButterDevelop/c-virtual-file-system/internal/pathresolve"
)

// Mkdir splits path into its parent directory and new leaf name, resolves
// the parent, then allocates a fresh inode and data cluster for the new
// subdirectory, per spec.md §4.8.
func (e *Engine) Mkdir(path string) vfs.DriverError {
	if err := e.requireFormatted(); err != nil {
		return err
	}

	parentID, name, rerr := e.resolveNewName(path)
	if rerr != nil {
		return rerr
	}

	newID, ferr := e.inodes.FindFree()
	if ferr != nil {
		return ferr
	}
	allocated, aerr := e.bm.Allocate(1)
	if aerr != nil {
		return aerr
	}

	n := inode.NewFree()
	n.IsDirectory = true
	n.References = 1
	n.Direct[0] = allocated[0]
	if werr := e.inodes.Write(newID, n); werr != nil {
		e.bm.Free(allocated)
		return werr
	}

	if ierr := e.dirs.Insert(parentID, dirstore.Entry{InodeID: newID, Name: name}, vfs.KindDirectory); ierr != nil {
		e.inodes.Reset(newID)
		e.bm.Free(allocated)
		return ierr
	}
	e.dirs.Adopt(parentID, newID)

	return e.flush()
}

// Rmdir splits path into its parent directory and leaf name, looks up a
// subdirectory entry with that name, and fails NotEmpty if it still has any
// file or subdirectory children. Otherwise it releases the directory's data
// cluster, frees its inode, and removes the parent's entry. If the removed
// directory was the current directory, current directory is redirected to
// parent.
func (e *Engine) Rmdir(path string) vfs.DriverError {
	if err := e.requireFormatted(); err != nil {
		return err
	}

	parentPath, name := pathresolve.SplitDirAndName(path)
	parentID, rerr := pathresolve.Resolve(e.dirs, vfs.RootInodeID, e.currentDirID, parentPath)
	if rerr != nil {
		return rerr
	}
	entry, kind, ok := e.dirs.Find(parentID, name)
	if !ok || kind != vfs.KindDirectory {
		return vfs.ErrDirectoryNotFound.WithMessage(name)
	}

	target, ok := e.dirs.Node(entry.InodeID)
	if !ok {
		return vfs.ErrDirectoryNotFound.WithMessage(name)
	}
	if len(target.Subdirs) > 0 || len(target.Files) > 0 {
		return vfs.ErrNotEmpty.WithMessage(name)
	}

	targetInode, ierr := e.inodes.Read(entry.InodeID)
	if ierr != nil {
		return ierr
	}
	if _, relerr := blockmap.Release(e.io, e.bm, targetInode); relerr != nil {
		return relerr
	}
	if werr := e.inodes.Reset(entry.InodeID); werr != nil {
		return werr
	}
	if derr := e.dirs.Remove(parentID, name, vfs.KindDirectory); derr != nil {
		return derr
	}
	e.dirs.Forget(entry.InodeID)

	if e.currentDirID == entry.InodeID {
		e.currentDirID = parentID
	}
	return e.flush()
}
