// Package engine implements FsEngine, the top-level orchestrator of the
// virtual filesystem (spec.md §4.8): format, mount, and the state machine
// gating every other operation. It is grounded on
// drivers/common/basedriver/driver.go's BaseDriver in the teacher driver —
// the same shape of "owns every lower layer, exposes named operations,
// tracks a mounted/unmounted flag" — generalized from disko's pluggable
// driver interface to this spec's single concrete inode filesystem.
package engine

import (
	"io"
	"os"
	"strings"

	vfs "github.com/ButterDevelop/c-virtual-file-system"
	"github.com/ButterDevelop/c-virtual-file-system/internal/bitmap"
	"github.com/ButterDevelop/c-virtual-file-system/internal/blockio"
	"github.com/ButterDevelop/c-virtual-file-system/internal/dirstore"
	"github.com/ButterDevelop/c-virtual-file-system/internal/inode"
	"github.com/ButterDevelop/c-virtual-file-system/internal/pathresolve"
)

// Engine is the mounted (or not-yet-mounted) state of one virtual
// filesystem. The zero value, returned by New, is a valid Unformatted
// engine.
type Engine struct {
	path         string
	io           *blockio.BlockIO
	sb           vfs.Superblock
	bm           *bitmap.Bitmap
	inodes       *inode.Table
	dirs         *dirstore.Store
	currentDirID int32
	formatted    bool
}

// New returns an Engine in the Unformatted state, current directory at root.
func New() *Engine {
	return &Engine{currentDirID: vfs.RootInodeID}
}

// IsFormatted reports whether the engine has a usable mounted filesystem.
func (e *Engine) IsFormatted() bool {
	return e.formatted
}

// Path returns the backing file path the engine is bound to, or "" if
// unformatted.
func (e *Engine) Path() string {
	return e.path
}

func (e *Engine) requireFormatted() vfs.DriverError {
	if !e.formatted {
		return vfs.ErrNotAvailable.WithMessage("no filesystem is mounted; run format or load first")
	}
	return nil
}

func (e *Engine) flush() vfs.DriverError {
	if err := e.io.Flush(); err != nil {
		return vfs.ErrIO.WrapError(err)
	}
	return nil
}

// Format builds a fresh filesystem image at path: computes geometry from
// diskSize, resizes/overwrites the backing file, writes the superblock,
// reserves data cluster 0 for root, frees every inode, then configures
// inode 0 as the root directory. On any failure the engine is left
// Unformatted, matching spec.md §4.8's format/state-machine contract.
func (e *Engine) Format(path string, diskSize int64) vfs.DriverError {
	sb, gerr := vfs.ComputeGeometry(diskSize)
	if gerr != nil {
		e.formatted = false
		return gerr
	}

	f, oerr := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if oerr != nil {
		e.formatted = false
		return vfs.ErrIO.WrapError(oerr)
	}

	totalSize := int64(sb.ClusterCount) * vfs.ClusterSize
	if terr := f.Truncate(totalSize); terr != nil {
		f.Close()
		e.formatted = false
		return vfs.ErrIO.WrapError(terr)
	}

	if err := e.formatStream(f, sb); err != nil {
		f.Close()
		e.formatted = false
		return err
	}
	e.path = path
	return nil
}

// formatStream lays out a fresh filesystem on an already-sized stream: the
// superblock, cluster 0 reserved for root's data, every inode freed, inode 0
// configured as the root directory. Split out of Format so tests can drive
// it directly against an in-memory stream via internal/vfstest, without a
// real backing file on disk.
func (e *Engine) formatStream(stream io.ReadWriteSeeker, sb vfs.Superblock) vfs.DriverError {
	bio := blockio.Open(stream, sb)
	if werr := bio.WriteSuperblock(sb); werr != nil {
		return vfs.ErrIO.WrapError(werr)
	}

	bm := bitmap.New(int(sb.DataClusterCount))
	bm.BindIO(bio)
	if err := bm.MarkAllocated(0); err != nil {
		return err
	}

	inodes := inode.New(bio, sb.InodeCount)
	for i := int32(0); i < sb.InodeCount; i++ {
		if err := inodes.Reset(i); err != nil {
			return err
		}
	}

	root := inode.NewFree()
	root.NodeID = vfs.RootInodeID
	root.IsDirectory = true
	root.References = 1
	root.FileSize = 0
	root.Direct[0] = 0
	if err := inodes.Write(vfs.RootInodeID, root); err != nil {
		return err
	}
	if err := inodes.RebuildCache(); err != nil {
		return vfs.ErrIO.WrapError(err)
	}

	dirs := dirstore.New(bio, inodes, bm)
	dirs.InitRoot()

	if err := bio.Flush(); err != nil {
		return vfs.ErrIO.WrapError(err)
	}

	e.io = bio
	e.sb = sb
	e.bm = bm
	e.inodes = inodes
	e.dirs = dirs
	e.currentDirID = vfs.RootInodeID
	e.formatted = true
	return nil
}

// Mount opens an existing backing file, reads its superblock, bitmap, and
// inode table, and recursively reconstructs the directory tree. If the
// file is empty or cannot be opened, the engine is left Unformatted
// (limited mode) per spec.md §4.8.
func (e *Engine) Mount(path string) vfs.DriverError {
	f, oerr := os.OpenFile(path, os.O_RDWR, 0644)
	if oerr != nil {
		e.formatted = false
		return vfs.ErrIO.WrapError(oerr)
	}

	info, serr := f.Stat()
	if serr != nil || info.Size() == 0 {
		f.Close()
		e.formatted = false
		return vfs.ErrInvalidSize.WithMessage("backing file is empty or unreadable")
	}

	if err := e.mountStream(f); err != nil {
		f.Close()
		e.formatted = false
		return err
	}
	e.path = path
	return nil
}

// mountStream reads the superblock, bitmap, and inode table off an
// already-open stream and reconstructs the directory tree. Split out of
// Mount so tests can drive it directly against an in-memory stream via
// internal/vfstest.
func (e *Engine) mountStream(stream io.ReadWriteSeeker) vfs.DriverError {
	bio := blockio.Open(stream, vfs.Superblock{})
	sb, rerr := bio.ReadSuperblock()
	if rerr != nil {
		return vfs.ErrIO.WrapError(rerr)
	}
	bio.Rebind(sb)

	rawBitmap, berr := bio.ReadBitmapRegion(int(sb.DataClusterCount))
	if berr != nil {
		return vfs.ErrIO.WrapError(berr)
	}
	bm := bitmap.FromBytes(rawBitmap)
	bm.BindIO(bio)

	inodes := inode.New(bio, sb.InodeCount)
	if err := inodes.RebuildCache(); err != nil {
		return vfs.ErrIO.WrapError(err)
	}

	dirs := dirstore.New(bio, inodes, bm)
	if err := dirs.LoadTree(vfs.RootInodeID); err != nil {
		return err
	}

	e.io = bio
	e.sb = sb
	e.bm = bm
	e.inodes = inodes
	e.dirs = dirs
	e.currentDirID = vfs.RootInodeID
	e.formatted = true
	return nil
}

// Close releases the backing file handle. Safe to call on an Unformatted
// engine.
func (e *Engine) Close() error {
	if e.io == nil {
		return nil
	}
	err := e.io.Close()
	e.formatted = false
	return err
}

// Cd resolves path against the current directory and, on success, makes it
// the new current directory.
func (e *Engine) Cd(path string) vfs.DriverError {
	if err := e.requireFormatted(); err != nil {
		return err
	}
	target, rerr := pathresolve.Resolve(e.dirs, vfs.RootInodeID, e.currentDirID, path)
	if rerr != nil {
		return rerr
	}
	e.currentDirID = target
	return nil
}

// Pwd reconstructs the absolute path of the current directory by walking
// parents up to root, per spec.md §4.8. It is one of the operations accepted
// while unformatted, and then reports "/".
func (e *Engine) Pwd() (string, vfs.DriverError) {
	if !e.formatted {
		return "/", nil
	}
	return e.pathFromID(e.currentDirID)
}

func (e *Engine) pathFromID(id int32) (string, vfs.DriverError) {
	if id == vfs.RootInodeID {
		return "/", nil
	}

	var segments []string
	cursor := id
	for cursor != vfs.RootInodeID {
		node, ok := e.dirs.Node(cursor)
		if !ok {
			return "", vfs.ErrPathNotFound
		}
		parent, ok := e.dirs.Node(node.ParentID)
		if !ok {
			return "", vfs.ErrPathNotFound
		}

		name := ""
		for _, sub := range parent.Subdirs {
			if sub.InodeID == cursor {
				name = sub.Name
				break
			}
		}
		segments = append([]string{name}, segments...)

		if node.ParentID == cursor {
			break
		}
		cursor = node.ParentID
	}
	return "/" + strings.Join(segments, "/"), nil
}

// List returns the children of the directory named by path, subdirectories
// first then files, in insertion order — the data source for `ls`.
func (e *Engine) List(path string) ([]vfs.DirEntrySummary, vfs.DriverError) {
	if err := e.requireFormatted(); err != nil {
		return nil, err
	}
	dirID, rerr := pathresolve.Resolve(e.dirs, vfs.RootInodeID, e.currentDirID, path)
	if rerr != nil {
		return nil, rerr
	}
	return e.dirs.List(dirID), nil
}

// adjustAncestorSizes walks from startDirID up to root, adding delta to
// each ancestor's inode file_size and persisting the inode — the
// aggregated directory size bookkeeping spec.md §4.8 requires on every
// file creation, move, copy, or removal. This field is a cache only; it is
// never consulted for space accounting.
func (e *Engine) adjustAncestorSizes(startDirID int32, delta int32) vfs.DriverError {
	cursor := startDirID
	for {
		n, err := e.inodes.Read(cursor)
		if err != nil {
			return err
		}
		n.FileSize += delta
		if err := e.inodes.Write(cursor, n); err != nil {
			return err
		}

		node, ok := e.dirs.Node(cursor)
		if !ok || node.ParentID == cursor {
			break
		}
		cursor = node.ParentID
	}
	return nil
}

var _ io.Closer = (*Engine)(nil)
