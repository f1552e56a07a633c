package engine

import (
	"os"

	vfs "github.com/ButterDevelop/c-virtual-file-system"
	"github.com/ButterDevelop/c-virtual-file-system/internal/blockmap"
	"github.com/ButterDevelop/c-virtual-file-system/internal/dirstore"
	"github.com/ButterDevelop/c-virtual-file-system/internal/inode"
	"github.com/ButterDevelop/c-virtual-file-system/internal/pathresolve"
)

// findEntry splits path into its parent directory and leaf name, resolves
// the parent, then looks up the leaf — the `dir_path`/`file_name` split
// spec.md §4.7 describes for cat/rm/cp/mv/ln/info.
func (e *Engine) findEntry(path string) (parentID int32, entry dirstore.Entry, kind vfs.ObjectKind, err vfs.DriverError) {
	parentPath, name := pathresolve.SplitDirAndName(path)
	parentID, err = pathresolve.Resolve(e.dirs, vfs.RootInodeID, e.currentDirID, parentPath)
	if err != nil {
		return
	}
	var ok bool
	entry, kind, ok = e.dirs.Find(parentID, name)
	if !ok {
		err = vfs.ErrItemNotFound.WithMessage(name)
	}
	return
}

// Rm resolves path to a file entry and unlinks it.
func (e *Engine) Rm(path string) vfs.DriverError {
	if err := e.requireFormatted(); err != nil {
		return err
	}
	parentID, entry, kind, ferr := e.findEntry(path)
	if ferr != nil {
		return ferr
	}
	if kind != vfs.KindFile {
		return vfs.ErrFileNotFound.WithMessage(path)
	}
	if err := e.unlink(parentID, entry); err != nil {
		return err
	}
	return e.flush()
}

// unlink decrements entry's inode reference count, releasing its data
// blocks and freeing the inode once the count reaches zero, then removes
// the parent's directory slot and adjusts ancestor aggregate sizes.
func (e *Engine) unlink(parentID int32, entry dirstore.Entry) vfs.DriverError {
	n, rerr := e.inodes.Read(entry.InodeID)
	if rerr != nil {
		return rerr
	}
	size := n.FileSize
	n.References--

	if n.References <= 0 {
		if _, relerr := blockmap.Release(e.io, e.bm, n); relerr != nil {
			return relerr
		}
		if werr := e.inodes.Reset(entry.InodeID); werr != nil {
			return werr
		}
	} else if werr := e.inodes.Write(entry.InodeID, n); werr != nil {
		return werr
	}

	if derr := e.dirs.Remove(parentID, entry.Name, vfs.KindFile); derr != nil {
		return derr
	}
	return e.adjustAncestorSizes(parentID, -size)
}

// Cp resolves src, fails if dst already exists, then allocates a fresh
// inode and fresh data blocks for dst and copies src's content block by
// block. The copy shares no blocks with src.
func (e *Engine) Cp(src, dst string) vfs.DriverError {
	if err := e.requireFormatted(); err != nil {
		return err
	}
	_, srcEntry, srcKind, serr := e.findEntry(src)
	if serr != nil {
		return serr
	}
	if srcKind != vfs.KindFile {
		return vfs.ErrFileNotFound.WithMessage(src)
	}

	dstParentID, dstName, derr := e.resolveNewName(dst)
	if derr != nil {
		return derr
	}

	srcInode, rerr := e.inodes.Read(srcEntry.InodeID)
	if rerr != nil {
		return rerr
	}
	srcBlocks, eerr := blockmap.Enumerate(e.io, srcInode)
	if eerr != nil {
		return eerr
	}
	dataBlockCount, _ := blockmap.FileBlockCountAndTail(srcInode.FileSize)

	newID, ferr := e.inodes.FindFree()
	if ferr != nil {
		return ferr
	}
	total, werr := blockmap.WithIndirect(dataBlockCount)
	if werr != nil {
		return werr
	}
	allocated, aerr := e.bm.Allocate(total)
	if aerr != nil {
		return aerr
	}

	for i := 0; i < dataBlockCount; i++ {
		raw, rcerr := e.io.ReadCluster(srcBlocks[i])
		if rcerr != nil {
			e.bm.Free(allocated)
			return vfs.ErrIO.WrapError(rcerr)
		}
		if wcerr := e.io.WriteCluster(allocated[i], raw); wcerr != nil {
			e.bm.Free(allocated)
			return vfs.ErrIO.WrapError(wcerr)
		}
	}

	n, _, installErr := blockmap.Install(e.io, srcInode.FileSize, dataBlockCount, allocated)
	if installErr != nil {
		e.bm.Free(allocated)
		return installErr
	}
	if werr := e.inodes.Write(newID, n); werr != nil {
		e.bm.Free(allocated)
		return werr
	}
	if ierr := e.dirs.Insert(dstParentID, dirstore.Entry{InodeID: newID, Name: dstName}, vfs.KindFile); ierr != nil {
		e.inodes.Reset(newID)
		e.bm.Free(allocated)
		return ierr
	}

	if err := e.adjustAncestorSizes(dstParentID, n.FileSize); err != nil {
		return err
	}
	return e.flush()
}

// Mv resolves both src and dst, fails if dst exists or src is missing, and
// moves the entry object (same inode id, same data blocks) from the source
// directory to the destination directory, adjusting both directories'
// aggregate sizes. No data is copied.
func (e *Engine) Mv(src, dst string) vfs.DriverError {
	if err := e.requireFormatted(); err != nil {
		return err
	}
	srcParentID, srcEntry, srcKind, serr := e.findEntry(src)
	if serr != nil {
		return serr
	}

	dstParentID, dstName, derr := e.resolveNewName(dst)
	if derr != nil {
		return derr
	}

	if rerr := e.dirs.Remove(srcParentID, srcEntry.Name, srcKind); rerr != nil {
		return rerr
	}
	moved := dirstore.Entry{InodeID: srcEntry.InodeID, Name: dstName}
	if ierr := e.dirs.Insert(dstParentID, moved, srcKind); ierr != nil {
		// best-effort restore to the original location
		e.dirs.Insert(srcParentID, srcEntry, srcKind)
		return ierr
	}

	if srcKind == vfs.KindDirectory {
		e.dirs.Reparent(srcEntry.InodeID, dstParentID)

		moved, rerr := e.inodes.Read(srcEntry.InodeID)
		if rerr != nil {
			return rerr
		}
		if err := e.adjustAncestorSizes(srcParentID, -moved.FileSize); err != nil {
			return err
		}
		if err := e.adjustAncestorSizes(dstParentID, moved.FileSize); err != nil {
			return err
		}
		return e.flush()
	}

	n, rerr := e.inodes.Read(srcEntry.InodeID)
	if rerr != nil {
		return rerr
	}
	if err := e.adjustAncestorSizes(srcParentID, -n.FileSize); err != nil {
		return err
	}
	if err := e.adjustAncestorSizes(dstParentID, n.FileSize); err != nil {
		return err
	}
	return e.flush()
}

// Ln resolves src (must be a file) and dst, fails if dst's name collides
// with anything already in the target directory, then creates a new
// directory entry pointing at src's inode id and increments its reference
// count.
func (e *Engine) Ln(src, dst string) vfs.DriverError {
	if err := e.requireFormatted(); err != nil {
		return err
	}
	_, srcEntry, srcKind, serr := e.findEntry(src)
	if serr != nil {
		return serr
	}
	if srcKind != vfs.KindFile {
		return vfs.ErrFileNotFound.WithMessage(src)
	}

	dstParentID, dstName, derr := e.resolveNewName(dst)
	if derr != nil {
		return derr
	}

	n, rerr := e.inodes.Read(srcEntry.InodeID)
	if rerr != nil {
		return rerr
	}
	n.References++
	if werr := e.inodes.Write(srcEntry.InodeID, n); werr != nil {
		return werr
	}

	if ierr := e.dirs.Insert(dstParentID, dirstore.Entry{InodeID: srcEntry.InodeID, Name: dstName}, vfs.KindFile); ierr != nil {
		n.References--
		e.inodes.Write(srcEntry.InodeID, n)
		return ierr
	}

	if err := e.adjustAncestorSizes(dstParentID, n.FileSize); err != nil {
		return err
	}
	return e.flush()
}

// resolveNewName resolves dst's parent directory and fails Exists if dst's
// leaf name already names something in that directory — the precondition
// cp/mv/ln/incp share for their destination argument.
func (e *Engine) resolveNewName(dst string) (parentID int32, name string, err vfs.DriverError) {
	var parentPath string
	parentPath, name = pathresolve.SplitDirAndName(dst)
	if len(name) > vfs.MaxNameLength {
		err = vfs.ErrNameTooLong.WithMessage(name)
		return
	}
	parentID, err = pathresolve.Resolve(e.dirs, vfs.RootInodeID, e.currentDirID, parentPath)
	if err != nil {
		return
	}
	if _, _, ok := e.dirs.Find(parentID, name); ok {
		err = vfs.ErrExists.WithMessage(dst)
	}
	return
}

// Cat resolves path to a file and returns its full content: every full data
// block except the last, then the tail per file_size mod cluster_size (0
// meaning the final block is entirely live).
func (e *Engine) Cat(path string) ([]byte, vfs.DriverError) {
	if err := e.requireFormatted(); err != nil {
		return nil, err
	}
	_, entry, kind, ferr := e.findEntry(path)
	if ferr != nil {
		return nil, ferr
	}
	if kind != vfs.KindFile {
		return nil, vfs.ErrFileNotFound.WithMessage(path)
	}

	n, rerr := e.inodes.Read(entry.InodeID)
	if rerr != nil {
		return nil, rerr
	}
	return e.readFileData(n)
}

func (e *Engine) readFileData(n inode.Inode) ([]byte, vfs.DriverError) {
	blockCount, tail := blockmap.FileBlockCountAndTail(n.FileSize)
	if n.FileSize == 0 {
		return []byte{}, nil
	}

	blocks, eerr := blockmap.Enumerate(e.io, n)
	if eerr != nil {
		return nil, eerr
	}

	out := make([]byte, 0, n.FileSize)
	for i := 0; i < blockCount; i++ {
		raw, rerr := e.io.ReadCluster(blocks[i])
		if rerr != nil {
			return nil, vfs.ErrIO.WrapError(rerr)
		}
		if i == blockCount-1 && tail > 0 {
			out = append(out, raw[:tail]...)
		} else {
			out = append(out, raw...)
		}
	}
	return out, nil
}

// Incp reads hostPath off the host filesystem and writes it into the
// virtual filesystem at vfsPath as a new file: computes the block count and
// with_indirect demand, allocates an inode and blocks, installs the
// mapping, and streams the content block by block (the last block writes
// only the remainder bytes).
func (e *Engine) Incp(hostPath, vfsPath string) vfs.DriverError {
	if err := e.requireFormatted(); err != nil {
		return err
	}
	data, rerr := os.ReadFile(hostPath)
	if rerr != nil {
		return vfs.ErrIO.WrapError(rerr)
	}

	parentID, name, derr := e.resolveNewName(vfsPath)
	if derr != nil {
		return derr
	}

	fileSize := int32(len(data))
	dataBlockCount, _ := blockmap.FileBlockCountAndTail(fileSize)

	newID, ferr := e.inodes.FindFree()
	if ferr != nil {
		return ferr
	}
	total, werr := blockmap.WithIndirect(dataBlockCount)
	if werr != nil {
		return werr
	}
	allocated, aerr := e.bm.Allocate(total)
	if aerr != nil {
		return aerr
	}

	for i := 0; i < dataBlockCount; i++ {
		start := i * vfs.ClusterSize
		end := start + vfs.ClusterSize
		if end > len(data) {
			end = len(data)
		}
		if wcerr := e.io.WriteCluster(allocated[i], data[start:end]); wcerr != nil {
			e.bm.Free(allocated)
			return vfs.ErrIO.WrapError(wcerr)
		}
	}

	n, _, installErr := blockmap.Install(e.io, fileSize, dataBlockCount, allocated)
	if installErr != nil {
		e.bm.Free(allocated)
		return installErr
	}
	if werr := e.inodes.Write(newID, n); werr != nil {
		e.bm.Free(allocated)
		return werr
	}
	if ierr := e.dirs.Insert(parentID, dirstore.Entry{InodeID: newID, Name: name}, vfs.KindFile); ierr != nil {
		e.inodes.Reset(newID)
		e.bm.Free(allocated)
		return ierr
	}

	if err := e.adjustAncestorSizes(parentID, fileSize); err != nil {
		return err
	}
	return e.flush()
}

// Outcp resolves vfsPath to a file, reads its full content, and writes it
// to hostPath on the host filesystem.
func (e *Engine) Outcp(vfsPath, hostPath string) vfs.DriverError {
	if err := e.requireFormatted(); err != nil {
		return err
	}
	_, entry, kind, ferr := e.findEntry(vfsPath)
	if ferr != nil {
		return ferr
	}
	if kind != vfs.KindFile {
		return vfs.ErrFileNotFound.WithMessage(vfsPath)
	}

	n, rerr := e.inodes.Read(entry.InodeID)
	if rerr != nil {
		return rerr
	}
	data, derr := e.readFileData(n)
	if derr != nil {
		return derr
	}
	if werr := os.WriteFile(hostPath, data, 0644); werr != nil {
		return vfs.ErrIO.WrapError(werr)
	}
	return nil
}

// Info resolves path — either a directory or a file — and returns its
// inode id, size, direct blocks, and the content of each indirect cluster.
func (e *Engine) Info(path string) (vfs.ObjectInfo, vfs.DriverError) {
	if err := e.requireFormatted(); err != nil {
		return vfs.ObjectInfo{}, err
	}

	var targetID int32
	if dirID, derr := pathresolve.Resolve(e.dirs, vfs.RootInodeID, e.currentDirID, path); derr == nil {
		targetID = dirID
	} else {
		_, entry, _, ferr := e.findEntry(path)
		if ferr != nil {
			return vfs.ObjectInfo{}, ferr
		}
		targetID = entry.InodeID
	}

	n, rerr := e.inodes.Read(targetID)
	if rerr != nil {
		return vfs.ObjectInfo{}, rerr
	}

	out := vfs.ObjectInfo{
		InodeID:      targetID,
		IsDirectory:  n.IsDirectory,
		References:   int32(n.References),
		FileSize:     n.FileSize,
		DirectBlocks: append([]int32(nil), n.Direct[:]...),
	}
	for _, indirectID := range n.Indirect {
		if indirectID == vfs.FreeBlockPointer {
			out.IndirectBlocks = append(out.IndirectBlocks, nil)
			continue
		}
		entries, ierr := blockmap.ReadIndirectCluster(e.io, indirectID)
		if ierr != nil {
			return vfs.ObjectInfo{}, ierr
		}
		out.IndirectBlocks = append(out.IndirectBlocks, entries)
	}
	return out, nil
}
