package engine

import (
	"fmt"

	vfs "github.com/ButterDevelop/c-virtual-file-system"
	"github.com/ButterDevelop/c-virtual-file-system/internal/blockmap"
	"github.com/ButterDevelop/c-virtual-file-system/internal/dirstore"
	"github.com/hashicorp/go-multierror"
)

// CheckConsistency walks the entire mounted filesystem and verifies the
// invariants of spec.md §8: every live data/indirect cluster is referenced
// by exactly one inode and marked allocated, every allocated-bitmap index
// is referenced by some inode, allocated inodes carry references ≥ 1, free
// inodes carry the canonical reset value, root is a directory, and every
// loaded directory's on-disk slots are exactly its in-memory child set.
// It aggregates every violation found rather than stopping at the first,
// grounded on drivers/common/basedriver/driver.go's CheckValidity, which
// plays the same "survey everything, report everything wrong" role for the
// teacher driver.
func (e *Engine) CheckConsistency() error {
	if err := e.requireFormatted(); err != nil {
		return err
	}

	var result *multierror.Error
	owner := make(map[int32]int32)

	for id := int32(0); id < e.inodes.Count(); id++ {
		n, rerr := e.inodes.Read(id)
		if rerr != nil {
			result = multierror.Append(result, fmt.Errorf("inode %d: %w", id, rerr))
			continue
		}

		if n.Free() {
			if n.References != 1 {
				result = multierror.Append(result, fmt.Errorf(
					"free inode %d has references=%d, want 1", id, n.References))
			}
			for _, d := range n.Direct {
				if d != vfs.FreeBlockPointer {
					result = multierror.Append(result, fmt.Errorf(
						"free inode %d still has a live direct pointer", id))
				}
			}
			for _, ind := range n.Indirect {
				if ind != vfs.FreeBlockPointer {
					result = multierror.Append(result, fmt.Errorf(
						"free inode %d still has a live indirect pointer", id))
				}
			}
			if n.IsDirectory || n.FileSize != 0 {
				result = multierror.Append(result, fmt.Errorf(
					"free inode %d has is_directory=%t file_size=%d, want false and 0", id, n.IsDirectory, n.FileSize))
			}
			continue
		}

		if n.References < 1 {
			result = multierror.Append(result, fmt.Errorf(
				"allocated inode %d has references=%d, want >= 1", id, n.References))
		}
		if id == vfs.RootInodeID && !n.IsDirectory {
			result = multierror.Append(result, fmt.Errorf("inode 0 (root) is not a directory"))
		}

		blocks, eerr := blockmap.Enumerate(e.io, n)
		if eerr != nil {
			result = multierror.Append(result, fmt.Errorf("inode %d: %w", id, eerr))
			continue
		}
		for _, b := range blocks {
			if other, dup := owner[b]; dup {
				result = multierror.Append(result, fmt.Errorf(
					"data cluster %d is claimed by both inode %d and inode %d", b, other, id))
			}
			owner[b] = id
			if !e.bm.IsAllocated(int(b)) {
				result = multierror.Append(result, fmt.Errorf(
					"data cluster %d is used by inode %d but not marked allocated", b, id))
			}
		}
		for _, indirectID := range n.Indirect {
			if indirectID == vfs.FreeBlockPointer {
				continue
			}
			if other, dup := owner[indirectID]; dup {
				result = multierror.Append(result, fmt.Errorf(
					"indirect cluster %d is claimed by both inode %d and inode %d", indirectID, other, id))
			}
			owner[indirectID] = id
			if !e.bm.IsAllocated(int(indirectID)) {
				result = multierror.Append(result, fmt.Errorf(
					"indirect cluster %d is used by inode %d but not marked allocated", indirectID, id))
			}
		}
	}

	for idx := 0; idx < e.bm.Len(); idx++ {
		if e.bm.IsAllocated(idx) {
			if _, used := owner[int32(idx)]; !used {
				result = multierror.Append(result, fmt.Errorf(
					"data cluster %d is marked allocated but referenced by no inode", idx))
			}
		}
	}

	for _, dirID := range e.dirs.AllDirIDs() {
		node, ok := e.dirs.Node(dirID)
		if !ok {
			continue
		}
		onDisk, derr := e.dirs.OnDiskEntries(dirID)
		if derr != nil {
			result = multierror.Append(result, fmt.Errorf("directory %d: %w", dirID, derr))
			continue
		}
		if mismatch := diffEntryNames(node, onDisk); mismatch != "" {
			result = multierror.Append(result, fmt.Errorf(
				"directory %d on-disk slots disagree with cached tree: %s", dirID, mismatch))
		}
	}

	return result.ErrorOrNil()
}

func diffEntryNames(node *dirstore.Node, onDisk []dirstore.Entry) string {
	want := make(map[string]int32, len(node.Subdirs)+len(node.Files))
	for _, e := range node.Subdirs {
		want[e.Name] = e.InodeID
	}
	for _, e := range node.Files {
		want[e.Name] = e.InodeID
	}

	got := make(map[string]int32, len(onDisk))
	for _, e := range onDisk {
		got[e.Name] = e.InodeID
	}

	for name, id := range want {
		if gotID, ok := got[name]; !ok {
			return fmt.Sprintf("cached entry %q (inode %d) missing on disk", name, id)
		} else if gotID != id {
			return fmt.Sprintf("cached entry %q points at inode %d, disk has %d", name, id, gotID)
		}
	}
	for name := range got {
		if _, ok := want[name]; !ok {
			return fmt.Sprintf("on-disk entry %q absent from cached tree", name)
		}
	}
	return ""
}
