// Package blockmap translates between an inode's logical block sequence and
// its physical data blocks across the five direct pointers and two
// single-level indirect clusters (spec.md §4.5). It is grounded on the
// overall shape of drivers/unixv1 (direct block array plus lazily-read
// indirect clusters) in the teacher driver, generalized from disko's 8
// direct blocks with no indirection to this spec's 5 direct + 2 indirect
// layout.
package blockmap

import (
	"encoding/binary"
	"fmt"

	vfs "github.com/ButterDevelop/c-virtual-file-system"
	"github.com/ButterDevelop/c-virtual-file-system/internal/bitmap"
	"github.com/ButterDevelop/c-virtual-file-system/internal/inode"
)

// Store is the subset of blockio.BlockIO that block-mapping needs.
type Store interface {
	ReadCluster(n int32) ([]byte, error)
	WriteCluster(n int32, data []byte) error
}

// WithIndirect computes the number of physical blocks needed to store n
// logical data blocks, accounting for the indirect cluster(s) required once
// n exceeds the 5 direct slots.
func WithIndirect(n int) (int, vfs.DriverError) {
	switch {
	case n <= vfs.DirectBlockCount:
		return n, nil
	case n <= vfs.DirectBlockCount+vfs.IndirectEntriesPerCluster:
		return n + 1, nil
	case n <= vfs.MaxDataBlocksPerFile:
		return n + 2, nil
	default:
		return 0, vfs.ErrFileTooLarge.WithMessage(
			fmt.Sprintf("%d blocks exceeds the maximum of %d", n, vfs.MaxDataBlocksPerFile))
	}
}

// indirectClustersNeeded returns how many of the two indirect pointers a
// file with dataBlockCount logical blocks requires (0, 1, or 2).
func indirectClustersNeeded(dataBlockCount int) int {
	if dataBlockCount <= vfs.DirectBlockCount {
		return 0
	}
	surplus := dataBlockCount - vfs.DirectBlockCount
	clusters := (surplus + vfs.IndirectEntriesPerCluster - 1) / vfs.IndirectEntriesPerCluster
	if clusters > vfs.IndirectBlockCount {
		clusters = vfs.IndirectBlockCount
	}
	return clusters
}

// Install writes allocatedBlocks (length WithIndirect(dataBlockCount)) into a
// fresh inode's direct/indirect fields. The first up-to-5 entries are the
// file's direct data blocks in order; any remaining data blocks are recorded
// into indirect clusters (up to 1024 entries each), and the last 1 or 2
// entries of allocatedBlocks are the indirect clusters themselves.
//
// Install sets the inode's size, direct and indirect fields, and leaves
// references=1 and is_directory=false; the caller (FsEngine) still owns
// writing the inode record itself. It returns the zero-based index into
// allocatedBlocks of the last *data* block, so the caller can position the
// tail write.
func Install(
	store Store,
	fileSize int32,
	dataBlockCount int,
	allocatedBlocks []int32,
) (inode.Inode, int, vfs.DriverError) {
	wantTotal, err := WithIndirect(dataBlockCount)
	if err != nil {
		return inode.Inode{}, 0, err
	}
	if len(allocatedBlocks) != wantTotal {
		return inode.Inode{}, 0, vfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("expected %d allocated blocks, got %d", wantTotal, len(allocatedBlocks)))
	}

	n := inode.NewFree()
	n.IsDirectory = false
	n.References = 1
	n.FileSize = fileSize

	numIndirectClusters := indirectClustersNeeded(dataBlockCount)
	lastDataBlockIdx := dataBlockCount - 1

	directCount := dataBlockCount
	if directCount > vfs.DirectBlockCount {
		directCount = vfs.DirectBlockCount
	}
	for i := 0; i < directCount; i++ {
		n.Direct[i] = allocatedBlocks[i]
	}

	if dataBlockCount <= vfs.DirectBlockCount {
		return n, lastDataBlockIdx, nil
	}

	// allocatedBlocks[len-numIndirectClusters:] are the indirect clusters
	// themselves, in order (indirect[0] is second-to-last when there are 2).
	indirectClusterIDs := allocatedBlocks[len(allocatedBlocks)-numIndirectClusters:]
	surplus := allocatedBlocks[vfs.DirectBlockCount : len(allocatedBlocks)-numIndirectClusters]

	for i, clusterID := range indirectClusterIDs {
		n.Indirect[i] = clusterID

		start := i * vfs.IndirectEntriesPerCluster
		end := start + vfs.IndirectEntriesPerCluster
		if end > len(surplus) {
			end = len(surplus)
		}
		if start >= len(surplus) {
			// This indirect cluster exists but holds no entries yet (can't
			// happen given indirectClustersNeeded, kept for safety).
			if err := WriteIndirectCluster(store, clusterID, nil); err != nil {
				return inode.Inode{}, 0, err
			}
			continue
		}
		if err := WriteIndirectCluster(store, clusterID, surplus[start:end]); err != nil {
			return inode.Inode{}, 0, err
		}
	}

	return n, lastDataBlockIdx, nil
}

func WriteIndirectCluster(store Store, clusterID int32, entries []int32) vfs.DriverError {
	buf := make([]byte, vfs.ClusterSize)
	for i, e := range entries {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(e))
	}
	if err := store.WriteCluster(clusterID, buf); err != nil {
		return vfs.ErrIO.WrapError(err)
	}
	return nil
}

func ReadIndirectCluster(store Store, clusterID int32) ([]int32, vfs.DriverError) {
	buf, err := store.ReadCluster(clusterID)
	if err != nil {
		return nil, vfs.ErrIO.WrapError(err)
	}
	entries := make([]int32, vfs.IndirectEntriesPerCluster)
	for i := range entries {
		entries[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return entries, nil
}

// Enumerate returns the ordered list of data block indices an inode
// references, following direct pointers then each indirect cluster's
// entries in order, reading indirect clusters lazily. Direct pointers equal
// to -1 and indirect entries equal to 0 are skipped; the indirect clusters
// themselves are not part of the result. The same walk serves file and
// directory inodes; a file's (block_count, remainder_bytes_in_tail) comes
// from FileBlockCountAndTail, not from Enumerate.
func Enumerate(store Store, n inode.Inode) ([]int32, vfs.DriverError) {
	var blocks []int32
	for _, d := range n.Direct {
		if d == vfs.FreeBlockPointer {
			continue
		}
		blocks = append(blocks, d)
	}

	for _, indirectID := range n.Indirect {
		if indirectID == vfs.FreeBlockPointer {
			continue
		}
		entries, err := ReadIndirectCluster(store, indirectID)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e == 0 {
				continue
			}
			blocks = append(blocks, e)
		}
	}
	return blocks, nil
}

// FileBlockCountAndTail derives, from a file's logical size, the total
// number of data blocks it occupies and the number of live bytes in the
// final block (0 means the final block is fully used, per spec.md §4.8's
// cat/outcp convention).
func FileBlockCountAndTail(fileSize int32) (int, int) {
	if fileSize == 0 {
		return 1, 0
	}
	blocks := (int(fileSize) + vfs.ClusterSize - 1) / vfs.ClusterSize
	tail := int(fileSize) % vfs.ClusterSize
	return blocks, tail
}

// Release zeroes every data cluster and indirect cluster an inode
// references, clears all pointer fields to -1, and frees the blocks via the
// bitmap allocator.
func Release(store Store, bm *bitmap.Bitmap, n inode.Inode) (inode.Inode, vfs.DriverError) {
	var toFree []int32

	for i, d := range n.Direct {
		if d == vfs.FreeBlockPointer {
			continue
		}
		if err := zeroCluster(store, d); err != nil {
			return n, err
		}
		toFree = append(toFree, d)
		n.Direct[i] = vfs.FreeBlockPointer
	}

	for i, indirectID := range n.Indirect {
		if indirectID == vfs.FreeBlockPointer {
			continue
		}
		entries, err := ReadIndirectCluster(store, indirectID)
		if err != nil {
			return n, err
		}
		for _, e := range entries {
			if e == 0 {
				continue
			}
			if err := zeroCluster(store, e); err != nil {
				return n, err
			}
			toFree = append(toFree, e)
		}
		if err := zeroCluster(store, indirectID); err != nil {
			return n, err
		}
		toFree = append(toFree, indirectID)
		n.Indirect[i] = vfs.FreeBlockPointer
	}

	if len(toFree) > 0 {
		if err := bm.Free(toFree); err != nil {
			return n, err
		}
	}
	return n, nil
}

func zeroCluster(store Store, clusterID int32) vfs.DriverError {
	if err := store.WriteCluster(clusterID, make([]byte, vfs.ClusterSize)); err != nil {
		return vfs.ErrIO.WrapError(err)
	}
	return nil
}
