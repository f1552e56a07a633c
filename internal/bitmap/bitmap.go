// Package bitmap implements the data-cluster free-space bitmap: one byte per
// cluster (0 = free, 1 = allocated), mirrored between memory and the
// backing file's bitmap region. This is deliberately a plain []byte rather
// than a bit-packed structure because the on-disk wire format spec requires
// exactly data_cluster_count bytes, one per cluster — bit-packing would
// break the bit-exact backing-file layout.
//
// The scan-and-reserve algorithm below is grounded on
// drivers/common/allocatormap.go's Allocator in the teacher driver, adapted
// from a bit-packed in-memory bitmap to this byte-per-cluster on-disk one.
package bitmap

import (
	"fmt"

	vfs "github.com/ButterDevelop/c-virtual-file-system"
)

// Writer is the subset of block I/O the bitmap needs to persist changed
// bytes back to the backing file without depending on the concrete blockio
// type (avoids an import cycle between bitmap and blockio).
type Writer interface {
	WriteBitmapByte(index int, value byte) error
}

// Bitmap is the in-memory mirror of the bitmap region. Index 0 corresponds to
// data cluster 0, which is permanently reserved for the root directory's
// first data cluster and is never handed out by Allocate.
type Bitmap struct {
	bytes []byte
	io    Writer
}

// New creates a Bitmap of the given size, entirely free, not yet bound to a
// backing store. Allocate/Free/MarkAllocated calls after BindIO will persist.
func New(size int) *Bitmap {
	return &Bitmap{bytes: make([]byte, size)}
}

// FromBytes wraps an existing byte slice read back from disk at mount time.
// The slice is used directly, not copied.
func FromBytes(raw []byte) *Bitmap {
	return &Bitmap{bytes: raw}
}

// BindIO attaches the backing store used to persist individual byte changes.
func (b *Bitmap) BindIO(w Writer) {
	b.io = w
}

// Bytes returns the raw underlying byte array (not a copy).
func (b *Bitmap) Bytes() []byte {
	return b.bytes
}

// Len returns the number of clusters this bitmap tracks.
func (b *Bitmap) Len() int {
	return len(b.bytes)
}

// IsAllocated reports whether the given data cluster index is marked used.
func (b *Bitmap) IsAllocated(index int) bool {
	return b.bytes[index] == 1
}

// Allocate reserves the first n free cluster indices, scanning ascending
// starting at index 1 (index 0 is reserved for root's initial directory
// cluster). If fewer than n are free, nothing is changed. If persisting one
// of the bytes fails, all n indices are cleared again in memory; bytes
// already written to disk before the failure are not rewritten.
func (b *Bitmap) Allocate(n int) ([]int32, vfs.DriverError) {
	if n <= 0 {
		return nil, nil
	}

	found := make([]int32, 0, n)
	for i := 1; i < len(b.bytes) && len(found) < n; i++ {
		if b.bytes[i] == 0 {
			found = append(found, int32(i))
		}
	}

	if len(found) < n {
		return nil, vfs.ErrNoSpace.WithMessage(
			fmt.Sprintf("need %d free clusters, only %d available", n, len(found)))
	}

	for _, idx := range found {
		b.bytes[idx] = 1
		if b.io != nil {
			if err := b.io.WriteBitmapByte(int(idx), 1); err != nil {
				b.rollback(found)
				return nil, vfs.ErrIO.WrapError(err)
			}
		}
	}
	return found, nil
}

// MarkAllocated forces a single cluster index allocated without going
// through the ascending free-scan Allocate performs — used once, by format,
// to reserve cluster 0 for the root directory's first data cluster.
func (b *Bitmap) MarkAllocated(index int) vfs.DriverError {
	if index < 0 || index >= len(b.bytes) {
		return vfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("cluster index %d out of range", index))
	}
	b.bytes[index] = 1
	if b.io != nil {
		if err := b.io.WriteBitmapByte(index, 1); err != nil {
			b.bytes[index] = 0
			return vfs.ErrIO.WrapError(err)
		}
	}
	return nil
}

func (b *Bitmap) rollback(indices []int32) {
	for _, idx := range indices {
		b.bytes[idx] = 0
	}
}

// Free marks the given cluster indices unused, in memory and on disk.
func (b *Bitmap) Free(indices []int32) vfs.DriverError {
	for _, idx := range indices {
		if int(idx) < 0 || int(idx) >= len(b.bytes) {
			return vfs.ErrInvalidArgument.WithMessage(
				fmt.Sprintf("cluster index %d out of range", idx))
		}
	}

	for _, idx := range indices {
		b.bytes[idx] = 0
		if b.io != nil {
			if err := b.io.WriteBitmapByte(int(idx), 0); err != nil {
				return vfs.ErrIO.WrapError(err)
			}
		}
	}
	return nil
}
