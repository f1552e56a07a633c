package inode

import (
	"fmt"

	vfs "github.com/ButterDevelop/c-virtual-file-system"
	"github.com/boljen/go-bitmap"
)

// Store is the subset of blockio.BlockIO the table needs, kept as an
// interface so tests can swap in a fake without an import cycle.
type Store interface {
	ReadInodeRaw(id int32) ([]byte, error)
	WriteInodeRaw(id int32, raw []byte) error
}

// Table is the fixed-size array of inode records described in spec.md §4.4.
// Alongside the authoritative on-disk records it keeps a bit-packed
// in-memory cache of which slots are allocated, grounded on
// drivers/common/allocatormap.go's Allocator — the same bitmap library, used
// here to make FindFree a bit-scan instead of re-reading every 38-byte
// record, since this spec's wire format (unlike disko's Unix v1 driver) has
// no separate on-disk inode bitmap.
type Table struct {
	store      Store
	count      int32
	usedCache  bitmap.Bitmap
}

// New creates a Table bound to store, sized for count inodes. The caller
// must call RebuildCache after all inode records are readable (format just
// initialized them, or mount just read them back).
func New(store Store, count int32) *Table {
	return &Table{
		store:     store,
		count:     count,
		usedCache: bitmap.New(int(count)),
	}
}

// Count returns the total number of inode slots in the table.
func (t *Table) Count() int32 {
	return t.count
}

// RebuildCache rescans every inode record and repopulates the in-memory
// allocation cache. Called once after mount or format.
func (t *Table) RebuildCache() error {
	for i := int32(0); i < t.count; i++ {
		n, err := t.Read(i)
		if err != nil {
			return err
		}
		t.usedCache.Set(int(i), !n.Free())
	}
	return nil
}

// Read decodes the on-disk record for inode id.
func (t *Table) Read(id int32) (Inode, vfs.DriverError) {
	if id < 0 || id >= t.count {
		return Inode{}, vfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("inode id %d out of range [0, %d)", id, t.count))
	}
	raw, err := t.store.ReadInodeRaw(id)
	if err != nil {
		return Inode{}, vfs.ErrIO.WrapError(err)
	}
	n, decErr := Decode(raw)
	if decErr != nil {
		return Inode{}, vfs.ErrIO.WrapError(decErr)
	}
	return n, nil
}

// Write persists an inode record and updates the allocation cache.
func (t *Table) Write(id int32, n Inode) vfs.DriverError {
	if id < 0 || id >= t.count {
		return vfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("inode id %d out of range [0, %d)", id, t.count))
	}
	n.NodeID = id
	if err := t.store.WriteInodeRaw(id, Encode(n)); err != nil {
		return vfs.ErrIO.WrapError(err)
	}
	t.usedCache.Set(int(id), !n.Free())
	return nil
}

// Reset clears inode id back to the canonical free value (spec.md §4.4:
// node_id=-1, is_directory=false, references=1, file_size=0, all pointers
// -1) and persists it. Unlike Write, Reset does not force node_id to id:
// the whole point of the free marker is that it reads back as -1, not as
// the slot's own index, so the disk record is written directly rather than
// through Write's "stamp the slot id into node_id" path.
func (t *Table) Reset(id int32) vfs.DriverError {
	if id < 0 || id >= t.count {
		return vfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("inode id %d out of range [0, %d)", id, t.count))
	}
	n := NewFree()
	if err := t.store.WriteInodeRaw(id, Encode(n)); err != nil {
		return vfs.ErrIO.WrapError(err)
	}
	t.usedCache.Set(int(id), false)
	return nil
}

// FindFree scans from index 1 (index 0 is root) for the first unallocated
// inode. Scan order is ascending, matching spec.md §4.4 and the
// determinism requirement of spec.md §8 property 8.
func (t *Table) FindFree() (int32, vfs.DriverError) {
	for i := int32(1); i < t.count; i++ {
		if !t.usedCache.Get(int(i)) {
			return i, nil
		}
	}
	return 0, vfs.ErrNoFreeInodes.WithMessage("inode table exhausted")
}
