// Package inode implements the 38-byte inode record and the fixed-size inode
// table (spec.md §4.4); the inode<->data-block mapping (§4.5) lives in
// internal/blockmap. It is grounded on drivers/unixv1/inode.go
// and drivers/unixv1/common.go in the teacher driver, adapted from disko's
// Unix v1 RawInode (8 direct blocks, uint16 size) to this spec's 5 direct + 2
// indirect layout with an int32 size.
package inode

import (
	"bytes"
	"encoding/binary"

	vfs "github.com/ButterDevelop/c-virtual-file-system"
	"github.com/noxer/bytewriter"
)

// Inode is the decoded, in-memory form of one 38-byte on-disk record.
type Inode struct {
	NodeID      int32
	IsDirectory bool
	References  int8
	FileSize    int32
	Direct      [vfs.DirectBlockCount]int32
	Indirect    [vfs.IndirectBlockCount]int32
}

// rawInode is the exact bit layout of the 38-byte on-disk record: node_id(4)
// is_directory(1) references(1) file_size(4) direct[5](20) indirect[2](8).
type rawInode struct {
	NodeID      int32
	IsDirectory bool
	References  int8
	FileSize    int32
	Direct      [vfs.DirectBlockCount]int32
	Indirect    [vfs.IndirectBlockCount]int32
}

// Free reports whether this inode record is unallocated.
func (n Inode) Free() bool {
	return n.NodeID == vfs.FreeInodeMarker
}

func toRaw(n Inode) rawInode {
	return rawInode{
		NodeID:      n.NodeID,
		IsDirectory: n.IsDirectory,
		References:  n.References,
		FileSize:    n.FileSize,
		Direct:      n.Direct,
		Indirect:    n.Indirect,
	}
}

func fromRaw(r rawInode) Inode {
	return Inode{
		NodeID:      r.NodeID,
		IsDirectory: r.IsDirectory,
		References:  r.References,
		FileSize:    r.FileSize,
		Direct:      r.Direct,
		Indirect:    r.Indirect,
	}
}

// Encode serializes an Inode to its exact 38-byte on-disk representation,
// staging the bytes in a fixed buffer via bytewriter before returning them —
// the same "build then write once" discipline used for clusters in
// internal/blockio, grounded on file_systems/unixv1/format.go's use of
// bytewriter.New around a fixed-size output slice.
func Encode(n Inode) []byte {
	buf := make([]byte, vfs.InodeSize)
	writer := bytewriter.New(buf)
	raw := toRaw(n)
	// rawInode's fields are all fixed-size, but binary.Write pads bool as a
	// single byte, matching the wire format exactly.
	_ = binary.Write(writer, binary.LittleEndian, &raw)
	return buf
}

// Decode parses a 38-byte on-disk record back into an Inode.
func Decode(raw []byte) (Inode, error) {
	if len(raw) != vfs.InodeSize {
		return Inode{}, vfs.ErrIO.WithMessage("short inode record")
	}
	var r rawInode
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &r); err != nil {
		return Inode{}, vfs.ErrIO.WrapError(err)
	}
	return fromRaw(r), nil
}

// NewFree returns the canonical "just reset" inode value: node_id = -1,
// not a directory, references = 1 (the initial value handed to the next
// allocator consumer, not an active reference — see spec.md §9), file_size =
// 0, and every direct/indirect pointer cleared to -1.
func NewFree() Inode {
	n := Inode{
		NodeID:     vfs.FreeInodeMarker,
		References: 1,
	}
	for i := range n.Direct {
		n.Direct[i] = vfs.FreeBlockPointer
	}
	for i := range n.Indirect {
		n.Indirect[i] = vfs.FreeBlockPointer
	}
	return n
}
