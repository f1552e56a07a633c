// Package dirstore implements the on-disk directory format (fixed 64-byte
// slots per spec.md §3/§4.6) and the in-memory cached directory tree
// reconstructed at mount time, grounded on original_source/Directory.hpp and
// original_source/DirectoryItem.hpp (a parent pointer plus split
// subdirectory/file child lists) translated from the C++ linked-list-of-
// pointers shape to Go slices keyed by inode id, per SPEC_FULL.md's
// arena-of-indices design note, and on the slot-scanning style of
// drivers/common/basedriver/dirent.go in the teacher driver.
package dirstore

import (
	"bytes"
	"encoding/binary"

	vfs "github.com/ButterDevelop/c-virtual-file-system"
	"github.com/ButterDevelop/c-virtual-file-system/internal/bitmap"
	"github.com/ButterDevelop/c-virtual-file-system/internal/blockmap"
	"github.com/ButterDevelop/c-virtual-file-system/internal/inode"
)

// ClusterStore is the subset of blockio.BlockIO directory storage needs.
type ClusterStore interface {
	ReadCluster(n int32) ([]byte, error)
	WriteCluster(n int32, data []byte) error
}

// Entry is one child reference: an inode id plus the byte-exact name under
// which it appears in this directory.
type Entry struct {
	InodeID int32
	Name    string
}

// Node is the in-memory representation of one directory: a parent inode id
// (root is its own parent), this directory's own inode id, and its children
// split into two lists exactly as the on-disk format does. Order within each
// list is insertion order, which matters for `ls`.
type Node struct {
	ParentID int32
	InodeID  int32
	Subdirs  []Entry
	Files    []Entry
}

// rawSlot is the exact 64-byte on-disk layout of one directory entry: a
// zero node_id marks the slot free.
type rawSlot struct {
	NodeID int32
	Name   [vfs.DirNameFieldSize]byte
	Pad    [vfs.DirSlotSize - 4 - vfs.DirNameFieldSize]byte
}

// Store owns the in-memory directory tree and mirrors every mutation to the
// on-disk slot layout.
type Store struct {
	clusters ClusterStore
	inodes   *inode.Table
	bm       *bitmap.Bitmap
	tree     map[int32]*Node
}

// New creates an empty Store bound to the given layers.
func New(clusters ClusterStore, inodes *inode.Table, bm *bitmap.Bitmap) *Store {
	return &Store{
		clusters: clusters,
		inodes:   inodes,
		bm:       bm,
		tree:     make(map[int32]*Node),
	}
}

// InitRoot seeds the in-memory tree with a fresh, childless root directory,
// called right after format.
func (s *Store) InitRoot() {
	s.tree[vfs.RootInodeID] = &Node{ParentID: vfs.RootInodeID, InodeID: vfs.RootInodeID}
}

// Node returns the cached directory node for the given inode id, if loaded.
func (s *Store) Node(dirInodeID int32) (*Node, bool) {
	n, ok := s.tree[dirInodeID]
	return n, ok
}

// Adopt registers a freshly created directory inode in the in-memory tree,
// called by FsEngine's mkdir right after the parent's entry is persisted.
func (s *Store) Adopt(parentID, inodeID int32) {
	s.tree[inodeID] = &Node{ParentID: parentID, InodeID: inodeID}
}

// Forget drops a directory from the in-memory tree, called by rmdir once its
// entry has been unlinked from its parent.
func (s *Store) Forget(inodeID int32) {
	delete(s.tree, inodeID)
}

// Reparent updates a directory node's recorded parent id, called by mv once
// a subdirectory entry has been moved to a new parent directory.
func (s *Store) Reparent(inodeID, newParentID int32) {
	if node, ok := s.tree[inodeID]; ok {
		node.ParentID = newParentID
	}
}

// LoadTree recursively reconstructs the in-memory directory tree starting
// at rootID, reading every slot of every directory inode, exactly as spec.md
// §3 describes mount doing. Called once, right after mount finishes reading
// the inode table.
func (s *Store) LoadTree(rootID int32) vfs.DriverError {
	s.tree = make(map[int32]*Node)
	return s.loadOne(rootID, rootID)
}

func (s *Store) loadOne(dirInodeID, parentID int32) vfs.DriverError {
	dirInode, err := s.inodes.Read(dirInodeID)
	if err != nil {
		return err
	}

	node := &Node{ParentID: parentID, InodeID: dirInodeID}
	slots, slotErr := s.readAllSlots(dirInode)
	if slotErr != nil {
		return slotErr
	}

	for _, slot := range slots {
		if slot.NodeID == 0 {
			continue
		}
		childInode, rerr := s.inodes.Read(slot.NodeID)
		if rerr != nil {
			return rerr
		}
		entry := Entry{InodeID: slot.NodeID, Name: decodeName(slot.Name[:])}
		if childInode.IsDirectory {
			node.Subdirs = append(node.Subdirs, entry)
		} else {
			node.Files = append(node.Files, entry)
		}
	}

	s.tree[dirInodeID] = node

	for _, sub := range node.Subdirs {
		if err := s.loadOne(sub.InodeID, dirInodeID); err != nil {
			return err
		}
	}
	return nil
}

// AllDirIDs returns the inode id of every directory currently loaded in the
// in-memory tree, in no particular order.
func (s *Store) AllDirIDs() []int32 {
	ids := make([]int32, 0, len(s.tree))
	for id := range s.tree {
		ids = append(ids, id)
	}
	return ids
}

// List returns every child of dirInodeID as (kind, name) pairs, subdirectories
// first then files, in insertion order — the in-memory traversal `ls` reads.
func (s *Store) List(dirInodeID int32) []vfs.DirEntrySummary {
	node, ok := s.tree[dirInodeID]
	if !ok {
		return nil
	}
	out := make([]vfs.DirEntrySummary, 0, len(node.Subdirs)+len(node.Files))
	for _, e := range node.Subdirs {
		out = append(out, vfs.DirEntrySummary{Name: e.Name, Kind: vfs.KindDirectory, InodeID: e.InodeID})
	}
	for _, e := range node.Files {
		out = append(out, vfs.DirEntrySummary{Name: e.Name, Kind: vfs.KindFile, InodeID: e.InodeID})
	}
	return out
}

// Find does a linear scan of dirInodeID's children (both lists) for name.
func (s *Store) Find(dirInodeID int32, name string) (Entry, vfs.ObjectKind, bool) {
	node, ok := s.tree[dirInodeID]
	if !ok {
		return Entry{}, 0, false
	}
	for _, e := range node.Subdirs {
		if e.Name == name {
			return e, vfs.KindDirectory, true
		}
	}
	for _, e := range node.Files {
		if e.Name == name {
			return e, vfs.KindFile, true
		}
	}
	return Entry{}, 0, false
}

// Insert persists entry into dirInodeID's on-disk slots, then appends it to
// the in-memory list for kind (only once persisting succeeded): the first
// free on-disk slot is reused if one exists; otherwise a new data cluster is
// allocated and attached to the directory's inode.
func (s *Store) Insert(dirInodeID int32, entry Entry, kind vfs.ObjectKind) vfs.DriverError {
	if len(entry.Name) > vfs.MaxNameLength {
		return vfs.ErrNameTooLong.WithMessage(entry.Name)
	}

	node, ok := s.tree[dirInodeID]
	if !ok {
		return vfs.ErrDirectoryNotFound
	}

	dirInode, err := s.inodes.Read(dirInodeID)
	if err != nil {
		return err
	}

	if err := s.writeToFreeSlot(dirInodeID, &dirInode, entry); err != nil {
		return err
	}

	if kind == vfs.KindDirectory {
		node.Subdirs = append(node.Subdirs, entry)
	} else {
		node.Files = append(node.Files, entry)
	}
	return nil
}

// writeToFreeSlot scans the directory's existing data clusters for a free
// slot (node_id == 0); if none is found, it allocates a new data cluster,
// attaches it to the directory's inode (next free direct[] slot, or a new
// indirect cluster if all directs are full), and writes the entry at offset
// 0 of the new cluster.
func (s *Store) writeToFreeSlot(dirInodeID int32, dirInode *inode.Inode, entry Entry) vfs.DriverError {
	clusterIDs, err := blockmap.Enumerate(s.clusters, *dirInode)
	if err != nil {
		return err
	}

	for _, clusterID := range clusterIDs {
		raw, rerr := s.clusters.ReadCluster(clusterID)
		if rerr != nil {
			return vfs.ErrIO.WrapError(rerr)
		}
		for slotIdx := 0; slotIdx < vfs.DirSlotsPerCluster; slotIdx++ {
			off := slotIdx * vfs.DirSlotSize
			if binary.LittleEndian.Uint32(raw[off:]) == 0 {
				writeSlot(raw, slotIdx, entry)
				if werr := s.clusters.WriteCluster(clusterID, raw); werr != nil {
					return vfs.ErrIO.WrapError(werr)
				}
				return nil
			}
		}
	}

	// No free slot anywhere: allocate a new data cluster for this directory.
	allocated, aerr := s.bm.Allocate(1)
	if aerr != nil {
		return vfs.ErrNoSpace.WithMessage("no space for a new directory cluster")
	}
	newClusterID := allocated[0]

	raw := make([]byte, vfs.ClusterSize)
	writeSlot(raw, 0, entry)
	if werr := s.clusters.WriteCluster(newClusterID, raw); werr != nil {
		s.bm.Free(allocated)
		return vfs.ErrIO.WrapError(werr)
	}

	if err := s.attachCluster(dirInode, newClusterID); err != nil {
		s.bm.Free(allocated)
		return err
	}

	if werr := s.inodes.Write(dirInodeID, *dirInode); werr != nil {
		return werr
	}
	return nil
}

// attachCluster records newClusterID in the directory's next free direct[]
// slot, or in an indirect cluster if all five direct slots are occupied,
// allocating that indirect cluster on first use.
func (s *Store) attachCluster(dirInode *inode.Inode, newClusterID int32) vfs.DriverError {
	for i := range dirInode.Direct {
		if dirInode.Direct[i] == vfs.FreeBlockPointer {
			dirInode.Direct[i] = newClusterID
			return nil
		}
	}

	for i := range dirInode.Indirect {
		if dirInode.Indirect[i] == vfs.FreeBlockPointer {
			allocated, aerr := s.bm.Allocate(1)
			if aerr != nil {
				return vfs.ErrNoSpace.WithMessage("no space for a new indirect cluster")
			}
			indirectID := allocated[0]
			entries := make([]int32, vfs.IndirectEntriesPerCluster)
			entries[0] = newClusterID
			if werr := blockmap.WriteIndirectCluster(s.clusters, indirectID, entries); werr != nil {
				s.bm.Free(allocated)
				return werr
			}
			dirInode.Indirect[i] = indirectID
			return nil
		}

		entries, rerr := blockmap.ReadIndirectCluster(s.clusters, dirInode.Indirect[i])
		if rerr != nil {
			return rerr
		}
		for j, e := range entries {
			if e == 0 {
				entries[j] = newClusterID
				return blockmap.WriteIndirectCluster(s.clusters, dirInode.Indirect[i], entries)
			}
		}
	}

	return vfs.ErrNoSpace.WithMessage("directory has exhausted direct and indirect capacity")
}

// Remove unlinks entry named name from dirInodeID's in-memory list for kind,
// zeroes its on-disk slot, and — if that was the cluster's only live entry
// and the cluster isn't the directory's first direct block — releases the
// cluster and clears its pointer from the inode.
func (s *Store) Remove(dirInodeID int32, name string, kind vfs.ObjectKind) vfs.DriverError {
	node, ok := s.tree[dirInodeID]
	if !ok {
		return vfs.ErrDirectoryNotFound
	}

	dirInode, err := s.inodes.Read(dirInodeID)
	if err != nil {
		return err
	}

	clusterIDs, eerr := blockmap.Enumerate(s.clusters, dirInode)
	if eerr != nil {
		return eerr
	}

	removed := false
	for _, clusterID := range clusterIDs {
		raw, rerr := s.clusters.ReadCluster(clusterID)
		if rerr != nil {
			return vfs.ErrIO.WrapError(rerr)
		}

		matchSlot := -1
		liveCount := 0
		for slotIdx := 0; slotIdx < vfs.DirSlotsPerCluster; slotIdx++ {
			off := slotIdx * vfs.DirSlotSize
			nodeID := int32(binary.LittleEndian.Uint32(raw[off:]))
			if nodeID == 0 {
				continue
			}
			liveCount++
			if matchSlot == -1 && decodeName(raw[off+4:off+4+vfs.DirNameFieldSize]) == name {
				matchSlot = slotIdx
			}
		}

		if matchSlot == -1 {
			continue
		}

		off := matchSlot * vfs.DirSlotSize
		for i := 0; i < vfs.DirSlotSize; i++ {
			raw[off+i] = 0
		}
		if werr := s.clusters.WriteCluster(clusterID, raw); werr != nil {
			return vfs.ErrIO.WrapError(werr)
		}

		if liveCount == 1 && clusterID != dirInode.Direct[0] {
			if rerr := s.releaseClusterFromDir(&dirInode, clusterID); rerr != nil {
				return rerr
			}
			if werr := s.inodes.Write(dirInodeID, dirInode); werr != nil {
				return werr
			}
		}

		removed = true
		break
	}

	if !removed {
		return vfs.ErrItemNotFound.WithMessage(name)
	}

	if kind == vfs.KindDirectory {
		node.Subdirs = removeEntry(node.Subdirs, name)
	} else {
		node.Files = removeEntry(node.Files, name)
	}
	return nil
}

func removeEntry(list []Entry, name string) []Entry {
	out := list[:0]
	for _, e := range list {
		if e.Name != name {
			out = append(out, e)
		}
	}
	return out
}

// releaseClusterFromDir zeroes clusterID, frees it via the bitmap, and
// clears whichever direct or indirect slot of dirInode referenced it.
func (s *Store) releaseClusterFromDir(dirInode *inode.Inode, clusterID int32) vfs.DriverError {
	if err := s.clusters.WriteCluster(clusterID, make([]byte, vfs.ClusterSize)); err != nil {
		return vfs.ErrIO.WrapError(err)
	}
	if err := s.bm.Free([]int32{clusterID}); err != nil {
		return err
	}

	for i := 1; i < len(dirInode.Direct); i++ {
		if dirInode.Direct[i] == clusterID {
			dirInode.Direct[i] = vfs.FreeBlockPointer
			return nil
		}
	}
	for _, indirectID := range dirInode.Indirect {
		if indirectID == vfs.FreeBlockPointer {
			continue
		}
		entries, rerr := blockmap.ReadIndirectCluster(s.clusters, indirectID)
		if rerr != nil {
			return rerr
		}
		for j, e := range entries {
			if e == clusterID {
				entries[j] = 0
				return blockmap.WriteIndirectCluster(s.clusters, indirectID, entries)
			}
		}
	}
	return nil
}

// OnDiskEntries re-reads every slot of dirInodeID directly off the backing
// store, bypassing the in-memory tree entirely — used by fsck-style
// consistency checks to compare the on-disk slot set against the cached
// Subdirs/Files lists.
func (s *Store) OnDiskEntries(dirInodeID int32) ([]Entry, vfs.DriverError) {
	dirInode, err := s.inodes.Read(dirInodeID)
	if err != nil {
		return nil, err
	}
	slots, serr := s.readAllSlots(dirInode)
	if serr != nil {
		return nil, serr
	}
	var out []Entry
	for _, slot := range slots {
		if slot.NodeID == 0 {
			continue
		}
		out = append(out, Entry{InodeID: slot.NodeID, Name: decodeName(slot.Name[:])})
	}
	return out, nil
}

// readAllSlots reads every 64-byte slot across all of a directory inode's
// data clusters.
func (s *Store) readAllSlots(dirInode inode.Inode) ([]rawSlot, vfs.DriverError) {
	clusterIDs, err := blockmap.Enumerate(s.clusters, dirInode)
	if err != nil {
		return nil, err
	}

	var slots []rawSlot
	for _, clusterID := range clusterIDs {
		raw, rerr := s.clusters.ReadCluster(clusterID)
		if rerr != nil {
			return nil, vfs.ErrIO.WrapError(rerr)
		}
		for slotIdx := 0; slotIdx < vfs.DirSlotsPerCluster; slotIdx++ {
			off := slotIdx * vfs.DirSlotSize
			var rs rawSlot
			if derr := binary.Read(bytes.NewReader(raw[off:off+vfs.DirSlotSize]), binary.LittleEndian, &rs); derr != nil {
				return nil, vfs.ErrIO.WrapError(derr)
			}
			slots = append(slots, rs)
		}
	}
	return slots, nil
}

func writeSlot(clusterBuf []byte, slotIdx int, entry Entry) {
	off := slotIdx * vfs.DirSlotSize
	binary.LittleEndian.PutUint32(clusterBuf[off:], uint32(entry.InodeID))
	var nameField [vfs.DirNameFieldSize]byte
	copy(nameField[:], entry.Name)
	copy(clusterBuf[off+4:off+4+vfs.DirNameFieldSize], nameField[:])
	for i := off + 4 + vfs.DirNameFieldSize; i < off+vfs.DirSlotSize; i++ {
		clusterBuf[i] = 0
	}
}

func decodeName(field []byte) string {
	n := bytes.IndexByte(field, 0)
	if n < 0 {
		n = len(field)
	}
	return string(field[:n])
}
