package engine

import (
	"os"
	"path/filepath"
	"testing"

	vfs "github.com/ButterDevelop/c-virtual-file-system"
	"github.com/ButterDevelop/c-virtual-file-system/internal/vfstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDiskSize = 1_000_000

func newFormatted(t *testing.T) *Engine {
	t.Helper()
	sb, gerr := vfs.ComputeGeometry(testDiskSize)
	require.Nil(t, gerr)

	stream, _ := vfstest.NewImage(int(sb.ClusterCount) * vfs.ClusterSize)
	e := New()
	require.Nil(t, e.formatStream(stream, sb))
	return e
}

// S1 — format + pwd.
func TestFormatThenPwdIsRoot(t *testing.T) {
	e := newFormatted(t)
	assert.True(t, e.IsFormatted())
	pwd, err := e.Pwd()
	require.Nil(t, err)
	assert.Equal(t, "/", pwd)
}

// Unformatted engines reject everything but format/load/pwd/help.
func TestUnformattedRejectsOperations(t *testing.T) {
	e := New()
	assert.False(t, e.IsFormatted())
	pwd, err := e.Pwd()
	assert.Nil(t, err)
	assert.Equal(t, "/", pwd)
	assert.ErrorIs(t, e.Mkdir("a"), vfs.ErrNotAvailable)
}

// S2 — mkdir/rmdir.
func TestMkdirRmdir(t *testing.T) {
	e := newFormatted(t)

	require.Nil(t, e.Mkdir("a"))
	entries, err := e.List("/")
	require.Nil(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, vfs.KindDirectory, entries[0].Kind)

	require.Nil(t, e.Rmdir("a"))
	entries, err = e.List("/")
	require.Nil(t, err)
	assert.Len(t, entries, 0)
}

func TestMkdirRejectsDuplicateAndLongNames(t *testing.T) {
	e := newFormatted(t)
	require.Nil(t, e.Mkdir("a"))
	assert.ErrorIs(t, e.Mkdir("a"), vfs.ErrExists)
	assert.ErrorIs(t, e.Mkdir("012345678901"), vfs.ErrNameTooLong)
}

func TestRmdirFailsWhenNotEmpty(t *testing.T) {
	e := newFormatted(t)
	require.Nil(t, e.Mkdir("a"))
	require.Nil(t, e.Mkdir("a/b"))
	assert.ErrorIs(t, e.Rmdir("a"), vfs.ErrNotEmpty)
}

func TestRmdirRedirectsCurrentDirToParent(t *testing.T) {
	e := newFormatted(t)
	require.Nil(t, e.Mkdir("a"))
	require.Nil(t, e.Cd("a"))
	require.Nil(t, e.Rmdir("/a"))
	pwd, err := e.Pwd()
	require.Nil(t, err)
	assert.Equal(t, "/", pwd)
}

// S3 — incp/cat/outcp round-trip.
func TestIncpCatOutcpRoundTrip(t *testing.T) {
	e := newFormatted(t)
	dir := t.TempDir()
	hostIn := filepath.Join(dir, "hello.txt")
	hostOut := filepath.Join(dir, "out.txt")
	content := []byte("hello\n")
	require.NoError(t, os.WriteFile(hostIn, content, 0644))

	require.Nil(t, e.Incp(hostIn, "/h"))

	got, cerr := e.Cat("/h")
	require.Nil(t, cerr)
	assert.Equal(t, content, got)

	require.Nil(t, e.Outcp("/h", hostOut))
	roundTripped, rerr := os.ReadFile(hostOut)
	require.NoError(t, rerr)
	assert.Equal(t, content, roundTripped)
}

func TestIncpRejectsExistingDestination(t *testing.T) {
	e := newFormatted(t)
	dir := t.TempDir()
	hostIn := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(hostIn, []byte("x"), 0644))

	require.Nil(t, e.Incp(hostIn, "/h"))
	assert.ErrorIs(t, e.Incp(hostIn, "/h"), vfs.ErrExists)
}

// S4 — hard link reference counting.
func TestLnReferenceCounting(t *testing.T) {
	e := newFormatted(t)
	dir := t.TempDir()
	hostIn := filepath.Join(dir, "big.bin")
	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(hostIn, data, 0644))
	require.Nil(t, e.Incp(hostIn, "/f"))

	require.Nil(t, e.Ln("/f", "/g"))

	_, fEntry, _, ferr := e.findEntry("/f")
	require.Nil(t, ferr)
	n, rerr := e.inodes.Read(fEntry.InodeID)
	require.Nil(t, rerr)
	assert.EqualValues(t, 2, n.References)

	require.Nil(t, e.Rm("/f"))
	n, rerr = e.inodes.Read(fEntry.InodeID)
	require.Nil(t, rerr)
	assert.EqualValues(t, 1, n.References)

	got, cerr := e.Cat("/g")
	require.Nil(t, cerr)
	assert.Equal(t, data, got)

	require.Nil(t, e.Rm("/g"))
	freed, rerr := e.inodes.Read(fEntry.InodeID)
	require.Nil(t, rerr)
	assert.Equal(t, vfs.FreeInodeMarker, freed.NodeID)
}

// S5 — cp produces an independent copy; mv keeps the same inode id.
func TestCpIsIndependentOfSource(t *testing.T) {
	e := newFormatted(t)
	dir := t.TempDir()
	hostIn := filepath.Join(dir, "x.bin")
	require.NoError(t, os.WriteFile(hostIn, []byte("original"), 0644))
	require.Nil(t, e.Incp(hostIn, "/a"))

	require.Nil(t, e.Cp("/a", "/b"))

	_, aEntry, _, _ := e.findEntry("/a")
	_, bEntry, _, _ := e.findEntry("/b")
	assert.NotEqual(t, aEntry.InodeID, bEntry.InodeID)

	aInode, _ := e.inodes.Read(aEntry.InodeID)
	bInode, _ := e.inodes.Read(bEntry.InodeID)
	assert.NotEqual(t, aInode.Direct[0], bInode.Direct[0])

	bContent, err := e.Cat("/b")
	require.Nil(t, err)
	assert.Equal(t, []byte("original"), bContent)
}

func TestMvPreservesInodeIDAndUnlinksSource(t *testing.T) {
	e := newFormatted(t)
	dir := t.TempDir()
	hostIn := filepath.Join(dir, "x.bin")
	require.NoError(t, os.WriteFile(hostIn, []byte("payload"), 0644))
	require.Nil(t, e.Incp(hostIn, "/a"))
	require.Nil(t, e.Mkdir("dir"))

	_, beforeEntry, _, _ := e.findEntry("/a")

	require.Nil(t, e.Mv("/a", "/dir/a2"))

	_, _, _, notFoundErr := e.findEntry("/a")
	assert.ErrorIs(t, notFoundErr, vfs.ErrItemNotFound)

	_, afterEntry, _, ferr := e.findEntry("/dir/a2")
	require.Nil(t, ferr)
	assert.Equal(t, beforeEntry.InodeID, afterEntry.InodeID)
}

// Moving a non-empty directory must carry its aggregated file_size out of
// the old ancestor chain and into the new one, the same bookkeeping the
// file branch of Mv already performs.
func TestMvOfDirectoryUpdatesAncestorSizes(t *testing.T) {
	e := newFormatted(t)
	dir := t.TempDir()
	hostIn := filepath.Join(dir, "x.bin")
	payload := []byte("0123456789")
	require.NoError(t, os.WriteFile(hostIn, payload, 0644))

	require.Nil(t, e.Mkdir("src"))
	require.Nil(t, e.Mkdir("dst"))
	require.Nil(t, e.Incp(hostIn, "/src/f"))

	require.Nil(t, e.Mv("/src", "/dst/src"))

	rootInode, err := e.inodes.Read(vfs.RootInodeID)
	require.Nil(t, err)
	assert.EqualValues(t, len(payload), rootInode.FileSize,
		"root still aggregates through /dst, so its total is unchanged")

	dstInode, err := e.inodes.Read(mustDirInodeID(t, e, "/dst"))
	require.Nil(t, err)
	assert.EqualValues(t, len(payload), dstInode.FileSize,
		"moved subtree's size must now be counted under its new parent")
}

// S6 — a 6-block file spills into one indirect cluster.
func TestLargeFileUsesIndirectBlock(t *testing.T) {
	e := newFormatted(t)
	dir := t.TempDir()
	hostIn := filepath.Join(dir, "big.bin")
	data := make([]byte, (vfs.DirectBlockCount+1)*vfs.ClusterSize)
	require.NoError(t, os.WriteFile(hostIn, data, 0644))
	require.Nil(t, e.Incp(hostIn, "/big"))

	_, entry, _, ferr := e.findEntry("/big")
	require.Nil(t, ferr)
	n, rerr := e.inodes.Read(entry.InodeID)
	require.Nil(t, rerr)

	for i := 0; i < vfs.DirectBlockCount; i++ {
		assert.NotEqual(t, vfs.FreeBlockPointer, n.Direct[i])
	}
	assert.NotEqual(t, vfs.FreeBlockPointer, n.Indirect[0])
	assert.Equal(t, vfs.FreeBlockPointer, n.Indirect[1])
}

// Format/mount round-trip: persist, "close", reopen against the same bytes.
func TestMountReconstructsTree(t *testing.T) {
	sb, gerr := vfs.ComputeGeometry(testDiskSize)
	require.Nil(t, gerr)
	stream, _ := vfstest.NewImage(int(sb.ClusterCount) * vfs.ClusterSize)

	e := New()
	require.Nil(t, e.formatStream(stream, sb))
	require.Nil(t, e.Mkdir("a"))
	require.Nil(t, e.Mkdir("a/b"))

	e2 := New()
	require.Nil(t, e2.mountStream(stream))

	entries, err := e2.List("/")
	require.Nil(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Name)

	entries, err = e2.List("/a")
	require.Nil(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Name)
}

func TestAggregatedDirectorySizeTracksDescendantFiles(t *testing.T) {
	e := newFormatted(t)
	dir := t.TempDir()
	hostIn := filepath.Join(dir, "x.bin")
	payload := []byte("0123456789")
	require.NoError(t, os.WriteFile(hostIn, payload, 0644))

	require.Nil(t, e.Mkdir("a"))
	require.Nil(t, e.Incp(hostIn, "/a/f"))

	aInode, err := e.inodes.Read(mustDirInodeID(t, e, "/a"))
	require.Nil(t, err)
	assert.EqualValues(t, len(payload), aInode.FileSize)

	require.Nil(t, e.Rm("/a/f"))
	aInode, err = e.inodes.Read(mustDirInodeID(t, e, "/a"))
	require.Nil(t, err)
	assert.EqualValues(t, 0, aInode.FileSize)
}

// spec.md §8 invariants 1-3: a healthy filesystem, after a representative
// mix of mkdir/incp/ln/mv/rm, reports no consistency violations.
func TestCheckConsistencyOnHealthyFilesystem(t *testing.T) {
	e := newFormatted(t)
	dir := t.TempDir()
	hostIn := filepath.Join(dir, "x.bin")
	require.NoError(t, os.WriteFile(hostIn, make([]byte, (vfs.DirectBlockCount+2)*vfs.ClusterSize), 0644))

	require.Nil(t, e.Mkdir("a"))
	require.Nil(t, e.Mkdir("a/b"))
	require.Nil(t, e.Incp(hostIn, "/a/big"))
	require.Nil(t, e.Ln("/a/big", "/a/b/link"))
	require.Nil(t, e.Mv("/a/big", "/a/b/moved"))
	require.Nil(t, e.Rm("/a/b/link"))

	assert.NoError(t, e.CheckConsistency())
}

func mustDirInodeID(t *testing.T, e *Engine, path string) int32 {
	t.Helper()
	entries, err := e.List("/")
	require.Nil(t, err)
	for _, entry := range entries {
		if "/"+entry.Name == path {
			return entry.InodeID
		}
	}
	t.Fatalf("directory %s not found under root", path)
	return 0
}
