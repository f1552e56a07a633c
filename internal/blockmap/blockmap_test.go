package blockmap_test

import (
	"testing"

	vfs "github.com/ButterDevelop/c-virtual-file-system"
	"github.com/ButterDevelop/c-virtual-file-system/internal/bitmap"
	"github.com/ButterDevelop/c-virtual-file-system/internal/blockmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	clusters map[int32][]byte
}

func newMemStore() *memStore {
	return &memStore{clusters: make(map[int32][]byte)}
}

func (m *memStore) ReadCluster(n int32) ([]byte, error) {
	if buf, ok := m.clusters[n]; ok {
		return buf, nil
	}
	return make([]byte, vfs.ClusterSize), nil
}

func (m *memStore) WriteCluster(n int32, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	m.clusters[n] = buf
	return nil
}

func TestWithIndirectBoundaries(t *testing.T) {
	n, err := blockmap.WithIndirect(vfs.DirectBlockCount)
	require.NoError(t, err)
	assert.Equal(t, vfs.DirectBlockCount, n)

	n, err = blockmap.WithIndirect(vfs.DirectBlockCount + 1)
	require.NoError(t, err)
	assert.Equal(t, vfs.DirectBlockCount+2, n)

	_, err = blockmap.WithIndirect(vfs.MaxDataBlocksPerFile + 1)
	assert.Error(t, err)
	assert.ErrorIs(t, err, vfs.ErrFileTooLarge)
}

func TestInstallDirectOnly(t *testing.T) {
	store := newMemStore()
	blocks := []int32{10, 11, 12}

	n, lastIdx, err := blockmap.Install(store, 9000, 3, blocks)
	require.NoError(t, err)
	assert.Equal(t, 2, lastIdx)
	assert.Equal(t, [vfs.DirectBlockCount]int32{10, 11, 12, -1, -1}, n.Direct)
	assert.Equal(t, [vfs.IndirectBlockCount]int32{-1, -1}, n.Indirect)
}

func TestInstallWithOneIndirectCluster(t *testing.T) {
	store := newMemStore()
	dataBlocks := vfs.DirectBlockCount + 3
	total, err := blockmap.WithIndirect(dataBlocks)
	require.NoError(t, err)

	allocated := make([]int32, total)
	for i := range allocated {
		allocated[i] = int32(100 + i)
	}

	n, _, err := blockmap.Install(store, int32(dataBlocks)*vfs.ClusterSize, dataBlocks, allocated)
	require.NoError(t, err)
	assert.NotEqual(t, vfs.FreeBlockPointer, n.Indirect[0])
	assert.Equal(t, vfs.FreeBlockPointer, n.Indirect[1])

	entries, err := blockmap.ReadIndirectCluster(store, n.Indirect[0])
	require.NoError(t, err)
	assert.Equal(t, allocated[vfs.DirectBlockCount], entries[0])
	assert.Equal(t, allocated[vfs.DirectBlockCount+1], entries[1])
	assert.Equal(t, allocated[vfs.DirectBlockCount+2], entries[2])
}

func TestEnumerateFollowsDirectAndIndirect(t *testing.T) {
	store := newMemStore()
	dataBlocks := vfs.DirectBlockCount + 2
	total, err := blockmap.WithIndirect(dataBlocks)
	require.NoError(t, err)
	allocated := make([]int32, total)
	for i := range allocated {
		allocated[i] = int32(200 + i)
	}

	n, _, err := blockmap.Install(store, int32(dataBlocks)*vfs.ClusterSize, dataBlocks, allocated)
	require.NoError(t, err)

	got, err := blockmap.Enumerate(store, n)
	require.NoError(t, err)
	assert.Len(t, got, dataBlocks)
	for i := 0; i < vfs.DirectBlockCount; i++ {
		assert.Equal(t, allocated[i], got[i])
	}
}

func TestFileBlockCountAndTail(t *testing.T) {
	blocks, tail := blockmap.FileBlockCountAndTail(0)
	assert.Equal(t, 1, blocks)
	assert.Equal(t, 0, tail)

	blocks, tail = blockmap.FileBlockCountAndTail(vfs.ClusterSize + 10)
	assert.Equal(t, 2, blocks)
	assert.Equal(t, 10, tail)

	blocks, tail = blockmap.FileBlockCountAndTail(vfs.ClusterSize)
	assert.Equal(t, 1, blocks)
	assert.Equal(t, 0, tail)
}

func TestReleaseFreesAllBlocksIncludingIndirect(t *testing.T) {
	store := newMemStore()
	bm := bitmap.New(300)
	allocated, err := bm.Allocate(vfs.DirectBlockCount + 3)
	require.NoError(t, err)

	dataBlocks := vfs.DirectBlockCount + 2
	n, _, err := blockmap.Install(store, int32(dataBlocks)*vfs.ClusterSize, dataBlocks, allocated)
	require.NoError(t, err)

	n, err = blockmap.Release(store, bm, n)
	require.NoError(t, err)

	for _, d := range n.Direct {
		assert.Equal(t, vfs.FreeBlockPointer, d)
	}
	for _, ind := range n.Indirect {
		assert.Equal(t, vfs.FreeBlockPointer, ind)
	}
	for _, idx := range allocated {
		assert.False(t, bm.IsAllocated(int(idx)))
	}
}
