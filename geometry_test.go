package vfs_test

import (
	"testing"

	vfs "github.com/ButterDevelop/c-virtual-file-system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeGeometryRejectsNonPositiveSize(t *testing.T) {
	_, err := vfs.ComputeGeometry(0)
	assert.Error(t, err)
	assert.ErrorIs(t, err, vfs.ErrInvalidSize)

	_, err = vfs.ComputeGeometry(-1)
	assert.Error(t, err)
}

func TestComputeGeometryRejectsTooSmallDisk(t *testing.T) {
	_, err := vfs.ComputeGeometry(vfs.ClusterSize)
	assert.Error(t, err)
	assert.ErrorIs(t, err, vfs.ErrInvalidSize)
}

func TestComputeGeometryLaysOutContiguousRegions(t *testing.T) {
	sb, err := vfs.ComputeGeometry(1024 * 1024)
	require.NoError(t, err)

	assert.EqualValues(t, vfs.ClusterSize, sb.BitmapStart)
	assert.Equal(t, sb.BitmapStart+sb.BitmapClusterCount*vfs.ClusterSize, sb.InodeStart)
	assert.Equal(t, sb.InodeStart+sb.InodeClusterCount*vfs.ClusterSize, sb.DataStart)
	assert.Equal(t, 1+sb.BitmapClusterCount+sb.InodeClusterCount+sb.DataClusterCount, sb.ClusterCount)
	assert.Greater(t, sb.InodeCount, int32(0))
	assert.Greater(t, sb.DataClusterCount, int32(1))
}

func TestComputeGeometryIsPure(t *testing.T) {
	a, err := vfs.ComputeGeometry(4 * 1024 * 1024)
	require.NoError(t, err)
	b, err := vfs.ComputeGeometry(4 * 1024 * 1024)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
