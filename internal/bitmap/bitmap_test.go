package bitmap_test

import (
	"testing"

	vfs "github.com/ButterDevelop/c-virtual-file-system"
	"github.com/ButterDevelop/c-virtual-file-system/internal/bitmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	writes map[int]byte
	failOn int
}

func (w *fakeWriter) WriteBitmapByte(index int, value byte) error {
	if index == w.failOn {
		return assert.AnError
	}
	if w.writes == nil {
		w.writes = make(map[int]byte)
	}
	w.writes[index] = value
	return nil
}

func TestAllocateAscendingAndPersists(t *testing.T) {
	w := &fakeWriter{failOn: -1}
	b := bitmap.New(10)
	b.BindIO(w)

	got, err := b.Allocate(3)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3}, got)
	assert.True(t, b.IsAllocated(1))
	assert.True(t, b.IsAllocated(2))
	assert.True(t, b.IsAllocated(3))
	assert.False(t, b.IsAllocated(0))
	assert.Equal(t, byte(1), w.writes[1])
}

func TestAllocateSkipsIndexZero(t *testing.T) {
	b := bitmap.New(2)
	got, err := b.Allocate(1)
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, got)
}

func TestAllocateNoSpaceLeavesBitmapUnchanged(t *testing.T) {
	b := bitmap.New(2)
	_, err := b.Allocate(1)
	require.NoError(t, err)

	_, err = b.Allocate(1)
	assert.Error(t, err)
	assert.ErrorIs(t, err, vfs.ErrNoSpace)
}

func TestFreeReleasesClusters(t *testing.T) {
	b := bitmap.New(4)
	got, err := b.Allocate(2)
	require.NoError(t, err)

	require.NoError(t, b.Free(got))
	assert.False(t, b.IsAllocated(int(got[0])))
	assert.False(t, b.IsAllocated(int(got[1])))
}

func TestMarkAllocatedReservesSingleIndex(t *testing.T) {
	b := bitmap.New(4)
	require.NoError(t, b.MarkAllocated(0))
	assert.True(t, b.IsAllocated(0))

	got, err := b.Allocate(3)
	require.NoError(t, err)
	assert.NotContains(t, got, int32(0))
}

func TestAllocateRollsBackOnWriteFailure(t *testing.T) {
	w := &fakeWriter{failOn: 2}
	b := bitmap.New(4)
	b.BindIO(w)

	_, err := b.Allocate(3)
	assert.Error(t, err)
	assert.False(t, b.IsAllocated(1), "index 1 must be rolled back alongside the index that failed")
	assert.False(t, b.IsAllocated(2))
}
