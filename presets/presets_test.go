package presets_test

import (
	"testing"

	vfs "github.com/ButterDevelop/c-virtual-file-system"
	"github.com/ButterDevelop/c-virtual-file-system/presets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKnownSlug(t *testing.T) {
	p, err := presets.Lookup("tiny")
	require.Nil(t, err)
	assert.Equal(t, "tiny", p.Slug)
	assert.EqualValues(t, 102400, p.SizeBytes)
}

func TestLookupUnknownSlugIsInvalidArgument(t *testing.T) {
	_, err := presets.Lookup("does-not-exist")
	assert.ErrorIs(t, err, vfs.ErrInvalidArgument)
}

func TestAllReturnsEveryRow(t *testing.T) {
	all := presets.All()
	assert.Len(t, all, 5)

	seen := make(map[string]bool, len(all))
	for _, p := range all {
		seen[p.Slug] = true
	}
	for _, slug := range []string{"tiny", "floppy", "small", "medium", "large"} {
		assert.True(t, seen[slug], slug)
	}
}

func TestGeometryMatchesComputeGeometry(t *testing.T) {
	p, err := presets.Lookup("small")
	require.Nil(t, err)

	sb, gerr := p.Geometry()
	require.Nil(t, gerr)
	assert.EqualValues(t, p.SizeBytes, sb.DiskSize)
}
