package spec_test

import (
	"testing"

	"github.com/faforge/go-fafmaps/scmap/spec"
	"github.com/stretchr/testify/require"
)

func TestLayoutFor(t *testing.T) {
	sc, ok := spec.LayoutFor(spec.VersionSC)
	require.True(t, ok)
	require.True(t, sc.HasMinimapPreviewSize)
	require.False(t, sc.HasCartographicReserved)
	require.Equal(t, 10, sc.TextureEntryCount)
	require.Equal(t, 9, sc.NormalEntryCount)

	fa, ok := spec.LayoutFor(spec.VersionFA)
	require.True(t, ok)
	require.True(t, fa.HasMinimapPreviewSize)
	require.True(t, fa.HasCartographicReserved)
	require.Equal(t, 10, fa.TextureEntryCount)
	require.Equal(t, 9, fa.NormalEntryCount)

	_, ok = spec.LayoutFor(57)
	require.False(t, ok)
}

func TestSupportedVersions(t *testing.T) {
	require.Equal(t, []int32{spec.VersionSC, spec.VersionFA}, spec.SupportedVersions())
}
