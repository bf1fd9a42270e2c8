// Package spec implements the wire-level details of the SCMap container
// format: the fixed header constants, the per-version body layout table and a
// little-endian byte cursor.
package spec

import (
	"maps"
	"slices"
)

const (
	Signature    int32 = 443572557 // "Map\x1a"
	VersionMajor int32 = 2
	Magic        int32 = -1091567891 // 0xBEEFFEED
	FormatType   int32 = 2
)

// Supported minor versions.
const (
	VersionSC int32 = 56 // Supreme Commander
	VersionFA int32 = 60 // Forged Alliance
)

// Layout describes the version-dependent parts of the map body: which
// trailing minimap fields are present and how many entries the terrain
// material table holds. All other fields are identical across versions.
type Layout struct {
	HasMinimapPreviewSize   bool
	HasCartographicReserved bool
	TextureEntryCount       int
	NormalEntryCount        int
}

var layouts = map[int32]Layout{
	VersionSC: {
		HasMinimapPreviewSize: true,
		TextureEntryCount:     10,
		NormalEntryCount:      9,
	},
	VersionFA: {
		HasMinimapPreviewSize:   true,
		HasCartographicReserved: true,
		TextureEntryCount:       10,
		NormalEntryCount:        9,
	},
}

// LayoutFor resolves the body layout for a minor version. The second return
// value reports whether the version is supported.
func LayoutFor(version int32) (Layout, bool) {
	layout, ok := layouts[version]
	return layout, ok
}

// SupportedVersions lists the known minor versions in ascending order.
func SupportedVersions() []int32 {
	return slices.Sorted(maps.Keys(layouts))
}
