// Package scmap decodes Supreme Commander / Forged Alliance .scmap terrain
// containers into an in-memory map record.
//
// Decoding is all-or-nothing: a stream either yields a fully populated Map or
// an error wrapping spec.ErrFormat (semantically invalid data) or
// spec.ErrTruncated (input ended early). A Map is never mutated after Decode
// returns, so maps may be decoded concurrently by independent callers.
package scmap

// Heightmap is a grid of elevation samples, row-major with Height rows of
// Width samples each. Dimensions are one greater than the grid size declared
// in the stream.
type Heightmap struct {
	Width   int
	Height  int
	Samples []uint16
}

// At returns the sample at column x, row y.
func (h Heightmap) At(x, y int) uint16 {
	return h.Samples[y*h.Width+x]
}

// WaterSettings holds the decoded water configuration. Elevation always
// equals the legacy top-level Map.WaterElevation; both come from the same
// stream read.
type WaterSettings struct {
	HasWater       bool
	Elevation      float32
	ElevationDeep  float32
	ElevationAbyss float32
}

// StratumLayer is one terrain texture-material layer: an albedo texture with
// its tiling scale and an optional normal map. Layers with no normal entry
// keep the zero values.
type StratumLayer struct {
	TexturePath  string
	TextureScale float32
	NormalPath   string
	NormalScale  float32
}

// Map is a fully decoded .scmap record.
type Map struct {
	// Version is the minor format version (spec.VersionSC or spec.VersionFA).
	Version int32

	// Width and Height are the map dimensions in game units.
	Width  float32
	Height float32

	Heightmap      Heightmap
	HeightmapScale float32

	Water WaterSettings
	// WaterElevation mirrors Water.Elevation for legacy consumers.
	WaterElevation float32

	// Strata lists the terrain material layers in on-disk order.
	Strata []StratumLayer
	// TexturePaths flattens the non-empty texture and normal paths of Strata
	// in stratum order, texture before normal within a stratum.
	TexturePaths []string

	// TerrainType is the classification inferred from TexturePaths.
	TerrainType string
	// MapSizeKm is the human-facing kilometer size bucket, Width/51.2 truncated.
	MapSizeKm int
}
