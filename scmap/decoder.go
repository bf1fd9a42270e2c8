package scmap

import (
	"fmt"
	"io"
	"os"

	"github.com/faforge/go-fafmaps/scmap/spec"
)

// Sizes of the opaque regions the decoder consumes without interpreting.
const (
	// Ambient, sun and shadow-fill colors, sun direction, sun multiplier.
	lightingSettingsSize = 52
	// Surface color and lerp, refraction and fresnel coefficients,
	// reflection, shininess and strength scalars, a second sun direction and
	// color, sun reflection and glow.
	waterShadingSize = 80
	// Four wave-normal repeat rates.
	waveNormalRepeatsSize = 16
	// Position, rotation and velocity, lifetime, period, scale and
	// frame-rate ranges, strip count.
	waveGeneratorSize = 68
	// Contour interval and the minimap color set.
	minimapMetadataSize = 28
)

// maxHeightmapGridSize bounds the declared heightmap grid. The largest real
// maps use a 4096 grid; anything far beyond that is a corrupt or hostile
// stream, and the bound keeps sample allocation proportionate to real data.
const maxHeightmapGridSize = 16384

// DecodeFile decodes a single .scmap file.
func DecodeFile(path string) (*Map, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	m, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Decode reads one complete .scmap stream and returns the decoded map.
func Decode(r io.Reader) (*Map, error) {
	c := spec.NewCursor(r)

	if err := expectI32(c, "signature", spec.Signature); err != nil {
		return nil, err
	}
	if err := expectI32(c, "major version", spec.VersionMajor); err != nil {
		return nil, err
	}
	if err := expectI32(c, "magic", spec.Magic); err != nil {
		return nil, err
	}
	if err := expectI32(c, "format type", spec.FormatType); err != nil {
		return nil, err
	}

	width, err := c.ReadF32()
	if err != nil {
		return nil, err
	}
	height, err := c.ReadF32()
	if err != nil {
		return nil, err
	}

	// Two reserved fields, values not validated.
	if _, err := c.ReadI32(); err != nil {
		return nil, err
	}
	if _, err := c.ReadI16(); err != nil {
		return nil, err
	}

	// The embedded preview image is opaque and never decoded.
	previewLength, err := c.ReadI32()
	if err != nil {
		return nil, err
	}
	if previewLength < 0 {
		return nil, &spec.FormatError{Field: "preview length", Expected: "non-negative byte count", Actual: previewLength}
	}
	if err := c.Skip(int(previewLength)); err != nil {
		return nil, err
	}

	version, err := c.ReadI32()
	if err != nil {
		return nil, err
	}
	layout, ok := spec.LayoutFor(version)
	if !ok {
		return nil, &spec.FormatError{Field: "minor version", Expected: spec.SupportedVersions(), Actual: version}
	}
	if layout.NormalEntryCount > layout.TextureEntryCount {
		// The positional stratum pairing below has no defined meaning when
		// normal entries outnumber texture entries.
		return nil, &spec.FormatError{
			Field:    "stratum table",
			Expected: fmt.Sprintf("at most %d normal entries", layout.TextureEntryCount),
			Actual:   layout.NormalEntryCount,
		}
	}

	heightmap, scale, err := decodeHeightmap(c)
	if err != nil {
		return nil, err
	}

	// Heightmap validation byte, not verified.
	if _, err := c.ReadU8(); err != nil {
		return nil, err
	}

	// Shader, background and sky-cube paths are not retained.
	for range 3 {
		if _, err := c.ReadString(); err != nil {
			return nil, err
		}
	}

	// Cube maps: name + path per entry.
	if err := skipRecords(c, 2, 0); err != nil {
		return nil, err
	}

	if err := c.Skip(lightingSettingsSize); err != nil {
		return nil, err
	}

	water, err := decodeWater(c)
	if err != nil {
		return nil, err
	}

	if err := c.Skip(waterShadingSize); err != nil {
		return nil, err
	}
	// Water ramp texture path, not retained.
	if _, err := c.ReadString(); err != nil {
		return nil, err
	}
	if err := c.Skip(waveNormalRepeatsSize); err != nil {
		return nil, err
	}

	// Wave generators: texture + ramp path, then the numeric block.
	if err := skipRecords(c, 2, waveGeneratorSize); err != nil {
		return nil, err
	}

	if err := c.Skip(minimapMetadataSize); err != nil {
		return nil, err
	}
	if layout.HasMinimapPreviewSize {
		if _, err := c.ReadF32(); err != nil {
			return nil, err
		}
	}
	if layout.HasCartographicReserved {
		if err := c.Skip(4); err != nil {
			return nil, err
		}
	}

	strata, err := decodeStrata(c, layout)
	if err != nil {
		return nil, err
	}

	texturePaths := make([]string, 0, 2*len(strata))
	for _, stratum := range strata {
		if stratum.TexturePath != "" {
			texturePaths = append(texturePaths, stratum.TexturePath)
		}
		if stratum.NormalPath != "" {
			texturePaths = append(texturePaths, stratum.NormalPath)
		}
	}

	return &Map{
		Version:        version,
		Width:          width,
		Height:         height,
		Heightmap:      heightmap,
		HeightmapScale: scale,
		Water:          water,
		WaterElevation: water.Elevation,
		Strata:         strata,
		TexturePaths:   texturePaths,
		TerrainType:    InferTerrainType(texturePaths),
		MapSizeKm:      int(float64(width) / 51.2),
	}, nil
}

func expectI32(c *spec.Cursor, field string, want int32) error {
	value, err := c.ReadI32()
	if err != nil {
		return err
	}
	if value != want {
		return &spec.FormatError{Field: field, Expected: want, Actual: value}
	}
	return nil
}

func decodeHeightmap(c *spec.Cursor) (Heightmap, float32, error) {
	gridWidth, err := c.ReadI32()
	if err != nil {
		return Heightmap{}, 0, err
	}
	gridHeight, err := c.ReadI32()
	if err != nil {
		return Heightmap{}, 0, err
	}
	if gridWidth < 0 || gridHeight < 0 || gridWidth > maxHeightmapGridSize || gridHeight > maxHeightmapGridSize {
		return Heightmap{}, 0, &spec.FormatError{
			Field:    "heightmap dimensions",
			Expected: fmt.Sprintf("grid size between 0 and %d", maxHeightmapGridSize),
			Actual:   fmt.Sprintf("%dx%d", gridWidth, gridHeight),
		}
	}
	scale, err := c.ReadF32()
	if err != nil {
		return Heightmap{}, 0, err
	}

	// The grid has one more sample than the declared size along each axis.
	w, h := int(gridWidth)+1, int(gridHeight)+1
	samples, err := c.ReadU16Array(w * h)
	if err != nil {
		return Heightmap{}, 0, err
	}
	return Heightmap{Width: w, Height: h, Samples: samples}, scale, nil
}

func decodeWater(c *spec.Cursor) (WaterSettings, error) {
	flag, err := c.ReadU8()
	if err != nil {
		return WaterSettings{}, err
	}
	var elevations [3]float32
	for i := range elevations {
		if elevations[i], err = c.ReadF32(); err != nil {
			return WaterSettings{}, err
		}
	}
	return WaterSettings{
		HasWater:       flag != 0,
		Elevation:      elevations[0],
		ElevationDeep:  elevations[1],
		ElevationAbyss: elevations[2],
	}, nil
}

func decodeStrata(c *spec.Cursor, layout spec.Layout) ([]StratumLayer, error) {
	readEntries := func(count int) ([]StratumLayer, error) {
		entries := make([]StratumLayer, count)
		for i := range entries {
			path, err := c.ReadString()
			if err != nil {
				return nil, err
			}
			scale, err := c.ReadF32()
			if err != nil {
				return nil, err
			}
			entries[i] = StratumLayer{TexturePath: path, TextureScale: scale}
		}
		return entries, nil
	}

	strata, err := readEntries(layout.TextureEntryCount)
	if err != nil {
		return nil, err
	}
	normals, err := readEntries(layout.NormalEntryCount)
	if err != nil {
		return nil, err
	}

	// Normal entries pair positionally with texture entries; surplus texture
	// entries keep empty normal fields.
	for i, normal := range normals {
		strata[i].NormalPath = normal.TexturePath
		strata[i].NormalScale = normal.TextureScale
	}
	return strata, nil
}

// skipRecords reads a 4-byte record count, then discards that many records,
// each being stringCount null-terminated strings followed by byteCount opaque
// bytes.
func skipRecords(c *spec.Cursor, stringCount, byteCount int) error {
	count, err := c.ReadI32()
	if err != nil {
		return err
	}
	for range count {
		for range stringCount {
			if _, err := c.ReadString(); err != nil {
				return err
			}
		}
		if err := c.Skip(byteCount); err != nil {
			return err
		}
	}
	return nil
}
