// Package scmaptest builds synthetic .scmap byte streams for tests.
package scmaptest

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/faforge/go-fafmaps/scmap/spec"
)

// Fixture describes a synthetic map. The zero value is not useful; call
// Default (or fill the fields) and then Bytes.
type Fixture struct {
	Version        int32
	MapSize        float32
	GridSize       int32 // heightmap holds (GridSize+1)^2 samples
	HeightmapScale float32
	Samples        []uint16 // optional; generated flat when nil
	PreviewBytes   []byte

	HasWater            bool
	WaterElevation      float32
	WaterElevationDeep  float32
	WaterElevationAbyss float32

	CubeMaps       [][2]string // name, path pairs
	WaveGenerators int

	// TexturePaths and NormalPaths are padded with empty entries up to the
	// version's table counts.
	TexturePaths []string
	NormalPaths  []string
	TextureScale float32
}

// Default returns a small well-formed fixture: a 5 km map with a 17x17
// heightmap, four populated texture entries and three populated normals.
func Default(version int32) Fixture {
	return Fixture{
		Version:             version,
		MapSize:             256,
		GridSize:            16,
		HeightmapScale:      1.0 / 128.0,
		PreviewBytes:        bytes.Repeat([]byte{0x42}, 32),
		HasWater:            true,
		WaterElevation:      25,
		WaterElevationDeep:  20,
		WaterElevationAbyss: 10,
		TexturePaths: []string{
			"/env/evergreen/layers/rock_albedo.dds",
			"/env/evergreen/layers/grass_albedo.dds",
			"/env/evergreen/layers/sand_albedo.dds",
			"/env/evergreen/layers/dirt_albedo.dds",
		},
		NormalPaths: []string{
			"/env/evergreen/layers/rock_normal.dds",
			"/env/evergreen/layers/grass_normal.dds",
			"/env/evergreen/layers/sand_normal.dds",
		},
		TextureScale: 4,
	}
}

// Bytes renders the fixture to a complete .scmap byte stream.
func (f Fixture) Bytes() []byte {
	layout, ok := spec.LayoutFor(f.Version)
	if !ok {
		// Unknown versions get the current-generation table so that decoder
		// version validation can be exercised on otherwise complete streams.
		layout = spec.Layout{HasMinimapPreviewSize: true, TextureEntryCount: 10, NormalEntryCount: 9}
	}

	w := &writer{}
	w.i32(spec.Signature)
	w.i32(spec.VersionMajor)
	w.i32(spec.Magic)
	w.i32(spec.FormatType)
	w.f32(f.MapSize) // width
	w.f32(f.MapSize) // height
	w.i32(0)         // reserved
	w.i16(0)         // reserved

	w.i32(int32(len(f.PreviewBytes)))
	w.raw(f.PreviewBytes)

	w.i32(f.Version)

	w.i32(f.GridSize)
	w.i32(f.GridSize)
	w.f32(f.HeightmapScale)
	dim := int(f.GridSize) + 1
	samples := f.Samples
	if samples == nil {
		samples = flatTerrain(dim)
	}
	for _, s := range samples {
		w.u16(s)
	}

	w.u8(0) // validation byte

	w.str("/env/shaders/terrain.fx")
	w.str("/textures/environment/background.dds")
	w.str("/textures/environment/sky_cube.dds")

	w.i32(int32(len(f.CubeMaps)))
	for _, cm := range f.CubeMaps {
		w.str(cm[0])
		w.str(cm[1])
	}

	w.zeros(52) // lighting settings

	if f.HasWater {
		w.u8(1)
	} else {
		w.u8(0)
	}
	w.f32(f.WaterElevation)
	w.f32(f.WaterElevationDeep)
	w.f32(f.WaterElevationAbyss)

	w.zeros(80) // water shading parameters
	w.str("/textures/engine/waterramp.dds")
	w.zeros(16) // wave normal repeats

	w.i32(int32(f.WaveGenerators))
	for range f.WaveGenerators {
		w.str("/textures/engine/waves.dds")
		w.str("/textures/engine/waverampnew.dds")
		w.zeros(68)
	}

	w.zeros(28) // minimap metadata
	if layout.HasMinimapPreviewSize {
		w.f32(1024)
	}
	if layout.HasCartographicReserved {
		w.zeros(4)
	}

	scale := f.TextureScale
	if scale == 0 {
		scale = 4
	}
	writeEntries := func(paths []string, count int) {
		for i := range count {
			if i < len(paths) {
				w.str(paths[i])
			} else {
				w.str("")
			}
			w.f32(scale)
		}
	}
	writeEntries(f.TexturePaths, layout.TextureEntryCount)
	writeEntries(f.NormalPaths, layout.NormalEntryCount)

	return w.buf.Bytes()
}

// flatTerrain builds a dim x dim bowl-shaped sample grid.
func flatTerrain(dim int) []uint16 {
	samples := make([]uint16, dim*dim)
	center := dim / 2
	for y := range dim {
		for x := range dim {
			dist := max(abs(x-center), abs(y-center))
			samples[y*dim+x] = uint16(max(0, 32768-dist*100))
		}
	}
	return samples
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

type writer struct {
	buf bytes.Buffer
}

func (w *writer) raw(data []byte) { w.buf.Write(data) }

func (w *writer) u8(v uint8) { w.buf.WriteByte(v) }

func (w *writer) i16(v int16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(v))
	w.buf.Write(b[:])
}

func (w *writer) u16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) i32(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	w.buf.Write(b[:])
}

func (w *writer) f32(v float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	w.buf.Write(b[:])
}

func (w *writer) str(s string) {
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
}

func (w *writer) zeros(n int) {
	w.buf.Write(make([]byte, n))
}
