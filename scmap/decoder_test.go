package scmap_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/faforge/go-fafmaps/internal/scmaptest"
	"github.com/faforge/go-fafmaps/scmap"
	"github.com/faforge/go-fafmaps/scmap/spec"
)

func TestDecodeMinimal(t *testing.T) {
	for _, version := range spec.SupportedVersions() {
		t.Run(versionName(version), func(t *testing.T) {
			fixture := scmaptest.Default(version)
			m, err := scmap.Decode(bytes.NewReader(fixture.Bytes()))
			require.NoError(t, err)

			require.Equal(t, version, m.Version)
			require.Equal(t, float32(256), m.Width)
			require.Equal(t, float32(256), m.Height)
			require.Equal(t, 17, m.Heightmap.Width)
			require.Equal(t, 17, m.Heightmap.Height)
			require.Len(t, m.Heightmap.Samples, 17*17)
			require.Equal(t, float32(1.0/128.0), m.HeightmapScale)
			require.Equal(t, 5, m.MapSizeKm)
		})
	}
}

func TestDecodeWaterSettings(t *testing.T) {
	fixture := scmaptest.Default(spec.VersionFA)
	fixture.WaterElevation = 17.5
	fixture.WaterElevationDeep = 12.25
	fixture.WaterElevationAbyss = 3.5

	m, err := scmap.Decode(bytes.NewReader(fixture.Bytes()))
	require.NoError(t, err)

	require.True(t, m.Water.HasWater)
	require.Equal(t, float32(17.5), m.Water.Elevation)
	require.Equal(t, float32(12.25), m.Water.ElevationDeep)
	require.Equal(t, float32(3.5), m.Water.ElevationAbyss)
	// The legacy field and the water config come from the same read.
	require.Equal(t, m.Water.Elevation, m.WaterElevation)

	fixture.HasWater = false
	m, err = scmap.Decode(bytes.NewReader(fixture.Bytes()))
	require.NoError(t, err)
	require.False(t, m.Water.HasWater)
}

func TestDecodeHeightmapSamples(t *testing.T) {
	fixture := scmaptest.Default(spec.VersionSC)
	fixture.GridSize = 4
	samples := make([]uint16, 25)
	for i := range samples {
		samples[i] = uint16(i * 1000)
	}
	samples[24] = 65535
	fixture.Samples = samples

	m, err := scmap.Decode(bytes.NewReader(fixture.Bytes()))
	require.NoError(t, err)

	require.Equal(t, 5, m.Heightmap.Width)
	require.Equal(t, 5, m.Heightmap.Height)
	require.Equal(t, samples, m.Heightmap.Samples)
	require.Equal(t, uint16(65535), m.Heightmap.At(4, 4))
	require.Equal(t, uint16(5000), m.Heightmap.At(0, 1))
}

func TestDecodeStrata(t *testing.T) {
	fixture := scmaptest.Default(spec.VersionSC)
	m, err := scmap.Decode(bytes.NewReader(fixture.Bytes()))
	require.NoError(t, err)

	require.Len(t, m.Strata, 10)
	require.Equal(t, "/env/evergreen/layers/rock_albedo.dds", m.Strata[0].TexturePath)
	require.Equal(t, float32(4), m.Strata[0].TextureScale)
	require.Equal(t, "/env/evergreen/layers/rock_normal.dds", m.Strata[0].NormalPath)
	require.Equal(t, float32(4), m.Strata[0].NormalScale)

	// The fourth stratum has a texture but no normal; trailing strata are empty.
	require.Equal(t, "/env/evergreen/layers/dirt_albedo.dds", m.Strata[3].TexturePath)
	require.Empty(t, m.Strata[3].NormalPath)
	require.Zero(t, m.Strata[3].NormalScale)
	require.Empty(t, m.Strata[9].TexturePath)
}

func TestDecodeTexturePathsFlattened(t *testing.T) {
	fixture := scmaptest.Default(spec.VersionFA)
	m, err := scmap.Decode(bytes.NewReader(fixture.Bytes()))
	require.NoError(t, err)

	// Four texture paths plus three normals, interleaved per stratum.
	require.Len(t, m.TexturePaths, 7)

	var want []string
	for _, stratum := range m.Strata {
		if stratum.TexturePath != "" {
			want = append(want, stratum.TexturePath)
		}
		if stratum.NormalPath != "" {
			want = append(want, stratum.NormalPath)
		}
	}
	if diff := cmp.Diff(want, m.TexturePaths); diff != "" {
		t.Errorf("TexturePaths mismatch (-want +got):\n%s", diff)
	}

	// Keyword scoring over those 7 paths: rock/grass/dirt outnumber sand.
	require.Equal(t, "temperate", m.TerrainType)
}

func TestDecodeWithSubRecords(t *testing.T) {
	fixture := scmaptest.Default(spec.VersionFA)
	fixture.CubeMaps = [][2]string{
		{"<default>", "/textures/environment/defaultenvcube.dds"},
		{"<ocean>", "/textures/environment/oceanenvcube.dds"},
	}
	fixture.WaveGenerators = 3

	m, err := scmap.Decode(bytes.NewReader(fixture.Bytes()))
	require.NoError(t, err)
	// Sub-records are consumed but not retained; the strata table after them
	// must still be aligned.
	require.Len(t, m.Strata, 10)
	require.Len(t, m.TexturePaths, 7)
}

func TestDecodeSignatureMismatch(t *testing.T) {
	valid := scmaptest.Default(spec.VersionSC).Bytes()

	for _, wrong := range []int32{0, 1, math.MaxInt32} {
		data := bytes.Clone(valid)
		binary.LittleEndian.PutUint32(data[0:4], uint32(wrong))

		_, err := scmap.Decode(bytes.NewReader(data))
		require.ErrorIs(t, err, spec.ErrFormat)

		var formatErr *spec.FormatError
		require.ErrorAs(t, err, &formatErr)
		require.Equal(t, "signature", formatErr.Field)
		require.Equal(t, spec.Signature, formatErr.Expected)
		require.Equal(t, wrong, formatErr.Actual)
	}
}

func TestDecodeHeaderFieldMismatch(t *testing.T) {
	for _, tc := range []struct {
		field  string
		offset int
	}{
		{"major version", 4},
		{"magic", 8},
		{"format type", 12},
	} {
		t.Run(tc.field, func(t *testing.T) {
			data := scmaptest.Default(spec.VersionSC).Bytes()
			binary.LittleEndian.PutUint32(data[tc.offset:], 0xDEAD)

			_, err := scmap.Decode(bytes.NewReader(data))
			var formatErr *spec.FormatError
			require.ErrorAs(t, err, &formatErr)
			require.Equal(t, tc.field, formatErr.Field)
		})
	}
}

func TestDecodeUnsupportedMinorVersion(t *testing.T) {
	fixture := scmaptest.Default(spec.VersionSC)
	fixture.Version = 42
	_, err := scmap.Decode(bytes.NewReader(fixture.Bytes()))

	var formatErr *spec.FormatError
	require.ErrorAs(t, err, &formatErr)
	require.Equal(t, "minor version", formatErr.Field)
	require.Equal(t, []int32{56, 60}, formatErr.Expected)
	require.Equal(t, int32(42), formatErr.Actual)
}

func TestDecodeOversizedHeightmapGrid(t *testing.T) {
	// Hostile grid dimensions must surface as a decode error, not exhaust
	// memory. Empty Samples keeps the fixture renderable; decoding rejects
	// the dimensions before any sample read.
	for name, gridSize := range map[string]int32{
		"max int32":     math.MaxInt32,
		"just over cap": 16385,
		"negative":      -1,
	} {
		t.Run(name, func(t *testing.T) {
			fixture := scmaptest.Default(spec.VersionFA)
			fixture.GridSize = gridSize
			fixture.Samples = []uint16{}

			_, err := scmap.Decode(bytes.NewReader(fixture.Bytes()))
			require.ErrorIs(t, err, spec.ErrFormat)

			var formatErr *spec.FormatError
			require.ErrorAs(t, err, &formatErr)
			require.Equal(t, "heightmap dimensions", formatErr.Field)
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	valid := scmaptest.Default(spec.VersionFA).Bytes()

	// Any strict prefix must fail with a truncation error, never succeed.
	for offset := 0; offset < len(valid); offset++ {
		_, err := scmap.Decode(bytes.NewReader(valid[:offset]))
		if err == nil {
			t.Fatalf("decode of %d-byte prefix (of %d) unexpectedly succeeded", offset, len(valid))
		}
		require.ErrorIs(t, err, spec.ErrTruncated, "prefix length %d", offset)
	}

	_, err := scmap.Decode(bytes.NewReader(valid))
	require.NoError(t, err)
}

func TestDecodeVersionGatedTrailer(t *testing.T) {
	// The two fixtures differ only in the version field and the trailing
	// version-gated bytes; the strata table must decode identically.
	sc, err := scmap.Decode(bytes.NewReader(scmaptest.Default(spec.VersionSC).Bytes()))
	require.NoError(t, err)
	fa, err := scmap.Decode(bytes.NewReader(scmaptest.Default(spec.VersionFA).Bytes()))
	require.NoError(t, err)

	require.NotEqual(t, sc.Version, fa.Version)
	if diff := cmp.Diff(sc.Strata, fa.Strata); diff != "" {
		t.Errorf("strata mismatch across versions (-sc +fa):\n%s", diff)
	}
	if diff := cmp.Diff(sc.TexturePaths, fa.TexturePaths); diff != "" {
		t.Errorf("texture paths mismatch across versions (-sc +fa):\n%s", diff)
	}
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.scmap")
	scmaptest.WriteFile(t, path, scmaptest.Default(spec.VersionSC))

	m, err := scmap.DecodeFile(path)
	require.NoError(t, err)
	require.Equal(t, spec.VersionSC, m.Version)
}

func TestDecodeFileNotFound(t *testing.T) {
	_, err := scmap.DecodeFile(filepath.Join(t.TempDir(), "missing.scmap"))
	require.Error(t, err)
	// A missing file is an I/O condition, not a decode failure.
	require.NotErrorIs(t, err, spec.ErrFormat)
	require.NotErrorIs(t, err, spec.ErrTruncated)
}

func versionName(version int32) string {
	switch version {
	case spec.VersionSC:
		return "sc"
	case spec.VersionFA:
		return "fa"
	default:
		return "unknown"
	}
}
