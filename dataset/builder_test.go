package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/faforge/go-fafmaps/internal/scmaptest"
	"github.com/faforge/go-fafmaps/scmap/spec"
)

// writeTestMaps lays out synthetic downloaded maps under inputDir, one
// directory per map, and returns the directory names.
func writeTestMaps(t *testing.T, inputDir string) []string {
	t.Helper()

	names := []string{"setons_clutch.v0001", "winter_duel.v0002", "canis_river.v0001", "dry_basin.v0003"}
	for _, name := range names {
		f := scmaptest.Default(spec.VersionFA)
		if name == "winter_duel.v0002" {
			f.HasWater = false
			f.WaterElevation = 0
			f.WaterElevationDeep = 0
			f.WaterElevationAbyss = 0
		}
		scmaptest.WriteFile(t, filepath.Join(inputDir, name, name+".scmap"), f)
	}
	return names
}

func buildTestDataset(t *testing.T, params BuilderParams) (string, *Result) {
	t.Helper()

	inputDir := t.TempDir()
	writeTestMaps(t, inputDir)

	outputDir := t.TempDir()
	b, err := NewBuilder(outputDir, params)
	require.NoError(t, err)

	result, err := b.Build(inputDir)
	require.NoError(t, err)
	return outputDir, result
}

func TestBuildProducesDataset(t *testing.T) {
	outputDir, result := buildTestDataset(t, BuilderParams{Seed: 42})

	require.Equal(t, 4, result.TotalSamples)
	require.Equal(t, 4, result.Processed)
	require.Equal(t, 0, result.Failed)
	require.Equal(t, 0, result.Skipped)

	data, err := os.ReadFile(filepath.Join(outputDir, MetadataFilename))
	require.NoError(t, err)
	var metadata Metadata
	require.NoError(t, json.Unmarshal(data, &metadata))

	require.Equal(t, FormatVersion, metadata.Version)
	require.Equal(t, 4, metadata.TotalSamples)
	require.Len(t, metadata.Samples, 4)

	sample, ok := metadata.Samples["setons_clutch_v0001"]
	require.True(t, ok)
	require.Equal(t, 256, sample.MapSize)
	require.Equal(t, 5, sample.MapSizeKm)
	require.Equal(t, "temperate", sample.TerrainType)
	require.True(t, sample.HasWater)
	require.InDelta(t, 25, sample.WaterElevation, 1e-6)
	require.Equal(t, [2]int{17, 17}, sample.HeightmapShape)

	heightmap, err := os.ReadFile(filepath.Join(outputDir, filepath.FromSlash(sample.HeightmapFile)))
	require.NoError(t, err)
	require.Len(t, heightmap, 17*17*4)

	noWater, ok := metadata.Samples["winter_duel_v0002"]
	require.True(t, ok)
	require.False(t, noWater.HasWater)
}

func TestBuildSplitsCoverAllSamples(t *testing.T) {
	outputDir, result := buildTestDataset(t, BuilderParams{Seed: 42})

	data, err := os.ReadFile(filepath.Join(outputDir, SplitsFilename))
	require.NoError(t, err)
	var splits Splits
	require.NoError(t, json.Unmarshal(data, &splits))

	require.Equal(t, int64(42), splits.Seed)
	require.Equal(t, DefaultSplitRatios, splits.Ratios)

	all := append(append(append([]string{}, splits.Train...), splits.Val...), splits.Test...)
	require.Len(t, all, result.TotalSamples)
	sort.Strings(all)
	require.Equal(t, []string{"canis_river_v0001", "dry_basin_v0003", "setons_clutch_v0001", "winter_duel_v0002"}, all)

	require.Equal(t, len(splits.Train), result.SplitCounts["train"])
	require.Equal(t, len(splits.Val), result.SplitCounts["val"])
	require.Equal(t, len(splits.Test), result.SplitCounts["test"])
}

func TestBuildSplitsAreDeterministic(t *testing.T) {
	readSplits := func(dir string) Splits {
		data, err := os.ReadFile(filepath.Join(dir, SplitsFilename))
		require.NoError(t, err)
		var splits Splits
		require.NoError(t, json.Unmarshal(data, &splits))
		return splits
	}

	firstDir, _ := buildTestDataset(t, BuilderParams{Seed: 7})
	secondDir, _ := buildTestDataset(t, BuilderParams{Seed: 7})
	require.Equal(t, readSplits(firstDir), readSplits(secondDir))
}

func TestBuildWritesIndex(t *testing.T) {
	outputDir, _ := buildTestDataset(t, BuilderParams{Seed: 42})

	index, err := OpenIndex(filepath.Join(outputDir, IndexFilename))
	require.NoError(t, err)
	defer index.Close()

	count, err := index.Count()
	require.NoError(t, err)
	require.Equal(t, 4, count)

	sample, ok, err := index.Sample("setons_clutch_v0001")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 256, sample.MapSize)
	require.Equal(t, "temperate", sample.TerrainType)
	require.Equal(t, [2]int{17, 17}, sample.HeightmapShape)

	_, ok, err = index.Sample("no_such_map")
	require.NoError(t, err)
	require.False(t, ok)

	terrains, err := index.TerrainTypeCounts()
	require.NoError(t, err)
	require.Equal(t, map[string]int{"temperate": 4}, terrains)

	withWater, withoutWater, err := index.WaterCounts()
	require.NoError(t, err)
	require.Equal(t, 3, withWater)
	require.Equal(t, 1, withoutWater)
}

func TestBuildSizeFilter(t *testing.T) {
	_, result := buildTestDataset(t, BuilderParams{Seed: 42, MinSize: 512})

	require.Equal(t, 0, result.TotalSamples)
	require.Equal(t, 4, result.Skipped)
	require.Equal(t, 0, result.Failed)
}

func TestBuildRecordsDecodeFailures(t *testing.T) {
	inputDir := t.TempDir()
	writeTestMaps(t, inputDir)
	brokenDir := filepath.Join(inputDir, "broken_map.v0001")
	require.NoError(t, os.MkdirAll(brokenDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(brokenDir, "broken_map.scmap"), []byte("not a map"), 0o644))

	outputDir := t.TempDir()
	b, err := NewBuilder(outputDir, BuilderParams{Seed: 42})
	require.NoError(t, err)

	result, err := b.Build(inputDir)
	require.NoError(t, err)
	require.Equal(t, 4, result.Processed)
	require.Equal(t, 1, result.Failed)

	data, err := os.ReadFile(filepath.Join(outputDir, ErrorsFilename))
	require.NoError(t, err)
	var errorsFile struct {
		Errors []SampleError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(data, &errorsFile))
	require.Len(t, errorsFile.Errors, 1)
	require.Contains(t, errorsFile.Errors[0].Path, "broken_map.scmap")
	require.NotEmpty(t, errorsFile.Errors[0].Error)
}

func TestBuildReportsProgress(t *testing.T) {
	var last Progress
	_, result := buildTestDataset(t, BuilderParams{
		Seed:     42,
		Progress: func(p Progress) { last = p },
	})

	require.Equal(t, 4, last.Total)
	require.Equal(t, result.Processed, last.Processed)
	require.Equal(t, 0, last.Failed)
}

func TestNewBuilderRejectsBadRatios(t *testing.T) {
	_, err := NewBuilder(t.TempDir(), BuilderParams{
		Ratios: SplitRatios{Train: 0.5, Val: 0.2, Test: 0.2},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "sum to 1.0")
}

func TestBuildMissingInputDir(t *testing.T) {
	b, err := NewBuilder(t.TempDir(), BuilderParams{})
	require.NoError(t, err)

	_, err = b.Build(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}
