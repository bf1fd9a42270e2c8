package dataset

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateCleanDataset(t *testing.T) {
	outputDir, result := buildTestDataset(t, BuilderParams{Seed: 42})

	report, err := NewValidator(outputDir).Validate()
	require.NoError(t, err)

	require.True(t, report.Valid)
	require.Equal(t, result.TotalSamples, report.TotalSamples)
	require.Equal(t, result.TotalSamples, report.ValidSamples)
	require.Zero(t, report.InvalidSamples)
	require.Empty(t, report.SampleErrors)
	require.Empty(t, report.SplitErrors)
	require.Empty(t, report.MetadataErrors)
}

func TestValidateTruncatedHeightmap(t *testing.T) {
	outputDir, _ := buildTestDataset(t, BuilderParams{Seed: 42})

	path := filepath.Join(outputDir, heightmapsDir, "setons_clutch_v0001.f32")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-8], 0o644))

	report, err := NewValidator(outputDir).Validate()
	require.NoError(t, err)

	require.False(t, report.Valid)
	require.Equal(t, 1, report.InvalidSamples)
	require.Len(t, report.SampleErrors, 1)
	require.Equal(t, "setons_clutch_v0001", report.SampleErrors[0].SampleID)
	require.Contains(t, report.SampleErrors[0].Errors[0], "bytes")
}

func TestValidateOutOfRangeValues(t *testing.T) {
	outputDir, _ := buildTestDataset(t, BuilderParams{Seed: 42})

	path := filepath.Join(outputDir, heightmapsDir, "canis_river_v0001.f32")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[:4], math.Float32bits(2.5))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	report, err := NewValidator(outputDir).Validate()
	require.NoError(t, err)

	require.False(t, report.Valid)
	require.Len(t, report.SampleErrors, 1)
	require.Equal(t, "canis_river_v0001", report.SampleErrors[0].SampleID)
	require.Contains(t, report.SampleErrors[0].Errors[0], "outside [0, 1]")
}

func TestValidateSplitOverlap(t *testing.T) {
	outputDir, _ := buildTestDataset(t, BuilderParams{Seed: 42})

	path := filepath.Join(outputDir, SplitsFilename)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var splits Splits
	require.NoError(t, json.Unmarshal(data, &splits))
	require.NotEmpty(t, splits.Train)
	splits.Test = append(splits.Test, splits.Train[0])

	edited, err := json.Marshal(splits)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, edited, 0o644))

	report, err := NewValidator(outputDir).Validate()
	require.NoError(t, err)

	require.False(t, report.Valid)
	require.NotEmpty(t, report.SplitErrors)
	require.Contains(t, report.SplitErrors[0], "overlap")
}

func TestValidateUnknownSampleInSplits(t *testing.T) {
	outputDir, _ := buildTestDataset(t, BuilderParams{Seed: 42})

	path := filepath.Join(outputDir, SplitsFilename)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var splits Splits
	require.NoError(t, json.Unmarshal(data, &splits))
	splits.Val = append(splits.Val, "phantom_map_v0001")

	edited, err := json.Marshal(splits)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, edited, 0o644))

	report, err := NewValidator(outputDir).Validate()
	require.NoError(t, err)

	require.False(t, report.Valid)
	require.NotEmpty(t, report.SplitErrors)
	require.Contains(t, report.SplitErrors[0], "phantom_map_v0001")
}

func TestValidateRejectsMalformedMetadata(t *testing.T) {
	outputDir, _ := buildTestDataset(t, BuilderParams{Seed: 42})

	path := filepath.Join(outputDir, MetadataFilename)
	require.NoError(t, os.WriteFile(path, []byte(`{"version": "1.0"}`), 0o644))

	report, err := NewValidator(outputDir).Validate()
	require.NoError(t, err)

	require.False(t, report.Valid)
	require.NotEmpty(t, report.MetadataErrors)
	require.Contains(t, report.MetadataErrors[0], "schema")
}

func TestValidateMissingMetadata(t *testing.T) {
	report, err := NewValidator(t.TempDir()).Validate()
	require.NoError(t, err)

	require.False(t, report.Valid)
	require.NotEmpty(t, report.MetadataErrors)
	require.Contains(t, report.MetadataErrors[0], MetadataFilename)
}

func TestValidateMissingDatasetDir(t *testing.T) {
	_, err := NewValidator(filepath.Join(t.TempDir(), "missing")).Validate()
	require.Error(t, err)
}
