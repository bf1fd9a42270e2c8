package dataset

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// HeightmapStats aggregates normalized elevation values across the dataset.
type HeightmapStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Statistics summarizes a built dataset.
type Statistics struct {
	DatasetPath    string          `json:"dataset_path"`
	TotalSamples   int             `json:"total_samples"`
	SplitCounts    map[string]int  `json:"splits"`
	MapSizes       map[int]int     `json:"map_sizes"`
	TerrainTypes   map[string]int  `json:"terrain_types"`
	WaterCounts    map[string]int  `json:"water"`
	HeightmapStats *HeightmapStats `json:"heightmap_stats,omitempty"`
}

// Human-facing labels for the common map sizes.
var sizeLabels = map[int]string{
	128:  "2.5km",
	256:  "5km",
	512:  "10km",
	1024: "20km",
	2048: "40km",
}

// CollectStats computes Statistics for a dataset directory. Sample
// distributions come from the SQLite index when present and fall back to
// metadata.json; heightmap value statistics stream over the persisted files.
func CollectStats(datasetDir string) (*Statistics, error) {
	metadata, err := readMetadata(datasetDir)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		DatasetPath:  datasetDir,
		TotalSamples: len(metadata.Samples),
	}

	if err := stats.collectDistributions(datasetDir, metadata); err != nil {
		return nil, err
	}
	if err := stats.collectSplitCounts(datasetDir); err != nil {
		return nil, err
	}
	if err := stats.collectHeightmapStats(datasetDir, metadata); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Statistics) collectDistributions(datasetDir string, metadata *Metadata) error {
	indexPath := filepath.Join(datasetDir, IndexFilename)
	if _, err := os.Stat(indexPath); err == nil {
		index, err := OpenIndex(indexPath)
		if err != nil {
			return err
		}
		defer index.Close()

		if s.TerrainTypes, err = index.TerrainTypeCounts(); err != nil {
			return err
		}
		if s.MapSizes, err = index.MapSizeCounts(); err != nil {
			return err
		}
		withWater, withoutWater, err := index.WaterCounts()
		if err != nil {
			return err
		}
		s.WaterCounts = map[string]int{"with_water": withWater, "without_water": withoutWater}
		return nil
	}

	s.TerrainTypes = make(map[string]int)
	s.MapSizes = make(map[int]int)
	s.WaterCounts = map[string]int{"with_water": 0, "without_water": 0}
	for _, sample := range metadata.Samples {
		s.TerrainTypes[sample.TerrainType]++
		s.MapSizes[sample.MapSize]++
		if sample.HasWater {
			s.WaterCounts["with_water"]++
		} else {
			s.WaterCounts["without_water"]++
		}
	}
	return nil
}

func (s *Statistics) collectSplitCounts(datasetDir string) error {
	data, err := os.ReadFile(filepath.Join(datasetDir, SplitsFilename))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var splits Splits
	if err := json.Unmarshal(data, &splits); err != nil {
		return err
	}
	s.SplitCounts = map[string]int{
		"train": len(splits.Train),
		"val":   len(splits.Val),
		"test":  len(splits.Test),
	}
	return nil
}

func (s *Statistics) collectHeightmapStats(datasetDir string, metadata *Metadata) error {
	var (
		count    int64
		sum      float64
		sumSq    float64
		minValue = math.Inf(1)
		maxValue = math.Inf(-1)
	)

	for _, sample := range metadata.Samples {
		data, err := os.ReadFile(filepath.Join(datasetDir, filepath.FromSlash(sample.HeightmapFile)))
		if err != nil {
			return err
		}
		values := make([]float32, len(data)/4)
		if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, values); err != nil {
			return err
		}
		for _, value := range values {
			f := float64(value)
			count++
			sum += f
			sumSq += f * f
			minValue = math.Min(minValue, f)
			maxValue = math.Max(maxValue, f)
		}
	}

	if count == 0 {
		return nil
	}
	mean := sum / float64(count)
	variance := math.Max(0, sumSq/float64(count)-mean*mean)
	s.HeightmapStats = &HeightmapStats{
		Mean: mean,
		Std:  math.Sqrt(variance),
		Min:  minValue,
		Max:  maxValue,
	}
	return nil
}

// String renders the statistics as a human-readable report.
func (s *Statistics) String() string {
	var b strings.Builder
	title := fmt.Sprintf("Dataset statistics: %s", s.DatasetPath)
	fmt.Fprintf(&b, "%s\n%s\n\n", title, strings.Repeat("=", len(title)))

	fmt.Fprintf(&b, "Samples: %d total\n", s.TotalSamples)
	for _, split := range []string{"train", "val", "test"} {
		if count, ok := s.SplitCounts[split]; ok {
			fmt.Fprintf(&b, "  %-5s: %d (%.1f%%)\n", split, count, s.percent(count))
		}
	}
	b.WriteByte('\n')

	if len(s.MapSizes) > 0 {
		b.WriteString("Map sizes:\n")
		sizes := make([]int, 0, len(s.MapSizes))
		for size := range s.MapSizes {
			sizes = append(sizes, size)
		}
		sort.Ints(sizes)
		for _, size := range sizes {
			label := sizeLabels[size]
			if label == "" {
				label = fmt.Sprintf("%du", size)
			}
			fmt.Fprintf(&b, "  %-8s (%d): %d (%.1f%%)\n", label, size, s.MapSizes[size], s.percent(s.MapSizes[size]))
		}
		b.WriteByte('\n')
	}

	if len(s.TerrainTypes) > 0 {
		b.WriteString("Terrain types:\n")
		terrains := make([]string, 0, len(s.TerrainTypes))
		for terrain := range s.TerrainTypes {
			terrains = append(terrains, terrain)
		}
		sort.Strings(terrains)
		for _, terrain := range terrains {
			fmt.Fprintf(&b, "  %-12s: %d (%.1f%%)\n", terrain, s.TerrainTypes[terrain], s.percent(s.TerrainTypes[terrain]))
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "Water: %d with, %d without\n", s.WaterCounts["with_water"], s.WaterCounts["without_water"])

	if s.HeightmapStats != nil {
		fmt.Fprintf(&b, "Heightmap values: mean=%.4f std=%.4f min=%.4f max=%.4f\n",
			s.HeightmapStats.Mean, s.HeightmapStats.Std, s.HeightmapStats.Min, s.HeightmapStats.Max)
	}
	return b.String()
}

func (s *Statistics) percent(count int) float64 {
	if s.TotalSamples == 0 {
		return 0
	}
	return float64(count) / float64(s.TotalSamples) * 100
}

func readMetadata(datasetDir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(datasetDir, MetadataFilename))
	if err != nil {
		return nil, err
	}
	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}
