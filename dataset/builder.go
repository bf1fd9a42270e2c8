package dataset

import (
	"bufio"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/faforge/go-fafmaps/scmap"
)

// FormatVersion tags metadata.json and splits.json.
const FormatVersion = "1.0"

const (
	MetadataFilename = "metadata.json"
	SplitsFilename   = "splits.json"
	ErrorsFilename   = "errors.json"
	IndexFilename    = "samples.db"
	heightmapsDir    = "heightmaps"
)

// SplitRatios are the train/val/test fractions. They must sum to 1.
type SplitRatios struct {
	Train float64 `json:"train"`
	Val   float64 `json:"val"`
	Test  float64 `json:"test"`
}

var DefaultSplitRatios = SplitRatios{Train: 0.8, Val: 0.1, Test: 0.1}

// SampleMetadata describes one persisted sample.
type SampleMetadata struct {
	OriginalPath   string  `json:"original_path"`
	MapSize        int     `json:"map_size"`
	MapSizeKm      int     `json:"map_size_km"`
	TerrainType    string  `json:"terrain_type"`
	HasWater       bool    `json:"has_water"`
	WaterElevation float64 `json:"water_elevation"`
	HeightmapShape [2]int  `json:"heightmap_shape"` // rows, columns
	HeightmapFile  string  `json:"heightmap_file"`  // relative to the dataset dir
}

// Metadata is the content of metadata.json.
type Metadata struct {
	Version      string                    `json:"version"`
	CreatedAt    time.Time                 `json:"created_at"`
	TotalSamples int                       `json:"total_samples"`
	Samples      map[string]SampleMetadata `json:"samples"`
}

// Splits is the content of splits.json.
type Splits struct {
	Version string      `json:"version"`
	Seed    int64       `json:"seed"`
	Ratios  SplitRatios `json:"ratios"`
	Train   []string    `json:"train"`
	Val     []string    `json:"val"`
	Test    []string    `json:"test"`
}

// SampleError records a map that could not be processed.
type SampleError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Progress reports builder state to the progress callback.
type Progress struct {
	Total      int
	Processed  int
	Failed     int
	Skipped    int
	CurrentMap string
}

// Result summarizes a finished build.
type Result struct {
	OutputDir    string
	TotalSamples int
	Processed    int
	Failed       int
	Skipped      int
	SplitCounts  map[string]int
}

// BuilderParams configure a Builder. The zero value uses DefaultSplitRatios,
// no size filter and a discarding logger.
type BuilderParams struct {
	MinSize  int // minimum map size in game units, 0 for no minimum
	MaxSize  int // maximum map size in game units, 0 for no maximum
	Ratios   SplitRatios
	Seed     int64
	Progress func(Progress)
	Logger   *slog.Logger
}

// Builder walks a directory of downloaded maps, decodes every .scmap file,
// persists normalized heightmaps as raw little-endian float32 files and
// writes metadata.json, splits.json and a SQLite sample index.
type Builder struct {
	outputDir string
	params    BuilderParams
	logger    *slog.Logger
}

func NewBuilder(outputDir string, params BuilderParams) (*Builder, error) {
	if params.Ratios == (SplitRatios{}) {
		params.Ratios = DefaultSplitRatios
	}
	total := params.Ratios.Train + params.Ratios.Val + params.Ratios.Test
	if math.Abs(total-1.0) > 1e-4 {
		return nil, fmt.Errorf("split ratios must sum to 1.0, got %v", total)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Builder{outputDir: outputDir, params: params, logger: logger}, nil
}

// Build processes every .scmap file found under inputDir.
func (b *Builder) Build(inputDir string) (*Result, error) {
	if _, err := os.Stat(inputDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(b.outputDir, heightmapsDir), 0o755); err != nil {
		return nil, err
	}

	mapFiles, err := findMapFiles(inputDir)
	if err != nil {
		return nil, err
	}
	b.logger.Info("building dataset", "maps", len(mapFiles), "input", inputDir)

	progress := Progress{Total: len(mapFiles)}
	samples := make(map[string]SampleMetadata)
	sampleIDs := make([]string, 0, len(mapFiles))
	var sampleErrors []SampleError

	for _, mapFile := range mapFiles {
		progress.CurrentMap = filepath.Base(filepath.Dir(mapFile))
		b.reportProgress(progress)

		sampleID, sample, err := b.processMap(mapFile)
		switch {
		case err != nil:
			b.logger.Warn("failed to process map", "path", mapFile, "error", err)
			sampleErrors = append(sampleErrors, SampleError{Path: mapFile, Error: err.Error()})
			progress.Failed++
		case sample == nil:
			progress.Skipped++
		default:
			samples[sampleID] = *sample
			sampleIDs = append(sampleIDs, sampleID)
			progress.Processed++
		}
		b.reportProgress(progress)
	}

	splits := b.makeSplits(sampleIDs)
	if err := writeJSON(filepath.Join(b.outputDir, SplitsFilename), splits); err != nil {
		return nil, err
	}

	metadata := Metadata{
		Version:      FormatVersion,
		CreatedAt:    time.Now().UTC(),
		TotalSamples: len(samples),
		Samples:      samples,
	}
	if err := writeJSON(filepath.Join(b.outputDir, MetadataFilename), metadata); err != nil {
		return nil, err
	}

	if len(sampleErrors) > 0 {
		errorsFile := struct {
			Errors []SampleError `json:"errors"`
		}{Errors: sampleErrors}
		if err := writeJSON(filepath.Join(b.outputDir, ErrorsFilename), errorsFile); err != nil {
			return nil, err
		}
	}

	if err := b.writeIndex(samples); err != nil {
		return nil, err
	}

	return &Result{
		OutputDir:    b.outputDir,
		TotalSamples: len(samples),
		Processed:    progress.Processed,
		Failed:       progress.Failed,
		Skipped:      progress.Skipped,
		SplitCounts: map[string]int{
			"train": len(splits.Train),
			"val":   len(splits.Val),
			"test":  len(splits.Test),
		},
	}, nil
}

// processMap decodes one map and persists its heightmap. A nil sample with a
// nil error means the map was filtered out by size.
func (b *Builder) processMap(mapFile string) (string, *SampleMetadata, error) {
	m, err := scmap.DecodeFile(mapFile)
	if err != nil {
		return "", nil, err
	}

	mapSize := int(m.Width)
	if b.params.MinSize > 0 && mapSize < b.params.MinSize {
		b.logger.Debug("skipping map below size filter", "path", mapFile, "size", mapSize)
		return "", nil, nil
	}
	if b.params.MaxSize > 0 && mapSize > b.params.MaxSize {
		b.logger.Debug("skipping map above size filter", "path", mapFile, "size", mapSize)
		return "", nil, nil
	}

	sampleID := sampleIDFor(mapFile)
	heightmapFile := filepath.Join(heightmapsDir, sampleID+".f32")
	if err := writeHeightmap(filepath.Join(b.outputDir, heightmapFile), Normalize(m.Heightmap)); err != nil {
		return "", nil, err
	}

	return sampleID, &SampleMetadata{
		OriginalPath:   mapFile,
		MapSize:        mapSize,
		MapSizeKm:      m.MapSizeKm,
		TerrainType:    m.TerrainType,
		HasWater:       m.Water.HasWater,
		WaterElevation: float64(m.Water.Elevation),
		HeightmapShape: [2]int{m.Heightmap.Height, m.Heightmap.Width},
		HeightmapFile:  filepath.ToSlash(heightmapFile),
	}, nil
}

func (b *Builder) makeSplits(sampleIDs []string) Splits {
	shuffled := make([]string, len(sampleIDs))
	copy(shuffled, sampleIDs)
	rng := rand.New(rand.NewSource(b.params.Seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	n := len(shuffled)
	trainEnd := int(float64(n) * b.params.Ratios.Train)
	valEnd := trainEnd + int(float64(n)*b.params.Ratios.Val)

	return Splits{
		Version: FormatVersion,
		Seed:    b.params.Seed,
		Ratios:  b.params.Ratios,
		Train:   shuffled[:trainEnd],
		Val:     shuffled[trainEnd:valEnd],
		Test:    shuffled[valEnd:],
	}
}

func (b *Builder) writeIndex(samples map[string]SampleMetadata) error {
	indexPath := filepath.Join(b.outputDir, IndexFilename)
	if err := os.Remove(indexPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	index, err := CreateIndex(indexPath)
	if err != nil {
		return err
	}
	defer index.Close()

	for sampleID, sample := range samples {
		if err := index.Insert(sampleID, sample); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) reportProgress(progress Progress) {
	if b.params.Progress != nil {
		b.params.Progress(progress)
	}
}

func findMapFiles(inputDir string) ([]string, error) {
	var mapFiles []string
	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".scmap") {
			mapFiles = append(mapFiles, path)
		}
		return nil
	})
	return mapFiles, err
}

// sampleIDFor derives a filesystem-safe sample ID from the map's directory
// name, falling back to a path hash when the directory name is generic.
func sampleIDFor(mapFile string) string {
	dirName := filepath.Base(filepath.Dir(mapFile))
	safe := strings.ToLower(strings.NewReplacer(".", "_", " ", "_").Replace(dirName))
	switch safe {
	case "", "map", "maps":
		digest := md5.Sum([]byte(mapFile))
		return "map_" + hex.EncodeToString(digest[:])[:8]
	}
	return safe
}

func writeHeightmap(path string, values []float32) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := binary.Write(w, binary.LittleEndian, values); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return file.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
