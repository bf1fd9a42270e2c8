package dataset

import (
	"bytes"
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed metadata.schema.json
var metadataSchemaJSON string

var metadataSchema = jsonschema.MustCompileString("metadata.schema.json", metadataSchemaJSON)

// ValidationError lists the problems found in one sample.
type ValidationError struct {
	SampleID string   `json:"sample_id"`
	Errors   []string `json:"errors"`
}

// Report is the outcome of validating a dataset directory.
type Report struct {
	Valid          bool              `json:"valid"`
	Timestamp      time.Time         `json:"timestamp"`
	DatasetPath    string            `json:"dataset_path"`
	TotalSamples   int               `json:"total_samples"`
	ValidSamples   int               `json:"valid_samples"`
	InvalidSamples int               `json:"invalid_samples"`
	SampleErrors   []ValidationError `json:"errors"`
	SplitErrors    []string          `json:"split_errors"`
	MetadataErrors []string          `json:"metadata_errors"`
}

// Validator checks the integrity of a dataset produced by Builder: the
// metadata document against its schema, split disjointness and coverage, and
// every heightmap file's shape and value range.
type Validator struct {
	datasetDir string
}

func NewValidator(datasetDir string) *Validator {
	return &Validator{datasetDir: datasetDir}
}

func (v *Validator) Validate() (*Report, error) {
	if _, err := os.Stat(v.datasetDir); err != nil {
		return nil, err
	}

	report := &Report{
		Timestamp:   time.Now().UTC(),
		DatasetPath: v.datasetDir,
	}

	metadata, metadataErrors := v.loadMetadata()
	report.MetadataErrors = metadataErrors
	if metadata == nil {
		return report, nil
	}

	report.SplitErrors = v.validateSplits(metadata)

	sampleIDs := make([]string, 0, len(metadata.Samples))
	for sampleID := range metadata.Samples {
		sampleIDs = append(sampleIDs, sampleID)
	}
	sort.Strings(sampleIDs)

	for _, sampleID := range sampleIDs {
		if sampleErrors := v.validateSample(metadata.Samples[sampleID]); len(sampleErrors) > 0 {
			report.SampleErrors = append(report.SampleErrors, ValidationError{
				SampleID: sampleID,
				Errors:   sampleErrors,
			})
		}
	}

	report.TotalSamples = len(metadata.Samples)
	report.InvalidSamples = len(report.SampleErrors)
	report.ValidSamples = report.TotalSamples - report.InvalidSamples
	report.Valid = len(report.MetadataErrors) == 0 &&
		len(report.SplitErrors) == 0 &&
		report.InvalidSamples == 0
	return report, nil
}

// loadMetadata parses metadata.json and validates it against the embedded
// schema. A nil return means validation cannot continue.
func (v *Validator) loadMetadata() (*Metadata, []string) {
	data, err := os.ReadFile(filepath.Join(v.datasetDir, MetadataFilename))
	if err != nil {
		return nil, []string{fmt.Sprintf("%s not readable: %v", MetadataFilename, err)}
	}

	var document any
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, []string{fmt.Sprintf("%s is not valid JSON: %v", MetadataFilename, err)}
	}
	if err := metadataSchema.Validate(document); err != nil {
		return nil, []string{fmt.Sprintf("%s failed schema validation: %v", MetadataFilename, err)}
	}

	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, []string{fmt.Sprintf("%s does not match the metadata layout: %v", MetadataFilename, err)}
	}
	return &metadata, nil
}

func (v *Validator) validateSplits(metadata *Metadata) []string {
	data, err := os.ReadFile(filepath.Join(v.datasetDir, SplitsFilename))
	if err != nil {
		return []string{fmt.Sprintf("%s not readable: %v", SplitsFilename, err)}
	}
	var splits Splits
	if err := json.Unmarshal(data, &splits); err != nil {
		return []string{fmt.Sprintf("%s is not valid JSON: %v", SplitsFilename, err)}
	}

	var splitErrors []string
	train := toSet(splits.Train)
	val := toSet(splits.Val)
	test := toSet(splits.Test)

	if overlap := intersect(train, val); len(overlap) > 0 {
		splitErrors = append(splitErrors, fmt.Sprintf("train/val overlap: %s", strings.Join(overlap, ", ")))
	}
	if overlap := intersect(train, test); len(overlap) > 0 {
		splitErrors = append(splitErrors, fmt.Sprintf("train/test overlap: %s", strings.Join(overlap, ", ")))
	}
	if overlap := intersect(val, test); len(overlap) > 0 {
		splitErrors = append(splitErrors, fmt.Sprintf("val/test overlap: %s", strings.Join(overlap, ", ")))
	}

	var missing, unknown []string
	for sampleID := range metadata.Samples {
		if !train[sampleID] && !val[sampleID] && !test[sampleID] {
			missing = append(missing, sampleID)
		}
	}
	for sampleID := range mergeSets(train, val, test) {
		if _, ok := metadata.Samples[sampleID]; !ok {
			unknown = append(unknown, sampleID)
		}
	}
	sort.Strings(missing)
	sort.Strings(unknown)
	if len(missing) > 0 {
		splitErrors = append(splitErrors, fmt.Sprintf("samples not in any split: %s", strings.Join(missing, ", ")))
	}
	if len(unknown) > 0 {
		splitErrors = append(splitErrors, fmt.Sprintf("unknown samples in splits: %s", strings.Join(unknown, ", ")))
	}
	return splitErrors
}

func (v *Validator) validateSample(sample SampleMetadata) []string {
	var sampleErrors []string

	path := filepath.Join(v.datasetDir, filepath.FromSlash(sample.HeightmapFile))
	data, err := os.ReadFile(path)
	if err != nil {
		return append(sampleErrors, fmt.Sprintf("heightmap not readable: %v", err))
	}

	wantLen := sample.HeightmapShape[0] * sample.HeightmapShape[1] * 4
	if len(data) != wantLen {
		return append(sampleErrors, fmt.Sprintf(
			"heightmap is %d bytes, want %d for shape %dx%d",
			len(data), wantLen, sample.HeightmapShape[0], sample.HeightmapShape[1]))
	}

	values := make([]float32, len(data)/4)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, values); err != nil {
		return append(sampleErrors, fmt.Sprintf("heightmap not decodable: %v", err))
	}
	for _, value := range values {
		if value < 0 || value > 1 {
			sampleErrors = append(sampleErrors, fmt.Sprintf("heightmap value %v outside [0, 1]", value))
			break
		}
	}
	return sampleErrors
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func intersect(a, b map[string]bool) []string {
	var common []string
	for id := range a {
		if b[id] {
			common = append(common, id)
		}
	}
	sort.Strings(common)
	return common
}

func mergeSets(sets ...map[string]bool) map[string]bool {
	merged := make(map[string]bool)
	for _, set := range sets {
		for id := range set {
			merged[id] = true
		}
	}
	return merged
}
