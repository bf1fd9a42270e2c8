// Package dataset turns decoded maps into training-ready heightmap datasets.
// It covers sample normalization, a builder that persists heightmaps with
// metadata and train/val/test splits, an integrity validator and dataset
// statistics.
package dataset

import (
	"math"

	"github.com/faforge/go-fafmaps/scmap"
)

const sampleMax = 65535

// Normalize converts raw elevation samples to float32 values in [0, 1].
func Normalize(h scmap.Heightmap) []float32 {
	values := make([]float32, len(h.Samples))
	for i, s := range h.Samples {
		values[i] = float32(s) / sampleMax
	}
	return values
}

// Denormalize converts normalized values back to raw samples. Values are
// clamped to [0, 1] and rounded to nearest, which makes the Normalize round
// trip exact for every possible sample.
func Denormalize(values []float32) []uint16 {
	samples := make([]uint16, len(values))
	for i, v := range values {
		f := float64(v)
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		samples[i] = uint16(math.Round(f * sampleMax))
	}
	return samples
}
