package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/subcommands"

	"github.com/faforge/go-fafmaps/scmap"
)

type inspectCmd struct {
	jsonOut bool
}

func (c *inspectCmd) Name() string     { return "inspect" }
func (c *inspectCmd) Synopsis() string { return "decode .scmap files and print their properties" }
func (c *inspectCmd) Usage() string {
	return "fafmaps inspect [-json] <file.scmap> [<file.scmap> ...]\n"
}
func (c *inspectCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.jsonOut, "json", false, "Print machine-readable JSON")
}

type mapSummary struct {
	Path           string   `json:"path"`
	Version        int32    `json:"version"`
	MapSize        int      `json:"map_size"`
	MapSizeKm      int      `json:"map_size_km"`
	HeightmapShape [2]int   `json:"heightmap_shape"`
	HeightmapScale float32  `json:"heightmap_scale"`
	TerrainType    string   `json:"terrain_type"`
	HasWater       bool     `json:"has_water"`
	WaterElevation float32  `json:"water_elevation"`
	Strata         int      `json:"strata"`
	TexturePaths   []string `json:"texture_paths"`
}

func summarize(path string, m *scmap.Map) mapSummary {
	populated := 0
	for _, layer := range m.Strata {
		if layer.TexturePath != "" {
			populated++
		}
	}
	return mapSummary{
		Path:           path,
		Version:        m.Version,
		MapSize:        int(m.Width),
		MapSizeKm:      m.MapSizeKm,
		HeightmapShape: [2]int{m.Heightmap.Height, m.Heightmap.Width},
		HeightmapScale: m.HeightmapScale,
		TerrainType:    m.TerrainType,
		HasWater:       m.Water.HasWater,
		WaterElevation: m.Water.Elevation,
		Strata:         populated,
		TexturePaths:   m.TexturePaths,
	}
}

func (c *inspectCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	status := subcommands.ExitSuccess
	for _, path := range f.Args() {
		m, err := scmap.DecodeFile(path)
		if err != nil {
			log.Println(err)
			status = subcommands.ExitFailure
			continue
		}
		summary := summarize(path, m)
		if c.jsonOut {
			data, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				log.Println(err)
				return subcommands.ExitFailure
			}
			fmt.Println(string(data))
		} else {
			printSummary(summary)
		}
	}
	return status
}

func printSummary(s mapSummary) {
	fmt.Printf("%s\n", s.Path)
	fmt.Printf("  version:   %d\n", s.Version)
	fmt.Printf("  size:      %d units (%d km)\n", s.MapSize, s.MapSizeKm)
	fmt.Printf("  heightmap: %dx%d, scale %g\n", s.HeightmapShape[0], s.HeightmapShape[1], s.HeightmapScale)
	fmt.Printf("  terrain:   %s\n", s.TerrainType)
	if s.HasWater {
		fmt.Printf("  water:     elevation %g\n", s.WaterElevation)
	} else {
		fmt.Printf("  water:     none\n")
	}
	fmt.Printf("  strata:    %d populated layers, %d texture paths\n", s.Strata, len(s.TexturePaths))
}
