package scmap

import (
	"slices"
	"strings"
)

// DefaultTerrainType is returned when no keyword matches any texture path.
const DefaultTerrainType = "unknown"

type terrainCategory struct {
	name     string
	keywords []string
}

// Category order breaks score ties: the earlier entry wins. Keep it stable.
var terrainCategories = []terrainCategory{
	{"desert", []string{"sand", "desert", "dune", "arid", "dry", "sahara"}},
	{"lava", []string{"lava", "volcanic", "magma", "fire", "molten", "ember"}},
	{"tundra", []string{"snow", "ice", "frozen", "tundra", "arctic", "frost", "glacier"}},
	{"tropical", []string{"tropical", "jungle", "palm", "rainforest", "humid"}},
	{"temperate", []string{"grass", "dirt", "rock", "cliff", "stone", "earth", "soil"}},
	{"seabed", []string{"seabed", "underwater", "coral", "ocean", "seafloor"}},
}

// InferTerrainType assigns a coarse terrain category to a set of texture
// paths. Each category scores one point per keyword found as a substring of a
// lowercased path; a path may score for several categories. The category with
// the highest total wins. An empty path list, or no keyword matching at all,
// yields DefaultTerrainType.
func InferTerrainType(texturePaths []string) string {
	scores := make([]int, len(terrainCategories))
	for _, path := range texturePaths {
		if path == "" {
			continue
		}
		lower := strings.ToLower(path)
		for i, category := range terrainCategories {
			for _, keyword := range category.keywords {
				if strings.Contains(lower, keyword) {
					scores[i]++
				}
			}
		}
	}

	best, bestScore := 0, 0
	for i, score := range scores {
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if bestScore == 0 {
		return DefaultTerrainType
	}
	return terrainCategories[best].name
}

// TerrainTypes lists the known terrain categories in tie-break order.
func TerrainTypes() []string {
	names := make([]string, len(terrainCategories))
	for i, category := range terrainCategories {
		names[i] = category.name
	}
	return names
}

// TerrainKeywords returns the keyword set for a terrain category, or nil if
// the category is unknown.
func TerrainKeywords(terrainType string) []string {
	for _, category := range terrainCategories {
		if category.name == terrainType {
			return slices.Clone(category.keywords)
		}
	}
	return nil
}
