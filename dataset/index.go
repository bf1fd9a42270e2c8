package dataset

import (
	"database/sql"
)

// Index is a SQLite mirror of metadata.json in queryable form. Aggregation
// queries for dataset statistics go through it instead of re-reading and
// re-grouping the JSON document.
//
// Note: callers must register a sqlite3 database/sql driver
// (e.g. import _ "github.com/mattn/go-sqlite3") before opening an index.
type Index struct {
	db *sql.DB
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS samples (
	sample_id       TEXT PRIMARY KEY,
	original_path   TEXT NOT NULL,
	map_size        INTEGER NOT NULL,
	map_size_km     INTEGER NOT NULL,
	terrain_type    TEXT NOT NULL,
	has_water       INTEGER NOT NULL,
	water_elevation REAL NOT NULL,
	heightmap_rows  INTEGER NOT NULL,
	heightmap_cols  INTEGER NOT NULL,
	heightmap_file  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS samples_terrain_type ON samples (terrain_type);
`

// CreateIndex creates (or opens) a writable sample index at path.
func CreateIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

// OpenIndex opens an existing sample index read-only.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	return &Index{db: db}, nil
}

func (x *Index) Close() error {
	return x.db.Close()
}

func (x *Index) Insert(sampleID string, s SampleMetadata) error {
	_, err := x.db.Exec(
		`INSERT OR REPLACE INTO samples (
			sample_id, original_path, map_size, map_size_km, terrain_type,
			has_water, water_elevation, heightmap_rows, heightmap_cols, heightmap_file
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sampleID, s.OriginalPath, s.MapSize, s.MapSizeKm, s.TerrainType,
		s.HasWater, s.WaterElevation, s.HeightmapShape[0], s.HeightmapShape[1], s.HeightmapFile,
	)
	return err
}

func (x *Index) Count() (int, error) {
	var count int
	err := x.db.QueryRow(`SELECT COUNT(*) FROM samples`).Scan(&count)
	return count, err
}

// TerrainTypeCounts returns the number of samples per terrain type.
func (x *Index) TerrainTypeCounts() (map[string]int, error) {
	rows, err := x.db.Query(`SELECT terrain_type, COUNT(*) FROM samples GROUP BY terrain_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var terrainType string
		var count int
		if err := rows.Scan(&terrainType, &count); err != nil {
			return nil, err
		}
		counts[terrainType] = count
	}
	return counts, rows.Err()
}

// MapSizeCounts returns the number of samples per map size in game units.
func (x *Index) MapSizeCounts() (map[int]int, error) {
	rows, err := x.db.Query(`SELECT map_size, COUNT(*) FROM samples GROUP BY map_size`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var size, count int
		if err := rows.Scan(&size, &count); err != nil {
			return nil, err
		}
		counts[size] = count
	}
	return counts, rows.Err()
}

// WaterCounts returns how many samples have water enabled and disabled.
func (x *Index) WaterCounts() (withWater, withoutWater int, err error) {
	err = x.db.QueryRow(
		`SELECT
			COUNT(CASE WHEN has_water THEN 1 END),
			COUNT(CASE WHEN NOT has_water THEN 1 END)
		FROM samples`,
	).Scan(&withWater, &withoutWater)
	return withWater, withoutWater, err
}

// Sample looks up one sample by ID. The second return value reports whether
// the sample exists.
func (x *Index) Sample(sampleID string) (SampleMetadata, bool, error) {
	var s SampleMetadata
	err := x.db.QueryRow(
		`SELECT original_path, map_size, map_size_km, terrain_type,
			has_water, water_elevation, heightmap_rows, heightmap_cols, heightmap_file
		FROM samples WHERE sample_id = ?`, sampleID,
	).Scan(&s.OriginalPath, &s.MapSize, &s.MapSizeKm, &s.TerrainType,
		&s.HasWater, &s.WaterElevation, &s.HeightmapShape[0], &s.HeightmapShape[1], &s.HeightmapFile)
	if err == sql.ErrNoRows {
		return SampleMetadata{}, false, nil
	}
	if err != nil {
		return SampleMetadata{}, false, err
	}
	return s, true, nil
}
