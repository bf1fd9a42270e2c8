package scmaptest

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile renders the fixture and writes it to path, creating parent
// directories as needed.
func WriteFile(t *testing.T, path string, f Fixture) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, f.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}
