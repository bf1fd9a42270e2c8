package download

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newArchiveServer serves a valid map archive for every /maps/<name>.zip
// request, and errors for names starting with "bad".
func newArchiveServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSuffix(path.Base(r.URL.Path), ".zip")
		if strings.HasPrefix(name, "bad") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		base := strings.SplitN(name, ".", 2)[0]
		w.Write(buildMapArchive(t, name, base, true))
	}))
	t.Cleanup(server.Close)
	return server
}

func fastBulkParams() BulkParams {
	return BulkParams{
		Concurrency: 2,
		StartDelay:  time.Microsecond,
		Downloader:  fastDownloader(),
	}
}

func TestBulkDownloadURLs(t *testing.T) {
	server := newArchiveServer(t)
	urls := []string{
		server.URL + "/maps/alpha_ridge.v0001.zip",
		server.URL + "/maps/beta_valley.v0001.zip",
		server.URL + "/maps/gamma_isle.v0001.zip",
	}

	outputDir := t.TempDir()
	b := NewBulkDownloader(outputDir, fastBulkParams())

	progress, err := b.DownloadURLs(context.Background(), urls, 0, true)
	require.NoError(t, err)
	require.Equal(t, Progress{Total: 3, Completed: 3}, progress)
	require.Zero(t, progress.Remaining())

	for _, name := range []string{"alpha_ridge.v0001", "beta_valley.v0001", "gamma_isle.v0001"} {
		require.DirExists(t, filepath.Join(outputDir, name))
	}

	data, err := os.ReadFile(filepath.Join(outputDir, CheckpointFilename))
	require.NoError(t, err)
	var cp checkpoint
	require.NoError(t, json.Unmarshal(data, &cp))
	require.ElementsMatch(t, urls, cp.CompletedURLs)
	require.NotEmpty(t, cp.Timestamp)
}

func TestBulkDownloadResumesFromCheckpoint(t *testing.T) {
	server := newArchiveServer(t)
	urls := []string{
		server.URL + "/maps/alpha_ridge.v0001.zip",
		server.URL + "/maps/beta_valley.v0001.zip",
	}

	outputDir := t.TempDir()
	b := NewBulkDownloader(outputDir, fastBulkParams())

	progress, err := b.DownloadURLs(context.Background(), urls[:1], 0, true)
	require.NoError(t, err)
	require.Equal(t, 1, progress.Completed)

	progress, err = b.DownloadURLs(context.Background(), urls, 0, true)
	require.NoError(t, err)
	require.Equal(t, Progress{Total: 2, Completed: 1, Skipped: 1}, progress)
}

func TestBulkDownloadIgnoresCheckpointWithoutResume(t *testing.T) {
	server := newArchiveServer(t)
	urls := []string{server.URL + "/maps/alpha_ridge.v0001.zip"}

	outputDir := t.TempDir()
	b := NewBulkDownloader(outputDir, fastBulkParams())

	_, err := b.DownloadURLs(context.Background(), urls, 0, true)
	require.NoError(t, err)

	progress, err := b.DownloadURLs(context.Background(), urls, 0, false)
	require.NoError(t, err)
	require.Equal(t, Progress{Total: 1, Completed: 1}, progress)
}

func TestBulkDownloadRecordsFailures(t *testing.T) {
	server := newArchiveServer(t)
	urls := []string{
		server.URL + "/maps/alpha_ridge.v0001.zip",
		server.URL + "/maps/bad_map.v0001.zip",
	}

	outputDir := t.TempDir()
	b := NewBulkDownloader(outputDir, fastBulkParams())

	progress, err := b.DownloadURLs(context.Background(), urls, 0, true)
	require.NoError(t, err)
	require.Equal(t, Progress{Total: 2, Completed: 1, Failed: 1}, progress)

	data, err := os.ReadFile(filepath.Join(outputDir, FailuresFilename))
	require.NoError(t, err)
	var failures []Failure
	require.NoError(t, json.Unmarshal(data, &failures))
	require.Len(t, failures, 1)
	require.Equal(t, urls[1], failures[0].URL)
	require.Equal(t, "bad_map.v0001", failures[0].MapName)
	require.NotEmpty(t, failures[0].Error)
}

func TestBulkDownloadLimit(t *testing.T) {
	server := newArchiveServer(t)
	urls := []string{
		server.URL + "/maps/alpha_ridge.v0001.zip",
		server.URL + "/maps/beta_valley.v0001.zip",
		server.URL + "/maps/gamma_isle.v0001.zip",
	}

	b := NewBulkDownloader(t.TempDir(), fastBulkParams())
	progress, err := b.DownloadURLs(context.Background(), urls, 2, true)
	require.NoError(t, err)
	require.Equal(t, Progress{Total: 2, Completed: 2}, progress)
}

func TestBulkDownloadFromFile(t *testing.T) {
	server := newArchiveServer(t)

	urlFile := filepath.Join(t.TempDir(), "urls.txt")
	content := "# seed urls\n\n" +
		server.URL + "/maps/alpha_ridge.v0001.zip\n" +
		server.URL + "/maps/beta_valley.v0001.zip\n"
	require.NoError(t, os.WriteFile(urlFile, []byte(content), 0o644))

	outputDir := t.TempDir()
	b := NewBulkDownloader(outputDir, fastBulkParams())

	progress, err := b.DownloadFromFile(context.Background(), urlFile, 0, true)
	require.NoError(t, err)
	require.Equal(t, Progress{Total: 2, Completed: 2}, progress)

	data, err := os.ReadFile(filepath.Join(outputDir, CheckpointFilename))
	require.NoError(t, err)
	var cp checkpoint
	require.NoError(t, json.Unmarshal(data, &cp))
	require.Equal(t, urlFile, cp.SourceFile)
}

func TestBulkDownloadFromMissingFile(t *testing.T) {
	b := NewBulkDownloader(t.TempDir(), fastBulkParams())
	_, err := b.DownloadFromFile(context.Background(), filepath.Join(t.TempDir(), "missing.txt"), 0, true)
	require.Error(t, err)
}

func TestBulkDownloadReportsProgress(t *testing.T) {
	server := newArchiveServer(t)
	urls := []string{server.URL + "/maps/alpha_ridge.v0001.zip"}

	var updates []Progress
	params := fastBulkParams()
	params.Progress = func(p Progress) { updates = append(updates, p) }
	params.Concurrency = 1

	b := NewBulkDownloader(t.TempDir(), params)
	_, err := b.DownloadURLs(context.Background(), urls, 0, true)
	require.NoError(t, err)

	require.NotEmpty(t, updates)
	require.Equal(t, Progress{Total: 1, Completed: 1}, updates[len(updates)-1])
}

func TestBulkDownloadContextCancelled(t *testing.T) {
	server := newArchiveServer(t)
	urls := []string{server.URL + "/maps/alpha_ridge.v0001.zip"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBulkDownloader(t.TempDir(), fastBulkParams())
	_, err := b.DownloadURLs(ctx, urls, 0, true)
	require.ErrorIs(t, err, context.Canceled)
}
