// Package download fetches map archives from the FAF content server and
// extracts them into the local map layout, singly or in bulk with
// checkpointed resume.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
	defaultTimeout    = 30 * time.Second
)

// ErrDownload is wrapped by all map download failures.
var ErrDownload = errors.New("map download failed")

// URLResolver looks up a map's download URL by display name. vault.Client
// implements it.
type URLResolver interface {
	ResolveDownloadURL(ctx context.Context, displayName string) (string, error)
}

// MapInfo locates the files of one extracted map.
type MapInfo struct {
	Name         string // display name without the version suffix
	Version      string // version suffix, "v0001" when absent
	RootDir      string
	SCMapPath    string
	ScenarioPath string
	SavePath     string
	ScriptPath   string
}

// DownloaderParams configure a Downloader. Zero values select the defaults.
type DownloaderParams struct {
	MaxRetries int
	RetryDelay time.Duration
	HTTPClient *http.Client
	Resolver   URLResolver // required only for DownloadByName
	Logger     *slog.Logger
}

// Downloader fetches a map zip archive, extracts it and validates the
// resulting map directory.
type Downloader struct {
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	resolver   URLResolver
	logger     *slog.Logger
}

func NewDownloader(params DownloaderParams) *Downloader {
	if params.MaxRetries == 0 {
		params.MaxRetries = defaultMaxRetries
	}
	if params.RetryDelay == 0 {
		params.RetryDelay = defaultRetryDelay
	}
	if params.HTTPClient == nil {
		params.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if params.Logger == nil {
		params.Logger = slog.New(slog.DiscardHandler)
	}
	return &Downloader{
		maxRetries: params.MaxRetries,
		retryDelay: params.RetryDelay,
		httpClient: params.HTTPClient,
		resolver:   params.Resolver,
		logger:     params.Logger,
	}
}

// Download fetches the zip archive at url and extracts it under outputDir,
// which must already exist.
func (d *Downloader) Download(ctx context.Context, url, outputDir string) (*MapInfo, error) {
	if _, err := os.Stat(outputDir); err != nil {
		return nil, fmt.Errorf("output directory does not exist: %w", err)
	}

	d.logger.Debug("downloading map", "url", url)
	content, err := d.fetchWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}
	return d.extract(content, outputDir, url)
}

// DownloadByName resolves a map's download URL by display name and then
// downloads it. The Downloader must have been configured with a Resolver.
func (d *Downloader) DownloadByName(ctx context.Context, mapName, outputDir string) (*MapInfo, error) {
	if d.resolver == nil {
		return nil, fmt.Errorf("%w: no URL resolver configured", ErrDownload)
	}
	url, err := d.resolver.ResolveDownloadURL(ctx, mapName)
	if err != nil {
		return nil, fmt.Errorf("%w: looking up %q: %w", ErrDownload, mapName, err)
	}
	return d.Download(ctx, url, outputDir)
}

func (d *Downloader) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	delay := d.retryDelay
	var lastErr error

	for attempt := 0; attempt < d.maxRetries; attempt++ {
		if attempt > 0 {
			d.logger.Debug("retrying download", "url", url, "attempt", attempt)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}

		content, retry, err := d.fetchOnce(ctx, url)
		if err == nil {
			return content, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: giving up on %s after %d attempts: %w", ErrDownload, url, d.maxRetries, lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, url string) (content []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrDownload, err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		content, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, true, err
		}
		return content, false, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, fmt.Errorf("%w: map not found at %s", ErrDownload, url)
	case isTransientStatus(resp.StatusCode):
		return nil, true, fmt.Errorf("HTTP %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("%w: HTTP %d from %s", ErrDownload, resp.StatusCode, url)
	}
}

func isTransientStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// extract unpacks the archive under outputDir and validates the map layout.
func (d *Downloader) extract(content []byte, outputDir, sourceURL string) (*MapInfo, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid zip archive: %w", ErrDownload, sourceURL, err)
	}

	rootDir := ""
	for _, file := range reader.File {
		target, err := secureJoin(outputDir, file.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrDownload, sourceURL, err)
		}
		if rootDir == "" {
			if first := firstPathComponent(file.Name); first != "" {
				rootDir = first
			}
		}
		if err := extractFile(file, target); err != nil {
			return nil, fmt.Errorf("%w: extracting %s: %w", ErrDownload, file.Name, err)
		}
	}
	if rootDir == "" {
		return nil, fmt.Errorf("%w: no root directory in archive from %s", ErrDownload, sourceURL)
	}

	return buildMapInfo(filepath.Join(outputDir, rootDir), sourceURL)
}

func extractFile(file *zip.File, target string) error {
	if file.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// secureJoin joins an archive entry name onto dir, rejecting entries that
// would escape it.
func secureJoin(dir, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes the output directory", name)
	}
	return filepath.Join(dir, cleaned), nil
}

func firstPathComponent(name string) string {
	name = strings.TrimLeft(name, "/")
	if i := strings.IndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return name
}

func buildMapInfo(rootDir, sourceURL string) (*MapInfo, error) {
	matches, err := filepath.Glob(filepath.Join(rootDir, "*.scmap"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no .scmap file in %s", ErrDownload, filepath.Base(rootDir))
	}
	scmapPath := matches[0]
	baseName := strings.TrimSuffix(filepath.Base(scmapPath), filepath.Ext(scmapPath))

	scenarioPath := filepath.Join(rootDir, baseName+"_scenario.lua")
	if _, err := os.Stat(scenarioPath); err != nil {
		return nil, fmt.Errorf("%w: missing %s_scenario.lua in archive from %s", ErrDownload, baseName, sourceURL)
	}

	name, version := parseMapName(filepath.Base(rootDir))
	return &MapInfo{
		Name:         name,
		Version:      version,
		RootDir:      rootDir,
		SCMapPath:    scmapPath,
		ScenarioPath: scenarioPath,
		SavePath:     filepath.Join(rootDir, baseName+"_save.lua"),
		ScriptPath:   filepath.Join(rootDir, baseName+"_script.lua"),
	}, nil
}

var mapVersionPattern = regexp.MustCompile(`(?i)[._](v\d+)$`)

// parseMapName splits a map directory name like "theta_passage_5.v0001" into
// a display name and a version, defaulting the version to v0001.
func parseMapName(dirName string) (name, version string) {
	cleanName := func(s string) string {
		s = strings.NewReplacer("_", " ", ".", " ").Replace(s)
		return strings.TrimSpace(s)
	}

	if m := mapVersionPattern.FindStringSubmatchIndex(dirName); m != nil {
		return cleanName(dirName[:m[0]]), strings.ToLower(dirName[m[2]:m[3]])
	}
	return cleanName(dirName), "v0001"
}
