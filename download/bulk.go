package download

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// CheckpointFilename stores the completed URLs inside the output dir.
	CheckpointFilename = "checkpoint.json"
	// FailuresFilename stores failed downloads inside the output dir.
	FailuresFilename = "failures.json"

	defaultConcurrency = 4
	defaultStartDelay  = 100 * time.Millisecond
)

// Progress tracks a bulk download.
type Progress struct {
	Total     int
	Completed int
	Failed    int
	Skipped   int
}

// Remaining is the number of downloads not yet accounted for.
func (p Progress) Remaining() int {
	return p.Total - p.Completed - p.Failed - p.Skipped
}

// Failure records one failed download for failures.json.
type Failure struct {
	URL       string `json:"url"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	MapName   string `json:"map_name,omitempty"`
}

type checkpoint struct {
	CompletedURLs []string `json:"completed_urls"`
	Timestamp     string   `json:"timestamp"`
	SourceFile    string   `json:"source_file,omitempty"`
}

// BulkParams configure a BulkDownloader. Zero values select the defaults.
type BulkParams struct {
	Concurrency int
	StartDelay  time.Duration // delay between starting downloads
	Downloader  *Downloader
	Progress    func(Progress)
	Logger      *slog.Logger
}

// BulkDownloader downloads many maps in parallel. Completed URLs are
// checkpointed to the output directory after every download, so an
// interrupted run can resume without refetching.
type BulkDownloader struct {
	outputDir   string
	concurrency int
	startDelay  time.Duration
	downloader  *Downloader
	progress    func(Progress)
	logger      *slog.Logger

	mu        sync.Mutex
	completed map[string]bool
	failures  []Failure
	state     Progress
}

func NewBulkDownloader(outputDir string, params BulkParams) *BulkDownloader {
	if params.Concurrency == 0 {
		params.Concurrency = defaultConcurrency
	}
	if params.StartDelay == 0 {
		params.StartDelay = defaultStartDelay
	}
	if params.Downloader == nil {
		params.Downloader = NewDownloader(DownloaderParams{})
	}
	if params.Logger == nil {
		params.Logger = slog.New(slog.DiscardHandler)
	}
	return &BulkDownloader{
		outputDir:   outputDir,
		concurrency: params.Concurrency,
		startDelay:  params.StartDelay,
		downloader:  params.Downloader,
		progress:    params.Progress,
		logger:      params.Logger,
	}
}

// DownloadFromFile downloads every URL listed in urlFile, one per line.
// Blank lines and lines starting with # are skipped. limit caps the number
// of URLs considered, 0 means all of them.
func (b *BulkDownloader) DownloadFromFile(ctx context.Context, urlFile string, limit int, resume bool) (Progress, error) {
	urls, err := readURLFile(urlFile)
	if err != nil {
		return Progress{}, err
	}
	return b.download(ctx, urls, limit, resume, urlFile)
}

// DownloadURLs downloads the given URLs.
func (b *BulkDownloader) DownloadURLs(ctx context.Context, urls []string, limit int, resume bool) (Progress, error) {
	return b.download(ctx, urls, limit, resume, "")
}

func (b *BulkDownloader) download(ctx context.Context, urls []string, limit int, resume bool, sourceFile string) (Progress, error) {
	if err := os.MkdirAll(b.outputDir, 0o755); err != nil {
		return Progress{}, err
	}

	b.completed = make(map[string]bool)
	b.failures = nil
	if resume {
		b.loadCheckpoint()
		b.loadFailures()
	}

	if limit > 0 && limit < len(urls) {
		urls = urls[:limit]
	}

	b.state = Progress{Total: len(urls)}
	var pending []string
	for _, url := range urls {
		if b.completed[url] {
			b.state.Skipped++
		} else {
			pending = append(pending, url)
		}
	}
	b.reportProgress()
	b.logger.Info("bulk download starting",
		"total", b.state.Total, "skipped", b.state.Skipped, "workers", b.concurrency)

	jobs := make(chan string)
	var wg sync.WaitGroup
	for range b.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for url := range jobs {
				b.downloadOne(ctx, url, sourceFile)
			}
		}()
	}

dispatch:
	for i, url := range pending {
		if i > 0 {
			timer := time.NewTimer(b.startDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				break dispatch
			case <-timer.C:
			}
		}
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- url:
		}
	}
	close(jobs)
	wg.Wait()

	b.mu.Lock()
	final := b.state
	b.mu.Unlock()
	return final, ctx.Err()
}

func (b *BulkDownloader) downloadOne(ctx context.Context, url, sourceFile string) {
	_, err := b.downloader.Download(ctx, url, b.outputDir)

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.logger.Warn("map download failed", "url", url, "error", err)
		b.state.Failed++
		b.failures = append(b.failures, Failure{
			URL:       url,
			Error:     err.Error(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			MapName:   mapNameFromURL(url),
		})
		b.saveFailures()
	} else {
		b.state.Completed++
		b.completed[url] = true
		b.saveCheckpoint(sourceFile)
	}
	b.reportProgressLocked()
}

func (b *BulkDownloader) reportProgress() {
	b.mu.Lock()
	b.reportProgressLocked()
	b.mu.Unlock()
}

func (b *BulkDownloader) reportProgressLocked() {
	if b.progress != nil {
		b.progress(b.state)
	}
}

func (b *BulkDownloader) loadCheckpoint() {
	data, err := os.ReadFile(filepath.Join(b.outputDir, CheckpointFilename))
	if err != nil {
		return
	}
	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		b.logger.Warn("ignoring unreadable checkpoint", "error", err)
		return
	}
	for _, url := range cp.CompletedURLs {
		b.completed[url] = true
	}
}

func (b *BulkDownloader) saveCheckpoint(sourceFile string) {
	cp := checkpoint{
		CompletedURLs: make([]string, 0, len(b.completed)),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		SourceFile:    sourceFile,
	}
	for url := range b.completed {
		cp.CompletedURLs = append(cp.CompletedURLs, url)
	}
	if err := writeJSONFile(filepath.Join(b.outputDir, CheckpointFilename), cp); err != nil {
		b.logger.Warn("failed to save checkpoint", "error", err)
	}
}

func (b *BulkDownloader) loadFailures() {
	data, err := os.ReadFile(filepath.Join(b.outputDir, FailuresFilename))
	if err != nil {
		return
	}
	var failures []Failure
	if err := json.Unmarshal(data, &failures); err != nil {
		b.logger.Warn("ignoring unreadable failures file", "error", err)
		return
	}
	b.failures = failures
}

func (b *BulkDownloader) saveFailures() {
	if err := writeJSONFile(filepath.Join(b.outputDir, FailuresFilename), b.failures); err != nil {
		b.logger.Warn("failed to save failures", "error", err)
	}
}

func readURLFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

func mapNameFromURL(url string) string {
	base := url[strings.LastIndexByte(url, '/')+1:]
	return strings.TrimSuffix(base, ".zip")
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
