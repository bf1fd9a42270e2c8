package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/subcommands"
	"github.com/schollz/progressbar/v3"

	"github.com/faforge/go-fafmaps/config"
	"github.com/faforge/go-fafmaps/download"
	"github.com/faforge/go-fafmaps/vault"
)

type bulkCmd struct {
	configPath string
	outputDir  string
	urlFile    string
	limit      int
	noResume   bool
	fromVault  bool
	minSize    int
	maxSize    int
}

func (c *bulkCmd) Name() string     { return "bulk" }
func (c *bulkCmd) Synopsis() string { return "download many maps with checkpointed resume" }
func (c *bulkCmd) Usage() string {
	return "fafmaps bulk [-config <path>] [-o <dir>] [-limit <n>] (-f <url-file> | -vault)\n"
}
func (c *bulkCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "Config file path")
	f.StringVar(&c.outputDir, "o", "", "Output directory (default from config)")
	f.StringVar(&c.urlFile, "f", "", "File with map URLs, one per line")
	f.IntVar(&c.limit, "limit", 0, "Maximum number of maps to download (0 for all)")
	f.BoolVar(&c.noResume, "no-resume", false, "Ignore an existing checkpoint")
	f.BoolVar(&c.fromVault, "vault", false, "Discover URLs via the vault API instead of a file")
	f.IntVar(&c.minSize, "min-size", 0, "Minimum map size in game units for vault discovery")
	f.IntVar(&c.maxSize, "max-size", 0, "Maximum map size in game units for vault discovery")
}

func (c *bulkCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	// Exactly one URL source must be selected.
	if c.fromVault == (c.urlFile != "") {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	outputDir := c.outputDir
	if outputDir == "" {
		outputDir = cfg.Download.OutputDir
	}

	bar := progressbar.NewOptions(-1, progressbar.OptionShowIts(), progressbar.OptionShowCount())
	b := download.NewBulkDownloader(outputDir, download.BulkParams{
		Concurrency: cfg.Download.Concurrency,
		Downloader: download.NewDownloader(download.DownloaderParams{
			MaxRetries: cfg.Download.MaxRetries,
			Logger:     newLogger(),
		}),
		Progress: func(p download.Progress) {
			bar.Set(p.Completed + p.Failed + p.Skipped)
		},
		Logger: newLogger(),
	})

	var progress download.Progress
	if c.fromVault {
		urls, err := c.discoverURLs(ctx, cfg)
		if err != nil {
			log.Println(err)
			return subcommands.ExitFailure
		}
		progress, err = b.DownloadURLs(ctx, urls, c.limit, !c.noResume)
		if err != nil {
			log.Println(err)
			return subcommands.ExitFailure
		}
	} else {
		progress, err = b.DownloadFromFile(ctx, c.urlFile, c.limit, !c.noResume)
		if err != nil {
			log.Println(err)
			return subcommands.ExitFailure
		}
	}
	bar.Finish()
	fmt.Println()

	fmt.Printf("downloaded %d, skipped %d, failed %d of %d maps\n",
		progress.Completed, progress.Skipped, progress.Failed, progress.Total)
	if progress.Failed > 0 {
		fmt.Printf("see %s for failure details\n", download.FailuresFilename)
	}
	return subcommands.ExitSuccess
}

// discoverURLs walks the vault listing and collects download URLs matching
// the size filters.
func (c *bulkCmd) discoverURLs(ctx context.Context, cfg config.Config) ([]string, error) {
	client := newVaultClient(cfg)
	filter := vault.ListFilter{MinSize: c.minSize, MaxSize: c.maxSize}

	maxPages := 0
	if c.limit > 0 {
		maxPages = (c.limit + vault.MaxPageSize - 1) / vault.MaxPageSize
	}

	var urls []string
	err := client.VisitMaps(ctx, vault.MaxPageSize, filter, maxPages, func(record vault.MapRecord) error {
		if record.DownloadURL != "" {
			urls = append(urls, record.DownloadURL)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return urls, nil
}
