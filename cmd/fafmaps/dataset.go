package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/subcommands"
	"github.com/schollz/progressbar/v3"

	"github.com/faforge/go-fafmaps/config"
	"github.com/faforge/go-fafmaps/dataset"
)

type datasetBuildCmd struct {
	configPath string
	inputDir   string
	outputDir  string
	minSize    int
	maxSize    int
	seed       int64
}

func (c *datasetBuildCmd) Name() string     { return "dataset-build" }
func (c *datasetBuildCmd) Synopsis() string { return "build a heightmap dataset from downloaded maps" }
func (c *datasetBuildCmd) Usage() string {
	return "fafmaps dataset-build [-config <path>] -i <maps-dir> [-o <dataset-dir>]\n"
}
func (c *datasetBuildCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "Config file path")
	f.StringVar(&c.inputDir, "i", "", "Directory with downloaded maps")
	f.StringVar(&c.outputDir, "o", "", "Dataset output directory (default from config)")
	f.IntVar(&c.minSize, "min-size", 0, "Minimum map size in game units (0 for no minimum)")
	f.IntVar(&c.maxSize, "max-size", 0, "Maximum map size in game units (0 for no maximum)")
	f.Int64Var(&c.seed, "seed", 0, "Random seed for the train/val/test split")
}

func (c *datasetBuildCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.inputDir == "" {
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
		outputDir = cfg.Dataset.OutputDir
	}
	minSize := c.minSize
	if minSize == 0 {
		minSize = cfg.Dataset.MinSize
	}
	maxSize := c.maxSize
	if maxSize == 0 {
		maxSize = cfg.Dataset.MaxSize
	}
	seed := c.seed
	if seed == 0 {
		seed = cfg.Dataset.Seed
	}

	bar := progressbar.NewOptions(-1, progressbar.OptionShowIts(), progressbar.OptionShowCount())
	b, err := dataset.NewBuilder(outputDir, dataset.BuilderParams{
		MinSize: minSize,
		MaxSize: maxSize,
		Seed:    seed,
		Ratios: dataset.SplitRatios{
			Train: cfg.Dataset.TrainRatio,
			Val:   cfg.Dataset.ValRatio,
			Test:  cfg.Dataset.TestRatio,
		},
		Progress: func(p dataset.Progress) {
			bar.ChangeMax(p.Total)
			bar.Set(p.Processed + p.Failed + p.Skipped)
		},
		Logger: newLogger(),
	})
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	result, err := b.Build(c.inputDir)
	bar.Finish()
	fmt.Println()
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	fmt.Printf("built dataset with %d samples in %s\n", result.TotalSamples, result.OutputDir)
	fmt.Printf("  processed %d, skipped %d, failed %d\n", result.Processed, result.Skipped, result.Failed)
	fmt.Printf("  splits: train %d, val %d, test %d\n",
		result.SplitCounts["train"], result.SplitCounts["val"], result.SplitCounts["test"])
	return subcommands.ExitSuccess
}

type datasetValidateCmd struct {
	jsonOut bool
}

func (c *datasetValidateCmd) Name() string     { return "dataset-validate" }
func (c *datasetValidateCmd) Synopsis() string { return "check the integrity of a built dataset" }
func (c *datasetValidateCmd) Usage() string {
	return "fafmaps dataset-validate [-json] <dataset-dir>\n"
}
func (c *datasetValidateCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.jsonOut, "json", false, "Print the full report as JSON")
}

func (c *datasetValidateCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	report, err := dataset.NewValidator(f.Arg(0)).Validate()
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	if c.jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Println(err)
			return subcommands.ExitFailure
		}
		fmt.Println(string(data))
	} else {
		printReport(report)
	}

	if !report.Valid {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printReport(report *dataset.Report) {
	if report.Valid {
		fmt.Printf("dataset is valid: %d samples\n", report.TotalSamples)
		return
	}
	fmt.Printf("dataset is INVALID: %d of %d samples failed\n", report.InvalidSamples, report.TotalSamples)
	for _, msg := range report.MetadataErrors {
		fmt.Printf("  metadata: %s\n", msg)
	}
	for _, msg := range report.SplitErrors {
		fmt.Printf("  splits: %s\n", msg)
	}
	for _, sampleError := range report.SampleErrors {
		for _, msg := range sampleError.Errors {
			fmt.Printf("  %s: %s\n", sampleError.SampleID, msg)
		}
	}
}

type datasetInfoCmd struct {
	jsonOut bool
}

func (c *datasetInfoCmd) Name() string     { return "dataset-info" }
func (c *datasetInfoCmd) Synopsis() string { return "print statistics for a built dataset" }
func (c *datasetInfoCmd) Usage() string {
	return "fafmaps dataset-info [-json] <dataset-dir>\n"
}
func (c *datasetInfoCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.jsonOut, "json", false, "Print statistics as JSON")
}

func (c *datasetInfoCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	stats, err := dataset.CollectStats(f.Arg(0))
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	if c.jsonOut {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			log.Println(err)
			return subcommands.ExitFailure
		}
		fmt.Println(string(data))
	} else {
		fmt.Print(stats.String())
	}
	return subcommands.ExitSuccess
}
