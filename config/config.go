// Package config loads the fafmaps tool configuration from YAML.
package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	API      APIConfig      `yaml:"api"`
	Download DownloadConfig `yaml:"download"`
	Dataset  DatasetConfig  `yaml:"dataset"`
}

type APIConfig struct {
	BaseURL      string `yaml:"base_url"`
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

type DownloadConfig struct {
	OutputDir   string `yaml:"output_dir"`
	Concurrency int    `yaml:"concurrency"`
	MaxRetries  int    `yaml:"max_retries"`
}

type DatasetConfig struct {
	OutputDir  string  `yaml:"output_dir"`
	MinSize    int     `yaml:"min_size"`
	MaxSize    int     `yaml:"max_size"`
	Seed       int64   `yaml:"seed"`
	TrainRatio float64 `yaml:"train_ratio"`
	ValRatio   float64 `yaml:"val_ratio"`
	TestRatio  float64 `yaml:"test_ratio"`
}

// Load reads a config file, filling unset fields with defaults. An empty
// path returns the defaults unchanged. Credentials left empty in the file
// fall back to the FAF_CLIENT_ID and FAF_CLIENT_SECRET environment
// variables.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}

	if cfg.API.ClientID == "" {
		cfg.API.ClientID = os.Getenv("FAF_CLIENT_ID")
	}
	if cfg.API.ClientSecret == "" {
		cfg.API.ClientSecret = os.Getenv("FAF_CLIENT_SECRET")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL:  "https://api.faforever.com",
			TokenURL: "https://hydra.faforever.com/oauth2/token",
		},
		Download: DownloadConfig{
			OutputDir:   "data/maps",
			Concurrency: 4,
			MaxRetries:  3,
		},
		Dataset: DatasetConfig{
			OutputDir:  "data/dataset",
			TrainRatio: 0.8,
			ValRatio:   0.1,
			TestRatio:  0.1,
		},
	}
}

func (c Config) Validate() error {
	if c.Download.Concurrency < 1 {
		return fmt.Errorf("download.concurrency must be at least 1, got %d", c.Download.Concurrency)
	}
	if c.Download.MaxRetries < 1 {
		return fmt.Errorf("download.max_retries must be at least 1, got %d", c.Download.MaxRetries)
	}
	if c.Dataset.MinSize < 0 || c.Dataset.MaxSize < 0 {
		return fmt.Errorf("dataset size bounds must not be negative")
	}
	if c.Dataset.MaxSize > 0 && c.Dataset.MinSize > c.Dataset.MaxSize {
		return fmt.Errorf("dataset.min_size %d exceeds dataset.max_size %d", c.Dataset.MinSize, c.Dataset.MaxSize)
	}
	total := c.Dataset.TrainRatio + c.Dataset.ValRatio + c.Dataset.TestRatio
	if math.Abs(total-1.0) > 1e-4 {
		return fmt.Errorf("dataset split ratios must sum to 1.0, got %v", total)
	}
	return nil
}
