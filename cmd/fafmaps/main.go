// fafmaps is a command line tool for working with FAF terrain maps:
// inspecting .scmap files, downloading maps from the vault and building
// heightmap datasets.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/google/subcommands"
	_ "github.com/mattn/go-sqlite3"
)

var verbose bool

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(&inspectCmd{}, "")
	subcommands.Register(&downloadCmd{}, "")
	subcommands.Register(&bulkCmd{}, "")
	subcommands.Register(&datasetBuildCmd{}, "dataset")
	subcommands.Register(&datasetValidateCmd{}, "dataset")
	subcommands.Register(&datasetInfoCmd{}, "dataset")

	flag.BoolVar(&verbose, "v", false, "Enable debug logging")
	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
